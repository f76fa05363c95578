package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/flasky/internal/common"
	"github.com/dmitrijs2005/flasky/internal/dbx"
	"github.com/dmitrijs2005/flasky/internal/server/mail"
	"github.com/dmitrijs2005/flasky/internal/server/models"
	rolesrepo "github.com/dmitrijs2005/flasky/internal/server/repositories/roles"
	usersrepo "github.com/dmitrijs2005/flasky/internal/server/repositories/users"
)

// --- helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type fakeClock struct{ t time.Time }

func newClock() *fakeClock                   { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }
func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// --- roles ---

type fakeRolesRepo struct {
	mu     sync.Mutex
	byName map[string]*models.Role
	nextID int64

	err      error
	upserts  int
	clearErr error
}

func newFakeRoles() *fakeRolesRepo {
	return &fakeRolesRepo{byName: map[string]*models.Role{}}
}

// seeded returns a repo holding the canonical roles.
func seededRoles() *fakeRolesRepo {
	r := newFakeRoles()
	for _, seed := range models.DefaultRoles {
		r.nextID++
		r.byName[seed.Name] = &models.Role{ID: r.nextID, Name: seed.Name, Permissions: seed.Permissions, Default: seed.Default}
	}
	return r
}

func (f *fakeRolesRepo) find(match func(*models.Role) bool) (*models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.byName {
		if match(r) {
			c := *r
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRolesRepo) GetByID(_ context.Context, id int64) (*models.Role, error) {
	return f.find(func(r *models.Role) bool { return r.ID == id })
}

func (f *fakeRolesRepo) GetByName(_ context.Context, name string) (*models.Role, error) {
	return f.find(func(r *models.Role) bool { return r.Name == name })
}

func (f *fakeRolesRepo) GetDefault(context.Context) (*models.Role, error) {
	return f.find(func(r *models.Role) bool { return r.Default })
}

func (f *fakeRolesRepo) List(context.Context) ([]*models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Role
	for _, r := range f.byName {
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Permissions < out[j].Permissions })
	return out, nil
}

func (f *fakeRolesRepo) Upsert(_ context.Context, role *models.Role) (*models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.upserts++
	if existing, ok := f.byName[role.Name]; ok {
		role.ID = existing.ID
	} else {
		f.nextID++
		role.ID = f.nextID
	}
	if role.Default {
		for _, r := range f.byName {
			if r.Default && r.Name != role.Name {
				return nil, fmt.Errorf("db error: second default role")
			}
		}
	}
	c := *role
	f.byName[role.Name] = &c
	return role, nil
}

func (f *fakeRolesRepo) ClearDefault(_ context.Context, keep string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	for _, r := range f.byName {
		if r.Name != keep {
			r.Default = false
		}
	}
	return nil
}

// --- users ---

type fakeUsersRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	roles  *fakeRolesRepo
	nextID int

	getErr    error
	updateErr error
	existsErr error
	updates   int
}

func newFakeUsers(roles *fakeRolesRepo) *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[string]*models.User{}, roles: roles}
}

func (f *fakeUsersRepo) clash(u *models.User) bool {
	for id, other := range f.byID {
		if id == u.ID {
			continue
		}
		if other.Email == models.NormalizeEmail(u.Email) || other.Username == u.Username {
			return true
		}
	}
	return false
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clash(u) {
		return nil, common.ErrorAlreadyExists
	}
	f.nextID++
	u.ID = fmt.Sprintf("u-%d", f.nextID)
	u.Email = models.NormalizeEmail(u.Email)
	u.MemberSince = time.Now()
	u.LastSeen = u.MemberSince
	c := *u
	c.Role = nil
	f.byID[u.ID] = &c
	return u, nil
}

func (f *fakeUsersRepo) load(match func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if match(u) {
			c := *u
			if f.roles != nil && c.RoleID != 0 {
				c.Role, _ = f.roles.GetByID(context.Background(), c.RoleID)
			}
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	return f.load(func(u *models.User) bool { return u.ID == id })
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	return f.load(func(u *models.User) bool { return u.Email == email })
}

func (f *fakeUsersRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return f.load(func(u *models.User) bool { return u.Username == username })
}

func (f *fakeUsersRepo) Update(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.byID[u.ID]; !ok {
		return common.ErrorNotFound
	}
	if f.clash(u) {
		return common.ErrorAlreadyExists
	}
	f.updates++
	u.Email = models.NormalizeEmail(u.Email)
	c := *u
	c.Role = nil
	f.byID[u.ID] = &c
	return nil
}

func (f *fakeUsersRepo) UpdateLastSeen(_ context.Context, id string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return time.Time{}, common.ErrorNotFound
	}
	u.LastSeen = time.Now()
	return u.LastSeen, nil
}

func (f *fakeUsersRepo) ExistsByEmail(_ context.Context, email, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	email = models.NormalizeEmail(email)
	for id, u := range f.byID {
		if id != excludeID && u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsersRepo) ExistsByUsername(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	for _, u := range f.byID {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// stored returns the persisted copy of a user.
func (f *fakeUsersRepo) stored(id string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *f.byID[id]
	return &c
}

// --- manager ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRolesRepo
}

func newFakeManager() *fakeRepoManager {
	roles := seededRoles()
	return &fakeRepoManager{u: newFakeUsers(roles), r: roles}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.u }
func (m *fakeRepoManager) Roles(db dbx.DBTX) rolesrepo.Repository       { return m.r }

// --- mail ---

type fakeMailer struct {
	mu   sync.Mutex
	msgs []mail.Message
	err  error
}

func (f *fakeMailer) Enqueue(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeMailer) last(template string) (mail.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].Template == template {
			return f.msgs[i], true
		}
	}
	return mail.Message{}, false
}
