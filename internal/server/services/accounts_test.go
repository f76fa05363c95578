package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/flasky/internal/common"
	"github.com/dmitrijs2005/flasky/internal/logging"
	"github.com/dmitrijs2005/flasky/internal/server/auth"
	"github.com/dmitrijs2005/flasky/internal/server/config"
	"github.com/dmitrijs2005/flasky/internal/server/forms"
	"github.com/dmitrijs2005/flasky/internal/server/mail"
	"github.com/dmitrijs2005/flasky/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type accountsFixture struct {
	svc    *AccountService
	rm     *fakeRepoManager
	mailer *fakeMailer
	clock  *fakeClock
	mock   sqlmock.Sqlmock
}

func newAccounts(t *testing.T) *accountsFixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	cfg := &config.Config{
		SecretKey:            "k",
		AdminEmail:           "Admin@X.com",
		ExternalURL:          "http://localhost:5000/",
		ConfirmationTokenTTL: 10 * time.Minute,
		ResetTokenTTL:        time.Hour,
		EmailChangeTokenTTL:  time.Hour,
	}
	clock := newClock()
	rm := newFakeManager()
	mailer := &fakeMailer{}
	signer := auth.NewSigner([]byte(cfg.SecretKey), auth.WithClock(clock.Now))
	svc := NewAccountService(db, rm, signer, mailer, cfg, logging.Nop())
	return &accountsFixture{svc: svc, rm: rm, mailer: mailer, clock: clock, mock: mock}
}

func (f *accountsFixture) register(t *testing.T, email, username, password string) *models.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), forms.RegistrationForm{
		Email: email, Username: username, Password: password, Password2: password,
	})
	require.NoError(t, err)
	return u
}

func TestAccountLifecycle(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()

	u := f.register(t, "e@x.com", "john", "cat")
	assert.True(t, u.Can(models.PermissionFollow))
	assert.False(t, u.Can(models.PermissionAdmin))
	assert.False(t, u.Confirmed)

	msg, ok := f.mailer.last(mail.TemplateConfirm)
	require.True(t, ok, "confirmation mail queued")
	assert.Equal(t, "e@x.com", msg.To)
	assert.Equal(t, "http://localhost:5000/auth/confirm/"+msg.Data.Token, msg.Data.URL)

	notice, ok := f.mailer.last(mail.TemplateNewUser)
	require.True(t, ok, "admin notice queued")
	assert.Equal(t, "admin@x.com", notice.To)

	confirmed, err := f.svc.Confirm(ctx, u, msg.Data.Token)
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.True(t, f.rm.u.stored(u.ID).Confirmed)

	token, err := f.svc.GenerateResetToken(u, 0)
	require.NoError(t, err)
	reset, err := f.svc.ResetPassword(ctx, token, "dog")
	require.NoError(t, err)
	assert.True(t, reset)

	stored := f.rm.u.stored(u.ID)
	assert.True(t, stored.VerifyPassword("dog"))
	assert.False(t, stored.VerifyPassword("cat"))
}

func TestRegister_AdminAddressGetsAdministrator(t *testing.T) {
	f := newAccounts(t)

	u := f.register(t, "admin@x.COM", "boss", "cat")
	require.NotNil(t, u.Role)
	assert.Equal(t, models.RoleAdministrator, u.Role.Name)
	assert.True(t, u.IsAdministrator())
	assert.Equal(t, "admin@x.com", u.Email)
}

func TestRegister_ValidationErrors(t *testing.T) {
	f := newAccounts(t)
	f.register(t, "e@x.com", "john", "cat")

	_, err := f.svc.Register(context.Background(), forms.RegistrationForm{
		Email: "E@x.com", Username: "john", Password: "cat", Password2: "dog",
	})
	require.ErrorIs(t, err, common.ErrorValidation)

	var errs forms.Errors
	require.True(t, errors.As(err, &errs))
	assert.NotEmpty(t, errs.First("email"))
	assert.NotEmpty(t, errs.First("username"))
	assert.NotEmpty(t, errs.First("password"))
}

func TestRegister_WithoutSeededRoles(t *testing.T) {
	f := newAccounts(t)
	f.rm.r.byName = map[string]*models.Role{}

	u := f.register(t, "e@x.com", "john", "cat")
	assert.Nil(t, u.Role)
	assert.False(t, u.Can(models.PermissionFollow))
}

func TestRegister_MailQueueFullStillRegisters(t *testing.T) {
	f := newAccounts(t)
	f.mailer.err = mail.ErrQueueFull

	u := f.register(t, "e@x.com", "john", "cat")
	assert.NotEmpty(t, u.ID)
}

func TestRegister_StoreFault(t *testing.T) {
	f := newAccounts(t)
	f.rm.u.existsErr = errBoom{}

	_, err := f.svc.Register(context.Background(), forms.RegistrationForm{
		Email: "e@x.com", Username: "john", Password: "cat", Password2: "cat",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorValidation)
	assert.ErrorIs(t, err, errBoom{})
}

func TestConfirm_TokenForAnotherUser(t *testing.T) {
	f := newAccounts(t)
	a := f.register(t, "a@x.com", "ann", "cat")
	b := f.register(t, "b@x.com", "bob", "cat")

	token, err := f.svc.GenerateConfirmationToken(a, 0)
	require.NoError(t, err)

	ok, err := f.svc.Confirm(context.Background(), b, token)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, b.Confirmed)
	assert.False(t, f.rm.u.stored(b.ID).Confirmed)
}

func TestConfirm_Expired(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")

	token, err := f.svc.GenerateConfirmationToken(u, time.Second)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Second)

	ok, err := f.svc.Confirm(context.Background(), u, token)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, u.Confirmed)
}

func TestConfirm_DefaultExpirationFromConfig(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")

	token, err := f.svc.GenerateConfirmationToken(u, 0)
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	ok, err := f.svc.Confirm(context.Background(), u, token)
	require.NoError(t, err)
	assert.False(t, ok, "configured ttl is 10 minutes")

	token, err = f.svc.GenerateConfirmationToken(u, -1)
	require.NoError(t, err)
	f.clock.Advance(9 * time.Minute)
	ok, err = f.svc.Confirm(context.Background(), u, token)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConfirm_WrongPurpose(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")

	token, err := f.svc.GenerateResetToken(u, 0)
	require.NoError(t, err)

	ok, err := f.svc.Confirm(context.Background(), u, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfirm_AlreadyConfirmedSkipsWrite(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")
	token, err := f.svc.GenerateConfirmationToken(u, 0)
	require.NoError(t, err)

	ok, err := f.svc.Confirm(context.Background(), u, token)
	require.NoError(t, err)
	require.True(t, ok)
	updates := f.rm.u.updates

	ok, err = f.svc.Confirm(context.Background(), u, token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, updates, f.rm.u.updates)
}

func TestConfirm_StoreFault(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")
	token, err := f.svc.GenerateConfirmationToken(u, 0)
	require.NoError(t, err)
	f.rm.u.updateErr = errBoom{}

	ok, err := f.svc.Confirm(context.Background(), u, token)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errBoom{})
	assert.False(t, u.Confirmed)
}

func TestResetPassword_TamperedToken(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")
	token, err := f.svc.GenerateResetToken(u, 0)
	require.NoError(t, err)

	ok, err := f.svc.ResetPassword(context.Background(), token+"x", "dog")
	require.NoError(t, err)
	assert.False(t, ok)

	stored := f.rm.u.stored(u.ID)
	assert.True(t, stored.VerifyPassword("cat"))
	assert.False(t, stored.VerifyPassword("dog"))
}

func TestResetPassword_UnknownUser(t *testing.T) {
	f := newAccounts(t)

	token, err := f.svc.GenerateResetToken(&models.User{ID: "u-999"}, 0)
	require.NoError(t, err)

	ok, err := f.svc.ResetPassword(context.Background(), token, "dog")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetPassword_EmptyPassword(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")
	token, err := f.svc.GenerateResetToken(u, 0)
	require.NoError(t, err)

	ok, err := f.svc.ResetPassword(context.Background(), token, "")
	require.NoError(t, err)
	assert.True(t, ok)
	stored := f.rm.u.stored(u.ID)
	assert.NotEmpty(t, stored.PasswordHash)
	assert.True(t, stored.VerifyPassword(""))
	assert.False(t, stored.VerifyPassword("cat"))
}

func TestResetPassword_StoreFault(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")
	token, err := f.svc.GenerateResetToken(u, 0)
	require.NoError(t, err)
	f.rm.u.getErr = errBoom{}

	ok, err := f.svc.ResetPassword(context.Background(), token, "dog")
	assert.False(t, ok)
	assert.ErrorIs(t, err, errBoom{})
}

func TestChangeEmail_Success(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")

	token, err := f.svc.GenerateEmailChangeToken(u, "New@X.com", 0)
	require.NoError(t, err)

	ok, err := f.svc.ChangeEmail(context.Background(), u, token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new@x.com", u.Email)
	assert.Equal(t, "new@x.com", f.rm.u.stored(u.ID).Email)
}

func TestChangeEmail_AddressTaken(t *testing.T) {
	f := newAccounts(t)
	f.register(t, "a@x.com", "ann", "cat")
	b := f.register(t, "b@x.com", "bob", "cat")

	token, err := f.svc.GenerateEmailChangeToken(b, "a@x.com", 0)
	require.NoError(t, err)

	ok, err := f.svc.ChangeEmail(context.Background(), b, token)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "b@x.com", b.Email)
	assert.Equal(t, "b@x.com", f.rm.u.stored(b.ID).Email)
}

func TestChangeEmail_UniqueViolationOnUpdate(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")
	token, err := f.svc.GenerateEmailChangeToken(u, "new@x.com", 0)
	require.NoError(t, err)
	f.rm.u.updateErr = common.ErrorAlreadyExists

	ok, err := f.svc.ChangeEmail(context.Background(), u, token)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "e@x.com", u.Email)
}

func TestChangeEmail_TokenForAnotherUser(t *testing.T) {
	f := newAccounts(t)
	a := f.register(t, "a@x.com", "ann", "cat")
	b := f.register(t, "b@x.com", "bob", "cat")

	token, err := f.svc.GenerateEmailChangeToken(a, "new@x.com", 0)
	require.NoError(t, err)

	ok, err := f.svc.ChangeEmail(context.Background(), b, token)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "b@x.com", f.rm.u.stored(b.ID).Email)
}

func TestChangeEmail_LookupFault(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")
	token, err := f.svc.GenerateEmailChangeToken(u, "new@x.com", 0)
	require.NoError(t, err)
	f.rm.u.existsErr = errBoom{}

	ok, err := f.svc.ChangeEmail(context.Background(), u, token)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	u := f.register(t, "e@x.com", "john", "cat")

	got, err := f.svc.Authenticate(ctx, "E@X.com", "cat")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.False(t, got.LastSeen.IsZero())
	require.NotNil(t, got.Role)

	_, err = f.svc.Authenticate(ctx, "e@x.com", "dog")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.svc.Authenticate(ctx, "ghost@x.com", "cat")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	f.rm.u.getErr = errBoom{}
	_, err = f.svc.Authenticate(ctx, "e@x.com", "cat")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestAuthenticate_UpgradesLegacyHash(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")

	legacy, err := bcrypt.GenerateFromPassword([]byte("cat"), bcrypt.MinCost)
	require.NoError(t, err)
	u.PasswordHash = string(legacy)
	require.NoError(t, f.rm.u.Update(context.Background(), u))

	_, err = f.svc.Authenticate(context.Background(), "e@x.com", "cat")
	require.NoError(t, err)

	stored := f.rm.u.stored(u.ID)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
	assert.True(t, stored.VerifyPassword("cat"))
}

func TestResendConfirmation(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")
	queued := len(f.mailer.msgs)

	require.NoError(t, f.svc.ResendConfirmation(context.Background(), u))
	assert.Len(t, f.mailer.msgs, queued+1)

	u.Confirmed = true
	require.NoError(t, f.svc.ResendConfirmation(context.Background(), u))
	assert.Len(t, f.mailer.msgs, queued+1)
}

func TestChangePassword(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	u := f.register(t, "e@x.com", "john", "cat")

	ok, err := f.svc.ChangePassword(ctx, u, "wrong", "dog")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.ChangePassword(ctx, u, "cat", "dog")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.rm.u.stored(u.ID).VerifyPassword("dog"))

	f.rm.u.updateErr = errBoom{}
	ok, err = f.svc.ChangePassword(ctx, u, "dog", "fish")
	assert.False(t, ok)
	assert.Error(t, err)
	assert.True(t, u.VerifyPassword("dog"), "hash restored after failed write")
}

func TestRequestPasswordReset(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	u := f.register(t, "e@x.com", "john", "cat")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ghost@x.com"))
	_, queued := f.mailer.last(mail.TemplateResetPassword)
	assert.False(t, queued)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "E@x.com"))
	msg, queued := f.mailer.last(mail.TemplateResetPassword)
	require.True(t, queued)
	assert.Equal(t, "e@x.com", msg.To)
	assert.Equal(t, "http://localhost:5000/auth/reset/"+msg.Data.Token, msg.Data.URL)

	ok, err := f.svc.ResetPassword(ctx, msg.Data.Token, "dog")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.rm.u.stored(u.ID).VerifyPassword("dog"))

	f.rm.u.getErr = errBoom{}
	assert.Error(t, f.svc.RequestPasswordReset(ctx, "e@x.com"))
}

func TestRequestEmailChange(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "ann", "cat")
	u := f.register(t, "e@x.com", "john", "cat")

	ok, err := f.svc.RequestEmailChange(ctx, u, "new@x.com", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.RequestEmailChange(ctx, u, "a@x.com", "cat")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.RequestEmailChange(ctx, u, "not-an-email", "cat")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.RequestEmailChange(ctx, u, "New@x.com", "cat")
	require.NoError(t, err)
	require.True(t, ok)

	msg, queued := f.mailer.last(mail.TemplateChangeEmail)
	require.True(t, queued)
	assert.Equal(t, "new@x.com", msg.To)
	assert.Equal(t, "http://localhost:5000/auth/change_email/"+msg.Data.Token, msg.Data.URL)

	changed, err := f.svc.ChangeEmail(ctx, u, msg.Data.Token)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "new@x.com", f.rm.u.stored(u.ID).Email)
}

func TestPing(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")
	u.LastSeen = time.Time{}

	require.NoError(t, f.svc.Ping(context.Background(), u))
	assert.False(t, u.LastSeen.IsZero())

	assert.ErrorIs(t, f.svc.Ping(context.Background(), &models.User{ID: "u-999"}), common.ErrorNotFound)
}

func TestSetRole(t *testing.T) {
	f := newAccounts(t)
	u := f.register(t, "e@x.com", "john", "cat")

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	got, err := f.svc.SetRole(context.Background(), u.ID, models.RoleModerator)
	require.NoError(t, err)
	assert.True(t, got.Can(models.PermissionModerate))
	assert.False(t, got.Can(models.PermissionAdmin))

	reloaded, err := f.rm.u.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, reloaded.Role.Name)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.SetRole(context.Background(), u.ID, "Nobody")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.SetRole(context.Background(), "u-999", models.RoleUser)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}
