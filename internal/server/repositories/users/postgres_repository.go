package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/flasky/internal/common"
	"github.com/dmitrijs2005/flasky/internal/dbx"
	"github.com/dmitrijs2005/flasky/internal/server/models"
)

const selectUser = `SELECT u.id, u.email, u.username, u.password_hash, u.role_id, u.confirmed,
		 u.name, u.location, u.about_me, u.avatar_key, u.member_since, u.last_seen,
		 r.name, r.permissions, r.is_default
		 FROM users u LEFT JOIN roles r ON r.id = u.role_id
		 `

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// roleID maps the zero id to NULL.
func roleID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func translate(err error) error {
	if dbx.IsUniqueViolation(err) {
		return common.ErrorAlreadyExists
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (email, username, password_hash, role_id, confirmed, name, location, about_me)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, member_since, last_seen
		 `

	user.Email = models.NormalizeEmail(user.Email)
	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.Username, user.PasswordHash, roleID(user.RoleID), user.Confirmed,
		user.Name, user.Location, user.AboutMe).Scan(&user.ID, &user.MemberSince, &user.LastSeen)

	if err != nil {
		return nil, translate(err)
	}

	return user, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	var (
		rid      sql.NullInt64
		roleName sql.NullString
		perms    sql.NullInt64
		isDef    sql.NullBool
	)

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, selectUser+where, arg).Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash, &rid, &user.Confirmed,
		&user.Name, &user.Location, &user.AboutMe, &user.AvatarKey, &user.MemberSince, &user.LastSeen,
		&roleName, &perms, &isDef)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if rid.Valid {
		user.RoleID = rid.Int64
		user.Role = &models.Role{
			ID:          rid.Int64,
			Name:        roleName.String,
			Permissions: models.Permission(perms.Int64),
			Default:     isDef.Bool,
		}
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "WHERE u.id::text = $1", id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "WHERE lower(u.email) = $1", models.NormalizeEmail(email))
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, "WHERE u.username = $1", username)
}

func (r *PostgresRepository) Update(ctx context.Context, user *models.User) error {
	query :=
		`UPDATE users SET email = $2, username = $3, password_hash = $4, role_id = $5,
		 confirmed = $6, name = $7, location = $8, about_me = $9, avatar_key = $10
		 WHERE id::text = $1
		 `

	user.Email = models.NormalizeEmail(user.Email)
	res, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Username, user.PasswordHash, roleID(user.RoleID),
		user.Confirmed, user.Name, user.Location, user.AboutMe, user.AvatarKey)
	if err != nil {
		return translate(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string) (time.Time, error) {
	query :=
		`UPDATE users SET last_seen = now()
		 WHERE id::text = $1
		 RETURNING last_seen
		 `

	var seen time.Time
	err := r.db.QueryRowContext(ctx, query, id).Scan(&seen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, common.ErrorNotFound
		}
		return time.Time{}, fmt.Errorf("db error: %w", err)
	}

	return seen, nil
}

func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = $1 AND id::text <> $2)
		 `

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, models.NormalizeEmail(email), excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)
		 `

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}
