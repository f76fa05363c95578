package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/flasky/internal/logging"
	"github.com/dmitrijs2005/flasky/internal/server/forms"
	"github.com/dmitrijs2005/flasky/internal/server/models"
	"github.com/dmitrijs2005/flasky/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/flasky/internal/server/storage"
)

// AvatarStorage hands out presigned object URLs.
type AvatarStorage interface {
	PresignPut(ctx context.Context, key string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

// ProfileService edits the public part of a user record.
type ProfileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	avatars     AvatarStorage
	now         func() time.Time
	log         logging.Logger
}

func NewProfileService(db *sql.DB, m repomanager.RepositoryManager, avatars AvatarStorage, log logging.Logger) *ProfileService {
	return &ProfileService{
		db:          db,
		repomanager: m,
		avatars:     avatars,
		now:         time.Now,
		log:         log.With("module", "profiles"),
	}
}

// GetProfile looks a user up by username.
func (s *ProfileService) GetProfile(ctx context.Context, username string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByUsername(ctx, username)
}

// EditProfile stores name, location and about text. Invalid input returns
// false with the form errors.
func (s *ProfileService) EditProfile(ctx context.Context, user *models.User, form forms.ProfileForm) (bool, forms.Errors, error) {
	errs, err := forms.Validate(ctx, form.Fields()...)
	if err != nil {
		return false, nil, err
	}
	if errs != nil {
		return false, errs, nil
	}

	updated := *user
	updated.Name = form.Name
	updated.Location = form.Location
	updated.AboutMe = form.AboutMe
	if err := s.repomanager.Users(s.db).Update(ctx, &updated); err != nil {
		return false, nil, fmt.Errorf("error updating profile: %w", err)
	}

	*user = updated
	return true, nil, nil
}

// AvatarUploadURL allocates a new object key for user, records it and
// returns a presigned PUT URL for it.
func (s *ProfileService) AvatarUploadURL(ctx context.Context, user *models.User) (string, string, error) {
	key := storage.NewKey(s.now())

	url, err := s.avatars.PresignPut(ctx, key)
	if err != nil {
		return "", "", err
	}

	prev := user.AvatarKey
	user.AvatarKey = key
	if err := s.repomanager.Users(s.db).Update(ctx, user); err != nil {
		user.AvatarKey = prev
		return "", "", fmt.Errorf("error storing avatar key: %w", err)
	}

	s.log.Debug(ctx, "avatar upload url issued", "user_id", user.ID, "key", key)
	return url, key, nil
}

// AvatarURL returns a presigned GET URL for an uploaded avatar or the
// Gravatar fallback.
func (s *ProfileService) AvatarURL(ctx context.Context, user *models.User, size int) (string, error) {
	if user.AvatarKey == "" {
		return user.GravatarURL(size), nil
	}
	return s.avatars.PresignGet(ctx, user.AvatarKey)
}
