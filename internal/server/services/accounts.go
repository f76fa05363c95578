// Package services contains server-side business logic. AccountService
// drives the account lifecycle: registration, login, email confirmation,
// password reset and email change, each gated by a signed token.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/flasky/internal/common"
	"github.com/dmitrijs2005/flasky/internal/cryptox"
	"github.com/dmitrijs2005/flasky/internal/dbx"
	"github.com/dmitrijs2005/flasky/internal/logging"
	"github.com/dmitrijs2005/flasky/internal/server/auth"
	"github.com/dmitrijs2005/flasky/internal/server/config"
	"github.com/dmitrijs2005/flasky/internal/server/forms"
	"github.com/dmitrijs2005/flasky/internal/server/mail"
	"github.com/dmitrijs2005/flasky/internal/server/models"
	"github.com/dmitrijs2005/flasky/internal/server/repositories/repomanager"
)

// Paths of the pages that redeem emailed tokens, relative to ExternalURL.
const (
	ConfirmPath     = "/auth/confirm/"
	ResetPath       = "/auth/reset/"
	ChangeEmailPath = "/auth/change_email/"
)

// Mailer queues an email for background delivery.
type Mailer interface {
	Enqueue(ctx context.Context, msg mail.Message) error
}

// AccountService methods that redeem a token return (false, nil) for any
// rejected input: bad signature, expiry, wrong purpose, wrong user or a
// taken address. A non-nil error always means the store or another
// collaborator failed.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	signer      *auth.Signer
	mailer      Mailer
	log         logging.Logger

	adminEmail     string
	externalURL    string
	confirmTTL     time.Duration
	resetTTL       time.Duration
	emailChangeTTL time.Duration
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, signer *auth.Signer, mailer Mailer,
	cfg *config.Config, log logging.Logger) *AccountService {
	return &AccountService{
		db:             db,
		repomanager:    m,
		signer:         signer,
		mailer:         mailer,
		log:            log.With("module", "accounts"),
		adminEmail:     models.NormalizeEmail(cfg.AdminEmail),
		externalURL:    strings.TrimRight(cfg.ExternalURL, "/"),
		confirmTTL:     cfg.ConfirmationTokenTTL,
		resetTTL:       cfg.ResetTokenTTL,
		emailChangeTTL: cfg.EmailChangeTokenTTL,
	}
}

func ttl(expiration, fallback time.Duration) time.Duration {
	if expiration > 0 {
		return expiration
	}
	return fallback
}

// GenerateConfirmationToken issues a confirm token bound to user.ID. A
// non-positive expiration selects the configured default.
func (s *AccountService) GenerateConfirmationToken(user *models.User, expiration time.Duration) (string, error) {
	return s.signer.Generate(auth.PurposeConfirm, auth.Payload{UserID: user.ID}, ttl(expiration, s.confirmTTL))
}

// Confirm marks user as confirmed when token is a valid confirm token issued
// for that same user. Redeeming a valid token twice succeeds without a write.
func (s *AccountService) Confirm(ctx context.Context, user *models.User, token string) (bool, error) {
	p, err := s.signer.Verify(token, auth.PurposeConfirm)
	if err != nil {
		s.log.Debug(ctx, "confirm token rejected", "user_id", user.ID, "err", err)
		return false, nil
	}
	if p.UserID != user.ID {
		s.log.Warn(ctx, "confirm token for another user", "user_id", user.ID)
		return false, nil
	}
	if user.Confirmed {
		return true, nil
	}

	user.Confirmed = true
	if err := s.repomanager.Users(s.db).Update(ctx, user); err != nil {
		user.Confirmed = false
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error confirming user: %w", err)
	}

	s.log.Info(ctx, "account confirmed", "user_id", user.ID)
	return true, nil
}

func (s *AccountService) GenerateResetToken(user *models.User, expiration time.Duration) (string, error) {
	return s.signer.Generate(auth.PurposeResetPassword, auth.Payload{UserID: user.ID}, ttl(expiration, s.resetTTL))
}

// ResetPassword sets a new password for the user named by a valid reset
// token. No caller identity is needed.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) (bool, error) {
	p, err := s.signer.Verify(token, auth.PurposeResetPassword)
	if err != nil {
		s.log.Debug(ctx, "reset token rejected", "err", err)
		return false, nil
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error loading user: %w", err)
	}

	if err := user.SetPassword(newPassword); err != nil {
		return false, err
	}
	if err := repo.Update(ctx, user); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error updating password: %w", err)
	}

	s.log.Info(ctx, "password reset", "user_id", user.ID)
	return true, nil
}

// GenerateEmailChangeToken issues a token carrying both the user id and the
// requested address, stored lower-cased.
func (s *AccountService) GenerateEmailChangeToken(user *models.User, newEmail string, expiration time.Duration) (string, error) {
	payload := auth.Payload{UserID: user.ID, NewEmail: models.NormalizeEmail(newEmail)}
	return s.signer.Generate(auth.PurposeChangeEmail, payload, ttl(expiration, s.emailChangeTTL))
}

// ChangeEmail switches user to the address carried by token. The address is
// checked for uniqueness again at redemption and the store's unique index
// decides any remaining race.
func (s *AccountService) ChangeEmail(ctx context.Context, user *models.User, token string) (bool, error) {
	p, err := s.signer.Verify(token, auth.PurposeChangeEmail)
	if err != nil {
		s.log.Debug(ctx, "email change token rejected", "user_id", user.ID, "err", err)
		return false, nil
	}
	if p.UserID != user.ID || p.NewEmail == "" {
		return false, nil
	}

	repo := s.repomanager.Users(s.db)
	taken, err := repo.ExistsByEmail(ctx, p.NewEmail, user.ID)
	if err != nil {
		return false, fmt.Errorf("error checking email: %w", err)
	}
	if taken {
		return false, nil
	}

	old := user.Email
	user.Email = p.NewEmail
	if err := repo.Update(ctx, user); err != nil {
		user.Email = old
		if errors.Is(err, common.ErrorAlreadyExists) || errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error updating email: %w", err)
	}

	s.log.Info(ctx, "email changed", "user_id", user.ID)
	return true, nil
}

func (s *AccountService) emailTaken(ctx context.Context, email string) (bool, error) {
	return s.repomanager.Users(s.db).ExistsByEmail(ctx, email, "")
}

func (s *AccountService) usernameTaken(ctx context.Context, username string) (bool, error) {
	return s.repomanager.Users(s.db).ExistsByUsername(ctx, username)
}

// roleFor picks the Administrator role for the configured admin address and
// the default role for everyone else. A missing role leaves the user
// without one.
func (s *AccountService) roleFor(ctx context.Context, email string) (*models.Role, error) {
	repo := s.repomanager.Roles(s.db)

	var (
		role *models.Role
		err  error
	)
	if s.adminEmail != "" && models.NormalizeEmail(email) == s.adminEmail {
		role, err = repo.GetByName(ctx, models.RoleAdministrator)
	} else {
		role, err = repo.GetDefault(ctx)
	}
	if errors.Is(err, common.ErrorNotFound) {
		s.log.Warn(ctx, "no role to assign, roles not seeded?", "email", email)
		return nil, nil
	}
	return role, err
}

// Register validates form, creates the account and queues the confirmation
// email. Form failures come back as forms.Errors.
func (s *AccountService) Register(ctx context.Context, form forms.RegistrationForm) (*models.User, error) {
	errs, err := forms.Validate(ctx, form.Fields(s.emailTaken, s.usernameTaken)...)
	if err != nil {
		return nil, fmt.Errorf("error validating form: %w", err)
	}
	if errs != nil {
		return nil, errs
	}

	user := &models.User{Email: models.NormalizeEmail(form.Email), Username: form.Username}
	if err := user.SetPassword(form.Password); err != nil {
		return nil, err
	}

	role, err := s.roleFor(ctx, user.Email)
	if err != nil {
		return nil, fmt.Errorf("error resolving role: %w", err)
	}
	if role != nil {
		user.RoleID = role.ID
		user.Role = role
	}

	if _, err := s.repomanager.Users(s.db).Create(ctx, user); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	s.log.Info(ctx, "user registered", "user_id", user.ID, "email", user.Email)

	if err := s.sendConfirmation(ctx, user); err != nil {
		return nil, err
	}
	if s.adminEmail != "" {
		s.enqueue(ctx, mail.Message{
			To:       s.adminEmail,
			Subject:  "New User",
			Template: mail.TemplateNewUser,
			Data:     mail.Data{User: user},
		})
	}

	return user, nil
}

func (s *AccountService) sendConfirmation(ctx context.Context, user *models.User) error {
	token, err := s.GenerateConfirmationToken(user, 0)
	if err != nil {
		return fmt.Errorf("error generating token: %w", err)
	}
	s.enqueue(ctx, mail.Message{
		To:       user.Email,
		Subject:  "Confirm Your Account",
		Template: mail.TemplateConfirm,
		Data:     mail.Data{User: user, Token: token, URL: s.externalURL + ConfirmPath + token},
	})
	return nil
}

// enqueue is fire-and-forget: a full or closed queue is logged only.
func (s *AccountService) enqueue(ctx context.Context, msg mail.Message) {
	if err := s.mailer.Enqueue(ctx, msg); err != nil {
		s.log.Warn(ctx, "mail not queued", "to", msg.To, "template", msg.Template, "err", err)
	}
}

// Authenticate returns the user owning email when password matches.
// Unknown addresses and wrong passwords both yield common.ErrorUnauthorized.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		s.log.Error(ctx, "error loading user", "err", err)
		return nil, common.ErrorInternal
	}
	if !user.VerifyPassword(password) {
		return nil, common.ErrorUnauthorized
	}

	if cryptox.NeedsRehash(user.PasswordHash) {
		if err := user.SetPassword(password); err == nil {
			if err := repo.Update(ctx, user); err != nil {
				s.log.Warn(ctx, "password rehash not stored", "user_id", user.ID, "err", err)
			}
		}
	}
	if err := s.Ping(ctx, user); err != nil {
		s.log.Warn(ctx, "last seen not updated", "user_id", user.ID, "err", err)
	}

	return user, nil
}

// ResendConfirmation queues a new confirmation email. Confirmed users are
// left alone.
func (s *AccountService) ResendConfirmation(ctx context.Context, user *models.User) error {
	if user.Confirmed {
		return nil
	}
	return s.sendConfirmation(ctx, user)
}

// ChangePassword replaces the password after checking the current one.
func (s *AccountService) ChangePassword(ctx context.Context, user *models.User, oldPassword, newPassword string) (bool, error) {
	if !user.VerifyPassword(oldPassword) {
		return false, nil
	}

	prev := user.PasswordHash
	if err := user.SetPassword(newPassword); err != nil {
		return false, err
	}
	if err := s.repomanager.Users(s.db).Update(ctx, user); err != nil {
		user.PasswordHash = prev
		return false, fmt.Errorf("error updating password: %w", err)
	}
	return true, nil
}

// RequestPasswordReset queues a reset email when email belongs to a user.
// It reports nothing about whether the address is registered.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("error loading user: %w", err)
	}

	token, err := s.GenerateResetToken(user, 0)
	if err != nil {
		return fmt.Errorf("error generating token: %w", err)
	}
	s.enqueue(ctx, mail.Message{
		To:       user.Email,
		Subject:  "Reset Your Password",
		Template: mail.TemplateResetPassword,
		Data:     mail.Data{User: user, Token: token, URL: s.externalURL + ResetPath + token},
	})
	return nil
}

// RequestEmailChange checks the password and the new address, then mails a
// change token to the new address.
func (s *AccountService) RequestEmailChange(ctx context.Context, user *models.User, newEmail, password string) (bool, error) {
	if !user.VerifyPassword(password) {
		return false, nil
	}

	form := forms.ChangeEmailForm{Email: newEmail, Password: password}
	errs, err := forms.Validate(ctx, form.Fields(s.emailTaken)...)
	if err != nil {
		return false, fmt.Errorf("error validating form: %w", err)
	}
	if errs != nil {
		return false, nil
	}

	token, err := s.GenerateEmailChangeToken(user, newEmail, 0)
	if err != nil {
		return false, fmt.Errorf("error generating token: %w", err)
	}
	s.enqueue(ctx, mail.Message{
		To:       models.NormalizeEmail(newEmail),
		Subject:  "Confirm your email address",
		Template: mail.TemplateChangeEmail,
		Data:     mail.Data{User: user, Token: token, URL: s.externalURL + ChangeEmailPath + token},
	})
	return true, nil
}

// Ping records activity for user.
func (s *AccountService) Ping(ctx context.Context, user *models.User) error {
	seen, err := s.repomanager.Users(s.db).UpdateLastSeen(ctx, user.ID)
	if err != nil {
		return err
	}
	user.LastSeen = seen
	return nil
}

// SetRole moves a user to the named role.
func (s *AccountService) SetRole(ctx context.Context, userID, roleName string) (*models.User, error) {
	var user *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		role, err := s.repomanager.Roles(tx).GetByName(ctx, roleName)
		if err != nil {
			return fmt.Errorf("role %q: %w", roleName, err)
		}

		users := s.repomanager.Users(tx)
		u, err := users.GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("user %q: %w", userID, err)
		}

		u.RoleID = role.ID
		u.Role = role
		if err := users.Update(ctx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "role changed", "user_id", userID, "role", roleName)
	return user, nil
}
