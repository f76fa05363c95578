package models

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/flasky/internal/cryptox"
)

// ErrPasswordWriteOnly is the panic value raised by (*User).Password.
var ErrPasswordWriteOnly = errors.New("password is not a readable attribute")

// User is a registered account. Email is always stored lower-cased.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	RoleID       int64
	Role         *Role
	Confirmed    bool

	Name        string
	Location    string
	AboutMe     string
	AvatarKey   string
	MemberSince time.Time
	LastSeen    time.Time
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Password always panics: only the hash is kept, there is no plaintext to
// return. Use SetPassword and VerifyPassword instead.
func (u *User) Password() string {
	panic(ErrPasswordWriteOnly)
}

// SetPassword replaces the stored hash with a new salted hash of password.
func (u *User) SetPassword(password string) error {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	return nil
}

// VerifyPassword reports whether password matches the stored hash.
func (u *User) VerifyPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return cryptox.VerifyPassword(password, u.PasswordHash)
}

// Can reports whether the user's role grants perm. A user without a role
// can do nothing.
func (u *User) Can(perm Permission) bool {
	return u.Role != nil && u.Role.HasPermission(perm)
}

func (u *User) IsAdministrator() bool {
	return u.Can(PermissionAdmin)
}

// GravatarURL returns the Gravatar image URL for the user's email.
func (u *User) GravatarURL(size int) string {
	sum := md5.Sum([]byte(NormalizeEmail(u.Email)))
	return fmt.Sprintf("https://secure.gravatar.com/avatar/%s?s=%d&d=identicon&r=g", hex.EncodeToString(sum[:]), size)
}
