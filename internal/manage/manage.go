// Package manage implements the operator commands shipped as cmd/manage:
// schema deployment, the first administrator account, role inspection and
// secret generation.
package manage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/flasky/internal/common"
	"github.com/dmitrijs2005/flasky/internal/server/forms"
	"github.com/dmitrijs2005/flasky/internal/server/models"
)

// ErrUnknownCommand is returned by Run for anything it does not recognise.
var ErrUnknownCommand = errors.New("unknown command")

// secretSize is the number of random bytes behind a generated secret key.
const secretSize = 32

type Deployer interface {
	Deploy(ctx context.Context) error
}

// Accounts is the part of the account service the CLI drives.
type Accounts interface {
	Register(ctx context.Context, form forms.RegistrationForm) (*models.User, error)
	GenerateConfirmationToken(user *models.User, expiration time.Duration) (string, error)
	Confirm(ctx context.Context, user *models.User, token string) (bool, error)
	SetRole(ctx context.Context, userID, roleName string) (*models.User, error)
}

type RoleLister interface {
	List(ctx context.Context) ([]*models.Role, error)
}

type Manager struct {
	deployer   Deployer
	accounts   Accounts
	roles      RoleLister
	adminEmail string

	in  *bufio.Reader
	out io.Writer
}

// New returns a Manager reading answers from in and printing to out.
// adminEmail is offered as the default address by create-admin.
func New(d Deployer, a Accounts, r RoleLister, adminEmail string, in io.Reader, out io.Writer) *Manager {
	return &Manager{
		deployer:   d,
		accounts:   a,
		roles:      r,
		adminEmail: adminEmail,
		in:         bufio.NewReader(in),
		out:        out,
	}
}

// Positional returns the leading arguments up to the first flag. Config
// flags follow the command on the command line and are parsed elsewhere.
func Positional(args []string) []string {
	for i, a := range args {
		if strings.HasPrefix(a, "-") {
			return args[:i]
		}
	}
	return args
}

// Run executes the command named by args[0].
func (m *Manager) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		m.usage()
		return fmt.Errorf("%w: none given", ErrUnknownCommand)
	}

	switch args[0] {
	case "deploy":
		return m.deploy(ctx)
	case "create-admin":
		return m.createAdmin(ctx)
	case "roles":
		return m.listRoles(ctx)
	case "set-role":
		if len(args) != 3 {
			return errors.New("usage: set-role <user-id> <role>")
		}
		return m.setRole(ctx, args[1], args[2])
	case "secret":
		return m.secret()
	case "help":
		m.usage()
		return nil
	default:
		m.usage()
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
}

func (m *Manager) usage() {
	fmt.Fprintln(m.out, "Commands:")
	fmt.Fprintln(m.out, "  deploy                     apply migrations and sync roles")
	fmt.Fprintln(m.out, "  create-admin               create a confirmed administrator")
	fmt.Fprintln(m.out, "  roles                      list roles and permissions")
	fmt.Fprintln(m.out, "  set-role <user-id> <role>  move a user to another role")
	fmt.Fprintln(m.out, "  secret                     print a new random secret key")
}

func (m *Manager) deploy(ctx context.Context) error {
	if err := m.deployer.Deploy(ctx); err != nil {
		return err
	}
	fmt.Fprintln(m.out, "Deployed.")
	return nil
}

func (m *Manager) createAdmin(ctx context.Context) error {
	prompt := "Email"
	if m.adminEmail != "" {
		prompt = fmt.Sprintf("Email [%s]", m.adminEmail)
	}
	email, err := GetSimpleText(m.in, prompt, m.out)
	if err != nil {
		return err
	}
	if email == "" {
		email = m.adminEmail
	}

	username, err := GetSimpleText(m.in, "Username", m.out)
	if err != nil {
		return err
	}

	password, err := GetPassword("Password", m.out)
	if err != nil {
		return err
	}
	password2, err := GetPassword("Repeat password", m.out)
	if err != nil {
		return err
	}

	user, err := m.accounts.Register(ctx, forms.RegistrationForm{
		Email:     email,
		Username:  username,
		Password:  password,
		Password2: password2,
	})
	if err != nil {
		var ferrs forms.Errors
		if errors.As(err, &ferrs) {
			for field, msgs := range ferrs {
				for _, msg := range msgs {
					fmt.Fprintf(m.out, "%s: %s\n", field, msg)
				}
			}
		}
		return err
	}

	token, err := m.accounts.GenerateConfirmationToken(user, 0)
	if err != nil {
		return err
	}
	ok, err := m.accounts.Confirm(ctx, user, token)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("could not confirm the new account")
	}

	if _, err := m.accounts.SetRole(ctx, user.ID, models.RoleAdministrator); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Administrator %s (%s) created.\n", user.Username, user.ID)
	return nil
}

func (m *Manager) listRoles(ctx context.Context) error {
	roles, err := m.roles.List(ctx)
	if err != nil {
		return err
	}
	if len(roles) == 0 {
		fmt.Fprintln(m.out, "No roles, run deploy first.")
		return nil
	}

	for _, r := range roles {
		def := ""
		if r.Default {
			def = " (default)"
		}
		fmt.Fprintf(m.out, "%-14s %3d %s%s\n", r.Name, int64(r.Permissions), r.Permissions, def)
	}
	return nil
}

func (m *Manager) setRole(ctx context.Context, userID, role string) error {
	user, err := m.accounts.SetRole(ctx, userID, role)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("no such user or role: %w", err)
		}
		return err
	}
	fmt.Fprintf(m.out, "%s is now %s.\n", user.Username, role)
	return nil
}

func (m *Manager) secret() error {
	s, err := common.MakeRandHexString(secretSize)
	if err != nil {
		return err
	}
	fmt.Fprintln(m.out, s)
	return nil
}
