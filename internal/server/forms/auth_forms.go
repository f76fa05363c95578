package forms

// UsernamePattern restricts usernames to letters, digits, dots and
// underscores, starting with a letter.
const UsernamePattern = `^[A-Za-z][A-Za-z0-9_.]*$`

const (
	msgPasswordsMatch = "Passwords must match."
	msgEmailTaken     = "Email already registered."
	msgUsernameTaken  = "Username already in use."
	msgUsernameChars  = "Usernames must have only letters, numbers, dots or underscores."
)

func emailValidators() []Validator {
	return []Validator{Required(), Length(1, 64), Email()}
}

type LoginForm struct {
	Email      string
	Password   string
	RememberMe bool
}

func (f LoginForm) Fields() []Field {
	return []Field{
		{Name: "email", Value: f.Email, Validators: emailValidators()},
		{Name: "password", Value: f.Password, Validators: []Validator{Required()}},
	}
}

type RegistrationForm struct {
	Email     string
	Username  string
	Password  string
	Password2 string
}

// Fields checks email and username uniqueness with the given lookups.
func (f RegistrationForm) Fields(emailTaken, usernameTaken Lookup) []Field {
	return []Field{
		{Name: "email", Value: f.Email, Validators: append(emailValidators(), Unique(emailTaken, msgEmailTaken))},
		{Name: "username", Value: f.Username, Validators: []Validator{
			Required(),
			Length(1, 64),
			Regexp(UsernamePattern, msgUsernameChars),
			Unique(usernameTaken, msgUsernameTaken),
		}},
		{Name: "password", Value: f.Password, Validators: []Validator{Required(), EqualTo(f.Password2, msgPasswordsMatch)}},
		{Name: "password2", Value: f.Password2, Validators: []Validator{Required()}},
	}
}

type PasswordUpdateForm struct {
	OldPassword string
	Password    string
	Password2   string
}

func (f PasswordUpdateForm) Fields() []Field {
	return []Field{
		{Name: "old_password", Value: f.OldPassword, Validators: []Validator{Required()}},
		{Name: "password", Value: f.Password, Validators: []Validator{Required(), EqualTo(f.Password2, msgPasswordsMatch)}},
		{Name: "password2", Value: f.Password2, Validators: []Validator{Required()}},
	}
}

type PasswordResetRequestForm struct {
	Email string
}

func (f PasswordResetRequestForm) Fields() []Field {
	return []Field{
		{Name: "email", Value: f.Email, Validators: emailValidators()},
	}
}

type PasswordResetForm struct {
	Password  string
	Password2 string
}

func (f PasswordResetForm) Fields() []Field {
	return []Field{
		{Name: "password", Value: f.Password, Validators: []Validator{Required(), EqualTo(f.Password2, msgPasswordsMatch)}},
		{Name: "password2", Value: f.Password2, Validators: []Validator{Required()}},
	}
}

type ChangeEmailForm struct {
	Email    string
	Password string
}

func (f ChangeEmailForm) Fields(emailTaken Lookup) []Field {
	return []Field{
		{Name: "email", Value: f.Email, Validators: append(emailValidators(), Unique(emailTaken, msgEmailTaken))},
		{Name: "password", Value: f.Password, Validators: []Validator{Required()}},
	}
}
