package forms

// ProfileForm edits the public profile. Every field is optional.
type ProfileForm struct {
	Name     string
	Location string
	AboutMe  string
}

func (f ProfileForm) Fields() []Field {
	return []Field{
		{Name: "name", Value: f.Name, Validators: []Validator{Length(0, 64)}},
		{Name: "location", Value: f.Location, Validators: []Validator{Length(0, 64)}},
		{Name: "about_me", Value: f.AboutMe},
	}
}
