package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"path"
	"strings"
	texttemplate "text/template"
)

//go:embed templates
var templateFS embed.FS

// Renderer turns a Message into an Envelope using the embedded
// <template>.txt and optional <template>.html files.
type Renderer struct {
	prefix string
	text   map[string]*texttemplate.Template
	html   map[string]*htmltemplate.Template
}

// NewRenderer parses every embedded template. The subject prefix is
// prepended to each subject, separated by a space.
func NewRenderer(subjectPrefix string) (*Renderer, error) {
	return newRenderer(templateFS, "templates", subjectPrefix)
}

func newRenderer(fsys fs.FS, root, subjectPrefix string) (*Renderer, error) {
	r := &Renderer{
		prefix: subjectPrefix,
		text:   map[string]*texttemplate.Template{},
		html:   map[string]*htmltemplate.Template{},
	}

	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		ext := path.Ext(p)
		id := strings.TrimSuffix(strings.TrimPrefix(p, root+"/"), ext)

		src, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}

		switch ext {
		case ".txt":
			t, err := texttemplate.New(id).Option("missingkey=error").Parse(string(src))
			if err != nil {
				return fmt.Errorf("parse %s: %w", p, err)
			}
			r.text[id] = t
		case ".html":
			t, err := htmltemplate.New(id).Option("missingkey=error").Parse(string(src))
			if err != nil {
				return fmt.Errorf("parse %s: %w", p, err)
			}
			r.html[id] = t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Has reports whether a plain text template with the given id exists.
func (r *Renderer) Has(id string) bool {
	_, ok := r.text[id]
	return ok
}

func (r *Renderer) Render(msg Message) (Envelope, error) {
	t, ok := r.text[msg.Template]
	if !ok {
		return Envelope{}, fmt.Errorf("unknown mail template %q", msg.Template)
	}

	env := Envelope{To: msg.To, Subject: msg.Subject}
	if r.prefix != "" {
		env.Subject = r.prefix + " " + msg.Subject
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, msg.Data); err != nil {
		return Envelope{}, fmt.Errorf("render %s.txt: %w", msg.Template, err)
	}
	env.Text = buf.String()

	if h, ok := r.html[msg.Template]; ok {
		buf.Reset()
		if err := h.Execute(&buf, msg.Data); err != nil {
			return Envelope{}, fmt.Errorf("render %s.html: %w", msg.Template, err)
		}
		env.HTML = buf.String()
	}

	return env, nil
}
