package notification

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	"text/template"

	"emergency-service/internal/location"
	"emergency-service/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Content is what an alert is rendered from.
type Content struct {
	Message       string
	EmergencyType models.EventType
	Location      *models.Location
}

// Rendered holds every body produced for one alert batch.
type Rendered struct {
	SMS     string
	Subject string
	Text    string
	HTML    string
}

// templateData is what the templates see.
type templateData struct {
	Message string
	Type    string
	MapsURL string
	Address string
}

// Templates holds the parsed alert templates.
type Templates struct {
	sms     *template.Template
	subject *template.Template
	plain   *template.Template
	html    *htmltemplate.Template
}

// LoadTemplates parses the embedded alert templates.
func LoadTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	parse := func(name string) (*template.Template, error) {
		return template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/"+name)
	}

	sms, err := parse("sms.txt")
	if err != nil {
		return nil, err
	}
	subject, err := parse("subject.txt")
	if err != nil {
		return nil, err
	}
	plain, err := parse("alert.txt")
	if err != nil {
		return nil, err
	}
	html, err := htmltemplate.New("alert.html").Funcs(htmltemplate.FuncMap(funcs)).ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	return &Templates{sms: sms, subject: subject, plain: plain, html: html}, nil
}

// MustLoadTemplates is LoadTemplates for package initialisation and tests.
func MustLoadTemplates() *Templates {
	t, err := LoadTemplates()
	if err != nil {
		panic(fmt.Sprintf("notification templates: %v", err))
	}
	return t
}

// Render produces the SMS body and the email subject and bodies for c.
// It has no side effects and reads no clock, so equal input gives equal output.
func (t *Templates) Render(c Content) (Rendered, error) {
	data := newTemplateData(c)

	var out Rendered
	var err error
	if out.SMS, err = execute(t.sms, data); err != nil {
		return Rendered{}, fmt.Errorf("render sms: %w", err)
	}
	if out.Subject, err = execute(t.subject, data); err != nil {
		return Rendered{}, fmt.Errorf("render subject: %w", err)
	}
	if out.Text, err = execute(t.plain, data); err != nil {
		return Rendered{}, fmt.Errorf("render text: %w", err)
	}
	if out.HTML, err = execute(t.html, data); err != nil {
		return Rendered{}, fmt.Errorf("render html: %w", err)
	}

	// Subjects are a single header line.
	out.Subject = strings.Join(strings.Fields(out.Subject), " ")
	return out, nil
}

func newTemplateData(c Content) templateData {
	data := templateData{
		Message: strings.TrimSpace(c.Message),
		Type:    string(c.EmergencyType),
	}
	if c.Location != nil {
		data.MapsURL = location.MapsURL(location.Coordinates{
			Latitude:  c.Location.Latitude,
			Longitude: c.Location.Longitude,
		})
		data.Address = c.Location.Address
	}
	return data
}

// executor is satisfied by both text and html templates.
type executor interface {
	Execute(w io.Writer, data any) error
}

func execute(t executor, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
