package content

import (
	"bytes"
	"errors"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	policy = bluemonday.UGCPolicy()

	// Linkify-only markdown: bare URLs become anchors, raw HTML in the
	// message body stays escaped.
	md = goldmark.New(goldmark.WithExtensions(extension.Linkify))
)

// Sanitize removes unsafe HTML from the input string using a strict policy.
// It is used for sanitizing user inputs like display names and messages.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// Escape escapes special characters like "<" to become "&lt;".
// It matches the behavior of html/template and is safe for use in HTML attributes.
func Escape(input string) string {
	return template.HTMLEscapeString(input)
}

// Linkify renders a message body to HTML with bare URLs turned into
// clickable anchors. The result is sanitized and safe to embed.
func Linkify(text string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return Escape(text)
	}
	return policy.Sanitize(buf.String())
}

// Lead is the contact tuple captured by the lead form before smart
// entry. Values are expected pre-trimmed (see ValidateLead).
type Lead struct {
	FirstName string
	WhatsApp  string
	Email     string
}

// ValidateLead normalizes and validates the lead form input: trims all
// fields, lowercases the email and checks the same constraints the form
// enforces (first name and WhatsApp present, plausible email).
func ValidateLead(lead Lead) (Lead, error) {
	lead.FirstName = strings.TrimSpace(lead.FirstName)
	lead.WhatsApp = strings.TrimSpace(lead.WhatsApp)
	lead.Email = strings.ToLower(strings.TrimSpace(lead.Email))

	if lead.FirstName == "" {
		return lead, errors.New("le prénom est requis")
	}
	if lead.WhatsApp == "" {
		return lead, errors.New("le numéro WhatsApp est requis")
	}
	if lead.Email == "" || !strings.Contains(lead.Email, "@") {
		return lead, errors.New("un email valide est requis")
	}

	return lead, nil
}
