package model

import (
	"fmt"
	"strings"

	errx "github.com/email-assistant-core/server/internal/core/error"
)

// EmailFields is the structured form of an email found in a message.
type EmailFields struct {
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
	ToName      string `json:"to_name"`
	ToEmail     string `json:"to_email"`
	Subject     string `json:"subject"`
	EmailThread string `json:"email_thread"`
}

// Author renders "Name <address>".
func (e *EmailFields) Author() string {
	return fmt.Sprintf("%s <%s>", e.AuthorName, e.AuthorEmail)
}

// To renders "Name <address>".
func (e *EmailFields) To() string {
	return fmt.Sprintf("%s <%s>", e.ToName, e.ToEmail)
}

type Classification string

const (
	ClassificationIgnore  Classification = "ignore"
	ClassificationNotify  Classification = "notify"
	ClassificationRespond Classification = "respond"
)

// ParseClassification accepts exactly ignore, notify or respond.
func ParseClassification(label string) (Classification, error) {
	switch c := Classification(label); c {
	case ClassificationIgnore, ClassificationNotify, ClassificationRespond:
		return c, nil
	default:
		return "", errx.InvalidClassification(label)
	}
}

func (c Classification) String() string {
	return string(c)
}

// Verdict is the outcome of classifying one email.
type Verdict struct {
	Classification Classification `json:"classification"`
	Reasoning      string         `json:"reasoning"`
}

// Detection reports whether a message carries an email to triage.
type Detection struct {
	EmailFound bool `json:"email_found"`
}

// Summary is a short human readable line used when a pass ends without a reply.
func (v *Verdict) Summary(e *EmailFields) string {
	var b strings.Builder
	switch v.Classification {
	case ClassificationIgnore:
		b.WriteString("Ignored email")
	case ClassificationNotify:
		b.WriteString("Important email (no reply needed)")
	default:
		b.WriteString("Email needs a reply")
	}
	if e != nil {
		fmt.Fprintf(&b, " from %s: %q", e.Author(), e.Subject)
	}
	if v.Reasoning != "" {
		b.WriteString(". ")
		b.WriteString(v.Reasoning)
	}
	return b.String()
}
