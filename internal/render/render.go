// Package render stamps an email template for one recipient. Substitution is
// plain string replacement over a fixed token set; unknown tokens are left
// verbatim so a typo in a template shows up in the preview instead of
// disappearing silently.
package render

import (
	"strings"

	"RosterMail/internal/models"
)

// Rendered is the output of one template render.
type Rendered struct {
	Subject string
	Body    string
}

// Render substitutes the placeholder tokens in both subject and body.
func Render(tpl models.EmailTemplate, r models.Recipient) Rendered {
	return Rendered{
		Subject: substitute(tpl.Subject, r),
		Body:    substitute(tpl.Body, r),
	}
}

func substitute(text string, r models.Recipient) string {
	first, last := SplitName(r.Name)

	replacer := strings.NewReplacer(
		"{nombre}", r.Name,
		"{nombres}", first,
		"{apellidos}", last,
		"{titulo}", r.Title,
		"{estimado}", Honorific(r.Gender),
		"{departamento}", r.Department,
		"{cargo}", r.Position,
		"{correo}", r.Email,
		"{jefatura_nombre}", orNA(r.BossName),
		"{jefatura_cargo}", orNA(r.BossPosition),
	)
	return replacer.Replace(text)
}

// Honorific picks the gender-agreed salutation adjective, with a neutral
// default when the gender marker is absent or unspecified.
func Honorific(g models.Gender) string {
	switch g {
	case models.GenderMale:
		return "Estimado"
	case models.GenderFemale:
		return "Estimada"
	default:
		return "Estimado/a"
	}
}

// SplitName derives first name and surname from a full name. With more than
// two whitespace-separated tokens the surname is the last two tokens joined,
// otherwise it is the second token if present, else empty.
//
// This is a heuristic tuned to the two-given-two-family convention of the
// source rosters. It is knowingly wrong for single-token names, hyphenated
// surnames and non-Spanish naming orders; templates depend on its exact
// behavior, so do not "fix" it.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(full))
	if len(parts) == 0 {
		return "", ""
	}
	first = parts[0]
	switch {
	case len(parts) > 2:
		last = strings.Join(parts[len(parts)-2:], " ")
	case len(parts) == 2:
		last = parts[1]
	}
	return first, last
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
