package storage

import (
	"strings"
	"unicode"
)

// ManifestFilename is the per-user manifest object name.
const ManifestFilename = "manifest.json"

// SanitizeUserID strips everything but alphanumerics, dashes, and
// underscores from a user identifier.
func SanitizeUserID(userID string) string {
	value := strings.TrimSpace(userID)
	var b strings.Builder
	for _, ch := range value {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '-' || ch == '_' {
			b.WriteRune(ch)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

// Slugify derives a stable slug from an arbitrary string, typically a form
// URL: lowercase alphanumerics separated by single dashes.
func Slugify(value string) string {
	base := strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	for _, ch := range base {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			b.WriteRune(ch)
		} else {
			b.WriteRune('-')
		}
	}
	parts := strings.FieldsFunc(b.String(), func(r rune) bool { return r == '-' })
	slug := strings.Join(parts, "-")
	if slug == "" {
		return "document"
	}
	return slug
}

// ManifestKey returns the object key of a user's upload manifest.
func ManifestKey(userID string) string {
	return SanitizeUserID(userID) + "/" + ManifestFilename
}

// InfoKey returns the object key of an upload's extracted-information JSON.
func InfoKey(userID, slug string) string {
	return SanitizeUserID(userID) + "/" + slug + "/info.json"
}

// FormSourceKey returns the object key of a form's persisted source copy.
func FormSourceKey(userID, formSlug string) string {
	return SanitizeUserID(userID) + "/forms/" + formSlug + "/source.pdf"
}

// FormSchemaKey returns the object key of a form's extracted schema JSON.
func FormSchemaKey(userID, formSlug string) string {
	return SanitizeUserID(userID) + "/forms/" + formSlug + "/schema.json"
}

// FormFilledKey returns the object key of a form's filled artifact.
func FormFilledKey(userID, formSlug string) string {
	return SanitizeUserID(userID) + "/forms/" + formSlug + "/filled.pdf"
}
