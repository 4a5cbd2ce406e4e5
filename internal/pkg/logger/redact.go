package logger

import (
	"regexp"
	"strings"
)

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

var profileSlugRegex = regexp.MustCompile(`(?i)linkedin\.com/(in|profile)/[^/\s?#]+`)

// RedactProfileURL masks the slug of a LinkedIn profile URL.
// "https://linkedin.com/in/janedoe" → "https://linkedin.com/in/ja***"
func RedactProfileURL(u string) string {
	return profileSlugRegex.ReplaceAllStringFunc(u, func(m string) string {
		i := strings.LastIndex(m, "/")
		slug := m[i+1:]
		if len(slug) > 2 {
			slug = slug[:2] + "***"
		} else {
			slug = "***"
		}
		return m[:i+1] + slug
	})
}
