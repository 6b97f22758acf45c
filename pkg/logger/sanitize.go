package logger

import "strings"

// SanitizedTarget masks an email address or phone number for logging.
// Emails become "u***@e***.com"; phone numbers keep only the last two digits.
func SanitizedTarget(target string) string {
	if strings.Contains(target, "@") {
		return sanitizedEmail(target)
	}
	if len(target) <= 2 {
		return "***"
	}
	return strings.Repeat("*", len(target)-2) + target[len(target)-2:]
}

func sanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	username := parts[0]
	domain := parts[1]

	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// SanitizeQueryString checks if a query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"password", "token", "secret", "code",
		"api_key", "apikey", "email", "phone", "auth",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
