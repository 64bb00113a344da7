package emailutil

import "strings"

// Normalize lowercases and trims an email address for comparison
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExtractDomain returns the lowercased domain part of an email address,
// or "" when the address has no single @
func ExtractDomain(email string) string {
	local, domain, ok := strings.Cut(Normalize(email), "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return ""
	}
	return domain
}
