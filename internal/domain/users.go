package domain

import "strings"

// NormalizeUsername приводит username к виду, в котором он хранится: без @ и в нижнем регистре.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}
