package model

// Version tokens are opaque server-issued strings compared only for
// equality. The literals "true" and "false" leak from the host runtime's
// own update checker and must be treated as unknown.
func IsValidToken(token string) bool {
	switch token {
	case "", "true", "false":
		return false
	default:
		return true
	}
}
