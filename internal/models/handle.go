package models

import "strings"

// NormalizeHandle canonicalizes a chat handle: trimmed, leading @
// stripped, lower-cased. All storage and comparison uses the
// normalized form.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}
