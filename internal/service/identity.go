package service

import "strings"

// sameIdentity compares wallet identities. Hex addresses are case-insensitive.
func sameIdentity(a, b string) bool {
	if strings.HasPrefix(a, "0x") && strings.HasPrefix(b, "0x") {
		return strings.EqualFold(a, b)
	}
	return a == b
}
