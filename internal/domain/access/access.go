// Package access decides who may trigger expense operations.
package access

import "strings"

// IsAllowed applies the whitelist gate. With the whitelist disabled everyone
// passes; admins pass when adminBypass is set; everyone else must be listed.
func IsAllowed(senderID string, isAdmin, whitelistEnabled, adminBypass bool, ids []string) bool {
	if !whitelistEnabled {
		return true
	}
	if adminBypass && isAdmin {
		return true
	}
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return false
	}
	return Contains(ids, senderID)
}

// Contains reports whether id is present in ids.
func Contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Add appends id keeping the existing order. It returns false and the
// unchanged list when id is already present.
func Add(ids []string, id string) ([]string, bool) {
	if Contains(ids, id) {
		return ids, false
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, id), true
}

// Remove drops every occurrence of id. It returns false when id is absent.
func Remove(ids []string, id string) ([]string, bool) {
	if !Contains(ids, id) {
		return ids, false
	}
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out, true
}
