// Package auth resolves API keys to user contexts under constant-time
// comparison and computes the visible-collection set for a user.
package auth

import "crypto/subtle"

// UserContext is the resolved identity of an authenticated request.
type UserContext struct {
	UserID             string
	SystemCollections  []string
	PathMappings       map[string]string
}

// VisibleCollections returns the fixed-order collection set this user may
// search: the user's own collection, the global collection (if any), then
// the user's system collections.
func (u UserContext) VisibleCollections(globalCollection string) []string {
	collections := []string{u.UserID}
	if globalCollection != "" {
		collections = append(collections, globalCollection)
	}
	collections = append(collections, u.SystemCollections...)
	return collections
}

// UserRecord is the subset of configuration needed to resolve a user by
// API key.
type UserRecord struct {
	APIKey            string
	SystemCollections []string
	PathMappings      map[string]string
}

// Resolve looks up apiKey against the given user table, comparing each
// stored key with constant-time equality. Returns nil if apiKey is empty,
// the table is empty, or no entry matches.
func Resolve(apiKey string, users map[string]UserRecord) *UserContext {
	if apiKey == "" || len(users) == 0 {
		return nil
	}
	for userID, record := range users {
		if constantTimeEqual(record.APIKey, apiKey) {
			return &UserContext{
				UserID:            userID,
				SystemCollections: record.SystemCollections,
				PathMappings:      record.PathMappings,
			}
		}
	}
	return nil
}

// constantTimeEqual compares two strings in time independent of where
// they first differ. On differing lengths it still runs a comparison of
// a against itself before returning false, so a length mismatch does not
// return earlier than a content mismatch.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a comparison of equal-length buffers so callers can't
		// distinguish a length mismatch from a content mismatch by timing.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
