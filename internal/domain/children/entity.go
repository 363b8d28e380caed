// Package children contains the child identity model. A "child" is one
// student account on one school server; the same configuration entry may
// carry several of them. This package has no external dependencies.
package children

import (
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Key is the canonical process-wide identifier of a child: "server|user_id".
// It is stable across reloads and independent of the storage slot the child
// record happens to live under.
type Key string

// ComposeKey builds a composite key from a trimmed server URL and user id.
func ComposeKey(server, userID string) Key {
	return Key(strings.TrimSpace(server) + "|" + strings.TrimSpace(userID))
}

// String returns the string representation of the key.
func (k Key) String() string {
	return string(k)
}

// IsValid reports whether the key has both a server and a user id part.
func (k Key) IsValid() bool {
	server, userID, ok := strings.Cut(string(k), "|")
	return ok && server != "" && userID != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTED RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record is the persisted per-child configuration slot. It is mutated only
// by the options flow (add/edit/remove), by token rotation after a refresh,
// and by a token reset when authentication terminally fails.
type Record struct {
	// UserID is the account identifier on the school server.
	UserID string `json:"user_id"`

	// Username is the login name used for the initial authentication.
	Username string `json:"username"`

	// Name is the child's given name.
	Name string `json:"name"`

	// Surname is the child's family name.
	Surname string `json:"surname"`

	// School is the human-readable school name.
	School string `json:"school"`

	// Server is the base URL of the school's API endpoint.
	Server string `json:"server"`

	// AccessToken is the current API access token. Empty when the child
	// needs to log in again.
	AccessToken string `json:"access_token,omitempty"`

	// RefreshToken is the current refresh token. Empty when the child
	// needs to log in again.
	RefreshToken string `json:"refresh_token,omitempty"`
}

// IsComplete reports whether the record carries enough identity to poll.
// Records missing server or user id are skipped, not fatal.
func (r Record) IsComplete() bool {
	return strings.TrimSpace(r.Server) != "" && strings.TrimSpace(r.UserID) != ""
}

// HasTokens reports whether at least one token is present. A record with
// both tokens empty must never attempt a session.
func (r Record) HasTokens() bool {
	return r.AccessToken != "" || r.RefreshToken != ""
}

// Key returns the composite identity key for this record.
func (r Record) Key() Key {
	return ComposeKey(r.Server, r.UserID)
}

// WithTokens returns a copy of the record carrying the given token pair.
func (r Record) WithTokens(access, refresh string) Record {
	r.AccessToken = access
	r.RefreshToken = refresh
	return r
}

// WithoutTokens returns a copy of the record with both tokens cleared.
func (r Record) WithoutTokens() Record {
	r.AccessToken = ""
	r.RefreshToken = ""
	return r
}

// Redacted returns a copy safe to log: present tokens are replaced with
// "***", absent ones stay empty so the log still shows which are missing.
func (r Record) Redacted() Record {
	if r.AccessToken != "" {
		r.AccessToken = "***"
	}
	if r.RefreshToken != "" {
		r.RefreshToken = "***"
	}
	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: CHILD
// ══════════════════════════════════════════════════════════════════════════════

// Child is the immutable identity of one student account, computed once at
// startup (or config reload) from the persisted children map.
type Child struct {
	// Key is the composite "server|user_id" identity.
	Key Key

	// UserID is the account identifier on the server.
	UserID string

	// Server is the trimmed base URL of the school server.
	Server string

	// Username is the login name, kept for re-authentication prompts.
	Username string

	// DisplayName is "Name Surname (School)" with missing parts dropped.
	DisplayName string

	// ShortName is the given name, falling back to username, then user id.
	ShortName string

	// School is the human-readable school name.
	School string
}

// NewChild builds a validated child identity from a persisted record.
// Returns an error when the record is missing server or user id.
func NewChild(rec Record) (Child, error) {
	server := strings.TrimSpace(rec.Server)
	userID := strings.TrimSpace(rec.UserID)

	if server == "" || userID == "" {
		return Child{}, fmt.Errorf("child record for user %q: missing server or user id", rec.UserID)
	}

	return Child{
		Key:         ComposeKey(server, userID),
		UserID:      userID,
		Server:      server,
		Username:    strings.TrimSpace(rec.Username),
		DisplayName: displayName(rec),
		ShortName:   shortName(rec),
		School:      strings.TrimSpace(rec.School),
	}, nil
}

// displayName joins name, surname, and school. Missing fields collapse to
// the empty string rather than leaving stray separators.
func displayName(rec Record) string {
	full := strings.TrimSpace(strings.TrimSpace(rec.Name) + " " + strings.TrimSpace(rec.Surname))
	school := strings.TrimSpace(rec.School)

	switch {
	case full != "" && school != "":
		return full + " (" + school + ")"
	case full != "":
		return full
	case school != "":
		return school
	default:
		return strings.TrimSpace(rec.Username)
	}
}

// shortName picks the first non-empty of given name, username, user id.
func shortName(rec Record) string {
	if name := strings.TrimSpace(rec.Name); name != "" {
		return name
	}
	if username := strings.TrimSpace(rec.Username); username != "" {
		return username
	}
	return strings.TrimSpace(rec.UserID)
}

// String returns a loggable representation without tokens.
func (c Child) String() string {
	return fmt.Sprintf("Child{Key: %s, Name: %s}", c.Key, c.DisplayName)
}
