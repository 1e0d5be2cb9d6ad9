// Package profile resolves usernames into public player profiles through the
// rate-limited upstream layer and caches every lookup step.
package profile

import (
	"hash/fnv"
	"strings"

	"golang.org/x/text/cases"
)

// Profile is the public identity of one player. Profiles are immutable once
// fetched.
type Profile struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
	IsDemo      bool    `json:"isDemo"`
}

// FoldUsername returns the case-insensitive identity of a username.
func FoldUsername(username string) string {
	// Casers keep state and are not safe for concurrent use.
	return cases.Fold().String(strings.TrimSpace(username))
}

// Demo builds the offline stand-in used when the upstream keeps rate
// limiting. Demo ids are negative so they never collide with real accounts.
func Demo(username string) Profile {
	name := strings.TrimSpace(username)
	h := fnv.New64a()
	_, _ = h.Write([]byte(FoldUsername(name)))
	id := int64(h.Sum64() >> 1)
	if id == 0 {
		id = 1
	}
	return Profile{
		ID:          -id,
		Username:    name,
		DisplayName: name,
		IsDemo:      true,
	}
}
