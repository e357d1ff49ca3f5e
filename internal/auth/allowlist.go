// Package auth issues and verifies session tokens and decides who may
// drive the live status of a show.
package auth

import (
	"strings"

	"github.com/iliyamo/recital-program/internal/model"
)

// AllowList is the static set of identities allowed to mutate live status.
// Entries compare exactly after trimming surrounding whitespace.
type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList builds an AllowList, skipping blank entries.
func NewAllowList(emails []string) AllowList {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return AllowList{emails: set}
}

// Authorized reports whether the session may drive live status: its email
// must be verified by the identity provider and on the list.  Anonymous and
// password sessions are never authorized.
func (a AllowList) Authorized(s model.Session) bool {
	if s.Anonymous || !s.Verified {
		return false
	}
	return a.Listed(s.Email)
}

// Listed reports whether email is on the list.
func (a AllowList) Listed(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	_, ok := a.emails[email]
	return ok
}

// Len is the number of entries.
func (a AllowList) Len() int { return len(a.emails) }
