// Package auth carries the acting principal through node operations. There
// is no ambient request state: every operation receives an explicit Auth.
package auth

import "github.com/pattisdr/osf.io/internal/model"

// Auth bundles the acting user with an optional private-link key. Either
// part may be absent: an anonymous visitor has neither, a view-only-link
// visitor has only the key.
type Auth struct {
	User        *model.User
	PrivateKey  string
	PrivateLink *model.PrivateLink
}

// FromUser returns an Auth for a plain logged-in user.
func FromUser(user *model.User) *Auth {
	return &Auth{User: user}
}

// FromPrivateKey returns an Auth for a view-only-link visitor.
func FromPrivateKey(key string, link *model.PrivateLink) *Auth {
	return &Auth{PrivateKey: key, PrivateLink: link}
}

// LoggedIn reports whether a user is present.
func (a *Auth) LoggedIn() bool {
	return a != nil && a.User != nil
}

// Anonymized reports whether the auth carries an anonymized share link.
func (a *Auth) Anonymized() bool {
	return a != nil && a.PrivateLink != nil && a.PrivateLink.Anonymous
}

// UserID returns the acting user's id, or the empty string.
func (a *Auth) UserID() string {
	if a == nil || a.User == nil {
		return ""
	}
	return a.User.ID
}
