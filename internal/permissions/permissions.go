// Package permissions defines the contributor permission levels and their
// cumulative expansion: read is implied by write, write by admin.
package permissions

import (
	"errors"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	Read  = "read"
	Write = "write"
	Admin = "admin"
)

// Levels ordered from most restrictive to most permissive.
var Levels = []string{Read, Write, Admin}

// CreatorPermissions is granted to a node's creator.
const CreatorPermissions = Admin

// DefaultContributorPermissions is granted when no explicit level is given.
const DefaultContributorPermissions = Write

var ErrUnknownPermission = errors.New("permission not in permissions list")

// Expand returns the ordered set of levels implied by the given highest
// level. Expanding the empty string yields nothing.
func Expand(permission string) []string {
	if permission == "" {
		return nil
	}
	for i, level := range Levels {
		if level == permission {
			return Levels[:i+1]
		}
	}
	return nil
}

// Reduce returns the highest level contained in the given set.
func Reduce(perms []string) (string, error) {
	held := mapset.NewSet(perms...)
	for i := len(Levels) - 1; i >= 0; i-- {
		if held.Contains(Levels[i]) {
			return Levels[i], nil
		}
	}
	return "", ErrUnknownPermission
}

// Valid reports whether the given level is a known permission.
func Valid(permission string) bool {
	for _, level := range Levels {
		if level == permission {
			return true
		}
	}
	return false
}
