package users

import (
	"fmt"
	"strings"
)

// Role is the closed set of roles an identity may hold.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleStaff
	RoleManager
)

var roleNames = map[Role]string{
	RoleStaff:   "STAFF",
	RoleManager: "MANAGER",
}

func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STAFF":
		return RoleStaff, nil
	case "MANAGER":
		return RoleManager, nil
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// CanHoldRefreshToken reports whether identities with this role are issued a
// refresh token at login and may exchange one later.
func (r Role) CanHoldRefreshToken() bool {
	switch r {
	case RoleManager:
		return true
	case RoleStaff, RoleUnknown:
		return false
	default:
		return false
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("cannot marshal role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
