package users

import "strings"

// Identity is a user record as held by the record store. Only PasswordHash is
// ever written by this service.
type Identity struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	Surname      string `json:"surname,omitempty"`
	Role         Role   `json:"role"`
	PasswordHash string `json:"-"` // never serialize
}

// Profile is the identity view handed to request handlers and clients. It
// carries no credential material.
type Profile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Surname string `json:"surname,omitempty"`
	Role    Role   `json:"role"`
}

func (i *Identity) Profile() Profile {
	return Profile{
		ID:      i.ID,
		Email:   i.Email,
		Name:    i.Name,
		Surname: i.Surname,
		Role:    i.Role,
	}
}

// NormaliseEmail is the form emails are compared and indexed in.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
