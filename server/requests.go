package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/jrsteele09/go-session-auth/users"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 128)),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type changePasswordRequest struct {
	OTP      string `json:"otp"`
	Password string `json:"password"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OTP, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 128), validation.By(maxBytes(users.MaxPasswordBytes))),
	)
}

// maxBytes limits the encoded length of a string field.
func maxBytes(limit int) validation.RuleFunc {
	return func(value interface{}) error {
		if s, _ := value.(string); len(s) > limit {
			return fmt.Errorf("must be at most %d bytes", limit)
		}
		return nil
	}
}

// decodeRequest reads a JSON body into v and validates it.
func decodeRequest(r *http.Request, v validation.Validatable) error {
	if r.Body == nil {
		return &requestError{msg: "Missing request body"}
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &requestError{msg: "Malformed JSON body"}
	}
	if err := v.Validate(); err != nil {
		return &requestError{msg: err.Error()}
	}
	return nil
}

type loginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Identity     any    `json:"identity"`
}

type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
}
