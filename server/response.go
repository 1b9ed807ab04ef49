package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
)

const contentTypeJSON = "application/json; charset=utf-8"

// StatusTokenExpired tells clients the access token is past its lifetime and
// can be renewed with a refresh token. It is never used for any other failure.
const StatusTokenExpired = 498

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// statusFor is the single place errors become HTTP status codes.
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindExpired:
		return StatusTokenExpired
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// requestError is a malformed or incomplete request body.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return apperrors.ErrInvalidRequest }

func messageFor(err error) string {
	var re *requestError
	if errors.As(err, &re) {
		return re.msg
	}
	if code := apperrors.Code(err); code != "" {
		sentinel, _ := apperrors.FromCode(code)
		return capitalise(sentinel.Error())
	}
	return "Internal server error"
}

func capitalise(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, Envelope{
		Success: false,
		Message: messageFor(err),
		Code:    apperrors.Code(err),
	})
}

func (s *Server) writeResult(w http.ResponseWriter, res *Result) {
	if res == nil {
		res = OK(nil)
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	for _, c := range res.Cookies {
		http.SetCookie(w, c)
	}
	writeJSON(w, status, Envelope{
		Success: status < http.StatusBadRequest,
		Message: res.Message,
		Data:    res.Data,
	})
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
