package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/portalauth/middleware"
)

const maxBodyBytes = 1 << 16

var errBadBody = errors.New("invalid request body")

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errBadBody
	}
	return nil
}

type validator struct {
	errs []middleware.FieldError
}

func (v *validator) add(field, message string) {
	v.errs = append(v.errs, middleware.FieldError{Field: field, Message: message})
}

func (v *validator) required(field, value, message string) bool {
	if strings.TrimSpace(value) == "" {
		v.add(field, message)
		return false
	}
	return true
}

func (v *validator) email(field, value string) {
	if !v.required(field, value, "Email is required") {
		return
	}
	value = strings.TrimSpace(value)
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(value[strings.LastIndex(value, "@")+1:], ".") {
		v.add(field, "Please provide a valid email")
	}
}

func (v *validator) name(field, value, label string) {
	if value == "" {
		return
	}
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < 1 || n > 50 {
		v.add(field, label+" must be between 1 and 50 characters")
	}
}

func (v *validator) totp(field, value string) {
	if value == "" {
		return
	}
	if len(value) != 6 || strings.Trim(value, "0123456789") != "" {
		v.add(field, "Two-factor code must be 6 digits")
	}
}

func (v *validator) failed() bool {
	return len(v.errs) > 0
}

func writeValidation(w http.ResponseWriter, errs []middleware.FieldError) {
	middleware.WriteJSON(w, http.StatusBadRequest, middleware.Envelope{
		Success: false,
		Message: "Validation failed",
		Errors:  errs,
	})
}

func writeBadBody(w http.ResponseWriter) {
	middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
}
