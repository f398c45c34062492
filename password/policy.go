package password

import (
	"strconv"
	"strings"
	"unicode"
)

// DefaultSymbols is the symbol set a password must draw at least one character from.
const DefaultSymbols = "@$!%*?&"

// PolicyError names the first strength rule a password failed.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return e.Reason
}

// Policy is the password-strength policy applied on registration and reset.
type Policy struct {
	MinLength int
	Symbols   string
}

// DefaultPolicy requires 8 characters with a lowercase letter, an uppercase
// letter, a digit and one of DefaultSymbols.
func DefaultPolicy() Policy {
	return Policy{MinLength: 8, Symbols: DefaultSymbols}
}

// Check returns a *PolicyError for the first rule password violates, or nil.
func (p Policy) Check(password string) error {
	minLength := p.MinLength
	if minLength <= 0 {
		minLength = 8
	}
	symbols := p.Symbols
	if symbols == "" {
		symbols = DefaultSymbols
	}

	if len([]rune(password)) < minLength {
		return &PolicyError{Reason: "Password must be at least " + strconv.Itoa(minLength) + " characters long"}
	}

	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(symbols, r):
			symbol = true
		}
	}

	switch {
	case !lower:
		return &PolicyError{Reason: "Password must contain at least one lowercase letter"}
	case !upper:
		return &PolicyError{Reason: "Password must contain at least one uppercase letter"}
	case !digit:
		return &PolicyError{Reason: "Password must contain at least one number"}
	case !symbol:
		return &PolicyError{Reason: "Password must contain at least one special character"}
	}
	return nil
}
