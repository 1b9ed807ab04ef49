package users

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and checks passwords with bcrypt at a fixed cost.
type Hasher struct {
	cost int
}

func NewHasher(cost int) (Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return Hasher{}, fmt.Errorf("[NewHasher] bcrypt cost %d out of range", cost)
	}
	return Hasher{cost: cost}, nil
}

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// HashPassword fails with ErrWeakPassword when the password is longer than
// MaxPasswordBytes.
func (h Hasher) HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", apperrors.Wrapf(apperrors.ErrWeakPassword, "password longer than %d bytes", MaxPasswordBytes)
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	return string(bytes), err
}

func (h Hasher) CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Symbols counted towards a policy's MinSymbols.
const Symbols = "!@#$%^&*()_+-=[]{}|;':\",./<>?`~\\"

// PasswordPolicy describes a complexity profile. A zero minimum disables the
// matching criterion.
type PasswordPolicy struct {
	Name       string
	MinLength  int
	MaxLength  int
	MinLower   int
	MinUpper   int
	MinNumbers int
	MinSymbols int
}

var (
	DefaultPolicy = PasswordPolicy{Name: "default", MinLength: 8, MaxLength: 14, MinLower: 1, MinUpper: 1, MinNumbers: 1, MinSymbols: 1}
	StrongPolicy  = PasswordPolicy{Name: "strong", MinLength: 12, MaxLength: 14, MinLower: 1, MinUpper: 1, MinNumbers: 1, MinSymbols: 1}
	WeakPolicy    = PasswordPolicy{Name: "weak", MinLength: 6, MaxLength: 14, MinLower: 1, MinUpper: 1, MinNumbers: 1}
)

// PolicyByName resolves a configured profile name. The empty name means no
// policy is enforced.
func PolicyByName(name string) (*PasswordPolicy, error) {
	switch name {
	case "":
		return nil, nil
	case DefaultPolicy.Name:
		return &DefaultPolicy, nil
	case StrongPolicy.Name:
		return &StrongPolicy, nil
	case WeakPolicy.Name:
		return &WeakPolicy, nil
	}
	return nil, fmt.Errorf("unknown password profile %q", name)
}

// CriterionState is the outcome of one policy criterion.
type CriterionState int

const (
	CriterionDisabled CriterionState = iota
	CriterionValid
	CriterionInvalid
)

type PasswordCheck struct {
	Length  CriterionState
	Lower   CriterionState
	Upper   CriterionState
	Numbers CriterionState
	Symbols CriterionState
}

// Valid reports whether no enabled criterion failed.
func (c PasswordCheck) Valid() bool {
	for _, s := range []CriterionState{c.Length, c.Lower, c.Upper, c.Numbers, c.Symbols} {
		if s == CriterionInvalid {
			return false
		}
	}
	return true
}

// Failed lists the names of the failed criteria.
func (c PasswordCheck) Failed() []string {
	criteria := []struct {
		name  string
		state CriterionState
	}{
		{"length", c.Length}, {"lower", c.Lower}, {"upper", c.Upper}, {"numbers", c.Numbers}, {"symbols", c.Symbols},
	}
	var failed []string
	for _, cr := range criteria {
		if cr.state == CriterionInvalid {
			failed = append(failed, cr.name)
		}
	}
	return failed
}

func (p PasswordPolicy) Check(password string) PasswordCheck {
	var lower, upper, numbers, symbols int
	for _, char := range password {
		switch {
		case unicode.IsLower(char):
			lower++
		case unicode.IsUpper(char):
			upper++
		case unicode.IsDigit(char):
			numbers++
		case strings.ContainsRune(Symbols, char):
			symbols++
		}
	}

	length := len([]rune(password))
	lengthState := CriterionDisabled
	if p.MinLength > 0 || p.MaxLength > 0 {
		lengthState = CriterionValid
		if length < p.MinLength || (p.MaxLength > 0 && length > p.MaxLength) {
			lengthState = CriterionInvalid
		}
	}

	return PasswordCheck{
		Length:  lengthState,
		Lower:   atLeast(lower, p.MinLower),
		Upper:   atLeast(upper, p.MinUpper),
		Numbers: atLeast(numbers, p.MinNumbers),
		Symbols: atLeast(symbols, p.MinSymbols),
	}
}

func atLeast(count, minimum int) CriterionState {
	switch {
	case minimum <= 0:
		return CriterionDisabled
	case count >= minimum:
		return CriterionValid
	default:
		return CriterionInvalid
	}
}
