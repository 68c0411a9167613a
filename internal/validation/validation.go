// Package validation contains the pure credential checks shared by the
// client (form gating) and the server (sign-up policy). Nothing here talks
// to the network.
package validation

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

// Mode distinguishes the two form modes with different submit gates.
type Mode int

const (
	ModeSignIn Mode = iota
	ModeSignUp
)

func (m Mode) String() string {
	if m == ModeSignUp {
		return "sign-up"
	}
	return "sign-in"
}

// Strength is the ordinal password-strength tier shown next to the password
// field during registration.
type Strength int

const (
	StrengthBlank Strength = iota
	StrengthWeak
	StrengthFair
	StrengthStrong
	StrengthVeryStrong
)

func (s Strength) String() string {
	switch s {
	case StrengthBlank:
		return "blank"
	case StrengthWeak:
		return "weak"
	case StrengthFair:
		return "fair"
	case StrengthStrong:
		return "strong"
	case StrengthVeryStrong:
		return "very strong"
	default:
		return "unknown"
	}
}

// MinPasswordLength is the sign-up password policy. Sign-in deliberately does
// not enforce it: accounts created under older rules must still be able to
// log in.
const MinPasswordLength = 8

// emailRe checks the local@domain.tld shape. This is a format check only;
// deliverability is the identity provider's problem.
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// IsEmailValid reports whether email has a plausible local@domain.tld shape.
func IsEmailValid(email string) bool {
	return emailRe.MatchString(email)
}

// IsPasswordValid reports whether password meets the sign-up length policy.
// Length is counted in characters, not bytes, so multibyte passwords are
// measured the way the user typed them.
func IsPasswordValid(password string) bool {
	return utf8.RuneCountInString(password) >= MinPasswordLength
}

// DoPasswordsMatch reports whether the confirmation field matches exactly.
func DoPasswordsMatch(password, confirm string) bool {
	return password == confirm
}

// PasswordStrength scores a password into a tier. The score starts at 0 and
// gains one point each for: length >= 8, length >= 12, mixed upper and lower
// case, a digit, and a non-alphanumeric symbol. Adding a character class that
// was previously absent never lowers the tier.
func PasswordStrength(password string) Strength {
	if password == "" {
		return StrengthBlank
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	score := 0
	length := utf8.RuneCountInString(password)
	if length >= 8 {
		score++
	}
	if length >= 12 {
		score++
	}
	if hasUpper && hasLower {
		score++
	}
	if hasDigit {
		score++
	}
	if hasSymbol {
		score++
	}

	switch {
	case score <= 1:
		return StrengthWeak
	case score == 2:
		return StrengthFair
	case score <= 4:
		return StrengthStrong
	default:
		return StrengthVeryStrong
	}
}

// CanSubmit is the local gate checked before any network call. Sign-up
// requires a valid email, a policy-compliant password, and a matching
// confirmation. Sign-in requires only a valid email and a non-empty
// password (see MinPasswordLength for why).
func CanSubmit(mode Mode, email, password, confirm string) bool {
	if !IsEmailValid(email) {
		return false
	}
	if mode == ModeSignUp {
		return IsPasswordValid(password) && DoPasswordsMatch(password, confirm)
	}
	return len(password) > 0
}
