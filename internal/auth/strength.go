package auth

import "unicode"

type Strength int

const (
	Weak Strength = iota
	Medium
	Strong
)

func (s Strength) String() string {
	switch s {
	case Strong:
		return "Strong"
	case Medium:
		return "Medium"
	default:
		return "Weak"
	}
}

// PasswordStrength rates a password for the registration form: Weak below
// six characters, Strong with an upper-case letter, a digit and a symbol.
func PasswordStrength(pw string) Strength {
	if len(pw) < minPasswordLen {
		return Weak
	}
	var upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r) && !unicode.IsSpace(r):
			symbol = true
		}
	}
	if upper && digit && symbol {
		return Strong
	}
	return Medium
}
