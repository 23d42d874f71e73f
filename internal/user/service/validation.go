package service

import (
	"regexp"
	"strings"

	"bitbattle/internal/common/validate"
	pkgerrors "bitbattle/pkg/errors"
)

// Password: 8-72 printable ASCII chars with at least one letter and one
// number. The upper bound is bcrypt's input limit.
var passwordPattern = regexp.MustCompile(`^[\x21-\x7E]{8,72}$`)

// validateAccountUsername applies the shared display-name rules plus the
// account-only ones: the guest prefix is reserved for generated names.
func validateAccountUsername(raw string) (string, error) {
	username, err := validate.Username(raw)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(strings.ToLower(username), "guest") {
		return "", pkgerrors.New(pkgerrors.ReservedUsername).
			WithMessage("Usernames starting with guest are reserved")
	}
	return username, nil
}

func validateNewPassword(password string) error {
	if !passwordPattern.MatchString(password) {
		if len(password) < 8 {
			return pkgerrors.New(pkgerrors.PasswordTooWeak)
		}
		return pkgerrors.New(pkgerrors.InvalidPassword)
	}
	if !hasLetterAndNumber(password) {
		return pkgerrors.New(pkgerrors.PasswordTooWeak)
	}
	return nil
}

// validateLoginPassword only bounds the input; anything that could not have
// been registered maps to the same error as a wrong password.
func validateLoginPassword(password string) error {
	if len(password) < 8 || len(password) > 72 {
		return pkgerrors.New(pkgerrors.InvalidCredentials)
	}
	return nil
}

func hasLetterAndNumber(password string) bool {
	hasLetter := false
	hasNumber := false
	for i := 0; i < len(password); i++ {
		b := password[i]
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') {
			hasLetter = true
		} else if b >= '0' && b <= '9' {
			hasNumber = true
		}
		if hasLetter && hasNumber {
			return true
		}
	}
	return false
}
