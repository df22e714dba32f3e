package utils

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"taskboard-project/backend/errs"
)

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

const specialChars = "!@#$%^&*.,"

// ValidatePassword enforces the registration password policy.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errs.New(errs.Validation, "password must be at least 8 characters long")
	}

	hasUppercase := false
	hasDigit := false
	hasSpecial := false
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUppercase = true
		case unicode.IsDigit(char):
			hasDigit = true
		case strings.ContainsRune(specialChars, char):
			hasSpecial = true
		}
	}
	if !hasUppercase {
		return errs.New(errs.Validation, "password must contain at least one uppercase letter")
	}
	if !hasDigit {
		return errs.New(errs.Validation, "password must contain at least one number")
	}
	if !hasSpecial {
		return errs.New(errs.Validation, "password must contain at least one special character")
	}
	return nil
}
