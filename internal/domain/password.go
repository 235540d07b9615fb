package domain

import (
	"fmt"
	"strings"
)

const (
	minPasswordLength = 6
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
)

// ValidatePassword enforces the baseline password policy.
func ValidatePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return NewValidationError(map[string]string{"password": "cannot be blank"})
	}
	if len(password) < minPasswordLength {
		return NewValidationError(map[string]string{
			"password": fmt.Sprintf("must be at least %d characters", minPasswordLength),
		})
	}
	if len(password) > maxPasswordLength {
		return NewValidationError(map[string]string{
			"password": fmt.Sprintf("must be at most %d bytes", maxPasswordLength),
		})
	}
	return nil
}
