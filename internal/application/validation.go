package application

import (
	"errors"
	"strings"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const maxNameLength = 100

// passwordPolicy adapts domain.ValidatePassword to an ozzo rule.
var passwordPolicy = validation.By(func(value interface{}) error {
	var password string
	switch v := value.(type) {
	case string:
		password = v
	case *string:
		if v == nil {
			return nil
		}
		password = *v
	default:
		return errors.New("must be a string")
	}
	if err := domain.ValidatePassword(password); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return errors.New(verr.Fields["password"])
		}
		return err
	}
	return nil
})

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Name, validation.Required, validation.RuneLength(1, maxNameLength)),
		validation.Field(&r.Password, validation.Required, passwordPolicy),
	)
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (r PasswordResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (r PasswordResetSubmit) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, passwordPolicy),
	)
}

func (r UpdateProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.NilOrNotEmpty, is.Email),
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.RuneLength(1, maxNameLength)),
		validation.Field(&r.Password, validation.NilOrNotEmpty, passwordPolicy),
	)
}

// asValidationError converts ozzo field errors into the domain error type.
func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for name, fieldErr := range fieldErrs {
			if fieldErr != nil {
				fields[name] = fieldErr.Error()
			}
		}
		return domain.NewValidationError(fields)
	}
	return domain.NewValidationError(map[string]string{"request": err.Error()})
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	out := strings.TrimSpace(*v)
	return &out
}
