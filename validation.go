package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 7

type userInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      *int   `json:"age"`
}

// NormalizeEmail trims and lowercases an email so lookups are case insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizeUser tidies the identifying fields. The password is hashed
// exactly as submitted.
func normalizeUser(u *User) {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = NormalizeEmail(u.Email)
}

// ValidateUser checks a record before it reaches storage. The password is
// only required when the record has no hash yet.
func ValidateUser(u *User) error {
	if u == nil {
		return NewValidationError(FieldErrors{"user": "missing record"}, nil)
	}

	in := userInput{
		Name:     u.Name,
		Email:    u.Email,
		Password: u.Password,
		Age:      u.Age,
	}

	passwordRules := []validation.Rule{
		validation.By(rejectBlankPassword),
		validation.Length(MinPasswordLength, 0).Error("Minimum password length is 7 characters"),
		validation.By(rejectLiteralPassword),
	}
	if u.PasswordHash == "" {
		passwordRules = append([]validation.Rule{
			validation.Required.Error("Please enter a password"),
		}, passwordRules...)
	}

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name,
			validation.Required.Error("Please enter a name"),
		),
		validation.Field(&in.Email,
			validation.Required.Error("Please enter an email"),
			is.Email.Error("Please enter a valid email"),
		),
		validation.Field(&in.Password, passwordRules...),
		validation.Field(&in.Age,
			validation.Min(0).Error("Age must be a positive number"),
		),
	)
	if err != nil {
		return NewValidationError(FieldErrorsFrom(err), err)
	}
	return nil
}

func rejectBlankPassword(value any) error {
	s, _ := value.(string)
	if s != "" && strings.TrimSpace(s) == "" {
		return errors.New("Please enter a password")
	}
	return nil
}

func rejectLiteralPassword(value any) error {
	s, _ := value.(string)
	if strings.Contains(strings.ToLower(strings.TrimSpace(s)), "password") {
		return errors.New(`Password cannot contain "password"`)
	}
	return nil
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required.Error("Please enter an email"),
			is.Email.Error("Please enter a valid email"),
		),
		validation.Field(
			&r.Password,
			validation.Required.Error("Please enter a password"),
		),
	)
	if err != nil {
		return NewValidationError(FieldErrorsFrom(err), err)
	}
	return nil
}
