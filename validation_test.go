package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
)

func TestValidateUser(t *testing.T) {
	negative := -1
	age := 30

	tests := []struct {
		name   string
		user   *auth.User
		fields auth.FieldErrors
	}{
		{
			name: "valid",
			user: &auth.User{Name: "Ana", Email: "ana@example.com", Password: "red12345!", Age: &age},
		},
		{
			name:   "nil",
			user:   nil,
			fields: auth.FieldErrors{"user": "missing record"},
		},
		{
			name: "missing everything",
			user: &auth.User{},
			fields: auth.FieldErrors{
				"name":     "Please enter a name",
				"email":    "Please enter an email",
				"password": "Please enter a password",
			},
		},
		{
			name:   "bad email",
			user:   &auth.User{Name: "Ana", Email: "ana@", Password: "red12345!"},
			fields: auth.FieldErrors{"email": "Please enter a valid email"},
		},
		{
			name:   "short password",
			user:   &auth.User{Name: "Ana", Email: "ana@example.com", Password: "abc123"},
			fields: auth.FieldErrors{"password": "Minimum password length is 7 characters"},
		},
		{
			name:   "blank password",
			user:   &auth.User{Name: "Ana", Email: "ana@example.com", Password: "         "},
			fields: auth.FieldErrors{"password": "Please enter a password"},
		},
		{
			name: "surrounding spaces are kept",
			user: &auth.User{Name: "Ana", Email: "ana@example.com", Password: " secret123 "},
		},
		{
			name:   "password literal any case",
			user:   &auth.User{Name: "Ana", Email: "ana@example.com", Password: "MyPassWord99"},
			fields: auth.FieldErrors{"password": `Password cannot contain "password"`},
		},
		{
			name:   "negative age",
			user:   &auth.User{Name: "Ana", Email: "ana@example.com", Password: "red12345!", Age: &negative},
			fields: auth.FieldErrors{"age": "Age must be a positive number"},
		},
		{
			name: "stored hash makes password optional",
			user: &auth.User{Name: "Ana", Email: "ana@example.com", PasswordHash: "$2a$04$hash"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateUser(tt.user)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, auth.ErrValidation)
			assert.Equal(t, tt.fields, auth.FieldErrorsFrom(err))
		})
	}
}

func TestLoginRequest_Validate(t *testing.T) {
	assert.NoError(t, auth.LoginRequest{Email: "ana@example.com", Password: "x"}.Validate())

	err := auth.LoginRequest{}.Validate()
	assert.ErrorIs(t, err, auth.ErrValidation)
	assert.Equal(t, auth.FieldErrors{
		"email":    "Please enter an email",
		"password": "Please enter a password",
	}, auth.FieldErrorsFrom(err))

	err = auth.LoginRequest{Email: "nope", Password: "x"}.Validate()
	assert.Equal(t, auth.FieldErrors{"email": "Please enter a valid email"}, auth.FieldErrorsFrom(err))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ana@example.com", auth.NormalizeEmail("  Ana@Example.COM "))
}
