package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

var (
	// ErrValidation is returned when a record fails field validation
	ErrValidation = errors.New("user validation failed")

	// ErrDuplicateEmail is returned when the email is already taken
	ErrDuplicateEmail = errors.New("that email is already registered")

	// ErrEmailNotRegistered is returned on login with an unknown email
	ErrEmailNotRegistered = errors.New("incorrect email")

	// ErrMismatchedHashAndPassword is returned when the password does not match
	ErrMismatchedHashAndPassword = errors.New("incorrect password")

	// ErrInvalidCredentials replaces the two errors above when login
	// messages must not reveal which part was wrong
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoEmptyString is returned when hashing an empty password
	ErrNoEmptyString = errors.New("password must not be empty")

	ErrTokenMissing     = errors.New("missing or malformed JWT")
	ErrTokenMalformed   = errors.New("token is malformed")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrTokenExpired     = errors.New("token is expired")
	ErrTokenRevoked     = errors.New("token has been revoked")

	// ErrUserNotFound is returned when no user matches a lookup
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidUpdates is returned when a profile update names a field
	// outside the mutable set
	ErrInvalidUpdates = errors.New("Invalid updates!")

	ErrAvatarFormat   = errors.New("Please upload an image")
	ErrAvatarTooLarge = errors.New("File too large")
	ErrAvatarNotFound = errors.New("avatar not found")

	// ErrRevisionConflict is returned when a record changed since it was loaded
	ErrRevisionConflict = errors.New("record was modified concurrently")

	// ErrStorage wraps persistence failures
	ErrStorage = errors.New("storage failure")
)

// FieldErrors maps an input field name to a human readable message.
type FieldErrors map[string]string

type errorClass struct {
	category goerrors.Category
	code     int
	textCode string
	fields   FieldErrors
}

var errorClasses = map[error]errorClass{
	ErrValidation: {goerrors.CategoryValidation, http.StatusBadRequest, "VALIDATION_FAILED", nil},
	ErrDuplicateEmail: {goerrors.CategoryConflict, http.StatusBadRequest, "DUPLICATE_EMAIL",
		FieldErrors{"email": "that email is already registered"}},
	ErrEmailNotRegistered: {goerrors.CategoryAuth, http.StatusBadRequest, "EMAIL_NOT_REGISTERED",
		FieldErrors{"email": "That email is not registered"}},
	ErrMismatchedHashAndPassword: {goerrors.CategoryAuth, http.StatusBadRequest, "PASSWORD_MISMATCH",
		FieldErrors{"password": "That password is incorrect"}},
	ErrInvalidCredentials: {goerrors.CategoryAuth, http.StatusBadRequest, goerrors.TextCodeInvalidCredentials,
		FieldErrors{"email": "Invalid email or password", "password": "Invalid email or password"}},
	ErrNoEmptyString: {goerrors.CategoryValidation, http.StatusBadRequest, goerrors.TextCodeEmptyPassword,
		FieldErrors{"password": "Please enter a password"}},

	ErrTokenMissing:     {goerrors.CategoryAuth, http.StatusUnauthorized, "TOKEN_MISSING", nil},
	ErrTokenMalformed:   {goerrors.CategoryAuth, http.StatusUnauthorized, goerrors.TextCodeTokenMalformed, nil},
	ErrInvalidSignature: {goerrors.CategoryAuth, http.StatusUnauthorized, "TOKEN_SIGNATURE_INVALID", nil},
	ErrTokenExpired:     {goerrors.CategoryAuth, http.StatusUnauthorized, goerrors.TextCodeTokenExpired, nil},
	ErrTokenRevoked:     {goerrors.CategoryAuth, http.StatusUnauthorized, "TOKEN_REVOKED", nil},

	ErrUserNotFound:     {goerrors.CategoryNotFound, http.StatusNotFound, "USER_NOT_FOUND", nil},
	ErrInvalidUpdates:   {goerrors.CategoryAuthz, http.StatusBadRequest, "INVALID_UPDATES", nil},
	ErrAvatarFormat:     {goerrors.CategoryValidation, http.StatusBadRequest, "AVATAR_FORMAT", nil},
	ErrAvatarTooLarge:   {goerrors.CategoryValidation, http.StatusBadRequest, "AVATAR_TOO_LARGE", nil},
	ErrAvatarNotFound:   {goerrors.CategoryNotFound, http.StatusNotFound, "AVATAR_NOT_FOUND", nil},
	ErrRevisionConflict: {goerrors.CategoryConflict, http.StatusConflict, "REVISION_CONFLICT", nil},
	ErrStorage:          {goerrors.CategoryInternal, http.StatusInternalServerError, "STORAGE", nil},
}

// NewError decorates a package sentinel with its category, status code,
// text code and field messages. Both sentinel and cause stay reachable
// through errors.Is and errors.As.
func NewError(sentinel, cause error) *goerrors.Error {
	class, ok := errorClasses[sentinel]
	if !ok {
		class = errorClass{goerrors.CategoryInternal, http.StatusInternalServerError, "INTERNAL", nil}
	}

	richErr := goerrors.New(sentinel.Error(), class.category).
		WithCode(class.code).
		WithTextCode(class.textCode)

	richErr.Source = sentinel
	if cause != nil {
		richErr.Source = fmt.Errorf("%w: %w", sentinel, cause)
	}

	if len(class.fields) > 0 {
		richErr.ValidationErrors = toValidationErrors(class.fields)
	}

	return richErr
}

// NewValidationError builds a validation error carrying per field messages.
func NewValidationError(fields FieldErrors, cause error) *goerrors.Error {
	richErr := goerrors.NewValidationFromMap(ErrValidation.Error(), nil).
		WithCode(http.StatusBadRequest).
		WithTextCode("VALIDATION_FAILED")

	richErr.ValidationErrors = toValidationErrors(fields)
	richErr.Source = ErrValidation
	if cause != nil {
		richErr.Source = fmt.Errorf("%w: %w", ErrValidation, cause)
	}
	return richErr
}

func toValidationErrors(fields FieldErrors) goerrors.ValidationErrors {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(goerrors.ValidationErrors, 0, len(keys))
	for _, k := range keys {
		out = append(out, goerrors.FieldError{Field: k, Message: fields[k]})
	}
	return out
}

// HTTPStatus resolves the status code the boundary should answer with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code != 0 {
		return richErr.Code
	}

	for sentinel, class := range errorClasses {
		if errors.Is(err, sentinel) {
			return class.code
		}
	}

	return http.StatusInternalServerError
}

// FieldErrorsFrom flattens validation output into a field error map.
func FieldErrorsFrom(err error) FieldErrors {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && len(richErr.ValidationErrors) > 0 {
		out := make(FieldErrors, len(richErr.ValidationErrors))
		for _, fe := range richErr.ValidationErrors {
			out[fe.Field] = fe.Message
		}
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		out := make(FieldErrors, len(verrs))
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = strings.TrimSpace(ferr.Error())
			}
		}
		return out
	}

	return nil
}

func storageError(err error, op string) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}

	return NewError(ErrStorage, err).WithMetadata(map[string]any{"op": op})
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTokenExpired) || strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrTokenMissing) ||
		strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
