package auth

import (
	"encoding/json"
	"sort"
	"strings"
)

// ProfileField is a user attribute that a profile update may change.
type ProfileField string

const (
	FieldName     ProfileField = "name"
	FieldEmail    ProfileField = "email"
	FieldPassword ProfileField = "password"
	FieldAge      ProfileField = "age"
)

var mutableFields = map[ProfileField]struct{}{
	FieldName:     {},
	FieldEmail:    {},
	FieldPassword: {},
	FieldAge:      {},
}

// ProfileUpdate holds the fields a caller asked to change. Nil means
// untouched. ClearAge removes the stored age.
type ProfileUpdate struct {
	Name     *string
	Email    *string
	Password *string
	Age      *int
	ClearAge bool
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Password == nil && p.Age == nil && !p.ClearAge
}

// Fields lists the keys present in the update, sorted.
func (p ProfileUpdate) Fields() []string {
	out := []string{}
	if p.Age != nil || p.ClearAge {
		out = append(out, string(FieldAge))
	}
	if p.Email != nil {
		out = append(out, string(FieldEmail))
	}
	if p.Name != nil {
		out = append(out, string(FieldName))
	}
	if p.Password != nil {
		out = append(out, string(FieldPassword))
	}
	return out
}

// ParseProfileUpdate decodes a JSON object, rejecting any key outside the
// mutable set before looking at values.
func ParseProfileUpdate(body []byte) (ProfileUpdate, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return ProfileUpdate{}, NewValidationError(FieldErrors{"body": "Invalid JSON payload"}, err)
	}

	var rejected []string
	for key := range raw {
		if _, ok := mutableFields[ProfileField(key)]; !ok {
			rejected = append(rejected, key)
		}
	}
	if len(rejected) > 0 {
		sort.Strings(rejected)
		return ProfileUpdate{}, NewError(ErrInvalidUpdates, nil).WithMetadata(map[string]any{
			"fields": rejected,
		})
	}

	update := ProfileUpdate{}
	fields := FieldErrors{}

	decode := func(field ProfileField, dst any, msg string) {
		value, ok := raw[string(field)]
		if !ok {
			return
		}
		if err := json.Unmarshal(value, dst); err != nil {
			fields[string(field)] = msg
		}
	}

	var name, email, password string
	var age *int

	decode(FieldName, &name, "Name must be a string")
	decode(FieldEmail, &email, "Email must be a string")
	decode(FieldPassword, &password, "Password must be a string")
	decode(FieldAge, &age, "Age must be a number")

	if _, ok := raw[string(FieldPassword)]; ok && strings.TrimSpace(password) == "" {
		if _, seen := fields[string(FieldPassword)]; !seen {
			fields[string(FieldPassword)] = "Please enter a password"
		}
	}

	if len(fields) > 0 {
		return ProfileUpdate{}, NewValidationError(fields, nil)
	}

	if _, ok := raw[string(FieldName)]; ok {
		update.Name = &name
	}
	if _, ok := raw[string(FieldEmail)]; ok {
		update.Email = &email
	}
	if _, ok := raw[string(FieldPassword)]; ok {
		update.Password = &password
	}
	if _, ok := raw[string(FieldAge)]; ok {
		if age == nil {
			update.ClearAge = true
		} else {
			update.Age = age
		}
	}

	return update, nil
}

// Apply returns a copy of u with the update applied. The original record
// is left untouched so a failed save never leaks partial changes.
func (p ProfileUpdate) Apply(u *User) *User {
	next := u.clone()
	if next == nil {
		return nil
	}
	if p.Name != nil {
		next.Name = *p.Name
	}
	if p.Email != nil {
		next.Email = *p.Email
	}
	if p.Password != nil {
		next.Password = *p.Password
	}
	if p.ClearAge {
		next.Age = nil
	}
	if p.Age != nil {
		age := *p.Age
		next.Age = &age
	}
	return next
}
