package auth

import (
	"maps"

	"github.com/gofiber/fiber/v2"
)

// TemplateHelpers returns the functions views can call on current_user.
//
// Usage:
//
//	engine := django.NewFileSystem(http.FS(views), ".html")
//	for name, fn := range auth.TemplateHelpers() {
//		engine.AddFunc(name, fn)
//	}
//
// In templates:
//
//	{% if is_authenticated(current_user) %}
//	<img src="{{ avatar_url(current_user) }}">
func TemplateHelpers() map[string]any {
	return map[string]any{
		"is_authenticated": isAuthenticated,
		"display_name":     displayName,
		"avatar_url":       avatarURL,
	}
}

// ViewContext merges data with the user the check user gate resolved, if
// any, so handlers do not depend on PassLocalsToViews being set.
func ViewContext(c *fiber.Ctx, data fiber.Map) fiber.Map {
	out := fiber.Map{TemplateUserKey: nil}
	if user, ok := GetTemplateUser(c, TemplateUserKey); ok {
		out[TemplateUserKey] = user
	}
	maps.Copy(out, data)
	return out
}

// GetTemplateUser returns the value the gate exposed to views.
func GetTemplateUser(c *fiber.Ctx, userKey string) (any, bool) {
	if userKey == "" {
		userKey = TemplateUserKey
	}

	user := c.Locals(userKey)
	return user, user != nil
}

// PublicUserProvider converts the gate subject into what views may see.
func PublicUserProvider(subject any) (any, error) {
	switch u := subject.(type) {
	case *User:
		if u == nil {
			return nil, ErrUserNotFound
		}
		return u.Public(), nil
	case *PublicUser:
		return u, nil
	default:
		return nil, ErrUserNotFound
	}
}

func isAuthenticated(user any) bool {
	switch u := user.(type) {
	case *User:
		return u != nil
	case *PublicUser:
		return u != nil
	case PublicUser:
		return true
	default:
		return false
	}
}

func displayName(user any) string {
	switch u := user.(type) {
	case *User:
		if u != nil {
			return u.Name
		}
	case *PublicUser:
		if u != nil {
			return u.Name
		}
	case PublicUser:
		return u.Name
	}
	return ""
}

func avatarURL(user any) string {
	switch u := user.(type) {
	case *User:
		if u != nil {
			return "/users/" + u.ID.String() + "/avatar"
		}
	case *PublicUser:
		if u != nil {
			return "/users/" + u.ID + "/avatar"
		}
	case PublicUser:
		return "/users/" + u.ID + "/avatar"
	}
	return ""
}
