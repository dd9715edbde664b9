package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
)

// UserControllerRoutes holds the paths the controller mounts
type UserControllerRoutes struct {
	Users     string
	Landing   string
	Login     string
	Signup    string
	Logout    string
	Dashboard string
}

// UserControllerViews holds the template names the controller renders
type UserControllerViews struct {
	Landing   string
	Login     string
	Signup    string
	Dashboard string
}

type UserController struct {
	Debug        bool
	Logger       Logger
	Accounts     *AccountService
	Auther       *RouteAuthenticator
	Routes       *UserControllerRoutes
	Views        *UserControllerViews
	ErrorHandler fiber.ErrorHandler
}

type UserControllerOption func(*UserController) *UserController

func WithControllerDebug(debug bool) UserControllerOption {
	return func(c *UserController) *UserController {
		c.Debug = debug
		return c
	}
}

func WithControllerLogger(logger Logger) UserControllerOption {
	return func(c *UserController) *UserController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerErrorHandler(handler fiber.ErrorHandler) UserControllerOption {
	return func(c *UserController) *UserController {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

func NewUserController(accounts *AccountService, auther *RouteAuthenticator, opts ...UserControllerOption) *UserController {
	if accounts == nil {
		panic("Missing AccountService in user controller...")
	}

	if auther == nil {
		panic("Missing RouteAuthenticator in user controller...")
	}

	c := &UserController{
		Logger:   defLogger{},
		Accounts: accounts,
		Auther:   auther,
		Routes: &UserControllerRoutes{
			Users:     "/users",
			Landing:   "/",
			Login:     "/login",
			Signup:    "/signup",
			Logout:    "/logout",
			Dashboard: "/dashboard",
		},
		Views: &UserControllerViews{
			Landing:   "index",
			Login:     "login",
			Signup:    "signup",
			Dashboard: "dashboard",
		},
		ErrorHandler: auther.ErrorHandler,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

// RegisterUserRoutes mounts the account API and the browser views.
func RegisterUserRoutes(app fiber.Router, controller *UserController) {
	protected := controller.Auther.ProtectedRoute()
	checkUser := controller.Auther.CheckUser()

	users := app.Group(controller.Routes.Users)
	users.Post("/", controller.Signup).Name("users.create")
	users.Post("/login", controller.Login).Name("users.login")
	users.Post("/logout", protected, controller.Logout).Name("users.logout")
	users.Post("/logoutAll", protected, controller.LogoutAll).Name("users.logout_all")

	users.Get("/me", protected, controller.Me).Name("users.me.get")
	users.Patch("/me", protected, controller.UpdateMe).Name("users.me.update")
	users.Delete("/me", protected, controller.DeleteMe).Name("users.me.delete")

	users.Post("/me/avatar", protected, controller.UploadAvatar).Name("users.avatar.upload")
	users.Delete("/me/avatar", protected, controller.DeleteAvatar).Name("users.avatar.delete")
	users.Get("/:id/avatar", controller.Avatar).Name("users.avatar.get")

	app.Get(controller.Routes.Landing, checkUser, controller.LandingShow).Name("landing.get")
	app.Get(controller.Routes.Login, checkUser, controller.LoginShow).Name("sign-in.get")
	app.Get(controller.Routes.Signup, checkUser, controller.SignupShow).Name("register.get")
	app.Get(controller.Routes.Logout, checkUser, controller.LogOut).Name("sign-out.get")
	app.Get(controller.Routes.Dashboard, protected, controller.DashboardShow).Name("dashboard.get")
}

func (a *UserController) Signup(c *fiber.Ctx) error {
	var payload SignupInput
	if err := c.BodyParser(&payload); err != nil {
		return a.ErrorHandler(c, invalidBodyError(err))
	}

	a.dump("signup payload", payload.redacted())

	user, token, err := a.Accounts.Signup(c.UserContext(), payload)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	a.Auther.SetSessionCookie(c, token)

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user":  user.Public(),
		"token": token,
	})
}

func (a *UserController) Login(c *fiber.Ctx) error {
	var payload LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return a.ErrorHandler(c, invalidBodyError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(c, err)
	}

	user, token, err := a.Accounts.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	a.Auther.SetSessionCookie(c, token)

	return c.JSON(fiber.Map{
		"user":     user.Public(),
		"token":    token,
		"redirect": a.Auther.GetRedirectOrDefault(c),
	})
}

func (a *UserController) Logout(c *fiber.Ctx) error {
	user, token, ok := sessionFrom(c)
	if !ok {
		return a.Auther.AuthErrorHandler(c, ErrTokenMissing)
	}

	if err := a.Accounts.Logout(c.UserContext(), user, token); err != nil {
		a.Logger.Error("logout failed", "user_id", user.ID.String(), "error", err)
		return emptyStatus(c, http.StatusInternalServerError)
	}

	a.Auther.ClearSessionCookie(c)
	return emptyStatus(c, http.StatusOK)
}

func (a *UserController) LogoutAll(c *fiber.Ctx) error {
	user, _, ok := sessionFrom(c)
	if !ok {
		return a.Auther.AuthErrorHandler(c, ErrTokenMissing)
	}

	if err := a.Accounts.LogoutAll(c.UserContext(), user); err != nil {
		a.Logger.Error("logout all failed", "user_id", user.ID.String(), "error", err)
		return emptyStatus(c, http.StatusInternalServerError)
	}

	a.Auther.ClearSessionCookie(c)
	return emptyStatus(c, http.StatusOK)
}

func (a *UserController) Me(c *fiber.Ctx) error {
	user, _, ok := sessionFrom(c)
	if !ok {
		return a.Auther.AuthErrorHandler(c, ErrTokenMissing)
	}
	return c.JSON(user.Public())
}

func (a *UserController) UpdateMe(c *fiber.Ctx) error {
	user, _, ok := sessionFrom(c)
	if !ok {
		return a.Auther.AuthErrorHandler(c, ErrTokenMissing)
	}

	update, err := ParseProfileUpdate(c.Body())
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	a.dump("profile update", update.Fields())

	saved, err := a.Accounts.UpdateProfile(c.UserContext(), user, update)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(saved.Public())
}

func (a *UserController) DeleteMe(c *fiber.Ctx) error {
	user, _, ok := sessionFrom(c)
	if !ok {
		return a.Auther.AuthErrorHandler(c, ErrTokenMissing)
	}

	deleted, err := a.Accounts.DeleteAccount(c.UserContext(), user)
	if err != nil {
		a.Logger.Error("delete account failed", "user_id", user.ID.String(), "error", err)
		return emptyStatus(c, http.StatusInternalServerError)
	}

	a.Auther.ClearSessionCookie(c)
	return c.JSON(deleted.Public())
}

func (a *UserController) UploadAvatar(c *fiber.Ctx) error {
	user, _, ok := sessionFrom(c)
	if !ok {
		return a.Auther.AuthErrorHandler(c, ErrTokenMissing)
	}

	header, err := c.FormFile("avatar")
	if err != nil {
		return a.avatarError(c, NewError(ErrAvatarFormat, err))
	}

	file, err := header.Open()
	if err != nil {
		return a.avatarError(c, NewError(ErrAvatarFormat, err))
	}
	defer file.Close()

	err = a.Accounts.UploadAvatar(c.UserContext(), user, AvatarUpload{
		Filename: header.Filename,
		Size:     header.Size,
		Content:  file,
	})
	if err != nil {
		return a.avatarError(c, err)
	}

	return emptyStatus(c, http.StatusOK)
}

func (a *UserController) DeleteAvatar(c *fiber.Ctx) error {
	user, _, ok := sessionFrom(c)
	if !ok {
		return a.Auther.AuthErrorHandler(c, ErrTokenMissing)
	}

	if err := a.Accounts.DeleteAvatar(c.UserContext(), user); err != nil {
		return a.ErrorHandler(c, err)
	}

	return emptyStatus(c, http.StatusOK)
}

func (a *UserController) Avatar(c *fiber.Ctx) error {
	data, err := a.Accounts.Avatar(c.UserContext(), c.Params("id"))
	if err != nil {
		status := HTTPStatus(err)
		if status != http.StatusNotFound {
			a.Logger.Error("avatar fetch failed", "id", c.Params("id"), "error", err)
		}
		return emptyStatus(c, status)
	}

	c.Set(fiber.HeaderContentType, AvatarContentType)
	return c.Send(data)
}

func (a *UserController) LandingShow(c *fiber.Ctx) error {
	return c.Render(a.Views.Landing, ViewContext(c, fiber.Map{
		"title": "Landing",
	}))
}

func (a *UserController) LoginShow(c *fiber.Ctx) error {
	return c.Render(a.Views.Login, ViewContext(c, fiber.Map{
		"title":  "Login",
		"errors": nil,
	}))
}

func (a *UserController) SignupShow(c *fiber.Ctx) error {
	return c.Render(a.Views.Signup, ViewContext(c, fiber.Map{
		"title":  "Signup",
		"errors": nil,
	}))
}

func (a *UserController) DashboardShow(c *fiber.Ctx) error {
	return c.Render(a.Views.Dashboard, ViewContext(c, fiber.Map{
		"title": "Dashboard",
	}))
}

// LogOut is the browser sign out. It revokes the session token when the
// request carried a valid one, then clears the cookie.
func (a *UserController) LogOut(c *fiber.Ctx) error {
	if user, token, ok := sessionFrom(c); ok {
		if err := a.Accounts.Logout(c.UserContext(), user, token); err != nil {
			a.Logger.Warn("sign out revoke failed", "user_id", user.ID.String(), "error", err)
		}
	}

	a.Auther.ClearSessionCookie(c)
	return c.Redirect(a.Routes.Landing, http.StatusFound)
}

func (a *UserController) avatarError(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		a.Logger.Error("avatar upload failed", "error", err)
		return emptyStatus(c, status)
	}
	return c.Status(status).JSON(fiber.Map{"error": publicMessage(err)})
}

func (a *UserController) dump(msg string, v any) {
	if !a.Debug {
		return
	}
	a.Logger.Debug(msg, "payload", print.MaybePrettyJSON(v))
}

func sessionFrom(c *fiber.Ctx) (*User, string, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		return nil, "", false
	}
	token, ok := CurrentToken(c)
	return user, token, ok
}

func invalidBodyError(err error) error {
	return NewValidationError(FieldErrors{"body": "Invalid JSON payload"}, err)
}

func (s SignupInput) redacted() SignupInput {
	if s.Password != "" {
		s.Password = "********"
	}
	return s
}
