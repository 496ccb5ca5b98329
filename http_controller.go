package auth

import (
	"encoding/json"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

type AuthControllerRoutes struct {
	Login          string
	CreateUser     string
	UserByID       string
	UserByUsername string
	Me             string
}

var DefaultAuthControllerRoutes = AuthControllerRoutes{
	Login:          "/login",
	CreateUser:     "/api/user/create",
	UserByID:       "/api/user/id/:id",
	UserByUsername: "/api/user/:username",
	Me:             "/api/me",
}

type AuthController struct {
	Routes   AuthControllerRoutes
	Auth     *RouteAuthenticator
	Repo     RepositoryManager
	Register *RegisterUserHandler
	Logger   Logger
}

type AuthControllerOption func(*AuthController)

func WithControllerRoutes(routes AuthControllerRoutes) AuthControllerOption {
	return func(ac *AuthController) {
		ac.Routes = routes
	}
}

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(ac *AuthController) {
		ac.Logger = normalizeLogger(l)
	}
}

func WithRegisterUserHandler(h *RegisterUserHandler) AuthControllerOption {
	return func(ac *AuthController) {
		if h != nil {
			ac.Register = h
		}
	}
}

func NewAuthController(auth *RouteAuthenticator, repo RepositoryManager, opts ...AuthControllerOption) *AuthController {
	ac := &AuthController{
		Routes: DefaultAuthControllerRoutes,
		Auth:   auth,
		Repo:   repo,
		Logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ac)
		}
	}

	if ac.Register == nil {
		ac.Register = NewRegisterUserHandler(repo)
	}

	return ac
}

// RegisterAuthRoutes mounts login, registration and the protected user
// lookups on app.
func RegisterAuthRoutes[T any](app router.Router[T], auth *RouteAuthenticator, repo RepositoryManager, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(auth, repo, opts...)
	protected := auth.ProtectedRoute()

	app.Post(controller.Routes.Login, auth.LoginHandler()).
		SetName("sign-in.post")
	app.Post(controller.Routes.CreateUser, controller.CreateUser).
		SetName("user.create")

	app.Get(controller.Routes.UserByID, controller.FindByID, protected).
		SetName("user.by-id")
	app.Get(controller.Routes.Me, controller.CurrentUser, protected).
		SetName("user.me")
	app.Get(controller.Routes.UserByUsername, controller.FindByUsername, protected).
		SetName("user.by-username")

	return controller
}

func (a *AuthController) CreateUser(c router.Context) error {
	var payload RegisterUserMessage
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return a.Auth.ErrorHandler(c, errInvalidLoginPayload)
	}

	user, err := a.Register.Register(c.Context(), payload)
	if err != nil {
		a.Logger.Info("user registration failed: %s", err)
		return a.Auth.ErrorHandler(c, err)
	}

	a.Logger.Info("user registered: %s", user.Username)
	return c.JSON(router.StatusOK, user)
}

func (a *AuthController) FindByID(c router.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return a.Auth.ErrorHandler(c, errors.New("user id must be a UUID", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest))
	}

	user, err := a.Repo.Users().FindByID(c.Context(), id)
	if err != nil {
		return a.Auth.ErrorHandler(c, err)
	}
	return c.JSON(router.StatusOK, user)
}

func (a *AuthController) FindByUsername(c router.Context) error {
	user, err := a.Repo.Users().GetByUsername(c.Context(), c.Param("username"))
	if err != nil {
		return a.Auth.ErrorHandler(c, err)
	}
	return c.JSON(router.StatusOK, user)
}

// CurrentUser echoes the identity the token vouches for.
func (a *AuthController) CurrentUser(c router.Context) error {
	identity, ok := CurrentIdentity(c)
	if !ok {
		return a.Auth.ErrorHandler(c, ErrMissingIdentity)
	}
	return c.JSON(router.StatusOK, identity)
}
