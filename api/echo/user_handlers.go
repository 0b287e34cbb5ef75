package echo

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/migoVanDingo/ed-user-management/domain"
	apierrors "github.com/migoVanDingo/ed-user-management/errors"
	"github.com/migoVanDingo/ed-user-management/middleware"
	"github.com/migoVanDingo/ed-user-management/services"
)

// CreateUserHandler creates a user from an explicit payload.
func (a *UserManagementAPI) CreateUserHandler(c echo.Context) error {
	var input services.CreateUserInput
	if err := c.Bind(&input); err != nil {
		return respondError(c, apierrors.NewBadRequest(apierrors.CodeMissingField, "malformed payload"))
	}

	user, err := a.users.CreateUser(c.Request().Context(), input)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, "User created", echo.Map{"user": user})
}

func (a *UserManagementAPI) GetUserHandler(c echo.Context) error {
	user, err := a.users.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "User found", echo.Map{"user": user})
}

// ListUsersHandler lists users, or looks up the single user for an ?email=
// query when one is given.
func (a *UserManagementAPI) ListUsersHandler(c echo.Context) error {
	if email := c.QueryParam("email"); email != "" {
		user, err := a.users.GetUserByEmail(c.Request().Context(), email)
		if err != nil {
			return respondError(c, err)
		}
		return respond(c, http.StatusOK, "User found", echo.Map{"users": []any{user}})
	}

	users, err := a.users.ListUsers(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Users listed", echo.Map{"users": users})
}

// ListSessionsHandler lists the authenticated user's sessions.
func (a *UserManagementAPI) ListSessionsHandler(c echo.Context) error {
	userID, _ := c.Get(middleware.ContextKeyUserID).(string)
	sessions, err := a.sessions.ListUserSessions(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Sessions listed", echo.Map{"sessions": sessions})
}

// updateUserPayload is the allow-listed update shape. Unknown fields are
// rejected at decode time rather than silently dropped.
type updateUserPayload struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
}

// UpdateUserHandler applies an allow-listed partial update to a user.
func (a *UserManagementAPI) UpdateUserHandler(c echo.Context) error {
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()

	var payload updateUserPayload
	if err := decoder.Decode(&payload); err != nil {
		return respondError(c, apierrors.NewBadRequest(apierrors.CodeUnknownField, "payload contains unknown or malformed fields"))
	}

	user, err := a.users.UpdateUser(c.Request().Context(), c.Param("id"), domain.UserUpdate{
		Email:    payload.Email,
		Username: payload.Username,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "User updated", echo.Map{"user": user})
}

func (a *UserManagementAPI) DeleteUserHandler(c echo.Context) error {
	if err := a.users.DeleteUser(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "User deleted", nil)
}
