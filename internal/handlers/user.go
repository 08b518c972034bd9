package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"app/internal/logging"
	"app/internal/models"
	"app/internal/mykafka"
)

// UserHandler serves the admin-only account CRUD. Password hashes and
// stored refresh tokens never leave the store.
type UserHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

type userResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Roles    []int  `json:"roles"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Username: u.Username,
		Roles:    models.SerializeRoles(u.Roles),
	}
}

func (h *UserHandler) GetUsers(c echo.Context) error {
	var users []models.User
	if err := h.DB.Order("id ASC").Find(&users).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if len(users) == 0 {
		return c.NoContent(http.StatusNoContent)
	}

	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "User ID required")
	}

	var user models.User
	if err := h.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.NoContent(http.StatusNoContent)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) DeleteUser(c echo.Context) error {
	var req struct {
		ID uint `json:"id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.ID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "User ID required")
	}

	var user models.User
	if err := h.DB.First(&user, req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.NoContent(http.StatusNoContent)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if err := h.DB.Delete(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete user")
	}

	logging.FromContext(c.Request().Context()).Info("user_deleted", "userID", user.ID)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "User " + strconv.Itoa(int(user.ID)) + " deleted successfully",
	})
}
