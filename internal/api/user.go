package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cwaldron/scenecast/internal/db"
	"github.com/cwaldron/scenecast/internal/models"
)

// CreateUserRequest is the payload for user creation
type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=1,max=255"`
	IsAdmin  bool   `json:"is_admin"`
}

// CreatedUserResponse returns the new user including its API key. The
// key is shown only on creation.
type CreatedUserResponse struct {
	models.User
	APIKey string `json:"api_key"`
}

// UserHandler handles user management requests
type UserHandler struct {
	users *db.UserRepository
}

// NewUserHandler creates a new user handler
func NewUserHandler(users *db.UserRepository) *UserHandler {
	return &UserHandler{users: users}
}

// Create handles POST /users
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	user := models.NewUser(req.Username, req.IsAdmin)
	if err := h.users.Create(c.Request.Context(), user); err != nil {
		if db.IsDuplicate(err) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "duplicate_username"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusCreated, CreatedUserResponse{User: *user, APIKey: user.APIKey})
}

// List handles GET /users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// Delete handles DELETE /users/:user_id
func (h *UserHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id"})
		return
	}

	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		if db.IsNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "user deleted"})
}

// SetupUserRoutes registers the user management routes (admin only)
func SetupUserRoutes(group *gin.RouterGroup, users *db.UserRepository) {
	handler := NewUserHandler(users)

	group.POST("/users", handler.Create)
	group.GET("/users", handler.List)
	group.DELETE("/users/:user_id", handler.Delete)
}
