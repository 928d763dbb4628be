package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/models"
)

// UserHandler serves the user admin surface.
type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// UserResponse is the list/detail shape with roles flattened to names.
type UserResponse struct {
	ID       uint     `json:"id"`
	Login    string   `json:"login"`
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	Status   string   `json:"status"`
	PhotoURL string   `json:"photoUrl"`
	Roles    []string `json:"roles"`
}

func toUserResponse(user models.User) UserResponse {
	roleNames := []string{}
	for _, role := range user.Roles {
		roleNames = append(roleNames, role.Name)
	}
	return UserResponse{
		ID:       user.ID,
		Login:    user.Login,
		Email:    user.Email,
		FullName: user.FullName,
		Status:   user.Status,
		PhotoURL: user.PhotoURL,
		Roles:    roleNames,
	}
}

// ListUsers returns a paginated list of users with their roles. all=true
// skips pagination.
func (h *UserHandler) ListUsers(c *gin.Context) {
	var users []models.User
	query := h.db.Preload("Roles").Order("id asc")

	if c.Query("all") == "true" {
		if err := query.Find(&users).Error; err != nil {
			apperr.Respond(c, err)
			return
		}
		responseData := make([]UserResponse, 0, len(users))
		for _, user := range users {
			responseData = append(responseData, toUserResponse(user))
		}
		c.JSON(http.StatusOK, responseData)
		return
	}

	var totalRows int64
	if err := h.db.Model(&models.User{}).Count(&totalRows).Error; err != nil {
		apperr.Respond(c, err)
		return
	}
	if err := query.Scopes(Paginate(c)).Find(&users).Error; err != nil {
		apperr.Respond(c, err)
		return
	}

	responseData := make([]UserResponse, 0, len(users))
	for _, user := range users {
		responseData = append(responseData, toUserResponse(user))
	}
	c.JSON(http.StatusOK, CreatePaginatedResponse(c, responseData, totalRows))
}

func (h *UserHandler) GetUser(c *gin.Context) {
	userID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var user models.User
	if err := h.db.Preload("Roles").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("user", userID))
			return
		}
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// UserRequest is the create/update payload. Password is required on create
// and optional on update.
type UserRequest struct {
	Login    string `json:"login" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
	Status   string `json:"status"`
	RoleIDs  []uint `json:"roleIds"`
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}
	if req.Password == "" {
		apperr.Respond(c, apperr.Invalid("Password is required", nil))
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		apperr.Respond(c, apperr.Internal(err))
		return
	}

	user := models.User{
		Login:        req.Login,
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: string(hashedPassword),
		Status:       req.Status,
	}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return h.replaceRoles(tx, &user, req.RoleIDs)
	})
	if err != nil {
		if isUniqueViolation(err) {
			apperr.Respond(c, apperr.Conflict("Login or email already taken"))
			return
		}
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUserResponse(user))
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	userID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("user", userID))
			return
		}
		apperr.Respond(c, err)
		return
	}

	updates := map[string]any{
		"login":     req.Login,
		"email":     req.Email,
		"full_name": req.FullName,
		"status":    req.Status,
	}
	if req.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			apperr.Respond(c, apperr.Internal(err))
			return
		}
		updates["password_hash"] = string(hashedPassword)
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return err
		}
		if req.RoleIDs != nil {
			return h.replaceRoles(tx, &user, req.RoleIDs)
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			apperr.Respond(c, apperr.Conflict("Login or email already taken"))
			return
		}
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	result := h.db.Delete(&models.User{}, userID)
	if result.Error != nil {
		apperr.Respond(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		apperr.Respond(c, apperr.NotFound("user", userID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}

func (h *UserHandler) replaceRoles(tx *gorm.DB, user *models.User, roleIDs []uint) error {
	if roleIDs == nil {
		return nil
	}
	var roles []models.Role
	if len(roleIDs) > 0 {
		if err := tx.Where("id IN ?", roleIDs).Find(&roles).Error; err != nil {
			return err
		}
	}
	if err := tx.Model(user).Association("Roles").Replace(roles); err != nil {
		return err
	}
	user.Roles = roles
	return nil
}
