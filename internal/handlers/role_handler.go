package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/internal/middleware"
	"github.com/launchthatbrand/portal-api/models"
)

// RoleHandler serves role CRUD. Role changes invalidate the cached permission
// sets of affected users.
type RoleHandler struct {
	db   *gorm.DB
	auth *middleware.Auth
}

func NewRoleHandler(db *gorm.DB, auth *middleware.Auth) *RoleHandler {
	return &RoleHandler{db: db, auth: auth}
}

// ListRoles fetches all roles with their associated permissions. all=true
// skips pagination.
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles := []models.Role{}
	query := h.db.Preload("Permissions").Order("name")

	if c.Query("all") == "true" {
		if err := query.Find(&roles).Error; err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, roles)
		return
	}

	var totalRows int64
	if err := h.db.Model(&models.Role{}).Count(&totalRows).Error; err != nil {
		apperr.Respond(c, err)
		return
	}
	if err := query.Scopes(Paginate(c)).Find(&roles).Error; err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, CreatePaginatedResponse(c, roles, totalRows))
}

// RoleRequest is the create/update payload for a role.
type RoleRequest struct {
	Name          string `json:"name" binding:"required"`
	Description   string `json:"description"`
	PermissionIDs []uint `json:"permissionIds"`
}

func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}

	role := models.Role{
		Name:        req.Name,
		Description: req.Description,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&role).Error; err != nil {
			return err
		}
		if len(req.PermissionIDs) > 0 {
			var permissions []models.Permission
			if err := tx.Where("id IN ?", req.PermissionIDs).Find(&permissions).Error; err != nil {
				return err
			}
			return tx.Model(&role).Association("Permissions").Replace(permissions)
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			apperr.Respond(c, apperr.Conflict("Role name already taken"))
			return
		}
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

func (h *RoleHandler) GetRole(c *gin.Context) {
	roleID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var role models.Role
	if err := h.db.Preload("Permissions").First(&role, roleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("role", roleID))
			return
		}
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// UpdateRole updates a role's name and permission set, then drops the cached
// user data of everyone holding the role so the change takes effect on their
// next request.
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	roleID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var role models.Role
	if err := h.db.First(&role, roleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("role", roleID))
			return
		}
		apperr.Respond(c, err)
		return
	}

	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}

	role.Name = req.Name
	role.Description = req.Description
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&role).Error; err != nil {
			return err
		}
		var permissions []models.Permission
		if len(req.PermissionIDs) > 0 {
			if err := tx.Where("id IN ?", req.PermissionIDs).Find(&permissions).Error; err != nil {
				return err
			}
		}
		return tx.Model(&role).Association("Permissions").Replace(permissions)
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	go h.invalidateRoleMembers(role)

	c.JSON(http.StatusOK, role)
}

func (h *RoleHandler) invalidateRoleMembers(role models.Role) {
	var userIDs []uint
	h.db.Table("user_roles").Where("role_id = ?", role.ID).Pluck("user_id", &userIDs)
	if len(userIDs) == 0 {
		return
	}
	slog.Info("Invalidating cache for users after role update", "role", role.Name, "user_count", len(userIDs))
	for _, userID := range userIDs {
		h.auth.InvalidateUser(context.Background(), userID)
	}
}

func (h *RoleHandler) DeleteRole(c *gin.Context) {
	roleID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	result := h.db.Delete(&models.Role{}, roleID)
	if result.Error != nil {
		apperr.Respond(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		apperr.Respond(c, apperr.NotFound("role", roleID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Role deleted successfully"})
}
