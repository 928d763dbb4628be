package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/models"
)

// PermissionHandler serves the permission registry.
type PermissionHandler struct {
	db *gorm.DB
}

func NewPermissionHandler(db *gorm.DB) *PermissionHandler {
	return &PermissionHandler{db: db}
}

// PermissionRequest is the create/update payload for a permission.
type PermissionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category" binding:"required"`
}

// ListPermissions returns every permission, grouped by category then name.
func (h *PermissionHandler) ListPermissions(c *gin.Context) {
	permissions := []models.Permission{}
	if err := h.db.Order("category asc, name asc").Find(&permissions).Error; err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, permissions)
}

func (h *PermissionHandler) CreatePermission(c *gin.Context) {
	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}

	permission := models.Permission{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
	}
	if err := h.db.Create(&permission).Error; err != nil {
		if isUniqueViolation(err) {
			apperr.Respond(c, apperr.Conflict("Permission name already taken"))
			return
		}
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, permission)
}

func (h *PermissionHandler) UpdatePermission(c *gin.Context) {
	permissionID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var permission models.Permission
	if err := h.db.First(&permission, permissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("permission", permissionID))
			return
		}
		apperr.Respond(c, err)
		return
	}

	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}
	permission.Name = req.Name
	permission.Description = req.Description
	permission.Category = req.Category

	if err := h.db.Save(&permission).Error; err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, permission)
}

// DeletePermission removes a permission unless a role still references it.
func (h *PermissionHandler) DeletePermission(c *gin.Context) {
	permissionID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var count int64
	if err := h.db.Table("role_permissions").Where("permission_id = ?", permissionID).Count(&count).Error; err != nil {
		apperr.Respond(c, err)
		return
	}
	if count > 0 {
		apperr.Respond(c, apperr.Conflict("Cannot delete permission: it is assigned to one or more roles"))
		return
	}

	result := h.db.Delete(&models.Permission{}, permissionID)
	if result.Error != nil {
		apperr.Respond(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		apperr.Respond(c, apperr.NotFound("permission", permissionID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Permission deleted successfully"})
}
