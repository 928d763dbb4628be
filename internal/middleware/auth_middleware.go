package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/models"
)

const userCacheTTL = 10 * time.Minute

// CachedUserData is the single cache shape for an authenticated user: identity
// plus the flattened role and permission sets.
type CachedUserData struct {
	UserID      uint     `json:"user_id"`
	Login       string   `json:"login"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Auth holds the authentication dependencies. rdb may be nil; every request
// then resolves roles and permissions from the database.
type Auth struct {
	db     *gorm.DB
	rdb    *redis.Client
	jwtKey []byte
}

func NewAuth(db *gorm.DB, rdb *redis.Client, jwtKey []byte) *Auth {
	return &Auth{db: db, rdb: rdb, jwtKey: jwtKey}
}

// Middleware authenticates the request from the auth_token cookie or a Bearer
// header, loads the user's roles and permissions (Redis cache first, database
// on miss), and stores them on the gin context for the permission checks
// downstream.
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie("auth_token")
		if err != nil || tokenStr == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				apperr.Respond(c, apperr.Unauthorized())
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				apperr.Respond(c, apperr.Unauthorized())
				return
			}
			tokenStr = parts[1]
		}

		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.jwtKey, nil
		})
		if err != nil || !token.Valid {
			c.SetCookie("auth_token", "", -1, "/", "", false, true)
			apperr.Respond(c, apperr.Unauthorized())
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			apperr.Respond(c, apperr.Unauthorized())
			return
		}
		userIDFloat, ok := claims["user_id"].(float64)
		if !ok {
			apperr.Respond(c, apperr.Unauthorized())
			return
		}
		userID := uint(userIDFloat)

		if userData, ok := a.fromCache(c.Request.Context(), userID); ok {
			setContextAndProceed(c, userData)
			return
		}

		userData, err := a.loadUserData(userID)
		if err != nil {
			c.SetCookie("auth_token", "", -1, "/", "", false, true)
			apperr.Respond(c, apperr.Unauthorized())
			return
		}
		a.cache(c.Request.Context(), userData)
		setContextAndProceed(c, userData)
	}
}

func (a *Auth) fromCache(ctx context.Context, userID uint) (*CachedUserData, bool) {
	if a.rdb == nil {
		return nil, false
	}
	cacheKey := fmt.Sprintf("user:%d:data", userID)
	cachedData, err := a.rdb.Get(ctx, cacheKey).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Error("Redis GET command failed", "error", err, "user_id", userID)
		}
		return nil, false
	}
	var userData CachedUserData
	if json.Unmarshal([]byte(cachedData), &userData) != nil {
		slog.Warn("Failed to unmarshal cached user data", "user_id", userID)
		return nil, false
	}
	return &userData, true
}

func (a *Auth) loadUserData(userID uint) (*CachedUserData, error) {
	var dbUser models.User
	if err := a.db.Preload("Roles").First(&dbUser, userID).Error; err != nil {
		return nil, err
	}

	var roleIDs []uint
	var roleNames []string
	isAdmin := false
	for _, role := range dbUser.Roles {
		roleIDs = append(roleIDs, role.ID)
		roleNames = append(roleNames, role.Name)
		if role.Name == "admin" {
			isAdmin = true
		}
	}

	var permissionsList []string
	if len(roleIDs) > 0 {
		a.db.Table("permissions").
			Joins("join role_permissions on role_permissions.permission_id = permissions.id").
			Where("role_permissions.role_id IN ?", roleIDs).
			Distinct().
			Pluck("name", &permissionsList)
	}
	if isAdmin {
		permissionsList = append(permissionsList, "admin")
	}

	return &CachedUserData{
		UserID:      dbUser.ID,
		Login:       dbUser.Login,
		Roles:       roleNames,
		Permissions: permissionsList,
	}, nil
}

func (a *Auth) cache(ctx context.Context, userData *CachedUserData) {
	if a.rdb == nil {
		return
	}
	jsonData, err := json.Marshal(userData)
	if err != nil {
		slog.Error("Failed to marshal user data for caching", "error", err, "user_id", userData.UserID)
		return
	}
	cacheKey := fmt.Sprintf("user:%d:data", userData.UserID)
	if err := a.rdb.Set(ctx, cacheKey, jsonData, userCacheTTL).Err(); err != nil {
		slog.Error("Failed to SET user data to cache", "error", err, "user_id", userData.UserID)
	}
}

// InvalidateUser drops the cached role/permission set so the next request
// reloads it, e.g. after a role change.
func (a *Auth) InvalidateUser(ctx context.Context, userID uint) {
	if a.rdb == nil {
		return
	}
	if err := a.rdb.Del(ctx, fmt.Sprintf("user:%d:data", userID)).Err(); err != nil {
		slog.Warn("Failed to invalidate cached user data", "error", err, "user_id", userID)
	}
}

func setContextAndProceed(c *gin.Context, userData *CachedUserData) {
	c.Set("user_id", userData.UserID)
	c.Set("login", userData.Login)
	c.Set("roles", userData.Roles)
	c.Set("permissions", userData.Permissions)
	c.Next()
}

// PermissionMiddleware gates a route on one permission key. The admin role
// passes every check.
func PermissionMiddleware(requiredPermission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if roles, exists := c.Get("roles"); exists {
			if userRoles, ok := roles.([]string); ok {
				for _, roleName := range userRoles {
					if roleName == "admin" {
						c.Next()
						return
					}
				}
			}
		}

		permissions, exists := c.Get("permissions")
		if !exists {
			apperr.Respond(c, apperr.Forbidden(requiredPermission))
			return
		}
		userPermissions, ok := permissions.([]string)
		if !ok {
			apperr.Respond(c, apperr.Forbidden(requiredPermission))
			return
		}
		for _, permissionName := range userPermissions {
			if permissionName == requiredPermission {
				c.Next()
				return
			}
		}
		apperr.Respond(c, apperr.Forbidden(requiredPermission))
	}
}

// CurrentUserID reads the authenticated user id set by Middleware.
func CurrentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
