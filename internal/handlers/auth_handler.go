package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/models"
)

const authTokenTTL = 24 * time.Hour

// AuthHandler serves login and logout.
type AuthHandler struct {
	db     *gorm.DB
	jwtKey []byte
}

func NewAuthHandler(db *gorm.DB, jwtKey []byte) *AuthHandler {
	return &AuthHandler{db: db, jwtKey: jwtKey}
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies the credentials and issues a signed token, both as the
// auth_token cookie and in the response body.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}

	var user models.User
	if err := h.db.Where("login = ? OR email = ?", req.Login, req.Login).First(&user).Error; err != nil {
		apperr.Respond(c, apperr.Unauthorized())
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		apperr.Respond(c, apperr.Unauthorized())
		return
	}

	expiresAt := time.Now().Add(authTokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"login":   user.Login,
		"exp":     expiresAt.Unix(),
	})
	signed, err := token.SignedString(h.jwtKey)
	if err != nil {
		apperr.Respond(c, apperr.Internal(err))
		return
	}

	c.SetCookie("auth_token", signed, int(authTokenTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"token":     signed,
		"expiresAt": expiresAt.UnixMilli(),
		"user": gin.H{
			"id":    user.ID,
			"login": user.Login,
			"email": user.Email,
		},
	})
}

// Logout clears the auth cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetCookie("auth_token", "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
