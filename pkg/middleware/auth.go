package middleware

import (
	"net/http"
	"strings"

	"predix-engine/internal/engine"
	"predix-engine/pkg/auth"
	"predix-engine/pkg/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuthMiddleware handles authentication
type AuthMiddleware struct {
	jwtService *auth.JWTService
	db         *gorm.DB
	engine     *engine.Engine
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(jwtService *auth.JWTService, db *gorm.DB, eng *engine.Engine) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		db:         db,
		engine:     eng,
	}
}

// JWTAuth middleware for JWT authentication
func (am *AuthMiddleware) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Check if it's a Bearer token
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		token := tokenParts[1]
		claims, err := am.jwtService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		// Get user from database
		var user models.User
		if err := am.db.Where("account = ?", claims.Account).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			c.Abort()
			return
		}

		// Check if user is active
		if !user.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "User account is disabled"})
			c.Abort()
			return
		}

		// Set user info in context
		c.Set("user", &user)
		c.Set("account", user.Account)
		c.Next()
	}
}

// OptionalAuth middleware that allows both authenticated and unauthenticated access
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) == 2 && tokenParts[0] == "Bearer" {
				if claims, err := am.jwtService.ValidateToken(tokenParts[1]); err == nil {
					var user models.User
					if err := am.db.Where("account = ?", claims.Account).First(&user).Error; err == nil && user.IsActive {
						c.Set("user", &user)
						c.Set("account", user.Account)
					}
				}
			}
		}
		c.Next()
	}
}

// RequireAdmin requires the authenticated principal to be in the engine
// admin set. The admin set is owned by the settlement engine, not by a user
// role column, so membership survives restarts through the engine journal.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, exists := GetAccountFromContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if !am.engine.IsAdmin(account) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserFromContext gets user from gin context
func GetUserFromContext(c *gin.Context) (*models.User, bool) {
	user, exists := c.Get("user")
	if !exists {
		return nil, false
	}

	userModel, ok := user.(*models.User)
	return userModel, ok
}

// GetAccountFromContext gets the principal account from gin context
func GetAccountFromContext(c *gin.Context) (string, bool) {
	account, exists := c.Get("account")
	if !exists {
		return "", false
	}

	name, ok := account.(string)
	return name, ok
}
