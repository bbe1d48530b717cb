package api

import (
	"net/http"

	"predix-engine/pkg/auth"
	"predix-engine/pkg/ledger"
	"predix-engine/pkg/middleware"
	"predix-engine/pkg/models"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthHandlers contains authentication-related handlers
type AuthHandlers struct {
	db         *gorm.DB
	jwtService *auth.JWTService
	ledger     *ledger.GormLedger
}

// NewAuthHandlers creates new authentication handlers
func NewAuthHandlers(db *gorm.DB, jwtService *auth.JWTService, gl *ledger.GormLedger) *AuthHandlers {
	return &AuthHandlers{
		db:         db,
		jwtService: jwtService,
		ledger:     gl,
	}
}

// RegisterRequest represents user registration request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Account  string `json:"account" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest represents user login request
type LoginRequest struct {
	Account  string `json:"account" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles user registration
func (ah *AuthHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	validator := NewValidator()
	validator.ValidateEmail("email", req.Email)
	validator.ValidateAccount("account", req.Account)
	validator.ValidatePassword("password", req.Password)
	if validator.HasErrors() {
		SendValidationErrors(c, validator.GetErrors())
		return
	}

	// Check if user already exists
	var existingUser models.User
	if err := ah.db.Where("email = ? OR account = ?", req.Email, req.Account).First(&existingUser).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
		return
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	// Create user
	user := models.User{
		Email:        req.Email,
		Account:      req.Account,
		PasswordHash: string(hashedPassword),
		IsActive:     true,
	}

	if err := ah.db.Create(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	// Every principal gets a balance row up front so ledger lookups never
	// have to distinguish missing from zero.
	balance := models.Balance{Account: user.Account}
	if err := ah.db.Create(&balance).Error; err != nil {
		ah.db.Delete(&user)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create balance"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"user_id": user.ID,
			"account": user.Account,
		},
	})
}

// Login handles user login
func (ah *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := ah.db.Where("account = ?", req.Account).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "User account is disabled"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokens, err := ah.jwtService.GenerateTokenPair(&user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate tokens"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"user":   user,
			"tokens": tokens,
		},
	})
}

// GetProfile returns the authenticated user's profile
func (ah *AuthHandlers) GetProfile(c *gin.Context) {
	user, exists := middleware.GetUserFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}

// GetBalance returns the authenticated user's ledger balance
func (ah *AuthHandlers) GetBalance(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	available, err := ah.ledger.Balance(account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"account":   account,
			"available": available,
		},
	})
}
