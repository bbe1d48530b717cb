package api

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"predix-engine/internal/engine"
	"github.com/gin-gonic/gin"
)

// Validation patterns
var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	accountRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,50}$`)
	feedIDRegex  = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// Validator provides validation methods
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// GetErrors returns all validation errors
func (v *Validator) GetErrors() ValidationErrors {
	return v.errors
}

// ValidateEmail validates an email address
func (v *Validator) ValidateEmail(field, email string) {
	if email == "" {
		v.AddError(field, "email is required")
		return
	}

	if len(email) > 254 {
		v.AddError(field, "email is too long")
		return
	}

	if !emailRegex.MatchString(email) {
		v.AddError(field, "invalid email format")
	}
}

// ValidateAccount validates a principal account name
func (v *Validator) ValidateAccount(field, account string) {
	if account == "" {
		v.AddError(field, "account is required")
		return
	}

	if !accountRegex.MatchString(account) {
		v.AddError(field, "account can only contain letters, numbers, underscores, and hyphens (3-50 characters)")
	}
}

// ValidatePassword validates a password
func (v *Validator) ValidatePassword(field, password string) {
	if password == "" {
		v.AddError(field, "password is required")
		return
	}

	if len(password) < 8 {
		v.AddError(field, "password must be at least 8 characters")
		return
	}

	if len(password) > 128 {
		v.AddError(field, "password is too long")
		return
	}

	var (
		hasUpper  = false
		hasLower  = false
		hasNumber = false
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	if !hasUpper {
		v.AddError(field, "password must contain at least one uppercase letter")
	}
	if !hasLower {
		v.AddError(field, "password must contain at least one lowercase letter")
	}
	if !hasNumber {
		v.AddError(field, "password must contain at least one number")
	}
}

// ValidateQuestion validates a market question
func (v *Validator) ValidateQuestion(field, question string) {
	if question == "" {
		v.AddError(field, "question is required")
		return
	}

	if len(question) > engine.MaxQuestionLen {
		v.AddError(field, fmt.Sprintf("question must be at most %d characters", engine.MaxQuestionLen))
	}
}

// ValidateFeedID validates a 32-byte hex feed identifier
func (v *Validator) ValidateFeedID(field, feedID string) {
	if feedID == "" {
		v.AddError(field, "asset feed id is required")
		return
	}

	if !feedIDRegex.MatchString(feedID) {
		v.AddError(field, "asset feed id must be 64 hex characters")
	}
}

// ValidateAmount validates a positive integer amount
func (v *Validator) ValidateAmount(field string, amount uint64) {
	if amount == 0 {
		v.AddError(field, "amount must be positive")
	}
}

// ValidateSide validates a bet side
func (v *Validator) ValidateSide(field, side string) bool {
	switch side {
	case "yes":
		return true
	case "no":
		return false
	default:
		v.AddError(field, `side must be "yes" or "no"`)
		return false
	}
}

// SendValidationErrors sends validation errors as JSON response
func SendValidationErrors(c *gin.Context, errors ValidationErrors) {
	c.JSON(400, gin.H{
		"error":   "Validation failed",
		"details": errors,
	})
}

// Request structs

type CreateMarketRequest struct {
	Question  string `json:"question"`
	Asset     string `json:"asset"`
	Threshold uint64 `json:"threshold"`
	Deadline  uint64 `json:"deadline"`
}

type PlaceBetRequest struct {
	Side   string `json:"side"`
	Amount uint64 `json:"amount"`
}

type OverrideResolutionRequest struct {
	WinningSide string `json:"winning_side"`
	FinalPrice  uint64 `json:"final_price"`
}

type AdminRequest struct {
	Account string `json:"account"`
}

// ValidateCreateMarketRequest validates market creation data
func ValidateCreateMarketRequest(req CreateMarketRequest) ValidationErrors {
	validator := NewValidator()

	validator.ValidateQuestion("question", req.Question)
	validator.ValidateFeedID("asset", req.Asset)
	validator.ValidateAmount("threshold", req.Threshold)
	validator.ValidateAmount("deadline", req.Deadline)

	return validator.GetErrors()
}

// ValidatePlaceBetRequest validates bet placement data
func ValidatePlaceBetRequest(req PlaceBetRequest) (bool, ValidationErrors) {
	validator := NewValidator()

	side := validator.ValidateSide("side", req.Side)
	validator.ValidateAmount("amount", req.Amount)

	return side, validator.GetErrors()
}
