package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"refund-review-api/middleware"
	"refund-review-api/models"
	"refund-review-api/services"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token        string                `json:"token"`
	Reviewer     models.Reviewer       `json:"reviewer"`
	Capabilities services.Capabilities `json:"capabilities"`
	Message      string                `json:"message"`
}

type AuthController struct {
	auth *services.AuthService
}

func NewAuthController(auth *services.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

// Login handles reviewer authentication
func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, reviewer, err := ac.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrAccessDenied) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:        token,
		Reviewer:     *reviewer,
		Capabilities: services.CapabilitiesFor(reviewer.Role),
		Message:      "Login successful",
	})
}

// GetProfile returns the current reviewer with derived capabilities and scope
func (ac *AuthController) GetProfile(c *gin.Context) {
	reviewer, ok := middleware.ReviewerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reviewer":     reviewer,
		"capabilities": services.CapabilitiesFor(reviewer.Role),
		"scope":        services.ResolveScope(reviewer.Principal()).String(),
	})
}
