package dto

// Data Transfer Objects for authentication requests

// SignupRequest: payload for account creation
type SignupRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email" binding:"omitempty,email"`
	City     string `json:"city" binding:"omitempty,max=100"`
}

// LoginRequest: payload for user login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}
