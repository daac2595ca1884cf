package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"bookswap/internal/config"
	"bookswap/internal/microservices/http-api/models"
	"bookswap/internal/microservices/http-api/repository"
	"bookswap/internal/middleware/auth"
	pkgmodels "bookswap/pkg/models"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "bookswap"

var (
	ErrNameInUse          = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrInvalidSignup      = errors.New("invalid signup request")
)

// Claims is the access token payload.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Signup(ctx context.Context, req pkgmodels.SignupRequest) (*models.User, string, error)
	Login(ctx context.Context, username, password string) (*models.User, string, error)
	Me(ctx context.Context, userID string) (*models.User, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type authService struct {
	userRepo       repository.UserRepository
	jwtSecret      string
	accessTokenTTL time.Duration
	now            func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, cfg *config.Config) AuthService {
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &authService{
		userRepo:       userRepo,
		jwtSecret:      cfg.JWTSecret,
		accessTokenTTL: ttl,
		now:            time.Now,
	}
}

func validateSignup(req pkgmodels.SignupRequest) error {
	username := strings.TrimSpace(req.Username)
	if username == "" || utf8.RuneCountInString(username) > 50 {
		return fmt.Errorf("%w: username must be 1-50 characters", ErrInvalidSignup)
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return fmt.Errorf("%w: invalid email", ErrInvalidSignup)
		}
	}
	if utf8.RuneCountInString(req.Password) < pkgmodels.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidSignup, pkgmodels.MinPasswordLength)
	}
	return nil
}

// Signup creates the account and returns it with a fresh access token.
func (s *authService) Signup(ctx context.Context, req pkgmodels.SignupRequest) (*models.User, string, error) {
	if err := validateSignup(req); err != nil {
		return nil, "", err
	}
	username := strings.TrimSpace(req.Username)

	if _, err := s.userRepo.FindByUsername(ctx, username); err == nil {
		return nil, "", ErrNameInUse
	} else if !repository.IsNotFound(err) {
		return nil, "", err
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, "", err
	}

	user := &models.User{
		Username: username,
		Email:    strings.TrimSpace(req.Email),
		Password: hashedPassword,
		City:     strings.TrimSpace(req.City),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// lost a race with another signup for the same name
		if repository.IsUniqueViolation(err) {
			return nil, "", ErrNameInUse
		}
		return nil, "", err
	}

	token, err := s.generateAccessToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *authService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !repository.IsNotFound(err) {
			return nil, "", err
		}
		auth.BurnPasswordCheck(password)
		return nil, "", ErrInvalidCredentials
	}

	if err := auth.VerifyPassword(user.Password, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.generateAccessToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *authService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.userRepo.FindByID(ctx, userID)
}

func (s *authService) generateAccessToken(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid || claims.Issuer != tokenIssuer || claims.Subject == "" || claims.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
