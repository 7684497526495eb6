package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"campus/internal/models"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiry = time.Hour
	loginFailedMessage = "Invalid credentials"

	// Consecutive failed logins per username before the account is
	// temporarily locked out.
	maxFailedAttempts = 5
	lockoutWindow     = 15 * time.Minute
)

var (
	ErrUserExists   = errors.New("username already exists")
	ErrNoToken      = errors.New("no token provided")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the identity claims carried by every issued token. Only
// id and role are read by the rest of the system.
type Claims struct {
	UserID int64       `json:"id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string      `json:"token"`
	Role     models.Role `json:"role"`
	Course   string      `json:"course,omitempty"`
	Module   string      `json:"module,omitempty"`
	ImageURL string      `json:"imageUrl,omitempty"`
}

// UserStore is the subset of the storage layer the auth service needs.
type UserStore interface {
	GetUserByUsername(username string) (models.User, string, error)
	CreateUser(user models.User, passwordHash string) (models.User, error)
}

type Config struct {
	Secret      string
	TokenExpiry time.Duration
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}
	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	return nil
}

type Service struct {
	Config
	store UserStore
	// Failed login counters, evicted after the lockout window.
	attempts geche.Geche[string, int]
	now      func() time.Time
}

func NewService(ctx context.Context, config Config, store UserStore) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		Config:   config,
		store:    store,
		attempts: geche.NewMapTTLCache[string, int](ctx, lockoutWindow, time.Minute),
		now:      time.Now,
	}, nil
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Login checks credentials and mints a signed token carrying the
// user's id and role.
func (s *Service) Login(req LoginRequest) (LoginResponse, error) {
	username := strings.TrimSpace(req.Username)

	if n, err := s.attempts.Get(username); err == nil && n >= maxFailedAttempts {
		return LoginResponse{}, errors.New("too many failed login attempts, try again later")
	}

	user, passwordHash, err := s.store.GetUserByUsername(username)
	if err != nil {
		s.recordFailure(username)
		return LoginResponse{}, errors.New(loginFailedMessage)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		s.recordFailure(username)
		return LoginResponse{}, errors.New(loginFailedMessage)
	}

	token, err := s.mintToken(user)
	if err != nil {
		slog.Error("login failed", "user_id", user.ID, "error", err)
		return LoginResponse{}, errors.New("internal error")
	}

	s.attempts.Set(username, 0)

	return LoginResponse{
		Token:    token,
		Role:     user.Role,
		Course:   user.Course,
		Module:   user.Module,
		ImageURL: user.ImageURL,
	}, nil
}

func (s *Service) recordFailure(username string) {
	n, _ := s.attempts.Get(username)
	s.attempts.Set(username, n+1)
}

func (s *Service) mintToken(user models.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates signature and expiry and returns the claims.
func (s *Service) VerifyToken(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return []byte(s.Secret), nil
		},
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// ParseBearer extracts and verifies a credential of the form
// "Bearer <token>" as carried in the Authorization header and in the
// socket handshake.
func (s *Service) ParseBearer(header string) (Claims, error) {
	if header == "" {
		return Claims{}, ErrNoToken
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	return s.VerifyToken(raw)
}

type RegisterRequest struct {
	Username string
	Password string
	Name     string
	Email    string
	Phone    string
	Role     models.Role
	Course   string
	Module   string
	Address  string
	ImageURL string
}

// Register creates a new user. Role defaults to student when empty.
func (s *Service) Register(req RegisterRequest) (models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return models.User{}, errors.New("username and password are required")
	}

	role := req.Role
	if role == "" {
		role = models.RoleStudent
	}
	switch role {
	case models.RoleAdmin, models.RoleStudent, models.RoleLecturer:
	default:
		return models.User{}, fmt.Errorf("unknown role %q", role)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Username: username,
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Role:     role,
		Course:   req.Course,
		Module:   req.Module,
		Address:  req.Address,
		ImageURL: req.ImageURL,
	}

	created, err := s.store.CreateUser(user, hash)
	if err != nil {
		if errors.Is(err, models.ErrExists) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, err
	}
	return created, nil
}
