package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"safeflag/internal/dto/resp"
	"safeflag/internal/model"
	"safeflag/internal/repository"
	"safeflag/pkg/constraints"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	RedisKeyPrefix = "safeflag:auth:session:"
	Issuer         = "safeflag-auth-service"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrSessionExpired     = errors.New("session expired")
)

type UserClaims struct {
	UserID   string `json:"uid"`
	Username string `json:"sub"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	users           repository.UserInterface
	redis           *redis.Client
	signingKey      []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewAuthService(users repository.UserInterface, rdb *redis.Client, signingKey string, accessTokenTTL, refreshTokenTTL time.Duration) *AuthService {
	return &AuthService{
		users:           users,
		redis:           rdb,
		signingKey:      []byte(signingKey),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

type RegisterInput struct {
	Email    string
	Password string
	Role     string
}

// Register stores a new user with a bcrypt hash of the password.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*resp.UserInfo, error) {
	role := in.Role
	if role == "" {
		role = constraints.RoleDeveloper
	}
	if role != constraints.RoleManager && role != constraints.RoleDeveloper {
		return nil, NewValidationError("role", "must be one of manager, developer")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("email %s: %w", user.Email, ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", ErrPersistence)
	}
	return userInfo(user), nil
}

// Login authenticates a user and returns pair of tokens
func (s *AuthService) Login(ctx context.Context, email, password string) (*resp.TokenResp, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", ErrPersistence)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	info := userInfo(user)
	tokens, err := s.generateTokens(ctx, info.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}
	tokens.User = *info
	return tokens, nil
}

// Refresh handles token rotation using the Refresh Token
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*resp.TokenResp, error) {
	claims, err := s.ParseToken(refreshToken)
	if err != nil {
		return nil, err
	}

	storedToken, err := s.redis.Get(ctx, RedisKeyPrefix+claims.UserID).Result()
	if err == redis.Nil {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}
	if storedToken != refreshToken {
		return nil, ErrTokenInvalid
	}

	tokens, err := s.generateTokens(ctx, claims.UserID, claims.Username, claims.Role)
	if err != nil {
		return nil, err
	}
	tokens.User = resp.UserInfo{ID: claims.UserID, Email: claims.Username, Role: claims.Role}
	return tokens, nil
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.redis.Del(ctx, RedisKeyPrefix+userID).Err()
}

// ParseToken validates a signed token and returns its claims.
func (s *AuthService) ParseToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *AuthService) generateTokens(ctx context.Context, userID, username, role string) (*resp.TokenResp, error) {
	now := time.Now()
	atClaims := UserClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, atClaims).SignedString(s.signingKey)
	if err != nil {
		return nil, err
	}

	rtClaims := UserClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
			ID:        uuid.New().String(), // JTI
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, rtClaims).SignedString(s.signingKey)
	if err != nil {
		return nil, err
	}

	// one live refresh token per user
	if err := s.redis.Set(ctx, RedisKeyPrefix+userID, refreshToken, s.refreshTokenTTL).Err(); err != nil {
		return nil, err
	}

	return &resp.TokenResp{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTokenTTL.Seconds()),
	}, nil
}

func userInfo(u *model.User) *resp.UserInfo {
	return &resp.UserInfo{
		ID:    strconv.FormatUint(u.ID, 10),
		Email: u.Email,
		Role:  u.Role,
	}
}
