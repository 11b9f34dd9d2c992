package api

import (
	"context"
	"errors"
	"net/http"

	"safeflag/internal/dto/req"
	"safeflag/internal/dto/resp"
	"safeflag/internal/service"
	"safeflag/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthProvider interface {
	Register(ctx context.Context, in service.RegisterInput) (*resp.UserInfo, error)
	Login(ctx context.Context, email, password string) (*resp.TokenResp, error)
	Refresh(ctx context.Context, refreshToken string) (*resp.TokenResp, error)
	Logout(ctx context.Context, userID string) error
}

type AuthHandler struct {
	svc AuthProvider
}

func NewAuthHandler(svc AuthProvider) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var body req.RegisterReq
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Email:    body.Email,
		Password: body.Password,
		Role:     body.Role,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	logger.Info("user registered", zap.String("email", user.Email), zap.String("role", user.Role))
	ok(c, http.StatusCreated, "Registration successful", user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var body req.LoginReq
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), body.Email, body.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		logger.Warn("failed login attempt", zap.String("email", body.Email))
		c.JSON(http.StatusUnauthorized, resp.Fail("Unauthorized", "invalid email or password", nil))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Login successful", tokens)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var body req.RefreshReq
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}

	tokens, err := h.svc.Refresh(c.Request.Context(), body.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, resp.Fail("Unauthorized", "invalid refresh token", nil))
		return
	}
	ok(c, http.StatusOK, "Token refreshed", tokens)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	op := service.GetOperatorInfo(c.Request.Context())
	if op == nil {
		c.JSON(http.StatusUnauthorized, resp.Fail("Unauthorized", "no authenticated operator", nil))
		return
	}

	if err := h.svc.Logout(c.Request.Context(), op.UserID); err != nil {
		logger.Error("logout failed", zap.String("user_id", op.UserID), zap.Error(err))
	}
	ok(c, http.StatusOK, "Logged out", nil)
}

func (h *AuthHandler) GetProfile(c *gin.Context) {
	op := service.GetOperatorInfo(c.Request.Context())
	if op == nil {
		c.JSON(http.StatusUnauthorized, resp.Fail("Unauthorized", "no authenticated operator", nil))
		return
	}
	ok(c, http.StatusOK, "Profile retrieved", resp.UserInfo{ID: op.UserID, Email: op.Name, Role: op.Role})
}
