package api

import (
	"errors"
	"net/http"

	"safeflag/internal/dto/req"
	"safeflag/internal/dto/resp"
	"safeflag/internal/service"
	"safeflag/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

func ok(c *gin.Context, status int, message string, data any) {
	c.JSON(status, resp.OK(message, data))
}

// respondError maps service error kinds onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, resp.Fail("Validation Error", "invalid input", verr.Fields))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, resp.Fail("Not Found", err.Error(), nil))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, resp.Fail("Conflict", err.Error(), nil))
	default:
		_ = c.Error(err)
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, resp.Fail("Server Error", "internal persistence failure", nil))
	}
}

// bindError reports a failed ShouldBind* call as a 400 with per-field details.
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]service.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, service.FieldError{Field: fe.Field(), Message: req.FieldMessage(fe)})
		}
		respondError(c, &service.ValidationError{Fields: fields})
		return
	}
	respondError(c, service.NewValidationError("body", "malformed request: "+err.Error()))
}
