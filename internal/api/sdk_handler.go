package api

import (
	"context"
	"net/http"

	"safeflag/internal/dto/req"
	"safeflag/internal/dto/resp"
	"safeflag/internal/service"

	"github.com/gin-gonic/gin"
)

type SDKKeyMinter interface {
	Mint(ctx context.Context, appID, envName, operator string) (*resp.SDKKeyItem, error)
}

type SDKKeyHandler struct {
	keys SDKKeyMinter
}

func NewSDKKeyHandler(keys SDKKeyMinter) *SDKKeyHandler {
	return &SDKKeyHandler{keys: keys}
}

func (h *SDKKeyHandler) Create(c *gin.Context) {
	var r req.CreateSDKKeyReq
	if err := c.ShouldBindJSON(&r); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	item, err := h.keys.Mint(ctx, r.AppID, r.Env, service.GetOperator(ctx))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "SDK key created", item)
}
