package api

import (
	"context"
	"net/http"

	"safeflag/internal/dto/req"
	"safeflag/internal/dto/resp"
	"safeflag/internal/model"
	"safeflag/internal/service"
	v1 "safeflag/pkg/api/v1"

	"github.com/gin-gonic/gin"
)

type FlagRegistry interface {
	List(ctx context.Context) ([]resp.FlagItem, error)
	Environments(ctx context.Context) ([]model.Environment, error)
	Create(ctx context.Context, in service.CreateFlagInput) (*resp.FlagItem, error)
}

type ToggleGate interface {
	Audit(ctx context.Context, flagID, envID uint64, reason string) (v1.RiskReport, error)
	AuditByKey(ctx context.Context, key, envName, description string) (v1.RiskReport, error)
	Toggle(ctx context.Context, r service.ToggleRequest) (*service.ToggleResult, error)
}

type Telemetry interface {
	RecordHit(ctx context.Context, flagKey, envName string) bool
	Aggregate(ctx context.Context) ([]resp.TrafficStat, error)
}

type Ledger interface {
	Recent(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

type FlagHandler struct {
	flags     FlagRegistry
	gate      ToggleGate
	telemetry Telemetry
	ledger    Ledger
}

func NewFlagHandler(flags FlagRegistry, gate ToggleGate, telemetry Telemetry, ledger Ledger) *FlagHandler {
	return &FlagHandler{
		flags:     flags,
		gate:      gate,
		telemetry: telemetry,
		ledger:    ledger,
	}
}

func (h *FlagHandler) ListFlags(c *gin.Context) {
	flags, err := h.flags.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Flags retrieved", flags)
}

func (h *FlagHandler) CreateFlag(c *gin.Context) {
	var r req.CreateFlagReq
	if err := c.ShouldBindJSON(&r); err != nil {
		bindError(c, err)
		return
	}

	flag, err := h.flags.Create(c.Request.Context(), service.CreateFlagInput{
		Name:        r.Name,
		Key:         r.Key,
		Description: r.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "Feature defined successfully", flag)
}

func (h *FlagHandler) AuditToggle(c *gin.Context) {
	var uri req.FlagURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}
	var r req.AuditToggleReq
	if err := c.ShouldBindJSON(&r); err != nil {
		bindError(c, err)
		return
	}

	report, err := h.gate.Audit(c.Request.Context(), uri.ID, r.EnvironmentID, r.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Risk audit complete", report)
}

func (h *FlagHandler) Toggle(c *gin.Context) {
	var uri req.FlagURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}
	var r req.ToggleReq
	if err := c.ShouldBindJSON(&r); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	result, err := h.gate.Toggle(ctx, service.ToggleRequest{
		FlagID:        uri.ID,
		EnvironmentID: r.EnvironmentID,
		Reason:        r.Reason,
		Caller:        service.CallerFromContext(ctx),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Blocked() {
		c.JSON(http.StatusForbidden, resp.Envelope{
			Message: "Action Blocked",
			Data:    resp.BlockedResp{Message: result.Block.Message, Report: result.Block.Report},
		})
		return
	}
	ok(c, http.StatusOK, "State updated safely", resp.ToggleResp{
		Status: result.Status,
		Action: result.Action,
		Report: result.Report,
	})
}

func (h *FlagHandler) Evaluate(c *gin.Context) {
	var r req.EvaluateReq
	if err := c.ShouldBindUri(&r); err != nil {
		c.JSON(http.StatusNotFound, resp.Fail("Not Found", "invalid flag key", nil))
		return
	}
	env := c.Query("env")

	if !h.telemetry.RecordHit(c.Request.Context(), r.Key, env) {
		c.JSON(http.StatusNotFound, resp.Fail("Not Found", "invalid flag key", nil))
		return
	}
	ok(c, http.StatusOK, "Traffic observed", nil)
}

func (h *FlagHandler) Analytics(c *gin.Context) {
	stats, err := h.telemetry.Aggregate(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if stats == nil {
		stats = []resp.TrafficStat{}
	}
	ok(c, http.StatusOK, "Analytics retrieved", stats)
}

func (h *FlagHandler) Logs(c *gin.Context) {
	var q req.LogsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	entries, err := h.ledger.Recent(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	ok(c, http.StatusOK, "Audit trail retrieved", entries)
}

func (h *FlagHandler) Environments(c *gin.Context) {
	envs, err := h.flags.Environments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if envs == nil {
		envs = []model.Environment{}
	}
	ok(c, http.StatusOK, "Environments retrieved", envs)
}

func (h *FlagHandler) AnalyzeRisk(c *gin.Context) {
	var r req.AnalyzeRiskReq
	if err := c.ShouldBindJSON(&r); err != nil {
		bindError(c, err)
		return
	}

	report, err := h.gate.AuditByKey(c.Request.Context(), r.FeatureKey, r.Environment, r.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Traffic-aware risk audit complete", report)
}
