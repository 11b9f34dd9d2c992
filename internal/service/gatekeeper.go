package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"safeflag/internal/dto/resp"
	"safeflag/internal/metrics"
	"safeflag/internal/model"
	"safeflag/internal/repository"
	"safeflag/internal/risk"
	v1 "safeflag/pkg/api/v1"
	"safeflag/pkg/constraints"
	"safeflag/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BlockThreshold is the score at or above which a production toggle needs a manager.
const BlockThreshold = 8

const (
	securityBlockPrefix = "[SECURITY BLOCK] "
	noDescription       = "No description provided."
)

// Caller is who asked for a toggle.
type Caller struct {
	ID   string
	Name string
	Role string
}

func (c Caller) IsManager() bool {
	return c.Role == constraints.RoleManager
}

type ToggleRequest struct {
	FlagID        uint64
	EnvironmentID uint64
	Reason        string
	Caller        Caller
}

// BlockDecision is the outcome of a refused production toggle.
type BlockDecision struct {
	Message string        `json:"message"`
	Report  v1.RiskReport `json:"report"`
}

// ToggleResult is either a committed flip (Status) or a refusal (Block).
type ToggleResult struct {
	Status resp.StatusItem
	Action string
	Report *v1.RiskReport
	Block  *BlockDecision
}

func (r *ToggleResult) Blocked() bool {
	return r.Block != nil
}

// Gatekeeper runs the two-stage audit/toggle protocol.
type Gatekeeper struct {
	db        *gorm.DB
	flags     repository.FlagInterface
	envs      repository.EnvironmentInterface
	statuses  repository.StatusInterface
	outbox    repository.OutboxInterface
	ledger    *AuditLedger
	telemetry *TelemetryStore
	assessor  risk.Assessor
	obs       metrics.GateObserver
	locks     *keyedMutex
}

func NewGatekeeper(db *gorm.DB, flags repository.FlagInterface, envs repository.EnvironmentInterface, statuses repository.StatusInterface, outbox repository.OutboxInterface, ledger *AuditLedger, telemetry *TelemetryStore, assessor risk.Assessor, obs metrics.GateObserver) *Gatekeeper {
	if obs == nil {
		obs = metrics.NopGateObserver()
	}
	return &Gatekeeper{
		db:        db,
		flags:     flags,
		envs:      envs,
		statuses:  statuses,
		outbox:    outbox,
		ledger:    ledger,
		telemetry: telemetry,
		assessor:  assessor,
		obs:       obs,
		locks:     newKeyedMutex(),
	}
}

func (g *Gatekeeper) resolve(ctx context.Context, flagID, envID uint64) (*model.Flag, *model.Environment, error) {
	flag, err := g.flags.FindByID(ctx, flagID)
	if errors.Is(err, repository.ErrFlagNotFound) {
		return nil, nil, fmt.Errorf("flag %d: %w", flagID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load flag %d: %w", flagID, ErrPersistence)
	}
	env, err := g.envs.FindByID(ctx, envID)
	if errors.Is(err, repository.ErrEnvironmentNotFound) {
		return nil, nil, fmt.Errorf("environment %d: %w", envID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load environment %d: %w", envID, ErrPersistence)
	}
	return flag, env, nil
}

func describe(description, reason string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		description = noDescription
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		description += " Change reason: " + reason
	}
	return description
}

// assess measures the blast radius of name in env and asks the assessor for a fresh report.
func (g *Gatekeeper) assess(ctx context.Context, flagID uint64, name, envName, description string) (v1.RiskReport, error) {
	var hits int64
	if flagID != 0 {
		var err error
		hits, err = g.telemetry.BlastRadius(ctx, flagID, envName, 0)
		if err != nil {
			logger.Error("blast radius lookup failed", zap.Uint64("flag_id", flagID), zap.Error(err))
			return v1.RiskReport{}, fmt.Errorf("blast radius: %w", ErrPersistence)
		}
	}
	return g.score(ctx, hits, name, envName, description), nil
}

func (g *Gatekeeper) score(ctx context.Context, hits int64, name, envName, description string) v1.RiskReport {
	report := g.assessor.Assess(ctx, risk.Input{
		FeatureName:  name,
		Environment:  envName,
		Description:  description,
		TrafficCount: hits,
	})
	report.BlastRadiusHits = &hits
	return report
}

// Audit is the dry run: it reports the risk of toggling without touching state.
func (g *Gatekeeper) Audit(ctx context.Context, flagID, envID uint64, reason string) (v1.RiskReport, error) {
	flag, env, err := g.resolve(ctx, flagID, envID)
	if err != nil {
		return v1.RiskReport{}, err
	}
	return g.assess(ctx, flag.ID, flag.Name, env.Name, describe(flag.Description, reason))
}

// AuditByKey scores a change for a flag identified by key. Unknown keys are
// assessed with zero traffic under the key itself, and so is a known key whose
// traffic cannot be counted: the advisory report still goes out.
func (g *Gatekeeper) AuditByKey(ctx context.Context, key, envName, description string) (v1.RiskReport, error) {
	envName = normalizeEnv(envName)
	flag, err := g.flags.FindByKey(ctx, key)
	switch {
	case errors.Is(err, repository.ErrFlagNotFound):
		return g.assess(ctx, 0, key, envName, describe(description, ""))
	case err != nil:
		return v1.RiskReport{}, fmt.Errorf("load flag %s: %w", key, ErrPersistence)
	}
	if strings.TrimSpace(description) == "" {
		description = flag.Description
	}
	hits, err := g.telemetry.BlastRadius(ctx, flag.ID, envName, 0)
	if err != nil {
		logger.Warn("blast radius lookup failed, assessing without traffic", zap.String("key", key), zap.Error(err))
		hits = 0
	}
	return g.score(ctx, hits, flag.Name, envName, describe(description, "")), nil
}

// Toggle flips the state of one (flag, environment) pair, subject to the production risk gate.
func (g *Gatekeeper) Toggle(ctx context.Context, req ToggleRequest) (*ToggleResult, error) {
	flag, env, err := g.resolve(ctx, req.FlagID, req.EnvironmentID)
	if err != nil {
		return nil, err
	}

	var report *v1.RiskReport
	override := false
	if env.IsProduction() {
		r, err := g.assess(ctx, flag.ID, flag.Name, env.Name, describe(flag.Description, req.Reason))
		if err != nil {
			return nil, err
		}
		g.obs.ObserveRiskScore(r.RiskScore)
		report = &r
		if r.RiskScore >= BlockThreshold {
			if !req.Caller.IsManager() {
				return g.block(ctx, flag, env, req, r)
			}
			override = true
		}
	}

	unlock := g.locks.Lock(fmt.Sprintf("%d:%d", flag.ID, env.ID))
	defer unlock()

	var (
		status *model.FlagStatus
		action string
	)
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStatuses := g.statuses.WithTx(tx)
		s, err := txStatuses.LockForUpdate(ctx, flag.ID, env.ID)
		if err != nil {
			return err
		}
		if err := txStatuses.CompareAndSwap(ctx, s, !s.IsEnabled); err != nil {
			return err
		}
		action = model.ToggleAction(s.IsEnabled, override)

		if err := g.ledger.Append(ctx, tx, &model.AuditEntry{
			FlagID:     flag.ID,
			EnvName:    env.Name,
			Action:     action,
			Reason:     req.Reason,
			RiskReport: report,
			Operator:   req.Caller.Name,
		}); err != nil {
			return err
		}

		if err := enqueueState(ctx, g.outbox, tx, v1.FlagState{
			Key:     flag.Key,
			Env:     env.Name,
			Enabled: s.IsEnabled,
			Version: s.Version,
		}); err != nil {
			return err
		}
		status = s
		return nil
	})

	switch {
	case errors.Is(err, repository.ErrStatusNotFound):
		return nil, fmt.Errorf("status of flag %d in %s: %w", flag.ID, env.Name, ErrNotFound)
	case errors.Is(err, repository.ErrStaleStatus):
		g.obs.RecordDecision(env.Name, "conflict")
		return nil, fmt.Errorf("flag %s in %s changed concurrently: %w", flag.Key, env.Name, ErrConflict)
	case err != nil:
		g.obs.RecordDecision(env.Name, "error")
		logger.Error("toggle transaction failed",
			zap.String("key", flag.Key),
			zap.String("env", env.Name),
			zap.Error(err))
		return nil, fmt.Errorf("toggle %s in %s: %w", flag.Key, env.Name, ErrPersistence)
	}

	g.ledger.Invalidate(ctx)
	status.Environment = *env
	outcome := "toggled"
	if override {
		outcome = "override"
	}
	g.obs.RecordDecision(env.Name, outcome)
	logger.Info("flag toggled",
		zap.String("key", flag.Key),
		zap.String("env", env.Name),
		zap.Bool("enabled", status.IsEnabled),
		zap.String("action", action),
		zap.String("operator", req.Caller.Name))

	return &ToggleResult{
		Status: resp.NewStatusItem(*status),
		Action: action,
		Report: report,
	}, nil
}

func (g *Gatekeeper) block(ctx context.Context, flag *model.Flag, env *model.Environment, req ToggleRequest, report v1.RiskReport) (*ToggleResult, error) {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return g.ledger.Append(ctx, tx, &model.AuditEntry{
			FlagID:     flag.ID,
			EnvName:    env.Name,
			Action:     model.ActionAIBlock,
			Reason:     securityBlockPrefix + req.Reason,
			RiskReport: &report,
			Operator:   req.Caller.Name,
		})
	})
	if err != nil {
		g.obs.RecordDecision(env.Name, "error")
		logger.Error("failed to record blocked toggle", zap.String("key", flag.Key), zap.Error(err))
		return nil, fmt.Errorf("record block of %s: %w", flag.Key, ErrPersistence)
	}
	g.ledger.Invalidate(ctx)
	g.obs.RecordDecision(env.Name, "blocked")
	logger.Warn("toggle blocked by risk gate",
		zap.String("key", flag.Key),
		zap.String("env", env.Name),
		zap.Int("score", report.RiskScore),
		zap.String("operator", req.Caller.Name))

	return &ToggleResult{
		Action: model.ActionAIBlock,
		Report: &report,
		Block:  &BlockDecision{Message: report.Advice, Report: report},
	}, nil
}
