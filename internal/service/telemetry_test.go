package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"safeflag/internal/model"
	"safeflag/internal/repository"
)

func TestTelemetryStore_RoundTrip(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.createFlag(t, "hot", "")
	f.createFlag(t, "cold", "")
	f.createFlag(t, "unused", "")

	f.hits(t, "hot", "Production", 3)
	f.hits(t, "cold", "Staging", 1)

	stats, err := f.telemetry.Aggregate(ctx)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("stats = %+v, want two flags with hits", stats)
	}
	if stats[0].Key != "hot" || stats[0].Hits != 3 {
		t.Errorf("first = %+v, want {hot 3}", stats[0])
	}
	if stats[1].Key != "cold" || stats[1].Hits != 1 {
		t.Errorf("second = %+v, want {cold 1}", stats[1])
	}

	// a new hit must invalidate the cached aggregate
	f.hits(t, "cold", "Staging", 3)
	stats, _ = f.telemetry.Aggregate(ctx)
	if stats[0].Key != "cold" || stats[0].Hits != 4 {
		t.Errorf("aggregate not refreshed after hit: %+v", stats)
	}
}

func TestTelemetryStore_UnknownKey(t *testing.T) {
	f := newFixture(t, 1)
	if f.telemetry.RecordHit(context.Background(), "ghost", "Production") {
		t.Fatal("unknown key must be rejected")
	}
	var n int64
	f.db.Model(&model.FlagEvaluation{}).Count(&n)
	if n != 0 {
		t.Errorf("evaluations = %d, want 0", n)
	}
}

func TestTelemetryStore_DefaultsToProduction(t *testing.T) {
	f := newFixture(t, 1)
	f.createFlag(t, "defaulted", "")
	f.hits(t, "defaulted", "", 1)

	var eval model.FlagEvaluation
	if err := f.db.First(&eval).Error; err != nil {
		t.Fatalf("load evaluation: %v", err)
	}
	if eval.EnvironmentName != "Production" {
		t.Errorf("env = %q, want Production", eval.EnvironmentName)
	}
}

type brokenEvaluations struct {
	repository.EvaluationInterface
}

func (brokenEvaluations) Create(context.Context, *model.FlagEvaluation) error {
	return errors.New("disk full")
}

func TestTelemetryStore_StorageFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, 1)
	f.createFlag(t, "lossy", "")
	store := NewTelemetryStore(f.flags, brokenEvaluations{f.evals}, nil, 0, 0)

	if !store.RecordHit(context.Background(), "lossy", "Production") {
		t.Fatal("storage failure must not reject the observation")
	}
}

func TestTelemetryStore_BlastRadius(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	flagID := f.createFlag(t, "radius", "")

	base := f.now
	f.now = base.Add(-2 * time.Hour)
	f.hits(t, "radius", "Production", 2)
	f.hits(t, "radius", "Staging", 1)
	f.now = base.Add(-30 * time.Hour)
	f.hits(t, "radius", "Production", 5)
	f.now = base

	tests := []struct {
		name   string
		env    string
		window time.Duration
		want   int64
	}{
		{"default window all envs", "", 0, 3},
		{"default window production", "Production", 0, 2},
		{"env match is case insensitive", "production", 0, 2},
		{"wider window", "Production", 48 * time.Hour, 7},
		{"narrow window", "", time.Hour, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.telemetry.BlastRadius(ctx, flagID, tt.env, tt.window)
			if err != nil {
				t.Fatalf("blast radius: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
