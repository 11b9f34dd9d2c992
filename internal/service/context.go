package service

import (
	"context"

	"safeflag/pkg/constraints"
)

type contextKey string

const (
	operatorKey contextKey = "operator"
	traceIDKey  contextKey = "trace_id"
)

// OperatorInfo defines the structured identity of a user
type OperatorInfo struct {
	UserID string
	Name   string
	Role   string
}

// WithOperator injects the operator info into the context
func WithOperator(ctx context.Context, op *OperatorInfo) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

// GetOperatorInfo retrieves the operator info from the context
func GetOperatorInfo(ctx context.Context) *OperatorInfo {
	val, ok := ctx.Value(operatorKey).(*OperatorInfo)
	if !ok {
		return nil
	}
	return val
}

// GetOperator returns the operator name, or "system" for background work.
func GetOperator(ctx context.Context) string {
	op := GetOperatorInfo(ctx)
	if op == nil {
		return "system"
	}
	return op.Name
}

// IsManager reports whether the operator in ctx holds the manager role.
func IsManager(ctx context.Context) bool {
	op := GetOperatorInfo(ctx)
	return op != nil && op.Role == constraints.RoleManager
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	val, _ := ctx.Value(traceIDKey).(string)
	return val
}

// CallerFromContext converts the request operator into an explicit Caller.
func CallerFromContext(ctx context.Context) Caller {
	op := GetOperatorInfo(ctx)
	if op == nil {
		return Caller{Name: "system"}
	}
	return Caller{ID: op.UserID, Name: op.Name, Role: op.Role}
}
