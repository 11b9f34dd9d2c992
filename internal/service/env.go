package service

import (
	"strings"

	"safeflag/pkg/constraints"
)

func sameEnv(a, b string) bool {
	return strings.EqualFold(a, b)
}

// normalizeEnv maps an empty environment name to Production.
func normalizeEnv(env string) string {
	env = strings.TrimSpace(env)
	if env == "" {
		return constraints.ProductionEnv
	}
	return env
}
