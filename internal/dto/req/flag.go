package req

type CreateFlagReq struct {
	Name        string `json:"name" binding:"required,min=3,max=50"`
	Key         string `json:"key" binding:"required,flagkey"`
	Description string `json:"description" binding:"max=200"`
}

type FlagURI struct {
	ID uint64 `uri:"id" binding:"required,min=1"`
}

type AuditToggleReq struct {
	EnvironmentID uint64 `json:"environment_id" binding:"required"`
	Reason        string `json:"reason"`
}

type ToggleReq struct {
	EnvironmentID uint64 `json:"environment_id" binding:"required"`
	Reason        string `json:"reason" binding:"required,min=5"`
}

type EvaluateReq struct {
	Key string `uri:"key" binding:"required,flagkey"`
}

type LogsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

type AnalyzeRiskReq struct {
	FeatureKey  string `json:"feature_key" binding:"required"`
	Environment string `json:"environment"`
	Description string `json:"description" binding:"max=500"`
}

type CreateSDKKeyReq struct {
	AppID string `json:"app_id" binding:"required,max=64"`
	Env   string `json:"env" binding:"required,max=50"`
}
