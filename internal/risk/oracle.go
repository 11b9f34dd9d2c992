package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"safeflag/internal/config"
	"safeflag/internal/metrics"
	v1 "safeflag/pkg/api/v1"
	"safeflag/pkg/logger"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

const reportSchema = `{
  "type": "object",
  "required": ["risk_score", "advice", "risk_level"],
  "properties": {
    "risk_score": {"type": "integer", "minimum": 1, "maximum": 10},
    "advice": {"type": "string"},
    "risk_level": {"type": "string", "pattern": "(?i)^(low|medium|high)$"}
  }
}`

var errNoChoices = errors.New("no choices in completion")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type oracleReport struct {
	RiskScore float64 `json:"risk_score"`
	Advice    string  `json:"advice"`
	RiskLevel string  `json:"risk_level"`
}

// OracleAssessor asks an OpenAI-compatible chat completions endpoint for a score.
type OracleAssessor struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	timeout     time.Duration
	policy      config.RiskPolicy
	client      *http.Client
	schema      *jsonschema.Schema
	obs         metrics.GateObserver
}

func NewOracleAssessor(cfg config.RiskConfig, obs metrics.GateObserver) *OracleAssessor {
	if obs == nil {
		obs = metrics.NopGateObserver()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OracleAssessor{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		policy:      cfg.Policy,
		client:      &http.Client{},
		schema:      mustCompileSchema(),
		obs:         obs,
	}
}

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(reportSchema))
	if err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("risk_report.json", doc); err != nil {
		panic(err)
	}
	sch, err := c.Compile("risk_report.json")
	if err != nil {
		panic(err)
	}
	return sch
}

func (o *OracleAssessor) Assess(ctx context.Context, in Input) v1.RiskReport {
	if o.apiKey == "" {
		return o.failSafe(in, "risk oracle credential missing", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	content, err := o.complete(ctx, buildPrompt(in, o.policy))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return o.failSafe(in, "risk oracle timed out", err)
		}
		return o.failSafe(in, "risk oracle unavailable", err)
	}

	report, err := o.parse(content)
	if err != nil {
		return o.failSafe(in, "risk oracle returned a malformed report", err)
	}

	o.obs.RecordAssessment(ProviderOracle, "ok")
	logger.Info("risk assessed",
		zap.String("feature", in.FeatureName),
		zap.String("env", in.Environment),
		zap.Int("score", report.RiskScore))
	return report
}

func (o *OracleAssessor) complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:          o.model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    o.temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	res, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("oracle status %d", res.StatusCode)
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errNoChoices
	}
	return completion.Choices[0].Message.Content, nil
}

func (o *OracleAssessor) parse(content string) (v1.RiskReport, error) {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(content))
	if err != nil {
		return v1.RiskReport{}, err
	}
	if err := o.schema.Validate(inst); err != nil {
		return v1.RiskReport{}, err
	}

	var raw oracleReport
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return v1.RiskReport{}, err
	}
	return v1.RiskReport{
		RiskScore: int(raw.RiskScore),
		RiskLevel: strings.ToLower(raw.RiskLevel),
		Advice:    raw.Advice,
	}, nil
}

func (o *OracleAssessor) failSafe(in Input, reason string, cause error) v1.RiskReport {
	o.obs.RecordAssessment(ProviderOracle, "failsafe")
	logger.Warn("risk oracle failed, applying fail-safe report",
		zap.String("feature", in.FeatureName),
		zap.String("reason", reason),
		zap.Error(cause))
	return FailSafe(reason)
}
