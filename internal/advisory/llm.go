package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vigild/internal/logging"
	"github.com/fyrsmithlabs/vigild/internal/snapshot"
)

// Config for the LLM-backed advisor.
type Config struct {
	// BaseURL overrides the API endpoint (empty uses the provider default).
	BaseURL string
	// Model is the chat model to use.
	Model string
	// APIKey authenticates against the provider.
	APIKey string
	// Timeout bounds each Observe call.
	Timeout time.Duration
}

// LLMAdvisor asks a language model to comment on a snapshot. The prompt
// constrains the model to the snapshot content and asks for a conservative
// reading; its output is commentary for the audit trail only.
type LLMAdvisor struct {
	llm     llms.Model
	timeout time.Duration
	log     *logging.Logger
}

// NewLLMAdvisor constructs the advisor. Construction fails fast on an
// unusable configuration; Observe failures at runtime are soft.
func NewLLMAdvisor(cfg Config, log *logging.Logger) (*LLMAdvisor, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("advisory model cannot be empty")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("advisory timeout must be > 0")
	}
	if log == nil {
		log = logging.NewNop()
	}

	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize advisory llm: %w", err)
	}

	return &LLMAdvisor{
		llm:     llm,
		timeout: cfg.Timeout,
		log:     log.Named("advisory"),
	}, nil
}

// Observe implements Advisor with a bounded timeout. Any provider error,
// timeout, or empty completion yields ErrUnavailable.
func (a *LLMAdvisor) Observe(ctx context.Context, snap *snapshot.Snapshot) (string, error) {
	prompt, err := buildPrompt(snap)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := llms.GenerateFromSinglePrompt(ctx, a.llm, prompt)
	if err != nil {
		a.log.Warn(ctx, "advisory call failed",
			zap.String("snapshot_id", snap.ID),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return text, nil
}

// buildPrompt renders the fixed observer prompt around the snapshot JSON.
func buildPrompt(snap *snapshot.Snapshot) (string, error) {
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return fmt.Sprintf(observerPrompt, string(body)), nil
}

const observerPrompt = `You are an analytical safety observer embedded in a monitoring system.

Your role is to critically analyze a structured Analysis Snapshot generated
from motion, posture, and temporal event data.

IMPORTANT CONSTRAINTS:
- You do NOT see video.
- You do NOT control any system.
- You do NOT trigger actions.
- You ONLY provide a reasoned assessment based on the provided snapshot.
- You may be wrong and must signal uncertainty when appropriate.
- Avoid alarmism. Prefer conservative interpretations when data is ambiguous.

Your task:
1. Interpret what most likely happened in the real world.
2. Assess the associated risk level.
3. Note anything the deterministic rules might have missed.

Base your reasoning ONLY on the snapshot content. If information is
insufficient, say so.

Here is the Analysis Snapshot:

%s`
