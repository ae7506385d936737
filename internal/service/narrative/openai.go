package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"TrendCascade/internal/domain/models"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "You are a market analyst. Write one or two plain sentences describing the " +
	"closed candle window you are given. Do not give trading advice. Do not invent numbers."

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAINarrator asks a chat completion model for the insight text.
type OpenAINarrator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAINarrator(cfg OpenAIConfig, hc *http.Client) *OpenAINarrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if hc != nil {
		opts = append(opts, option.WithHTTPClient(hc))
	}
	client := openai.NewClient(opts...)
	return &OpenAINarrator{client: &client, model: cfg.Model, timeout: cfg.Timeout}
}

func (n *OpenAINarrator) Describe(ctx context.Context, rec models.TierResult) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	prompt, err := userPrompt(rec)
	if err != nil {
		return "", err
	}
	resp, err := n.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(n.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(0.2),
		MaxCompletionTokens: openai.Int(160),
	})
	if err != nil {
		return "", fmt.Errorf("%w: narrative completion: %w", models.ErrUpstreamUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: narrative completion returned no choices", models.ErrUpstreamUnavailable)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: narrative completion was empty", models.ErrUpstreamUnavailable)
	}
	return text, nil
}

func userPrompt(rec models.TierResult) (string, error) {
	if rec == nil || rec.Base() == nil {
		return "", errors.New("narrative: nil record")
	}
	payload, err := json.Marshal(struct {
		Summary string      `json:"summary"`
		Record  interface{} `json:"record"`
	}{Summary: Render(rec), Record: rec})
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return "Describe this " + string(rec.Base().Tier) + " window:\n" + string(payload), nil
}
