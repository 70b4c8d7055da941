package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/smallbiznis/meterscan/internal/config"
)

// GeminiExtractor reads meters with a Gemini multimodal model. The client is
// shared; a GenerativeModel is built per call so no state is mutated across
// requests.
type GeminiExtractor struct {
	client  *genai.Client
	model   string
	prompts *config.PromptConfigHolder
	timeout time.Duration
}

func NewGeminiExtractor(client *genai.Client, model string, prompts *config.PromptConfigHolder, timeout time.Duration) *GeminiExtractor {
	return &GeminiExtractor{
		client:  client,
		model:   strings.TrimSpace(model),
		prompts: prompts,
		timeout: timeout,
	}
}

func (e *GeminiExtractor) Name() string { return "gemini" }

func (e *GeminiExtractor) Extract(ctx context.Context, req Request) (Result, error) {
	if len(req.Image) == 0 {
		return Result{}, ErrEmptyImage
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	prompts := e.prompts.Get()

	m := e.client.GenerativeModel(e.model)
	m.SetTemperature(0)
	m.SetCandidateCount(1)
	m.ResponseMIMEType = "text/plain"
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(prompts.System)},
	}

	mime := req.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}

	resp, err := m.GenerateContent(ctx,
		genai.Text(prompts.Instruction(req.MeterKind)),
		genai.Blob{MIMEType: mime, Data: req.Image},
	)
	if err != nil {
		return Result{}, fmt.Errorf("gemini generate: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text, Model: e.model}, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason.String())
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
