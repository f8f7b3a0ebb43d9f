package fireworks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"paperbot/internal/config"
	"paperbot/internal/model"
)

// Client talks to the Fireworks inference API, which speaks the OpenAI wire
// format, for both embeddings and chat completions. Transient failures are
// retried with exponential backoff; the final error is always a
// *model.ProviderError so callers can inspect status and retryability.
type Client struct {
	cfg config.Provider
	api *openai.Client

	// Logger is optional; if non-nil its Printf method will be used for
	// informational messages. When nil the standard library's log package
	// is used.
	Logger *log.Logger

	// backoffBase is the first retry delay; tests shrink it.
	backoffBase time.Duration
}

var _ model.Embedder = (*Client)(nil)
var _ model.Generator = (*Client)(nil)

func New(cfg config.Provider) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		cfg:         cfg,
		api:         openai.NewClientWithConfig(apiCfg),
		backoffBase: 2 * time.Second,
	}
}

// EmbedText embeds a single input. The returned vector is normalized to unit
// length so downstream Euclidean distances are cosine-equivalent.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds inputs in order. All returned vectors are unit-length.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.cfg.EmbedModel),
		Dimensions: c.cfg.Dimensions,
	}

	var resp openai.EmbeddingResponse
	err := c.withRetries(ctx, "embeddings", func() error {
		var callErr error
		resp, callErr = c.api.CreateEmbeddings(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, &model.ProviderError{
			Message: fmt.Sprintf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Data)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, &model.ProviderError{
				Message: fmt.Sprintf("embedding index %d out of range", item.Index),
			}
		}
		normalized, err := normalize(item.Embedding)
		if err != nil {
			return nil, &model.ProviderError{Message: err.Error()}
		}
		vectors[item.Index] = normalized
	}
	for i, v := range vectors {
		if v == nil {
			return nil, &model.ProviderError{
				Message: fmt.Sprintf("no embedding returned for input %d", i),
			}
		}
	}
	return vectors, nil
}

// Generate runs one chat completion and returns the assistant text.
func (c *Client) Generate(ctx context.Context, req model.GenerationRequest) (string, error) {
	apiReq := openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	}

	var resp openai.ChatCompletionResponse
	err := c.withRetries(ctx, "chat", func() error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, apiReq)
		return callErr
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &model.ProviderError{Message: "chat completion returned no choices"}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// withRetries runs call up to MaxRetries times, sleeping with exponential
// backoff between transient failures. Permanent failures return immediately.
func (c *Client) withRetries(ctx context.Context, op string, call func() error) error {
	attempts := c.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}

	backoff := c.backoffBase
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return wrapProviderError(lastErr)
		}
		if attempt == attempts {
			break
		}
		c.logf("%s attempt %d/%d failed (retryable): %v; backing off %v", op, attempt, attempts, lastErr, backoff)
		select {
		case <-ctx.Done():
			return wrapProviderError(ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return wrapProviderError(lastErr)
}

// wrapProviderError converts any error into a *model.ProviderError, keeping
// HTTP status when the underlying client exposes one.
func wrapProviderError(err error) error {
	if err == nil {
		return nil
	}
	var pe *model.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	out := &model.ProviderError{
		Message:   err.Error(),
		Retryable: isTransient(err),
		Cause:     err,
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		out.StatusCode = apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		out.StatusCode = reqErr.HTTPStatusCode
	}
	return out
}

// isTransient categorises provider errors. Anything that looks like a
// network hiccup, timeout, rate limit, or server-side failure is treated as
// transient; other errors are assumed permanent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return true
		}
		return false
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500 {
			return true
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "timeout") {
		return true
	}
	return false
}

// normalize scales a vector to unit length. A zero or empty vector cannot be
// normalized and is an error; it would otherwise poison distance ordering.
func normalize(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, errors.New("empty embedding vector")
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, errors.New("zero embedding vector")
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, nil
}

func (c *Client) logf(format string, args ...interface{}) {
	if c != nil && c.Logger != nil {
		c.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
