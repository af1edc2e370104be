// Package summarizer condenses listing descriptions through the OpenAI Responses API.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"vacancy-watch/poster/internal/retry"
)

// Fallback texts published in place of a summary.
const (
	FallbackNoDescription = "Опис вакансії недоступний."
	FallbackServiceError  = "Короткий опис недоступний через помилку сервісу."
)

const (
	defaultModel           = "gpt-5-mini"
	defaultBaseURL         = "https://api.openai.com/v1"
	defaultTimeout         = 30 * time.Second
	defaultMaxInputRunes   = 2000
	defaultMaxOutputTokens = 1000
	maxErrorBody           = 512
)

// ServiceError means the language model could not produce a summary after all retries.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("summarizer %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// StatusError is a non-200 answer from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.Code, e.Body)
}

type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

var errEmptyOutput = errors.New("response contained no output text")

// Config configures a Gateway. Zero values fall back to defaults.
type Config struct {
	APIKey          string
	Model           string
	BaseURL         string
	Timeout         time.Duration // per request
	MaxInputRunes   int
	MaxOutputTokens int
	Client          *http.Client
	Retry           *retry.Policy
}

// Gateway talks to the language model.
type Gateway struct {
	apiKey          string
	model           string
	baseURL         string
	maxInputRunes   int
	maxOutputTokens int
	client          *http.Client
	policy          retry.Policy
}

// DefaultPolicy is three attempts, one second apart, growing by half each time.
func DefaultPolicy() retry.Policy {
	return retry.Policy{
		Name:        "summarizer",
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Factor:      1.5,
		Retryable:   IsRetryable,
	}
}

// New creates a Gateway from cfg.
func New(cfg Config) *Gateway {
	g := &Gateway{
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		maxInputRunes:   cfg.MaxInputRunes,
		maxOutputTokens: cfg.MaxOutputTokens,
		client:          cfg.Client,
		policy:          DefaultPolicy(),
	}
	if g.model == "" {
		g.model = defaultModel
	}
	if g.baseURL == "" {
		g.baseURL = defaultBaseURL
	}
	if g.maxInputRunes <= 0 {
		g.maxInputRunes = defaultMaxInputRunes
	}
	if g.maxOutputTokens <= 0 {
		g.maxOutputTokens = defaultMaxOutputTokens
	}
	if g.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		g.client = &http.Client{Timeout: timeout}
	}
	if cfg.Retry != nil {
		g.policy = *cfg.Retry
		if g.policy.Retryable == nil {
			g.policy.Retryable = IsRetryable
		}
	}
	return g
}

// Summarize returns a short Ukrainian summary of text. Empty input yields an
// empty summary without calling the API. Failures are reported as *ServiceError;
// a cancelled ctx is returned as is.
func (g *Gateway) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	return g.complete(ctx, "summarize", summaryPrompt(truncateRunes(text, g.maxInputRunes)))
}

// Tips generates n short career tips for junior candidates in the given locale.
func (g *Gateway) Tips(ctx context.Context, n int, locale string) (string, error) {
	if n <= 0 {
		n = 3
	}
	return g.complete(ctx, "tips", tipsPrompt(n, locale))
}

func (g *Gateway) complete(ctx context.Context, op, prompt string) (string, error) {
	var out string
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		text, err := g.createResponse(ctx, prompt)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		log.Warn().Err(err).Str("op", op).Str("model", g.model).Msg("Language model request failed")
		return "", &ServiceError{Op: op, Err: err}
	}
	return out, nil
}

type responsesRequest struct {
	Model           string `json:"model"`
	Input           string `json:"input"`
	MaxOutputTokens int    `json:"max_output_tokens,omitempty"`
}

type responsesResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

func (r responsesResponse) text() string {
	if s := strings.TrimSpace(r.OutputText); s != "" {
		return s
	}
	var b strings.Builder
	for _, item := range r.Output {
		for _, c := range item.Content {
			if c.Type == "output_text" {
				b.WriteString(c.Text)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func (g *Gateway) createResponse(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(responsesRequest{
		Model:           g.model,
		Input:           prompt,
		MaxOutputTokens: g.maxOutputTokens,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &transportError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &transportError{err: err}
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(respBody)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return "", &StatusError{Code: resp.StatusCode, Body: snippet}
	}

	var parsed responsesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal response")
	}
	text := parsed.text()
	if text == "" {
		return "", errEmptyOutput
	}
	return text, nil
}

// IsRetryable reports whether err is a transport failure, a rate limit, a
// server error or an empty answer.
func IsRetryable(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return errors.Is(err, errEmptyOutput)
}

func summaryPrompt(text string) string {
	return `Стисни опис вакансії до короткого повідомлення для Telegram-каналу.
Формат:
- короткий вступ з назвою посади;
- ключові вимоги;
- що пропонують;
- не більше 700 символів та не менше 400 символів;
- не прописуй зарплату в описі.

ВАЖЛИВО: заверши відповідь повним реченням, не обривай слово на середині.

Текст опису:
` + text
}

func tipsPrompt(n int, locale string) string {
	lang := "українською мовою"
	if locale != "" && locale != "uk" {
		lang = "мовою з кодом " + locale
	}
	return fmt.Sprintf(`Напиши %d коротких практичних порад для початківців в IT, які шукають першу роботу.
Пиши %s, кожна порада з нового рядка, пронумерована, до 200 символів.
Без вступу та висновку, без HTML-розмітки.`, n, lang)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
