// Package availability decides whether a listing page is still live.
package availability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Reason classifies the outcome of a check.
type Reason string

const (
	ReasonOKHead       Reason = "ok_head"
	ReasonOK           Reason = "ok"
	ReasonPhrase       Reason = "phrase"
	ReasonRequestError Reason = "request_error"
)

// StatusReason is the reason code for an inactive HTTP status, e.g. "status_404".
func StatusReason(code int) Reason {
	return Reason("status_" + strconv.Itoa(code))
}

// Result is the verdict for a single link. Status is zero when no response was received.
type Result struct {
	Active bool
	Reason Reason
	Status int
	Phrase string
}

// Code is the reason recorded for a deleted listing, e.g. "status_404" or
// "phrase:вакансію закрито".
func (r Result) Code() string {
	if r.Reason == ReasonPhrase && r.Phrase != "" {
		return string(r.Reason) + ":" + r.Phrase
	}
	return string(r.Reason)
}

const (
	defaultHeadTimeout = 6 * time.Second
	defaultGetTimeout  = 8 * time.Second
	defaultSnippetLen  = 600
	maxBodyRead        = 64 << 10
	defaultUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
)

// Config tunes a Checker. Zero values fall back to defaults.
type Config struct {
	Phrases          []string
	HeadTimeout      time.Duration
	GetTimeout       time.Duration
	SnippetLen       int
	UserAgent        string
	FallbackStatuses []int // HEAD statuses answered with a full GET; default 405 and 501
	ProbesPerSecond  float64
	Client           *http.Client
}

// Checker probes listing pages.
type Checker struct {
	client      *http.Client
	phrases     []string
	headTimeout time.Duration
	getTimeout  time.Duration
	snippetLen  int
	userAgent   string
	fallback    map[int]bool
	limiter     *rate.Limiter
}

// NewChecker builds a Checker from cfg.
func NewChecker(cfg Config) *Checker {
	c := &Checker{
		client:      cfg.Client,
		headTimeout: cfg.HeadTimeout,
		getTimeout:  cfg.GetTimeout,
		snippetLen:  cfg.SnippetLen,
		userAgent:   cfg.UserAgent,
		fallback:    make(map[int]bool),
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.headTimeout <= 0 {
		c.headTimeout = defaultHeadTimeout
	}
	if c.getTimeout <= 0 {
		c.getTimeout = defaultGetTimeout
	}
	if c.snippetLen <= 0 {
		c.snippetLen = defaultSnippetLen
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}

	phrases := cfg.Phrases
	if len(phrases) == 0 {
		phrases = AllPhrases()
	}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			c.phrases = append(c.phrases, p)
		}
	}

	statuses := cfg.FallbackStatuses
	if len(statuses) == 0 {
		statuses = []int{http.StatusMethodNotAllowed, http.StatusNotImplemented}
	}
	for _, s := range statuses {
		c.fallback[s] = true
	}

	if cfg.ProbesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.ProbesPerSecond), 1)
	}
	return c
}

// Check probes link with HEAD and falls back to GET when HEAD is unsupported
// or fails at the network level. Network failure of the fallback counts as inactive.
func (c *Checker) Check(ctx context.Context, link string) Result {
	logger := log.With().Str("link", link).Logger()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{Reason: ReasonRequestError}
		}
	}

	status, err := c.head(ctx, link)
	switch {
	case err != nil:
		logger.Debug().Err(err).Msg("HEAD failed, falling back to GET")
	case status >= 200 && status < 300:
		logger.Debug().Int("status", status).Msg("Listing active (HEAD)")
		return Result{Active: true, Reason: ReasonOKHead, Status: status}
	case c.fallback[status]:
		logger.Debug().Int("status", status).Msg("HEAD unsupported, falling back to GET")
	default:
		return c.classify(status, "")
	}

	status, snippet, err := c.get(ctx, link)
	if err != nil {
		logger.Warn().Err(err).Msg("Availability request failed")
		return Result{Reason: ReasonRequestError}
	}
	logger.Debug().Int("status", status).Msg("Listing probed (GET)")
	return c.classify(status, snippet)
}

func (c *Checker) classify(status int, snippet string) Result {
	if status == http.StatusNotFound || status == http.StatusGone {
		return Result{Reason: StatusReason(status), Status: status}
	}
	for _, p := range c.phrases {
		if strings.Contains(snippet, p) {
			return Result{Reason: ReasonPhrase, Status: status, Phrase: p}
		}
	}
	if status >= 200 && status < 300 {
		return Result{Active: true, Reason: ReasonOK, Status: status}
	}
	return Result{Reason: StatusReason(status), Status: status}
}

func (c *Checker) head(ctx context.Context, link string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.headTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodHead, link)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Checker) get(ctx context.Context, link string) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.getTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, link)
	if err != nil {
		return 0, "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, strings.ToLower(truncateRunes(string(body), c.snippetLen)), nil
}

func (c *Checker) newRequest(ctx context.Context, method, link string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
