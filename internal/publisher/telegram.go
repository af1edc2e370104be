package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultTelegramURL = "https://api.telegram.org"
	messageTimeout     = 15 * time.Second
	photoTimeout       = 30 * time.Second

	// MaxCaptionLen is the longest caption Telegram accepts on a photo.
	MaxCaptionLen = 1024
)

// TelegramConfig configures a Telegram client.
type TelegramConfig struct {
	Token   string
	ChatID  string
	BaseURL string
	Client  *http.Client
}

// Telegram delivers messages through the Bot API.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegram creates a Telegram client.
func NewTelegram(cfg TelegramConfig) *Telegram {
	t := &Telegram{
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.Client,
	}
	if t.baseURL == "" {
		t.baseURL = defaultTelegramURL
	}
	if t.client == nil {
		t.client = &http.Client{}
	}
	return t
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Deliver posts message to the chat, as a photo caption when imagePath points
// to an existing file and the message fits in a caption, otherwise as text.
// It reports success only for HTTP 200 with ok=true and never retries.
func (t *Telegram) Deliver(ctx context.Context, message, imagePath string) bool {
	var err error
	method := "sendMessage"

	if t.usePhoto(message, imagePath) {
		method = "sendPhoto"
		err = t.sendPhoto(ctx, message, imagePath)
	} else {
		err = t.sendMessage(ctx, message)
	}

	if err != nil {
		log.Warn().Err(err).Str("method", method).Msg("Telegram delivery failed")
		return false
	}
	log.Debug().Str("method", method).Msg("Telegram delivery succeeded")
	return true
}

func (t *Telegram) usePhoto(message, imagePath string) bool {
	if imagePath == "" {
		return false
	}
	info, err := os.Stat(imagePath)
	if err != nil || info.IsDir() {
		return false
	}
	if utf8.RuneCountInString(message) > MaxCaptionLen {
		log.Debug().Int("length", utf8.RuneCountInString(message)).Msg("Message too long for a caption, sending as text")
		return false
	}
	return true
}

func (t *Telegram) endpoint(method string) string {
	return t.baseURL + "/bot" + t.token + "/" + method
}

func (t *Telegram) sendMessage(ctx context.Context, message string) error {
	ctx, cancel := context.WithTimeout(ctx, messageTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", message)
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "failed to create sendMessage request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.do(req)
}

func (t *Telegram) sendPhoto(ctx context.Context, caption, imagePath string) error {
	ctx, cancel := context.WithTimeout(ctx, photoTimeout)
	defer cancel()

	f, err := os.Open(imagePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open image %s", imagePath)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := [][2]string{
		{"chat_id", t.chatID},
		{"caption", caption},
		{"parse_mode", "HTML"},
		{"disable_web_page_preview", "true"},
	}
	for _, kv := range fields {
		if err := writer.WriteField(kv[0], kv[1]); err != nil {
			return errors.Wrapf(err, "failed to write multipart field %s", kv[0])
		}
	}

	part, err := writer.CreateFormFile("photo", filepath.Base(imagePath))
	if err != nil {
		return errors.Wrap(err, "failed to create multipart file field")
	}
	if _, err := io.Copy(part, f); err != nil {
		return errors.Wrap(err, "failed to write image to multipart form")
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, "failed to close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendPhoto"), body)
	if err != nil {
		return errors.Wrap(err, "failed to create sendPhoto request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return t.do(req)
}

func (t *Telegram) do(req *http.Request) error {
	resp, err := t.client.Do(req)
	if err != nil {
		// the url carries the bot token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return errors.Wrap(err, "telegram request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read telegram response")
	}

	var parsed apiResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("telegram returned status %d: %s", resp.StatusCode, parsed.Description)
	}
	if !parsed.OK {
		return errors.Newf("telegram answered ok=false: %s", parsed.Description)
	}
	return nil
}
