package publisher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	path    string
	fields  map[string]string
	photo   []byte
	isMulti bool
}

type recorder struct {
	mu    sync.Mutex
	calls []captured
}

func (r *recorder) all() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]captured(nil), r.calls...)
}

func newBotAPI(t *testing.T, status int, body string) (*Telegram, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{path: r.URL.Path, fields: map[string]string{}}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			c.isMulti = true
			require.NoError(t, r.ParseMultipartForm(1<<20))
			for k, v := range r.MultipartForm.Value {
				c.fields[k] = v[0]
			}
			f, _, err := r.FormFile("photo")
			require.NoError(t, err)
			c.photo, _ = io.ReadAll(f)
			f.Close()
		} else {
			require.NoError(t, r.ParseForm())
			for k := range r.PostForm {
				c.fields[k] = r.PostForm.Get(k)
			}
		}
		rec.mu.Lock()
		rec.calls = append(rec.calls, c)
		rec.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return NewTelegram(TelegramConfig{Token: "123:abc", ChatID: "@jobs", BaseURL: srv.URL}), rec
}

func writeImage(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vacancy.jpg")
	require.NoError(t, os.WriteFile(p, []byte("jpeg-bytes"), 0o644))
	return p
}

func TestDeliver_TextMessage(t *testing.T) {
	tg, rec := newBotAPI(t, http.StatusOK, `{"ok":true,"result":{}}`)

	ok := tg.Deliver(context.Background(), "<b>hi</b>", "")
	require.True(t, ok)
	calls := rec.all()
	require.Len(t, calls, 1)

	c := calls[0]
	assert.Equal(t, "/bot123:abc/sendMessage", c.path)
	assert.False(t, c.isMulti)
	assert.Equal(t, "@jobs", c.fields["chat_id"])
	assert.Equal(t, "<b>hi</b>", c.fields["text"])
	assert.Equal(t, "HTML", c.fields["parse_mode"])
	assert.Equal(t, "true", c.fields["disable_web_page_preview"])
}

func TestDeliver_PhotoWithCaption(t *testing.T) {
	tg, rec := newBotAPI(t, http.StatusOK, `{"ok":true}`)

	ok := tg.Deliver(context.Background(), "caption text", writeImage(t))
	require.True(t, ok)
	calls := rec.all()
	require.Len(t, calls, 1)

	c := calls[0]
	assert.Equal(t, "/bot123:abc/sendPhoto", c.path)
	assert.True(t, c.isMulti)
	assert.Equal(t, "caption text", c.fields["caption"])
	assert.Equal(t, "HTML", c.fields["parse_mode"])
	assert.Equal(t, []byte("jpeg-bytes"), c.photo)
}

func TestDeliver_MissingImageFallsBackToText(t *testing.T) {
	tg, rec := newBotAPI(t, http.StatusOK, `{"ok":true}`)

	require.True(t, tg.Deliver(context.Background(), "text", filepath.Join(t.TempDir(), "nope.jpg")))
	assert.Equal(t, "/bot123:abc/sendMessage", rec.all()[0].path)
}

func TestDeliver_LongMessageSentAsText(t *testing.T) {
	tg, rec := newBotAPI(t, http.StatusOK, `{"ok":true}`)

	long := strings.Repeat("ї", MaxCaptionLen+1)
	require.True(t, tg.Deliver(context.Background(), long, writeImage(t)))
	calls := rec.all()
	assert.Equal(t, "/bot123:abc/sendMessage", calls[0].path)
	assert.Equal(t, long, calls[0].fields["text"])
}

func TestDeliver_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"ok false", http.StatusOK, `{"ok":false,"description":"Bad Request: can't parse entities"}`},
		{"http error", http.StatusTooManyRequests, `{"ok":false,"description":"Too Many Requests"}`},
		{"garbage", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg, rec := newBotAPI(t, tt.status, tt.body)
			assert.False(t, tg.Deliver(context.Background(), "text", ""))
			assert.Len(t, rec.all(), 1, "delivery is never retried")
		})
	}
}

func TestDeliver_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	tg := NewTelegram(TelegramConfig{Token: "t", ChatID: "1", BaseURL: base})
	assert.False(t, tg.Deliver(context.Background(), "text", ""))
}
