package notify

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbudget/internal/core"
)

func TestTelegramSendPostsMessage(t *testing.T) {
	var (
		gotPath string
		gotBody sendMessageRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(srv.URL+"/", "123:abc", "-100200")
	require.NoError(t, tg.Send(context.Background(), "salom"))

	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, sendMessageRequest{ChatID: "-100200", Text: "salom", ParseMode: "HTML"}, gotBody)
}

func TestTelegramNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewTelegram(srv.URL, "tok", "1").Send(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotificationFailed)
	assert.Contains(t, err.Error(), "400")
}

func TestTelegramTransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	err := NewTelegram(addr, "secret-token", "1").Send(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotificationFailed)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestNotifyProfileSendsProfileMessage(t *testing.T) {
	var text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		text = req.Text
	}))
	defer srv.Close()

	p := core.Profile{ID: "p1", Name: "Ali", Email: "ali@example.com", CreatedAt: time.Date(2024, 3, 5, 12, 0, 0, 0, time.Local)}
	require.NoError(t, NewTelegram(srv.URL, "tok", "1").NotifyProfile(context.Background(), p))
	assert.Equal(t, ProfileMessage(p), text)
}

func TestProfileMessage(t *testing.T) {
	p := core.Profile{
		Name:      "Ali <Vali>",
		Email:     "ali@example.com",
		CreatedAt: time.Date(2024, 3, 5, 12, 0, 0, 0, time.Local),
	}

	msg := ProfileMessage(p)

	assert.True(t, strings.HasPrefix(msg, "🆕"))
	assert.Contains(t, msg, "Ali &lt;Vali&gt;")
	assert.Contains(t, msg, "ali@example.com")
	assert.Contains(t, msg, "📱 <b>Telefon:</b> -")
	assert.Contains(t, msg, "05.03.2024")
}

func TestDialProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	assert.True(t, DialProbe{Addr: addr, Timeout: time.Second}.Online(context.Background()))

	require.NoError(t, ln.Close())
	assert.False(t, DialProbe{Addr: addr, Timeout: time.Second}.Online(context.Background()))
}
