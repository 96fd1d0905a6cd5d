package slavie

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func signedRequest(
	t testing.TB,
	key ed25519.PrivateKey,
	body []byte,
) *http.Request {
	t.Helper()
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig := ed25519.Sign(key, append([]byte(timestamp), body...))

	req := httptest.NewRequest(http.MethodPost, apiDiscordInteractions, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(sig))
	req.Header.Set("X-Signature-Timestamp", timestamp)
	return req
}

func TestVerifyRequest(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	body := []byte(`{"type":1}`)

	t.Run(
		"valid", func(t *testing.T) {
			req := signedRequest(t, priv, body)
			require.True(t, verifyRequest(req, pub))

			// the body can still be read by the handler
			restored, readErr := io.ReadAll(req.Body)
			require.NoError(t, readErr)
			assert.Equal(t, body, restored)
		},
	)
	t.Run(
		"tampered body", func(t *testing.T) {
			req := signedRequest(t, priv, body)
			req.Body = io.NopCloser(bytes.NewReader([]byte(`{"type":2}`)))
			assert.False(t, verifyRequest(req, pub))
		},
	)
	t.Run(
		"wrong key", func(t *testing.T) {
			otherPub, _, keyErr := ed25519.GenerateKey(rand.Reader)
			require.NoError(t, keyErr)
			assert.False(t, verifyRequest(signedRequest(t, priv, body), otherPub))
		},
	)
	t.Run(
		"missing headers", func(t *testing.T) {
			req := signedRequest(t, priv, body)
			req.Header.Del("X-Signature-Timestamp")
			assert.False(t, verifyRequest(req, pub))

			req = signedRequest(t, priv, body)
			req.Header.Set("X-Signature-Ed25519", "not hex")
			assert.False(t, verifyRequest(req, pub))
		},
	)
	t.Run(
		"no key", func(t *testing.T) {
			assert.False(t, verifyRequest(signedRequest(t, priv, body), nil))
		},
	)
}

func TestWebhookServerPing(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	cfg := DefaultTestConfig(t)
	cfg.Discord.WebhookServer.Enabled = true
	cfg.Discord.WebhookServer.Listen = "127.0.0.1:0"
	cfg.Discord.WebhookServer.PublicKey = hex.EncodeToString(pub)

	s, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, s.webhookServer)
	s.webhookInteractionHandler = webhookReceiveHandler(context.Background(), s)

	body, err := json.Marshal(
		map[string]any{
			"id":             "1",
			"application_id": cfg.Discord.ApplicationID,
			"type":           discordgo.InteractionPing,
			"token":          "interaction-token",
		},
	)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.webhookServer.engine.ServeHTTP(w, signedRequest(t, priv, body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeJSON[discordgo.InteractionResponse](t, w)
	assert.Equal(t, discordgo.InteractionResponsePong, resp.Type)

	req := signedRequest(t, priv, body)
	req.Header.Set("X-Signature-Timestamp", "0")
	w = httptest.NewRecorder()
	s.webhookServer.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
