package resend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
)

func testMessage() core.EmailMessage {
	return core.EmailMessage{
		Subject: "acme competitor brief — week 12",
		HTML:    "<p>changes</p>",
		Text:    "changes",
	}
}

func TestSendDeliversPerRecipient(t *testing.T) {
	t.Parallel()

	var payloads []sendPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/emails", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var p sendPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		payloads = append(payloads, p)
		writeOK(w)
	}))
	defer server.Close()

	client := New(Config{APIKey: "test-key", FromEmail: "brief@wayback.dev", BaseURL: server.URL}, server.Client(), zap.NewNop())

	result, err := client.Send(context.Background(), testMessage(), []string{"a@example.com", "b@example.com"})
	require.NoError(t, err)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, result.Successful)
	require.Empty(t, result.Failed)

	require.Len(t, payloads, 2)
	require.Equal(t, []string{"a@example.com"}, payloads[0].To)
	require.Equal(t, []string{"b@example.com"}, payloads[1].To)
	require.Equal(t, "brief@wayback.dev", payloads[0].From)
}

func TestSendPartialFailureIsNotAnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p sendPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		if p.To[0] == "bounce@example.com" {
			http.Error(w, "bounced", http.StatusUnprocessableEntity)
			return
		}
		writeOK(w)
	}))
	defer server.Close()

	client := New(Config{APIKey: "test-key", FromEmail: "brief@wayback.dev", BaseURL: server.URL}, server.Client(), zap.NewNop())

	result, err := client.Send(context.Background(), testMessage(), []string{"a@example.com", "bounce@example.com"})
	require.NoError(t, err)
	require.Equal(t, []string{"a@example.com"}, result.Successful)
	require.Equal(t, []string{"bounce@example.com"}, result.Failed)
}

func TestSendTotalFailureReturnsError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(Config{APIKey: "test-key", FromEmail: "brief@wayback.dev", BaseURL: server.URL}, server.Client(), zap.NewNop())

	result, err := client.Send(context.Background(), testMessage(), []string{"a@example.com", "b@example.com"})
	require.ErrorContains(t, err, "all 2 sends failed")
	require.Len(t, result.Failed, 2)
}

func TestSendNoRecipients(t *testing.T) {
	t.Parallel()

	client := New(Config{APIKey: "test-key", FromEmail: "brief@wayback.dev"}, http.DefaultClient, zap.NewNop())

	result, err := client.Send(context.Background(), testMessage(), nil)
	require.NoError(t, err)
	require.Empty(t, result.Successful)
	require.Empty(t, result.Failed)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"id":"email-id"}`))
}
