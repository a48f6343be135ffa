package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clupso/server/internal/config"
)

func testSender(t *testing.T, status int) (*Sender, *[]message) {
	t.Helper()
	var received []message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var msg message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		received = append(received, msg)

		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return NewSender(config.MailConfig{
		APIURL:    srv.URL,
		APIKey:    "test-key",
		FromEmail: "noreply@clupso.app",
		FromName:  "CLUPSO Vault",
	}), &received
}

func TestSendDeviceApprovalEmail(t *testing.T) {
	sender, received := testSender(t, http.StatusAccepted)

	err := sender.SendDeviceApprovalEmail(context.Background(), "a@x.com", "http://localhost:8080/api/auth/approve-device?token=abc", "Firefox", "Linux")
	require.NoError(t, err)

	require.Len(t, *received, 1)
	msg := (*received)[0]
	assert.Equal(t, "noreply@clupso.app", msg.From.Email)
	assert.Equal(t, []address{{Email: "a@x.com"}}, msg.To)
	assert.Contains(t, msg.Subject, "New Device Login Approval")
	assert.Contains(t, msg.HTML, "token=abc")
	assert.Contains(t, msg.HTML, "Firefox")
	assert.Contains(t, msg.HTML, "Linux")
}

func TestSendDeviceRevokedEmail(t *testing.T) {
	sender, received := testSender(t, http.StatusOK)

	err := sender.SendDeviceRevokedEmail(context.Background(), "a@x.com", "Chrome", "Windows")
	require.NoError(t, err)

	require.Len(t, *received, 1)
	msg := (*received)[0]
	assert.Contains(t, msg.Subject, "Device Removed")
	assert.Contains(t, msg.HTML, "Chrome")
}

func TestSend_ProviderError(t *testing.T) {
	sender, _ := testSender(t, http.StatusUnauthorized)

	err := sender.SendDeviceRevokedEmail(context.Background(), "a@x.com", "Chrome", "Windows")
	assert.Error(t, err)
}

func TestSend_MissingAPIKey(t *testing.T) {
	sender := NewSender(config.MailConfig{APIURL: "http://localhost:1", FromEmail: "x@y.z"})
	err := sender.SendDeviceApprovalEmail(context.Background(), "a@x.com", "link", "Firefox", "Linux")
	assert.Error(t, err, "sends without an API key must fail fast, not hit the network")
}
