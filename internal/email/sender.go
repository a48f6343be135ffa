package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clupso/server/internal/config"
)

// Sender delivers transactional mail through a MailerSend-compatible
// HTTP API. All sends are best-effort from the caller's perspective.
type Sender struct {
	cfg    config.MailConfig
	client *http.Client
}

// NewSender creates a new Sender
func NewSender(cfg config.MailConfig) *Sender {
	return &Sender{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type message struct {
	From    address   `json:"from"`
	To      []address `json:"to"`
	Subject string    `json:"subject"`
	HTML    string    `json:"html"`
}

// SendDeviceApprovalEmail sends the one-time approval link for a sign-in
// from an unrecognized device.
func (s *Sender) SendDeviceApprovalEmail(ctx context.Context, to, approvalLink, browser, os string) error {
	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #333;">
    <h2>CLUPSO Vault &mdash; Device Approval Required</h2>
    <p>A login attempt was made to your CLUPSO Vault account from a new device.
       For your security, approve this device before access is granted.</p>
    <p><strong>Browser:</strong> %s<br>
       <strong>Operating System:</strong> %s</p>
    <p>If this was you, click the link below to approve this device:</p>
    <p><a href="%s">Approve This Device</a></p>
    <ul>
      <li>This approval link expires in 10 minutes.</li>
      <li>If you did not attempt to log in, ignore this email and consider changing your password.</li>
      <li>Once approved, this device is trusted for 5 days.</li>
    </ul>
    <p style="color: #666; font-size: 13px;">This is an automated security notification. Please do not reply.</p>
  </body>
</html>`, browser, os, approvalLink)

	return s.send(ctx, to, "CLUPSO Vault - New Device Login Approval", html)
}

// SendDeviceRevokedEmail notifies the account that a trusted device was
// removed.
func (s *Sender) SendDeviceRevokedEmail(ctx context.Context, to, browser, os string) error {
	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #333;">
    <h2>CLUPSO Vault &mdash; Device Removed</h2>
    <p>A trusted device was removed from your CLUPSO Vault account.</p>
    <p><strong>Browser:</strong> %s<br>
       <strong>Operating System:</strong> %s</p>
    <p>If you did not remove this device, change your password immediately.</p>
    <p style="color: #666; font-size: 13px;">This is an automated security notification. Please do not reply.</p>
  </body>
</html>`, browser, os)

	return s.send(ctx, to, "CLUPSO Vault - Device Removed", html)
}

func (s *Sender) send(ctx context.Context, to, subject, html string) error {
	if s.cfg.APIKey == "" {
		return fmt.Errorf("email: MAIL_API_KEY is not configured")
	}

	payload, err := json.Marshal(message{
		From:    address{Email: s.cfg.FromEmail, Name: s.cfg.FromName},
		To:      []address{{Email: to}},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("email: failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("email: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("email: send failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("email: provider returned status %d", resp.StatusCode)
	}
	return nil
}
