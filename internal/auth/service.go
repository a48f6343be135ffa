package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clupso/server/internal/model"
	"github.com/clupso/server/internal/repo"
)

const (
	deviceTrustWindow    = 5 * 24 * time.Hour
	deviceApprovalWindow = 10 * time.Minute
	resetTokenWindow     = 15 * time.Minute
)

// Mailer sends transactional mail. Both methods are best-effort: the
// service logs failures and proceeds.
type Mailer interface {
	SendDeviceApprovalEmail(ctx context.Context, email, approvalLink, browser, os string) error
	SendDeviceRevokedEmail(ctx context.Context, email, browser, os string) error
}

// ClientInfo carries request metadata recorded on activity events.
type ClientInfo struct {
	IPAddress string
	Browser   string
	OS        string
	DeviceID  string
}

// Service orchestrates registration, sign-in, device trust, TOTP and
// password reset.
type Service struct {
	users      repo.UserRepo
	devices    repo.DeviceRepo
	activity   repo.ActivityRepo
	tokens     *JWTService
	mailer     Mailer
	backendURL string

	// now is swappable in tests
	now func() time.Time
}

// NewService creates a new auth service
func NewService(users repo.UserRepo, devices repo.DeviceRepo, activity repo.ActivityRepo, tokens *JWTService, mailer Mailer, backendURL string) *Service {
	return &Service{
		users:      users,
		devices:    devices,
		activity:   activity,
		tokens:     tokens,
		mailer:     mailer,
		backendURL: strings.TrimRight(backendURL, "/"),
		now:        time.Now,
	}
}

// RegisterInput holds the signup request fields.
type RegisterInput struct {
	Email       string
	Password    string
	PhoneNumber string
	DeviceID    string
	Browser     string
	OS          string
}

// RegisterResult is returned on successful signup.
type RegisterResult struct {
	Token string
	User  model.User
}

// Register creates an account with the signup device as its sole trusted
// device and issues a session token.
func (s *Service) Register(ctx context.Context, in RegisterInput, client ClientInfo) (RegisterResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || in.Password == "" {
		return RegisterResult{}, validationf("email and password are required")
	}
	if in.DeviceID == "" {
		return RegisterResult{}, validationf("device ID is required")
	}
	if err := ValidatePassword(in.Password, in.Email); err != nil {
		return RegisterResult{}, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	user, err := s.users.Create(ctx, model.User{
		ID:           uuid.New(),
		Email:        in.Email,
		PasswordHash: hash,
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
	})
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return RegisterResult{}, ErrEmailTaken
		}
		return RegisterResult{}, err
	}

	now := s.now()
	_, err = s.devices.UpsertTrusted(ctx, model.TrustedDevice{
		ID:           uuid.New(),
		UserID:       user.ID,
		DeviceID:     in.DeviceID,
		Browser:      labelOr(in.Browser),
		OS:           labelOr(in.OS),
		AddedAt:      now,
		TrustedUntil: now.Add(deviceTrustWindow),
	})
	if err != nil {
		return RegisterResult{}, err
	}

	s.recordActivity(ctx, user.ID, "Account Created", "Account registered", client, true)

	token, err := s.tokens.SignSession(user.ID, now)
	if err != nil {
		return RegisterResult{}, err
	}

	return RegisterResult{Token: token, User: user}, nil
}

// SignInInput holds the sign-in request fields.
type SignInInput struct {
	Email    string
	Password string
	TOTPCode string
	DeviceID string
	Browser  string
	OS       string
}

// SignInResult is the outcome of a sign-in attempt. Exactly one of Token,
// RequireTOTP or RequiresApproval is meaningful.
type SignInResult struct {
	Token             string
	RequireTOTP       bool
	RequiresApproval  bool
	ApprovalEmailSent bool
	User              model.User
}

// SignIn runs the authentication state machine: password check, device
// trust check, optional TOTP check, then token issuance.
func (s *Service) SignIn(ctx context.Context, in SignInInput, client ClientInfo) (SignInResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || in.Password == "" {
		return SignInResult{}, validationf("email and password are required")
	}
	if in.DeviceID == "" {
		return SignInResult{}, validationf("device ID is required")
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Burn the same bcrypt work so unknown emails are not
			// distinguishable from wrong passwords by latency.
			DummyCompare(in.Password)
			return SignInResult{}, ErrInvalidCredentials
		}
		return SignInResult{}, err
	}

	if !ComparePassword(user.PasswordHash, in.Password) {
		s.recordActivity(ctx, user.ID, "Failed Login Attempt", "Wrong password", client, false)
		return SignInResult{}, ErrInvalidCredentials
	}

	now := s.now()

	_, err = s.devices.FindActiveTrusted(ctx, user.ID, in.DeviceID, now)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return SignInResult{}, err
		}
		return s.deferToApproval(ctx, user, in, client, now)
	}

	if user.TOTPEnabled {
		if in.TOTPCode == "" {
			return SignInResult{RequireTOTP: true}, nil
		}
		if !VerifyTOTP(user.TOTPSecret, in.TOTPCode, now) {
			s.recordActivity(ctx, user.ID, "Failed 2FA Verification", "Wrong 2FA code", client, false)
			return SignInResult{}, ErrInvalidTOTP
		}
	}

	token, err := s.tokens.SignSession(user.ID, now)
	if err != nil {
		return SignInResult{}, err
	}

	s.recordActivity(ctx, user.ID, "Login Successful", "Signed in", client, true)

	return SignInResult{Token: token, User: user}, nil
}

// deferToApproval installs a pending device for the account and emails an
// approval link. No session token is issued.
func (s *Service) deferToApproval(ctx context.Context, user model.User, in SignInInput, client ClientInfo, now time.Time) (SignInResult, error) {
	approvalToken, err := NewOpaqueToken()
	if err != nil {
		return SignInResult{}, err
	}

	_, err = s.devices.ReplacePending(ctx, model.PendingDevice{
		ID:        uuid.New(),
		UserID:    user.ID,
		DeviceID:  in.DeviceID,
		Token:     approvalToken,
		Browser:   labelOr(in.Browser),
		OS:        labelOr(in.OS),
		ExpiresAt: now.Add(deviceApprovalWindow),
	})
	if err != nil {
		return SignInResult{}, err
	}

	s.recordActivity(ctx, user.ID, "Device Approval Requested", "Sign-in from unrecognized device", client, true)

	sent := true
	link := fmt.Sprintf("%s/api/auth/approve-device?token=%s", s.backendURL, approvalToken)
	if err := s.mailer.SendDeviceApprovalEmail(ctx, user.Email, link, labelOr(in.Browser), labelOr(in.OS)); err != nil {
		log.Printf("device approval email to %s failed: %v", maskEmail(user.Email), err)
		sent = false
	}

	return SignInResult{RequiresApproval: true, ApprovalEmailSent: sent}, nil
}

// ApproveDevice consumes a one-time approval token and promotes the
// pending device to trusted with a fresh 5-day window. Replaying a token
// fails because consumption deletes the pending row.
func (s *Service) ApproveDevice(ctx context.Context, approvalToken string) (model.TrustedDevice, error) {
	if approvalToken == "" {
		return model.TrustedDevice{}, ErrApprovalInvalid
	}

	now := s.now()
	pending, err := s.devices.ConsumePendingByToken(ctx, approvalToken, now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.TrustedDevice{}, ErrApprovalInvalid
		}
		return model.TrustedDevice{}, err
	}

	trusted, err := s.devices.UpsertTrusted(ctx, model.TrustedDevice{
		ID:           uuid.New(),
		UserID:       pending.UserID,
		DeviceID:     pending.DeviceID,
		Browser:      pending.Browser,
		OS:           pending.OS,
		AddedAt:      now,
		TrustedUntil: now.Add(deviceTrustWindow),
	})
	if err != nil {
		return model.TrustedDevice{}, err
	}

	s.recordActivity(ctx, pending.UserID, "Device Approved", fmt.Sprintf("%s on %s approved", pending.Browser, pending.OS), ClientInfo{DeviceID: pending.DeviceID}, true)

	return trusted, nil
}

// ListTrustedDevices returns the account's unexpired trusted devices.
func (s *Service) ListTrustedDevices(ctx context.Context, userID uuid.UUID) ([]model.TrustedDevice, error) {
	return s.devices.ListActiveTrusted(ctx, userID, s.now())
}

// RevokeDevice removes a trusted device by fingerprint. The returned flag
// tells the client whether it revoked the device it is calling from, so it
// can discard its own session; the server does not invalidate outstanding
// tokens (they lapse on their own short expiry).
func (s *Service) RevokeDevice(ctx context.Context, userID uuid.UUID, deviceID, currentDeviceID string, client ClientInfo) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, ErrAccountNotFound
		}
		return false, err
	}

	revoked, err := s.devices.DeleteTrusted(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, ErrDeviceNotFound
		}
		return false, err
	}

	if err := s.mailer.SendDeviceRevokedEmail(ctx, user.Email, revoked.Browser, revoked.OS); err != nil {
		log.Printf("device revoked email to %s failed: %v", maskEmail(user.Email), err)
	}

	s.recordActivity(ctx, userID, "Device Revoked", fmt.Sprintf("%s on %s revoked", revoked.Browser, revoked.OS), client, true)

	return currentDeviceID != "" && revoked.DeviceID == currentDeviceID, nil
}

// SetupTOTP generates and stores a fresh secret without enabling the
// second factor. The secret stays inert until ConfirmTOTP succeeds.
func (s *Service) SetupTOTP(ctx context.Context, userID uuid.UUID) (secret, uri string, err error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", "", ErrAccountNotFound
		}
		return "", "", err
	}

	secret, err = GenerateTOTPSecret()
	if err != nil {
		return "", "", err
	}
	if err := s.users.SetTOTPSecret(ctx, userID, secret); err != nil {
		return "", "", err
	}

	return secret, ProvisionURI(secret, user.Email), nil
}

// ConfirmTOTP verifies a code against the stored secret and enables the
// second factor.
func (s *Service) ConfirmTOTP(ctx context.Context, userID uuid.UUID, code string, client ClientInfo) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	if user.TOTPSecret == "" {
		return ErrTOTPNotSetup
	}
	if !VerifyTOTP(user.TOTPSecret, code, s.now()) {
		return ErrInvalidTOTP
	}
	if err := s.users.EnableTOTP(ctx, userID); err != nil {
		return err
	}

	s.recordActivity(ctx, userID, "2FA Enabled", "TOTP second factor enabled", client, true)
	return nil
}

// DisableTOTP requires a valid current code before clearing the secret.
func (s *Service) DisableTOTP(ctx context.Context, userID uuid.UUID, code string, client ClientInfo) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	if !user.TOTPEnabled {
		return ErrTOTPNotEnabled
	}
	if !VerifyTOTP(user.TOTPSecret, code, s.now()) {
		return ErrInvalidTOTP
	}
	if err := s.users.DisableTOTP(ctx, userID); err != nil {
		return err
	}

	s.recordActivity(ctx, userID, "2FA Disabled", "TOTP second factor disabled", client, true)
	return nil
}

// BeginPasswordReset checks that the account exists and has a second
// factor to prove ownership with. Nothing is issued yet.
func (s *Service) BeginPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	if !user.TOTPEnabled {
		return validationf("password reset requires two-factor authentication to be enabled")
	}
	return nil
}

// VerifyResetSecondFactor checks the TOTP code and, on success, mints a
// reset token. Only the token's hash is persisted; the raw value is
// returned to the caller exactly once.
func (s *Service) VerifyResetSecondFactor(ctx context.Context, email, code string) (string, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrAccountNotFound
		}
		return "", err
	}
	if !user.TOTPEnabled {
		return "", validationf("password reset requires two-factor authentication to be enabled")
	}
	if !VerifyTOTP(user.TOTPSecret, code, s.now()) {
		return "", ErrInvalidTOTP
	}

	token, err := NewOpaqueToken()
	if err != nil {
		return "", err
	}
	if err := s.users.SetResetToken(ctx, user.ID, HashToken(token), s.now().Add(resetTokenWindow)); err != nil {
		return "", err
	}

	return token, nil
}

// CompleteReset consumes a reset token and replaces the password.
func (s *Service) CompleteReset(ctx context.Context, token, newPassword string, client ClientInfo) error {
	if token == "" {
		return ErrResetTokenInvalid
	}
	if err := ValidateResetPassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.FindByResetTokenHash(ctx, HashToken(token), s.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.ResetPassword(ctx, user.ID, hash); err != nil {
		return err
	}

	s.recordActivity(ctx, user.ID, "Password Changed", "Password reset completed", client, true)
	return nil
}

// RecordLogout notes a logout on the audit trail. Sessions are stateless,
// so there is nothing to invalidate server-side.
func (s *Service) RecordLogout(ctx context.Context, userID uuid.UUID, client ClientInfo) {
	s.recordActivity(ctx, userID, "Logout", "Signed out", client, true)
}

// RecordEvent appends an arbitrary audit-trail entry (vault mutations use
// this). Best-effort, like every activity write.
func (s *Service) RecordEvent(ctx context.Context, userID uuid.UUID, action, details string, client ClientInfo) {
	s.recordActivity(ctx, userID, action, details, client, true)
}

// GetUser loads the account for an authenticated request.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, ErrAccountNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

// ListActivity returns the newest audit-trail entries for the account.
func (s *Service) ListActivity(ctx context.Context, userID uuid.UUID, limit int) ([]model.ActivityRecord, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return s.activity.ListRecent(ctx, userID, limit)
}

// recordActivity appends to the audit trail. Failures are logged and
// swallowed: logging must never fail the operation it describes.
func (s *Service) recordActivity(ctx context.Context, userID uuid.UUID, action, details string, client ClientInfo, success bool) {
	err := s.activity.Record(ctx, model.ActivityRecord{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Details:   details,
		IPAddress: client.IPAddress,
		Browser:   client.Browser,
		OS:        client.OS,
		DeviceID:  client.DeviceID,
		Success:   success,
	})
	if err != nil {
		log.Printf("activity record %q for user %s failed: %v", action, userID, err)
	}
}

func labelOr(label string) string {
	if label == "" {
		return "Unknown"
	}
	return label
}

// maskEmail hides most of the local part for log lines.
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 1 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
