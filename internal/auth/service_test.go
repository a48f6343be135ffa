package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clupso/server/internal/model"
	"github.com/clupso/server/internal/repo"
)

// ---- in-memory fakes ----

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user model.User) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == strings.ToLower(user.Email) {
			return model.User{}, repo.ErrConflict
		}
	}
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = time.Now()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (f *fakeUserRepo) update(id uuid.UUID, fn func(*model.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	fn(&u)
	f.users[id] = u
	return nil
}

func (f *fakeUserRepo) SetTOTPSecret(_ context.Context, id uuid.UUID, secret string) error {
	return f.update(id, func(u *model.User) {
		u.TOTPSecret = secret
		u.TOTPEnabled = false
	})
}

func (f *fakeUserRepo) EnableTOTP(_ context.Context, id uuid.UUID) error {
	return f.update(id, func(u *model.User) { u.TOTPEnabled = true })
}

func (f *fakeUserRepo) DisableTOTP(_ context.Context, id uuid.UUID) error {
	return f.update(id, func(u *model.User) {
		u.TOTPSecret = ""
		u.TOTPEnabled = false
	})
}

func (f *fakeUserRepo) SetResetToken(_ context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	return f.update(id, func(u *model.User) {
		u.ResetTokenHash = &tokenHash
		u.ResetExpiresAt = &expiresAt
	})
}

func (f *fakeUserRepo) FindByResetTokenHash(_ context.Context, tokenHash string, now time.Time) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash &&
			u.ResetExpiresAt != nil && u.ResetExpiresAt.After(now) {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (f *fakeUserRepo) ResetPassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	return f.update(id, func(u *model.User) {
		u.PasswordHash = passwordHash
		u.ResetTokenHash = nil
		u.ResetExpiresAt = nil
	})
}

type deviceKey struct {
	userID   uuid.UUID
	deviceID string
}

type fakeDeviceRepo struct {
	mu      sync.Mutex
	trusted map[deviceKey]model.TrustedDevice
	pending map[uuid.UUID]model.PendingDevice
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{
		trusted: make(map[deviceKey]model.TrustedDevice),
		pending: make(map[uuid.UUID]model.PendingDevice),
	}
}

func (f *fakeDeviceRepo) UpsertTrusted(_ context.Context, d model.TrustedDevice) (model.TrustedDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := deviceKey{d.UserID, d.DeviceID}
	if prev, ok := f.trusted[key]; ok {
		d.ID = prev.ID
	}
	f.trusted[key] = d
	return d, nil
}

func (f *fakeDeviceRepo) FindActiveTrusted(_ context.Context, userID uuid.UUID, deviceID string, now time.Time) (model.TrustedDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.trusted[deviceKey{userID, deviceID}]
	if !ok || !d.TrustedUntil.After(now) {
		return model.TrustedDevice{}, repo.ErrNotFound
	}
	return d, nil
}

func (f *fakeDeviceRepo) ListActiveTrusted(_ context.Context, userID uuid.UUID, now time.Time) ([]model.TrustedDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.TrustedDevice{}
	for key, d := range f.trusted {
		if key.userID == userID && d.TrustedUntil.After(now) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDeviceRepo) DeleteTrusted(_ context.Context, userID uuid.UUID, deviceID string) (model.TrustedDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := deviceKey{userID, deviceID}
	d, ok := f.trusted[key]
	if !ok {
		return model.TrustedDevice{}, repo.ErrNotFound
	}
	delete(f.trusted, key)
	return d, nil
}

func (f *fakeDeviceRepo) ReplacePending(_ context.Context, p model.PendingDevice) (model.PendingDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.CreatedAt = time.Now()
	f.pending[p.UserID] = p
	return p, nil
}

func (f *fakeDeviceRepo) ConsumePendingByToken(_ context.Context, token string, now time.Time) (model.PendingDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for userID, p := range f.pending {
		if p.Token == token && p.ExpiresAt.After(now) {
			delete(f.pending, userID)
			return p, nil
		}
	}
	return model.PendingDevice{}, repo.ErrNotFound
}

type fakeActivityRepo struct {
	mu      sync.Mutex
	records []model.ActivityRecord
}

func (f *fakeActivityRepo) Record(_ context.Context, rec model.ActivityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.CreatedAt = time.Now()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeActivityRepo) ListRecent(_ context.Context, userID uuid.UUID, limit int) ([]model.ActivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.ActivityRecord{}
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		if f.records[i].UserID == userID {
			out = append(out, f.records[i])
		}
	}
	return out, nil
}

func (f *fakeActivityRepo) actions(userID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for _, rec := range f.records {
		if rec.UserID == userID {
			out = append(out, rec.Action)
		}
	}
	return out
}

type fakeMailer struct {
	mu            sync.Mutex
	fail          bool
	approvalLinks []string
	revokedSends  int
}

func (f *fakeMailer) SendDeviceApprovalEmail(_ context.Context, _, approvalLink, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("provider down")
	}
	f.approvalLinks = append(f.approvalLinks, approvalLink)
	return nil
}

func (f *fakeMailer) SendDeviceRevokedEmail(_ context.Context, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("provider down")
	}
	f.revokedSends++
	return nil
}

func (f *fakeMailer) lastApprovalToken(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.approvalLinks, "no approval email was sent")
	link := f.approvalLinks[len(f.approvalLinks)-1]
	idx := strings.Index(link, "token=")
	require.GreaterOrEqual(t, idx, 0, "approval link must carry a token: %s", link)
	return link[idx+len("token="):]
}

// ---- harness ----

type testEnv struct {
	svc      *Service
	users    *fakeUserRepo
	devices  *fakeDeviceRepo
	activity *fakeActivityRepo
	mailer   *fakeMailer
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:    newFakeUserRepo(),
		devices:  newFakeDeviceRepo(),
		activity: &fakeActivityRepo{},
		mailer:   &fakeMailer{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	env.svc = NewService(env.users, env.devices, env.activity, NewJWTService("test-secret-at-least-32-characters-long"), env.mailer, "http://localhost:8080")
	env.svc.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *testEnv) register(t *testing.T, email, deviceID string) RegisterResult {
	t.Helper()
	result, err := e.svc.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: "Sample!@#1",
		DeviceID: deviceID,
		Browser:  "Firefox",
		OS:       "Linux",
	}, ClientInfo{IPAddress: "203.0.113.7"})
	require.NoError(t, err)
	return result
}

func (e *testEnv) signIn(t *testing.T, email, password, totpCode, deviceID string) (SignInResult, error) {
	t.Helper()
	return e.svc.SignIn(context.Background(), SignInInput{
		Email:    email,
		Password: password,
		TOTPCode: totpCode,
		DeviceID: deviceID,
		Browser:  "Firefox",
		OS:       "Linux",
	}, ClientInfo{IPAddress: "203.0.113.7"})
}

// enableTOTP provisions and confirms a secret for the account.
func (e *testEnv) enableTOTP(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	secret, _, err := e.svc.SetupTOTP(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, e.svc.ConfirmTOTP(context.Background(), userID, totpCodeAt(t, secret, e.now), ClientInfo{}))
	return secret
}

// ---- tests ----

func TestRegister_CreatesSoleTrustedDevice(t *testing.T) {
	env := newTestEnv(t)
	result := env.register(t, "a@x.com", "D1")

	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "a@x.com", result.User.Email)

	devices, err := env.svc.ListTrustedDevices(context.Background(), result.User.ID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "D1", devices[0].DeviceID)
	assert.Equal(t, env.now.Add(deviceTrustWindow), devices[0].TrustedUntil)

	assert.Contains(t, env.activity.actions(result.User.ID), "Account Created")
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "D1")

	_, err := env.svc.Register(context.Background(), RegisterInput{
		Email:    "A@X.COM",
		Password: "Sample!@#1",
		DeviceID: "D2",
	}, ClientInfo{})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_RejectsPolicyViolations(t *testing.T) {
	env := newTestEnv(t)

	var vErr *ValidationError
	_, err := env.svc.Register(context.Background(), RegisterInput{
		Email:    "timmy@x.com",
		Password: "tim!@#1",
		DeviceID: "D1",
	}, ClientInfo{})
	require.Error(t, err)
	assert.ErrorAs(t, err, &vErr)

	_, err = env.svc.Register(context.Background(), RegisterInput{
		Email:    "a@x.com",
		Password: "Sample!@#1",
	}, ClientInfo{})
	require.Error(t, err)
	assert.ErrorAs(t, err, &vErr, "missing device fingerprint is a validation error")
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "a@x.com", "D1").User

	_, err := env.signIn(t, "a@x.com", "wrong!@#1", "", "D1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, env.activity.actions(user.ID), "Failed Login Attempt")

	// Unknown emails fail identically.
	_, err = env.signIn(t, "nobody@x.com", "Sample!@#1", "", "D1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignIn_TrustedDevice(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "D1")

	result, err := env.signIn(t, "a@x.com", "Sample!@#1", "", "D1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.False(t, result.RequireTOTP)
	assert.False(t, result.RequiresApproval)
}

func TestSignIn_UnknownDeviceNeverIssuesToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "D1")

	result, err := env.signIn(t, "a@x.com", "Sample!@#1", "", "D2")
	require.NoError(t, err)
	assert.True(t, result.RequiresApproval)
	assert.True(t, result.ApprovalEmailSent)
	assert.Empty(t, result.Token)

	firstToken := env.mailer.lastApprovalToken(t)

	// A second attempt replaces the pending device; exactly one remains
	// and the earlier approval token no longer works.
	result, err = env.signIn(t, "a@x.com", "Sample!@#1", "", "D2")
	require.NoError(t, err)
	assert.True(t, result.RequiresApproval)
	assert.Len(t, env.devices.pending, 1)

	secondToken := env.mailer.lastApprovalToken(t)
	assert.NotEqual(t, firstToken, secondToken)

	_, err = env.svc.ApproveDevice(context.Background(), firstToken)
	assert.ErrorIs(t, err, ErrApprovalInvalid, "superseded approval token must be rejected")
}

func TestSignIn_ExpiredTrustRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "D1")

	env.advance(deviceTrustWindow + time.Minute)

	result, err := env.signIn(t, "a@x.com", "Sample!@#1", "", "D1")
	require.NoError(t, err)
	assert.True(t, result.RequiresApproval, "expired trust must not pass the device check")
	assert.Empty(t, result.Token)
}

func TestSignIn_ApprovalEmailFailureStillDefers(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "D1")
	env.mailer.fail = true

	result, err := env.signIn(t, "a@x.com", "Sample!@#1", "", "D2")
	require.NoError(t, err, "email failure must not fail the state transition")
	assert.True(t, result.RequiresApproval)
	assert.False(t, result.ApprovalEmailSent)
	assert.Len(t, env.devices.pending, 1)
}

func TestApproveDevice_PromotesAndReplayFails(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "a@x.com", "D1").User

	_, err := env.signIn(t, "a@x.com", "Sample!@#1", "", "D2")
	require.NoError(t, err)
	token := env.mailer.lastApprovalToken(t)

	trusted, err := env.svc.ApproveDevice(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "D2", trusted.DeviceID)
	assert.Equal(t, env.now.Add(deviceTrustWindow), trusted.TrustedUntil)

	devices, err := env.svc.ListTrustedDevices(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	// The token was consumed; replay fails.
	_, err = env.svc.ApproveDevice(context.Background(), token)
	assert.ErrorIs(t, err, ErrApprovalInvalid)

	// The approved device now signs in directly.
	result, err := env.signIn(t, "a@x.com", "Sample!@#1", "", "D2")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestApproveDevice_ExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "D1")

	_, err := env.signIn(t, "a@x.com", "Sample!@#1", "", "D2")
	require.NoError(t, err)
	token := env.mailer.lastApprovalToken(t)

	env.advance(deviceApprovalWindow + time.Second)

	_, err = env.svc.ApproveDevice(context.Background(), token)
	assert.ErrorIs(t, err, ErrApprovalInvalid)
}

func TestApproveDevice_SameFingerprintTwiceKeepsOneEntry(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "a@x.com", "D1").User

	for i := 0; i < 2; i++ {
		_, err := env.signIn(t, "a@x.com", "Sample!@#1", "", "D2")
		require.NoError(t, err)
		token := env.mailer.lastApprovalToken(t)
		_, err = env.svc.ApproveDevice(context.Background(), token)
		require.NoError(t, err)
		// Trust D2 expires so the next sign-in defers again.
		env.advance(deviceTrustWindow + time.Minute)
		// Re-trust D1 so the account still has a usable device.
		_, err = env.devices.UpsertTrusted(context.Background(), model.TrustedDevice{
			ID: uuid.New(), UserID: user.ID, DeviceID: "D1",
			AddedAt: env.now, TrustedUntil: env.now.Add(deviceTrustWindow),
		})
		require.NoError(t, err)
	}

	// The fingerprint appears once regardless of how often it was approved.
	count := 0
	for key := range env.devices.trusted {
		if key.userID == user.ID && key.deviceID == "D2" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSignIn_TOTPGate(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "a@x.com", "D1").User
	secret := env.enableTOTP(t, user.ID)

	// Valid password but no code: checkpoint, not a rejection, no token.
	result, err := env.signIn(t, "a@x.com", "Sample!@#1", "", "D1")
	require.NoError(t, err)
	assert.True(t, result.RequireTOTP)
	assert.Empty(t, result.Token)

	// Wrong code: rejected, recorded on the audit trail.
	_, err = env.signIn(t, "a@x.com", "Sample!@#1", "000000", "D1")
	assert.ErrorIs(t, err, ErrInvalidTOTP)
	assert.Contains(t, env.activity.actions(user.ID), "Failed 2FA Verification")

	// Correct code: token issued.
	result, err = env.signIn(t, "a@x.com", "Sample!@#1", totpCodeAt(t, secret, env.now), "D1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestTOTPLifecycle(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "a@x.com", "D1").User

	// Confirming before setup fails.
	err := env.svc.ConfirmTOTP(context.Background(), user.ID, "123456", ClientInfo{})
	assert.ErrorIs(t, err, ErrTOTPNotSetup)

	secret, uri, err := env.svc.SetupTOTP(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Contains(t, uri, "otpauth://totp/")

	// The secret is inert until confirmed: sign-in does not demand a code.
	result, err := env.signIn(t, "a@x.com", "Sample!@#1", "", "D1")
	require.NoError(t, err)
	assert.False(t, result.RequireTOTP)
	assert.NotEmpty(t, result.Token)

	require.NoError(t, env.svc.ConfirmTOTP(context.Background(), user.ID, totpCodeAt(t, secret, env.now), ClientInfo{}))

	// Disabling needs a valid current code.
	err = env.svc.DisableTOTP(context.Background(), user.ID, "000000", ClientInfo{})
	assert.ErrorIs(t, err, ErrInvalidTOTP)
	require.NoError(t, env.svc.DisableTOTP(context.Background(), user.ID, totpCodeAt(t, secret, env.now), ClientInfo{}))

	err = env.svc.DisableTOTP(context.Background(), user.ID, "000000", ClientInfo{})
	assert.ErrorIs(t, err, ErrTOTPNotEnabled)
}

func TestRevokeDevice(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "a@x.com", "D1").User

	_, err := env.signIn(t, "a@x.com", "Sample!@#1", "", "D2")
	require.NoError(t, err)
	_, err = env.svc.ApproveDevice(context.Background(), env.mailer.lastApprovalToken(t))
	require.NoError(t, err)

	// Revoking another device does not flag the caller's own session.
	wasCurrent, err := env.svc.RevokeDevice(context.Background(), user.ID, "D2", "D1", ClientInfo{})
	require.NoError(t, err)
	assert.False(t, wasCurrent)
	assert.Equal(t, 1, env.mailer.revokedSends)

	devices, err := env.svc.ListTrustedDevices(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "D1", devices[0].DeviceID)

	// Revoking the device the caller is using is reported so the client
	// can force its own logout.
	wasCurrent, err = env.svc.RevokeDevice(context.Background(), user.ID, "D1", "D1", ClientInfo{})
	require.NoError(t, err)
	assert.True(t, wasCurrent)

	_, err = env.svc.RevokeDevice(context.Background(), user.ID, "D1", "D1", ClientInfo{})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "a@x.com", "D1").User

	// Without a second factor there is no secure reset path.
	err := env.svc.BeginPasswordReset(context.Background(), "a@x.com")
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	assert.ErrorIs(t, env.svc.BeginPasswordReset(context.Background(), "nobody@x.com"), ErrAccountNotFound)

	secret := env.enableTOTP(t, user.ID)
	require.NoError(t, env.svc.BeginPasswordReset(context.Background(), "a@x.com"))

	_, err = env.svc.VerifyResetSecondFactor(context.Background(), "a@x.com", "000000")
	assert.ErrorIs(t, err, ErrInvalidTOTP)

	token, err := env.svc.VerifyResetSecondFactor(context.Background(), "a@x.com", totpCodeAt(t, secret, env.now))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// A bogus token fails even though it is well-formed.
	bogus, err := NewOpaqueToken()
	require.NoError(t, err)
	assert.ErrorIs(t, env.svc.CompleteReset(context.Background(), bogus, "NewPass!@#1", ClientInfo{}), ErrResetTokenInvalid)

	// Reset policy is looser than signup but still has a floor.
	assert.Error(t, env.svc.CompleteReset(context.Background(), token, "12345", ClientInfo{}))

	require.NoError(t, env.svc.CompleteReset(context.Background(), token, "NewPass!@#1", ClientInfo{}))

	// The token was consumed.
	assert.ErrorIs(t, env.svc.CompleteReset(context.Background(), token, "Another!@#1", ClientInfo{}), ErrResetTokenInvalid)

	// Old password no longer works; the new one does (with the TOTP code).
	_, err = env.signIn(t, "a@x.com", "Sample!@#1", "", "D1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	result, err := env.signIn(t, "a@x.com", "NewPass!@#1", totpCodeAt(t, secret, env.now), "D1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)

	assert.Contains(t, env.activity.actions(user.ID), "Password Changed")
}

func TestPasswordReset_TokenExpiry(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "a@x.com", "D1").User
	secret := env.enableTOTP(t, user.ID)

	token, err := env.svc.VerifyResetSecondFactor(context.Background(), "a@x.com", totpCodeAt(t, secret, env.now))
	require.NoError(t, err)

	env.advance(resetTokenWindow + time.Second)

	err = env.svc.CompleteReset(context.Background(), token, "NewPass!@#1", ClientInfo{})
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestEndToEndDeviceJourney(t *testing.T) {
	env := newTestEnv(t)

	// Signup from D1 issues a token immediately.
	signup := env.register(t, "a@x.com", "D1")
	assert.NotEmpty(t, signup.Token)

	// Trusted-device sign-in succeeds with no approval step.
	result, err := env.signIn(t, "a@x.com", "Sample!@#1", "", "D1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.False(t, result.RequiresApproval)

	// A second device is deferred to approval, with no token.
	result, err = env.signIn(t, "a@x.com", "Sample!@#1", "", "D2")
	require.NoError(t, err)
	assert.True(t, result.RequiresApproval)
	assert.Empty(t, result.Token)

	// Approving via the emailed token adds D2.
	_, err = env.svc.ApproveDevice(context.Background(), env.mailer.lastApprovalToken(t))
	require.NoError(t, err)

	// D2 now signs in directly.
	result, err = env.signIn(t, "a@x.com", "Sample!@#1", "", "D2")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}
