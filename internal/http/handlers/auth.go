package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clupso/server/internal/auth"
	"github.com/clupso/server/internal/middleware"
	"github.com/clupso/server/internal/model"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.Service
	ipLimiter   *middleware.RateLimiter
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	// IP rate limiter shared by signup, signin and password reset entry points
	return &AuthHandler{
		authService: authService,
		ipLimiter:   middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

// userResponse is the user object in API responses. Secret material
// (password hash, TOTP secret, reset token) is never included.
type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	TOTPEnabled bool   `json:"totpEnabled"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		TOTPEnabled: u.TOTPEnabled,
	}
}

// signupRequest is the request body for POST /api/auth/signup
type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
	DeviceID    string `json:"deviceId"`
	Browser     string `json:"browser"`
	OS          string `json:"os"`
}

// HandleSignup handles POST /api/auth/signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.ipLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	result, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
		DeviceID:    req.DeviceID,
		Browser:     req.Browser,
		OS:          req.OS,
	}, clientInfo(r, req.DeviceID, req.Browser, req.OS))
	if err != nil {
		respondAuthError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"token": result.Token,
		"user":  toUserResponse(result.User),
	})
}

// signinRequest is the request body for POST /api/auth/signin
type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totpCode"`
	DeviceID string `json:"deviceId"`
	Browser  string `json:"browser"`
	OS       string `json:"os"`
}

// HandleSignin handles POST /api/auth/signin
func (h *AuthHandler) HandleSignin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.ipLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	result, err := h.authService.SignIn(r.Context(), auth.SignInInput{
		Email:    req.Email,
		Password: req.Password,
		TOTPCode: req.TOTPCode,
		DeviceID: req.DeviceID,
		Browser:  req.Browser,
		OS:       req.OS,
	}, clientInfo(r, req.DeviceID, req.Browser, req.OS))
	if err != nil {
		respondAuthError(w, err)
		return
	}

	switch {
	case result.RequiresApproval:
		message := "This device is not recognized. An approval link has been sent to your email."
		if !result.ApprovalEmailSent {
			message = "This device is not recognized and the approval email could not be sent. Please try again later."
		}
		respondWithJSON(w, http.StatusForbidden, map[string]interface{}{
			"requiresApproval": true,
			"message":          message,
		})
	case result.RequireTOTP:
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"requireTotp": true,
		})
	default:
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"token": result.Token,
			"user":  toUserResponse(result.User),
		})
	}
}

// HandleGetUser handles GET /api/auth/user (protected)
func (h *AuthHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(*user))
}

// logoutRequest is the request body for POST /api/auth/logout
type logoutRequest struct {
	DeviceID string `json:"deviceId"`
	Browser  string `json:"browser"`
	OS       string `json:"os"`
}

// HandleLogout handles POST /api/auth/logout (protected). Sessions are
// stateless, so this only records the event; the token lapses on its own.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req logoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	h.authService.RecordLogout(r.Context(), user.ID, clientInfo(r, req.DeviceID, req.Browser, req.OS))

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// totpSetupResponse is the JSON response for POST /api/auth/totp/setup
type totpSetupResponse struct {
	Secret     string `json:"secret"`
	OtpauthURL string `json:"otpauthUrl"`
}

// HandleTOTPSetup handles POST /api/auth/totp/setup (protected)
func (h *AuthHandler) HandleTOTPSetup(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	secret, uri, err := h.authService.SetupTOTP(r.Context(), userID)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, totpSetupResponse{Secret: secret, OtpauthURL: uri})
}

// totpCodeRequest is the request body for TOTP verify/disable
type totpCodeRequest struct {
	Code string `json:"code"`
}

// HandleTOTPVerify handles POST /api/auth/totp/verify (protected)
func (h *AuthHandler) HandleTOTPVerify(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req totpCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		respondWithError(w, http.StatusBadRequest, "TOTP code is required")
		return
	}

	if err := h.authService.ConfirmTOTP(r.Context(), userID, req.Code, clientInfo(r, "", "", "")); err != nil {
		respondAuthError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "TOTP enabled",
		"totpEnabled": true,
	})
}

// HandleTOTPDisable handles POST /api/auth/totp/disable (protected)
func (h *AuthHandler) HandleTOTPDisable(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req totpCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		respondWithError(w, http.StatusBadRequest, "TOTP code is required to disable")
		return
	}

	if err := h.authService.DisableTOTP(r.Context(), userID, req.Code, clientInfo(r, "", "", "")); err != nil {
		respondAuthError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "TOTP disabled",
		"totpEnabled": false,
	})
}

// forgotEmailRequest is the request body for forgot-password/verify-email
type forgotEmailRequest struct {
	Email string `json:"email"`
}

// HandleForgotVerifyEmail handles POST /api/auth/forgot-password/verify-email
func (h *AuthHandler) HandleForgotVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req forgotEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return
	}

	if !h.ipLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if err := h.authService.BeginPasswordReset(r.Context(), req.Email); err != nil {
		respondAuthError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "account verified"})
}

// forgotTOTPRequest is the request body for forgot-password/verify-totp
type forgotTOTPRequest struct {
	Email    string `json:"email"`
	TOTPCode string `json:"totpCode"`
}

// HandleForgotVerifyTOTP handles POST /api/auth/forgot-password/verify-totp
func (h *AuthHandler) HandleForgotVerifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req forgotTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.TOTPCode) == "" {
		respondWithError(w, http.StatusBadRequest, "email and authenticator code are required")
		return
	}

	token, err := h.authService.VerifyResetSecondFactor(r.Context(), req.Email, req.TOTPCode)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"resetToken": token})
}

// resetPasswordRequest is the request body for forgot-password/reset
type resetPasswordRequest struct {
	ResetToken string `json:"resetToken"`
	Password   string `json:"password"`
}

// HandleForgotReset handles POST /api/auth/forgot-password/reset
func (h *AuthHandler) HandleForgotReset(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResetToken == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "reset token and new password are required")
		return
	}

	if err := h.authService.CompleteReset(r.Context(), req.ResetToken, req.Password, clientInfo(r, "", "", "")); err != nil {
		respondAuthError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "password reset successfully"})
}

const approveSuccessHTML = `<!DOCTYPE html>
<html>
  <head><title>Device Approved</title></head>
  <body style="font-family: Arial, sans-serif; text-align: center; padding: 60px;">
    <h1>&#9989; Device Approved</h1>
    <p>%s on %s is now trusted for 5 days.</p>
    <p>You can close this tab and sign in again on the new device.</p>
  </body>
</html>`

const approveFailedHTML = `<!DOCTYPE html>
<html>
  <head><title>Approval Failed</title></head>
  <body style="font-family: Arial, sans-serif; text-align: center; padding: 60px;">
    <h1>Approval link expired or invalid</h1>
    <p>Please try logging in again to receive a new link.</p>
  </body>
</html>`

// HandleApproveDevice handles GET /api/auth/approve-device?token=...
// Reached from the emailed link, so it renders HTML rather than JSON.
func (h *AuthHandler) HandleApproveDevice(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	trusted, err := h.authService.ApproveDevice(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrApprovalInvalid) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(approveFailedHTML))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<h1>Server Error</h1>"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf(approveSuccessHTML, trusted.Browser, trusted.OS)))
}

// trustedDeviceResponse is one entry of GET /api/auth/trusted-devices
type trustedDeviceResponse struct {
	DeviceID     string    `json:"deviceId"`
	Browser      string    `json:"browser"`
	OS           string    `json:"os"`
	AddedAt      time.Time `json:"addedAt"`
	TrustedUntil time.Time `json:"trustedUntil"`
}

// HandleListTrustedDevices handles GET /api/auth/trusted-devices (protected)
func (h *AuthHandler) HandleListTrustedDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	devices, err := h.authService.ListTrustedDevices(r.Context(), userID)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	out := make([]trustedDeviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, trustedDeviceResponse{
			DeviceID:     d.DeviceID,
			Browser:      d.Browser,
			OS:           d.OS,
			AddedAt:      d.AddedAt,
			TrustedUntil: d.TrustedUntil,
		})
	}

	respondWithJSON(w, http.StatusOK, out)
}

// revokeDeviceRequest is the request body for DELETE /api/auth/trusted-devices/{deviceId}
type revokeDeviceRequest struct {
	CurrentDeviceID string `json:"currentDeviceId"`
}

// HandleRevokeDevice handles DELETE /api/auth/trusted-devices/{deviceId} (protected)
func (h *AuthHandler) HandleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	deviceID := chi.URLParam(r, "deviceId")
	if deviceID == "" {
		respondWithError(w, http.StatusBadRequest, "device ID is required")
		return
	}

	var req revokeDeviceRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	wasCurrent, err := h.authService.RevokeDevice(r.Context(), userID, deviceID, req.CurrentDeviceID, clientInfo(r, deviceID, "", ""))
	if err != nil {
		respondAuthError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":          "device revoked successfully",
		"wasCurrentDevice": wasCurrent,
	})
}
