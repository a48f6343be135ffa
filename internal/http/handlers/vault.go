package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clupso/server/internal/auth"
	"github.com/clupso/server/internal/middleware"
	"github.com/clupso/server/internal/model"
	"github.com/clupso/server/internal/repo"
)

// VaultHandler handles directory, credential and activity endpoints.
// The stored credential password is opaque: clients encrypt before upload
// and the server passes it through untouched.
type VaultHandler struct {
	vault       repo.VaultRepo
	authService *auth.Service
}

// NewVaultHandler creates a new vault handler
func NewVaultHandler(vault repo.VaultRepo, authService *auth.Service) *VaultHandler {
	return &VaultHandler{vault: vault, authService: authService}
}

func respondVaultError(w http.ResponseWriter, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "not found")
		return
	}
	respondAuthError(w, err)
}

// directoryResponse is the directory object in API responses
type directoryResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toDirectoryResponse(d model.Directory) directoryResponse {
	return directoryResponse{
		ID:          d.ID.String(),
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		CreatedAt:   d.CreatedAt,
	}
}

// directoryRequest is the request body for directory create/update
type directoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// HandleListDirectories handles GET /api/vault/directories
func (h *VaultHandler) HandleListDirectories(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	dirs, err := h.vault.ListDirectories(r.Context(), userID)
	if err != nil {
		respondVaultError(w, err)
		return
	}

	out := make([]directoryResponse, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, toDirectoryResponse(d))
	}
	respondWithJSON(w, http.StatusOK, out)
}

// HandleCreateDirectory handles POST /api/vault/directories
func (h *VaultHandler) HandleCreateDirectory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req directoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondWithError(w, http.StatusBadRequest, "directory name is required")
		return
	}

	dir, err := h.vault.CreateDirectory(r.Context(), model.Directory{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Icon:        req.Icon,
	})
	if err != nil {
		respondVaultError(w, err)
		return
	}

	h.authService.RecordEvent(r.Context(), userID, "Directory Created", "Created directory "+dir.Name, clientInfo(r, "", "", ""))

	respondWithJSON(w, http.StatusCreated, toDirectoryResponse(dir))
}

// HandleUpdateDirectory handles PUT /api/vault/directories/{id}
func (h *VaultHandler) HandleUpdateDirectory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid directory ID")
		return
	}

	var req directoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondWithError(w, http.StatusBadRequest, "directory name is required")
		return
	}

	dir, err := h.vault.UpdateDirectory(r.Context(), model.Directory{
		ID:          id,
		UserID:      userID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Icon:        req.Icon,
	})
	if err != nil {
		respondVaultError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, toDirectoryResponse(dir))
}

// HandleDeleteDirectory handles DELETE /api/vault/directories/{id}.
// Credentials filed under the directory are deleted with it.
func (h *VaultHandler) HandleDeleteDirectory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid directory ID")
		return
	}

	if err := h.vault.DeleteDirectory(r.Context(), userID, id); err != nil {
		respondVaultError(w, err)
		return
	}

	h.authService.RecordEvent(r.Context(), userID, "Directory Deleted", "Deleted directory and its credentials", clientInfo(r, "", "", ""))

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "directory deleted"})
}

// credentialResponse is the credential object in API responses
type credentialResponse struct {
	ID          string    `json:"id"`
	DirectoryID *string   `json:"directoryId"`
	Title       string    `json:"title"`
	Username    string    `json:"username"`
	Password    string    `json:"password"`
	URL         string    `json:"url"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toCredentialResponse(c model.Credential) credentialResponse {
	resp := credentialResponse{
		ID:        c.ID.String(),
		Title:     c.Name,
		Username:  c.Username,
		Password:  c.EncryptedPassword,
		URL:       c.URL,
		Notes:     c.Notes,
		CreatedAt: c.CreatedAt,
	}
	if c.DirectoryID != nil {
		s := c.DirectoryID.String()
		resp.DirectoryID = &s
	}
	return resp
}

// credentialRequest is the request body for credential create/update
type credentialRequest struct {
	DirectoryID string `json:"directoryId"`
	Title       string `json:"title"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	URL         string `json:"url"`
	Notes       string `json:"notes"`
}

func (req *credentialRequest) toModel(userID uuid.UUID, id uuid.UUID) (model.Credential, error) {
	cred := model.Credential{
		ID:                id,
		UserID:            userID,
		Name:              strings.TrimSpace(req.Title),
		Username:          req.Username,
		EncryptedPassword: req.Password,
		URL:               req.URL,
		Notes:             req.Notes,
	}
	if req.DirectoryID != "" {
		dirID, err := uuid.Parse(req.DirectoryID)
		if err != nil {
			return model.Credential{}, err
		}
		cred.DirectoryID = &dirID
	}
	return cred, nil
}

// HandleListCredentials handles GET /api/vault/credentials?directoryId=...
func (h *VaultHandler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dirFilter *uuid.UUID
	if raw := r.URL.Query().Get("directoryId"); raw != "" {
		dirID, err := uuid.Parse(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid directory ID")
			return
		}
		dirFilter = &dirID
	}

	creds, err := h.vault.ListCredentials(r.Context(), userID, dirFilter)
	if err != nil {
		respondVaultError(w, err)
		return
	}

	out := make([]credentialResponse, 0, len(creds))
	for _, c := range creds {
		out = append(out, toCredentialResponse(c))
	}
	respondWithJSON(w, http.StatusOK, out)
}

// HandleCreateCredential handles POST /api/vault/credentials
func (h *VaultHandler) HandleCreateCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondWithError(w, http.StatusBadRequest, "credential title is required")
		return
	}

	cred, err := req.toModel(userID, uuid.New())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid directory ID")
		return
	}

	created, err := h.vault.CreateCredential(r.Context(), cred)
	if err != nil {
		respondVaultError(w, err)
		return
	}

	h.authService.RecordEvent(r.Context(), userID, "Credential Added", "Added credential "+created.Name, clientInfo(r, "", "", ""))

	respondWithJSON(w, http.StatusCreated, toCredentialResponse(created))
}

// HandleUpdateCredential handles PUT /api/vault/credentials/{id}
func (h *VaultHandler) HandleUpdateCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid credential ID")
		return
	}

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondWithError(w, http.StatusBadRequest, "credential title is required")
		return
	}

	cred, err := req.toModel(userID, id)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid directory ID")
		return
	}

	updated, err := h.vault.UpdateCredential(r.Context(), cred)
	if err != nil {
		respondVaultError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, toCredentialResponse(updated))
}

// HandleDeleteCredential handles DELETE /api/vault/credentials/{id}
func (h *VaultHandler) HandleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid credential ID")
		return
	}

	if err := h.vault.DeleteCredential(r.Context(), userID, id); err != nil {
		respondVaultError(w, err)
		return
	}

	h.authService.RecordEvent(r.Context(), userID, "Credential Deleted", "Deleted credential", clientInfo(r, "", "", ""))

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "credential deleted"})
}

// activityResponse is one entry of GET /api/vault/activity
type activityResponse struct {
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ipAddress"`
	Browser   string    `json:"browser"`
	OS        string    `json:"os"`
	DeviceID  string    `json:"deviceId"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"createdAt"`
}

// HandleListActivity handles GET /api/vault/activity
func (h *VaultHandler) HandleListActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	records, err := h.authService.ListActivity(r.Context(), userID, 50)
	if err != nil {
		respondVaultError(w, err)
		return
	}

	out := make([]activityResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, activityResponse{
			Action:    rec.Action,
			Details:   rec.Details,
			IPAddress: rec.IPAddress,
			Browser:   rec.Browser,
			OS:        rec.OS,
			DeviceID:  rec.DeviceID,
			Success:   rec.Success,
			CreatedAt: rec.CreatedAt,
		})
	}
	respondWithJSON(w, http.StatusOK, out)
}
