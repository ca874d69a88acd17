package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/topocrawl/topocrawl/internal/credentials"
)

// CredentialHandler exposes the configured credential list. Credentials are
// file-configured and read-only over the API; secrets never leave the server.
type CredentialHandler struct {
	store *credentials.Store
}

// NewCredentialHandler creates a new credential handler
func NewCredentialHandler(store *credentials.Store) *CredentialHandler {
	return &CredentialHandler{store: store}
}

// CredentialInfo is the secret-free projection of one credential.
type CredentialInfo struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Username      string    `json:"username"`
	HasPassword   bool      `json:"has_password"`
	HasPrivateKey bool      `json:"has_private_key"`
}

func credentialInfo(c credentials.Credential) CredentialInfo {
	return CredentialInfo{
		ID:            c.ID,
		Name:          c.Name,
		Username:      c.Username,
		HasPassword:   c.Password != "",
		HasPrivateKey: c.PrivateKey != "",
	}
}

// List handles GET /api/v1/credentials
func (h *CredentialHandler) List(w http.ResponseWriter, r *http.Request) {
	creds := h.store.All()

	infos := make([]CredentialInfo, 0, len(creds))
	for _, c := range creds {
		infos = append(infos, credentialInfo(c))
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"data":  infos,
		"total": len(infos),
	})
}

// Get handles GET /api/v1/credentials/{id}
func (h *CredentialHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	cred, ok := h.store.Get(id)
	if !ok {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "Credential not found", nil)
		return
	}

	sendJSON(w, http.StatusOK, credentialInfo(cred))
}
