package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dayflow/dayflow/internal/core"
)

type connectionInput struct {
	Provider     core.EventSource    `json:"provider"`
	Direction    core.SyncDirection  `json:"direction"`
	Policy       core.ConflictPolicy `json:"policy"`
	CredentialID string              `json:"credential_id"`
	CalendarID   string              `json:"calendar_id"`
}

func (in *connectionInput) validate() error {
	switch in.Provider {
	case core.SourceGoogle, core.SourceOutlook:
	default:
		return core.NewValidationError("provider", "must be google or outlook")
	}
	switch in.Direction {
	case "", core.SyncImport, core.SyncExport, core.SyncBidirectional:
	default:
		return core.NewValidationError("direction", "unknown sync direction")
	}
	switch in.Policy {
	case "", core.ConflictRemoteWins, core.ConflictLocalWins:
	default:
		return core.NewValidationError("policy", "unknown conflict policy")
	}
	if in.CredentialID == "" {
		return core.NewValidationError("credential_id", "must not be empty")
	}
	return nil
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.connectionStore.ListActive(userID(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"connections": conns,
		"count":       len(conns),
	})
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var input connectionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := input.validate(); err != nil {
		s.respondServiceError(w, err)
		return
	}

	if input.Direction == "" {
		input.Direction = core.SyncBidirectional
	}
	if input.Policy == "" {
		input.Policy = core.ConflictRemoteWins
	}

	conn := &core.CalendarConnection{
		ID:           core.ConnectionID(uuid.New().String()),
		OwnerID:      userID(r),
		Provider:     input.Provider,
		Direction:    input.Direction,
		Policy:       input.Policy,
		CredentialID: input.CredentialID,
		CalendarID:   input.CalendarID,
		IsActive:     true,
	}

	if err := s.connectionStore.Create(conn); err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, conn)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	conn, err := s.ownedConnection(r)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	if err := s.connectionStore.SetActive(conn.ID, false); err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "disconnected"})
}

func (s *Server) handleSyncConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.ownedConnection(r)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	result := s.reconciler.SyncConnection(r.Context(), conn)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.reconciler.SyncOwner(r.Context(), userID(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) ownedConnection(r *http.Request) (*core.CalendarConnection, error) {
	id := core.ConnectionID(chi.URLParam(r, "connectionID"))
	conn, err := s.connectionStore.GetByID(id)
	if err != nil {
		return nil, err
	}
	if conn.OwnerID != userID(r) {
		return nil, core.ErrConnectionNotFound
	}
	return conn, nil
}

// --- OAuth ---

func (s *Server) handleGoogleOAuthURL(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil || !s.oauth.Configured() {
		respondError(w, http.StatusServiceUnavailable, "google oauth is not configured")
		return
	}

	state := fmt.Sprintf("dayflow-%d", time.Now().UnixNano())
	respondJSON(w, http.StatusOK, map[string]string{
		"url":   s.oauth.AuthURL(state),
		"state": state,
	})
}

// handleGoogleOAuthCallback exchanges the code, stores the token, and
// creates an active bidirectional connection for the caller.
func (s *Server) handleGoogleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil || s.tokens == nil {
		respondError(w, http.StatusServiceUnavailable, "google oauth is not configured")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		if msg := r.URL.Query().Get("error"); msg != "" {
			respondError(w, http.StatusBadRequest, "authorization failed: "+msg)
			return
		}
		respondError(w, http.StatusBadRequest, "code required")
		return
	}

	token, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		s.log.Error("oauth exchange failed: %v", err)
		respondError(w, http.StatusBadGateway, "token exchange failed")
		return
	}

	credentialID := uuid.New().String()
	if err := s.tokens.Save(credentialID, token); err != nil {
		s.respondServiceError(w, err)
		return
	}

	conn := &core.CalendarConnection{
		ID:           core.ConnectionID(uuid.New().String()),
		OwnerID:      userID(r),
		Provider:     core.SourceGoogle,
		Direction:    core.SyncBidirectional,
		Policy:       core.ConflictRemoteWins,
		CredentialID: credentialID,
		IsActive:     true,
	}
	if err := s.connectionStore.Create(conn); err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, conn)
}
