package http

import (
	"net/http"

	"github.com/ledgerline/ledgerline/internal/domain/connector"
	"github.com/ledgerline/ledgerline/internal/middleware"
)

type registerConnectorRequest struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Status   string         `json:"status,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (h *Handlers) RegisterConnector(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[registerConnectorRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Name, "name") || !requireField(w, req.Type, "type") {
		return
	}

	id, err := h.orc.RegisterConnector(r.Context(), connector.RegisterRequest{
		OrgID:    middleware.OrgIDFromContext(r.Context()),
		Name:     req.Name,
		Type:     connector.Type(req.Type),
		Status:   connector.Status(req.Status),
		Config:   req.Config,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) GetConnector(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.OrgIDFromContext(r.Context())
	rec, err := h.orc.GetConnector(r.Context(), orgID, urlParam(r, "name"))
	if err != nil {
		writeDomainError(w, err, "connector not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) ListConnectors(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.OrgIDFromContext(r.Context())
	recs, err := h.orc.ListConnectors(r.Context(), orgID)
	if err != nil {
		writeDomainError(w, err, "failed to list connectors")
		return
	}
	if recs == nil {
		recs = []connector.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"connectors": recs, "count": len(recs)})
}
