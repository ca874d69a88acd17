package api

import (
	"net/http"

	"github.com/topocrawl/topocrawl/internal/templates"
)

// TemplateHandler exposes the loaded parsing template inventory.
type TemplateHandler struct {
	registry *templates.Registry
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(registry *templates.Registry) *TemplateHandler {
	return &TemplateHandler{registry: registry}
}

// TemplateInfo describes one loaded command template.
type TemplateInfo struct {
	Command     string `json:"command"`
	HasMachine  bool   `json:"has_state_machine"`
	HasFallback bool   `json:"has_regex_fallback"`
}

// List handles GET /api/v1/templates
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.registry.Entries()

	infos := make([]TemplateInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, TemplateInfo{
			Command:     e.Slug,
			HasMachine:  e.Machine != nil,
			HasFallback: e.Fallback != nil,
		})
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"data":  infos,
		"total": len(infos),
	})
}
