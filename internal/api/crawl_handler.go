package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/topocrawl/topocrawl/internal/channels"
	"github.com/topocrawl/topocrawl/internal/crawler"
	"github.com/topocrawl/topocrawl/internal/store"
	"github.com/topocrawl/topocrawl/internal/validation"
)

// CrawlHandler handles crawl run endpoints.
type CrawlHandler struct {
	store    store.Store
	events   *channels.EventChannels
	defaults crawler.Options
}

// NewCrawlHandler creates a new crawl handler. defaults mirror the options
// the engine runs with, so queued run records show the effective values.
func NewCrawlHandler(st store.Store, events *channels.EventChannels, defaults crawler.Options) *CrawlHandler {
	return &CrawlHandler{
		store:    st,
		events:   events,
		defaults: defaults,
	}
}

// Create handles POST /api/v1/crawls
// Returns 202 Accepted immediately - the crawl runs asynchronously.
func (h *CrawlHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeJSON[crawler.Request](w, r)
	if !ok {
		return
	}

	if err := input.Validate(); err != nil {
		var verrs *validation.Errors
		if errors.As(err, &verrs) {
			sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid crawl request", verrs.Fields)
			return
		}
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	maxHops := h.defaults.MaxHops
	if input.MaxHops != nil {
		maxHops = *input.MaxHops
	}
	commands := h.defaults.Commands
	if len(input.Commands) > 0 {
		commands = input.Commands
	}
	if len(commands) == 0 {
		commands = crawler.DefaultCommands()
	}

	run := &store.Run{
		ID:        uuid.New(),
		Status:    store.StatusQueued,
		Seeds:     input.Seeds,
		MaxHops:   maxHops,
		Commands:  commands,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateRun(r.Context(), run); handleStoreError(w, r, err, "Crawl run") {
		return
	}

	event := channels.CrawlRequestEvent{
		RunID:    run.ID,
		Request:  input,
		QueuedAt: time.Now(),
	}

	// Non-blocking send with context
	select {
	case h.events.CrawlRequest <- event:
		// Event sent successfully
	case <-r.Context().Done():
		sendError(w, r, http.StatusInternalServerError, "EVENT_PUBLISH_ERROR", "Context cancelled while queueing crawl", r.Context().Err().Error())
		return
	default:
		// Queue full. Fail the record so it does not dangle in queued.
		_ = h.store.CompleteRun(r.Context(), run.ID, store.StatusFailed, nil, "crawl queue full")
		sendError(w, r, http.StatusServiceUnavailable, "QUEUE_FULL", "Crawl queue is full, retry later", nil)
		return
	}

	sendJSON(w, http.StatusAccepted, run)
}

// List handles GET /api/v1/crawls
func (h *CrawlHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			sendError(w, r, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if handleStoreError(w, r, err, "Crawl runs") {
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"data":  runs,
		"total": len(runs),
	})
}

// Get handles GET /api/v1/crawls/{id}
func (h *CrawlHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if handleStoreError(w, r, err, "Crawl run") {
		return
	}

	sendJSON(w, http.StatusOK, run)
}

// CrawlResultResponse is the serialized topology of one finished run.
type CrawlResultResponse struct {
	RunID       uuid.UUID         `json:"run_id"`
	Seeds       []string          `json:"seeds"`
	MaxHops     int               `json:"max_hops"`
	Devices     []*crawler.Device `json:"devices"`
	Edges       []crawler.Edge    `json:"edges"`
	Failures    []crawler.Failure `json:"failures"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
}

// GetResult handles GET /api/v1/crawls/{id}/result
func (h *CrawlHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	result, err := h.store.GetResult(r.Context(), id)
	if handleStoreError(w, r, err, "Crawl run") {
		return
	}

	resp := CrawlResultResponse{
		RunID:       result.RunID,
		Seeds:       result.Seeds,
		MaxHops:     result.MaxHops,
		Devices:     result.All(),
		Edges:       result.Edges,
		Failures:    result.Failures,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
	}
	if resp.Edges == nil {
		resp.Edges = []crawler.Edge{}
	}
	if resp.Failures == nil {
		resp.Failures = []crawler.Failure{}
	}

	sendJSON(w, http.StatusOK, resp)
}
