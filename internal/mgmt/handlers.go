package mgmt

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	serrors "github.com/p-blackswan/reel-scout/internal/errors"
	"github.com/p-blackswan/reel-scout/internal/command"
	"github.com/p-blackswan/reel-scout/internal/health"
	"github.com/p-blackswan/reel-scout/internal/history"
	"github.com/p-blackswan/reel-scout/internal/session"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

// Controller is the session surface the API drives.
type Controller interface {
	command.Controller
	Step(ctx context.Context) (session.StepResult, error)
	AttachSample(ctx context.Context, itemID, text string, ageSeconds *int64) (*state.Item, error)
}

// Journal is the read side of the history journal.
type Journal interface {
	RecentSteps(ctx context.Context, sessionID string, limit int) ([]history.Step, error)
	Decisions(ctx context.Context, itemID string) ([]history.Decision, error)
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	ctrl      Controller
	analyzer  command.Analyzer
	journal   Journal
	checker   *health.Checker
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a new Handlers instance. journal may be nil.
func NewHandlers(ctrl Controller, analyzer command.Analyzer, journal Journal, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		ctrl:      ctrl,
		analyzer:  analyzer,
		journal:   journal,
		checker:   checker,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

// errorResponse maps domain errors onto problem responses.
func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, serrors.ErrItemNotFound):
		return problemResponse(c, fiber.StatusNotFound, "item_not_found", "Not Found", err.Error())
	case errors.Is(err, serrors.ErrInvalidStatus), errors.Is(err, serrors.ErrInvalidSetting),
		errors.Is(err, serrors.ErrInvalidSample):
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", err.Error())
	case errors.Is(err, serrors.ErrSessionActive), errors.Is(err, serrors.ErrNoActiveSession):
		return problemResponse(c, fiber.StatusConflict, "session_conflict", "Conflict", err.Error())
	case errors.Is(err, serrors.ErrDeviceNotReady):
		return problemResponse(c, fiber.StatusServiceUnavailable, "device_not_ready", "Service Unavailable", err.Error())
	}
	return err
}

func (h *Handlers) snapshot(c *fiber.Ctx) (*state.Aggregate, error) {
	return h.ctrl.Snapshot(c.UserContext())
}

func sessionOf(agg *state.Aggregate) SessionResponse {
	return SessionResponse{
		SessionID:  agg.ActiveSessionID,
		Running:    agg.Running(),
		Paused:     agg.SessionPaused,
		StopReason: agg.LastSessionStopReason,
	}
}

func (h *Handlers) sessionState(c *fiber.Ctx) error {
	agg, err := h.snapshot(c)
	if err != nil {
		return err
	}
	return c.JSON(sessionOf(agg))
}

// Status handles GET /api/v1/status.
func (h *Handlers) Status(c *fiber.Ctx) error {
	agg, err := h.snapshot(c)
	if err != nil {
		return err
	}
	resp := StatusResponse{
		Session:      sessionOf(agg),
		LastRisk:     agg.LastRisk,
		DeviceStatus: string(agg.DeviceStatus),
		Counts:       make(map[string]int),
		Settings:     agg.Settings,
		Text:         command.StatusText(agg),
	}
	if agg.ActiveSessionID != "" {
		resp.Metrics = agg.SessionMetrics[agg.ActiveSessionID]
	}
	for _, it := range agg.Items {
		resp.Counts[string(it.Status)]++
	}
	return c.JSON(resp)
}

// StartSession handles POST /api/v1/session/start.
func (h *Handlers) StartSession(c *fiber.Ctx) error {
	sid, err := h.ctrl.Start(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}
	h.logger.Info().Str("session_id", sid).Str("actor", actor(c)).Msg("Session started via API")
	return c.Status(fiber.StatusCreated).JSON(SessionResponse{SessionID: sid, Running: true})
}

// StopSession handles POST /api/v1/session/stop.
func (h *Handlers) StopSession(c *fiber.Ctx) error {
	req := StopRequest{Reason: state.StopByUser}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_body", "Bad Request",
				"Invalid request body: "+err.Error())
		}
		if req.Reason == "" {
			req.Reason = state.StopByUser
		}
	}
	if err := h.ctrl.Stop(c.UserContext(), req.Reason); err != nil {
		return errorResponse(c, err)
	}
	return h.sessionState(c)
}

// PauseSession handles POST /api/v1/session/pause.
func (h *Handlers) PauseSession(c *fiber.Ctx) error {
	if err := h.ctrl.Pause(c.UserContext()); err != nil {
		return errorResponse(c, err)
	}
	return h.sessionState(c)
}

// ResumeSession handles POST /api/v1/session/resume.
func (h *Handlers) ResumeSession(c *fiber.Ctx) error {
	if err := h.ctrl.Resume(c.UserContext()); err != nil {
		return errorResponse(c, err)
	}
	return h.sessionState(c)
}

// StepSession handles POST /api/v1/session/step: one manual step.
func (h *Handlers) StepSession(c *fiber.Ctx) error {
	res, err := h.ctrl.Step(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(res)
}

// ListItems handles GET /api/v1/items.
func (h *Handlers) ListItems(c *fiber.Ctx) error {
	q := ListItemsQuery{Limit: defaultPageSize}
	if err := c.QueryParser(&q); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_query", "Bad Request", err.Error())
	}
	var status state.Status
	if q.Status != "" {
		s, err := state.ParseStatus(q.Status)
		if err != nil {
			return errorResponse(c, err)
		}
		status = s
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	q.Limit = min(q.Limit, maxPageSize)
	q.Offset = max(q.Offset, 0)

	agg, err := h.snapshot(c)
	if err != nil {
		return err
	}
	all := agg.SortedItems(status)
	lo := min(q.Offset, len(all))
	hi := min(lo+q.Limit, len(all))
	return c.JSON(ItemListResponse{Items: all[lo:hi], Total: len(all), Limit: q.Limit, Offset: q.Offset})
}

func (h *Handlers) item(c *fiber.Ctx) (*state.Item, *state.Aggregate, error) {
	agg, err := h.snapshot(c)
	if err != nil {
		return nil, nil, err
	}
	it, err := agg.Item(c.Params("id"))
	if err != nil {
		return nil, nil, err
	}
	return it, agg, nil
}

// GetItem handles GET /api/v1/items/:id.
func (h *Handlers) GetItem(c *fiber.Ctx) error {
	it, _, err := h.item(c)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(it)
}

// ItemAnalysis handles GET /api/v1/items/:id/analysis.
func (h *Handlers) ItemAnalysis(c *fiber.Ctx) error {
	it, agg, err := h.item(c)
	if err != nil {
		return errorResponse(c, err)
	}
	a := h.analyzer.Analyze(c.UserContext(), it, agg.Settings)
	return c.JSON(AnalysisResponse{ItemID: it.ID, Analysis: a, Block: temporal.FormatBlock(a)})
}

// ItemDecisions handles GET /api/v1/items/:id/decisions.
func (h *Handlers) ItemDecisions(c *fiber.Ctx) error {
	if h.journal == nil {
		return problemResponse(c, fiber.StatusNotImplemented,
			"journal_disabled", "Not Implemented", "History journal is not configured")
	}
	id := c.Params("id")
	ds, err := h.journal.Decisions(c.UserContext(), id)
	if err != nil {
		return err
	}
	if ds == nil {
		ds = []history.Decision{}
	}
	return c.JSON(DecisionsResponse{ItemID: id, Decisions: ds})
}

// SetItemStatus handles POST /api/v1/items/:id/status.
func (h *Handlers) SetItemStatus(c *fiber.Ctx) error {
	var req StatusChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	status, err := state.ParseStatus(req.Status)
	if err != nil {
		return errorResponse(c, err)
	}
	it, err := h.ctrl.SetStatus(c.UserContext(), c.Params("id"), status, actor(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(it)
}

// AttachSample handles POST /api/v1/items/:id/samples. It records
// recognized text or a known age and answers with the fresh analysis.
func (h *Handlers) AttachSample(c *fiber.Ctx) error {
	var req SampleRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	it, err := h.ctrl.AttachSample(c.UserContext(), c.Params("id"), req.Text, req.AgeSeconds)
	if err != nil {
		return errorResponse(c, err)
	}
	agg, err := h.snapshot(c)
	if err != nil {
		return err
	}
	h.logger.Info().Str("item_id", it.ID).Str("actor", actor(c)).Msg("Text sample attached via API")
	a := h.analyzer.Analyze(c.UserContext(), it, agg.Settings)
	return c.Status(fiber.StatusCreated).JSON(AnalysisResponse{ItemID: it.ID, Analysis: a, Block: temporal.FormatBlock(a)})
}

// GetSettings handles GET /api/v1/settings.
func (h *Handlers) GetSettings(c *fiber.Ctx) error {
	agg, err := h.snapshot(c)
	if err != nil {
		return err
	}
	return c.JSON(SettingsResponse{Settings: agg.Settings})
}

// PatchSettings handles PATCH /api/v1/settings. The body maps keys to new
// values; keys are applied in sorted order and the first invalid one stops
// the patch.
func (h *Handlers) PatchSettings(c *fiber.Ctx) error {
	var req map[string]any
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if len(req) == 0 {
		return problemResponse(c, fiber.StatusBadRequest,
			"empty_patch", "Bad Request", "No settings given")
	}

	keys := make([]string, 0, len(req))
	for k := range req {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	applied := make(map[string]any, len(keys))
	for _, k := range keys {
		v, err := h.ctrl.SetSetting(c.UserContext(), k, rawValue(req[k]))
		if err != nil {
			return errorResponse(c, err)
		}
		applied[k] = v
	}
	h.logger.Info().Strs("keys", keys).Str("actor", actor(c)).Msg("Settings patched via API")

	agg, err := h.snapshot(c)
	if err != nil {
		return err
	}
	return c.JSON(SettingsResponse{Settings: agg.Settings, Applied: applied})
}

// rawValue renders a decoded JSON value the way an operator would type it.
func rawValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return x
	}
	return ""
}

// RecentSteps handles GET /api/v1/history/steps.
func (h *Handlers) RecentSteps(c *fiber.Ctx) error {
	if h.journal == nil {
		return problemResponse(c, fiber.StatusNotImplemented,
			"journal_disabled", "Not Implemented", "History journal is not configured")
	}
	limit := c.QueryInt("limit", defaultPageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}
	sid := c.Query("session")
	steps, err := h.journal.RecentSteps(c.UserContext(), sid, min(limit, maxPageSize))
	if err != nil {
		return err
	}
	if steps == nil {
		steps = []history.Step{}
	}
	return c.JSON(StepsResponse{SessionID: sid, Steps: steps})
}

// HealthDetail handles GET /api/v1/health.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.UserContext())
	checks := make(map[string]string, len(results))
	overall := string(health.StatusOK)
	for name, s := range results {
		checks[name] = string(s)
		switch {
		case s == health.StatusDown:
			overall = string(health.StatusDown)
		case s == health.StatusDegraded && overall == string(health.StatusOK):
			overall = string(health.StatusDegraded)
		}
	}
	return c.JSON(HealthDetailResponse{Status: overall, Checks: checks, Uptime: since(h.startTime)})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if !h.checker.IsReady(c.UserContext()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
			"checks": h.checker.Last(),
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}
