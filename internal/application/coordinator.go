package application

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/config"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/metrics"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
	"gitlab.com/supernavi/api/navi-bridge-service/pkg/casekeys"
	"gitlab.com/supernavi/api/navi-bridge-service/pkg/contextkeys"
)

// RequestCoordinator bridges discrete UI operation requests to the resolution
// engine and relays results back only while they are still relevant.
//
// It owns the current-case pointer: the detection layer moves it with
// case_changed messages, each move bumps a generation counter, and a completed
// case-scoped operation is delivered only if its subject still matches the
// pointer read fresh at delivery time. A slow answer for a case the user has
// already navigated away from is dropped, never delivered.
type RequestCoordinator struct {
	logger         domain.Logger
	configProvider config.Provider
	engine         Resolver

	mu          sync.Mutex
	currentCase string // canonical; "" means no case detected
	generation  uint64

	// viewerLinkSeen tracks the last viewer-link request time per slide for
	// debouncing. Entries are overwritten on the next allowed request; the map
	// stays small because it only ever holds slides a user clicked.
	viewerLinkSeen map[string]time.Time

	// now is a seam for tests.
	now func() time.Time
}

// NewRequestCoordinator creates a new RequestCoordinator.
func NewRequestCoordinator(logger domain.Logger, cfgProvider config.Provider, engine Resolver) *RequestCoordinator {
	if logger == nil {
		panic("logger is nil in NewRequestCoordinator")
	}
	if cfgProvider == nil {
		panic("config provider is nil in NewRequestCoordinator")
	}
	if engine == nil {
		panic("engine is nil in NewRequestCoordinator")
	}
	return &RequestCoordinator{
		logger:         logger,
		configProvider: cfgProvider,
		engine:         engine,
		viewerLinkSeen: make(map[string]time.Time),
		now:            time.Now,
	}
}

// SetCurrentCase moves the current-case pointer. Every change increments the
// generation counter that in-flight results are checked against. The empty
// string means "no case detected".
func (c *RequestCoordinator) SetCurrentCase(ctx context.Context, rawCaseID string) uint64 {
	caseID := ""
	if rawCaseID != "" {
		caseID = casekeys.Canonical(rawCaseID)
	}

	c.mu.Lock()
	if caseID != c.currentCase {
		c.currentCase = caseID
		c.generation++
	}
	gen := c.generation
	c.mu.Unlock()

	c.logger.Debug(ctx, "Current case pointer updated", "case_id", caseID, "generation", gen)
	return gen
}

// CurrentCase returns the canonical current case and the generation it was set under.
func (c *RequestCoordinator) CurrentCase() (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentCase, c.generation
}

// stillRelevant is the delivery-time check: a case-scoped result is delivered
// only if its subject matches the pointer as it stands now, not as it stood
// when the request started.
func (c *RequestCoordinator) stillRelevant(caseID string) bool {
	current, _ := c.CurrentCase()
	return current == caseID
}

// viewerLinkAllowed applies the per-slide debounce window. The first request
// wins and starts the cooldown; duplicates inside the window are suppressed
// entirely — not queued, not merged — because a duplicate viewer tab is the
// harm being prevented. The window is cleared by time alone, regardless of
// whether or when the winning request's response arrives.
func (c *RequestCoordinator) viewerLinkAllowed(slideID string) bool {
	cooldownSeconds := c.configProvider.Get().Coordinator.ViewerLinkCooldownSeconds
	if cooldownSeconds <= 0 {
		cooldownSeconds = 2
	}
	cooldown := time.Duration(cooldownSeconds) * time.Second

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if last, ok := c.viewerLinkSeen[slideID]; ok && now.Sub(last) < cooldown {
		return false
	}
	c.viewerLinkSeen[slideID] = now
	return true
}

// Handle executes one inbound operation request and returns the reply to send,
// or nil when no reply is due: case_changed is fire-and-forget, debounced
// viewer-link duplicates are no-ops, and results whose case is no longer
// current are silently dropped.
func (c *RequestCoordinator) Handle(ctx context.Context, req domain.OpRequest) *domain.OpResult {
	ctx = context.WithValue(ctx, contextkeys.OperationKey, req.Type)

	switch req.Type {
	case domain.OpCaseChanged:
		var payload domain.CaseChangedPayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			c.logger.Warn(ctx, "Malformed case_changed payload dropped", "error", err.Error())
			return nil
		}
		c.SetCurrentCase(ctx, payload.CaseID)
		return nil

	case domain.OpResolveStatus, domain.OpRefreshStatus:
		var payload domain.ResolveStatusPayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil || payload.CaseID == "" {
			return c.badRequest(req, "caseId is required")
		}
		caseID := casekeys.Canonical(payload.CaseID)
		ctx = context.WithValue(ctx, contextkeys.CaseIDKey, caseID)

		var snap *domain.StatusSnapshot
		var err error
		if req.Type == domain.OpRefreshStatus {
			snap, err = c.engine.InvalidateAndRefetch(ctx, caseID)
		} else {
			snap, err = c.engine.ResolveStatus(ctx, caseID)
		}
		if !c.stillRelevant(caseID) {
			return c.dropStale(ctx, req, caseID)
		}
		if err != nil {
			return c.failure(ctx, req, err)
		}
		return c.success(req, snap)

	case domain.OpAttachSlide:
		var payload domain.AttachSlidePayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil || payload.CaseID == "" || payload.SlideID == "" {
			return c.badRequest(req, "caseId and slideId are required")
		}
		caseID := casekeys.Canonical(payload.CaseID)
		ctx = context.WithValue(ctx, contextkeys.CaseIDKey, caseID)
		ctx = context.WithValue(ctx, contextkeys.SlideIDKey, payload.SlideID)

		result, err := c.engine.AttachSlide(ctx, caseID, payload.SlideID, payload.Patient)
		if !c.stillRelevant(caseID) {
			return c.dropStale(ctx, req, caseID)
		}
		if err != nil {
			return c.failure(ctx, req, err)
		}
		return c.success(req, result)

	case domain.OpDetachSlide:
		var payload domain.DetachSlidePayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil || payload.CaseID == "" || payload.SlideID == "" {
			return c.badRequest(req, "caseId and slideId are required")
		}
		caseID := casekeys.Canonical(payload.CaseID)
		ctx = context.WithValue(ctx, contextkeys.CaseIDKey, caseID)
		ctx = context.WithValue(ctx, contextkeys.SlideIDKey, payload.SlideID)

		result, err := c.engine.DetachSlide(ctx, caseID, payload.SlideID)
		if !c.stillRelevant(caseID) {
			return c.dropStale(ctx, req, caseID)
		}
		if err != nil {
			return c.failure(ctx, req, err)
		}
		return c.success(req, result)

	case domain.OpRequestViewerLink:
		var payload domain.ViewerLinkPayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil || payload.SlideID == "" {
			return c.badRequest(req, "slideId is required")
		}
		ctx = context.WithValue(ctx, contextkeys.SlideIDKey, payload.SlideID)

		if !c.viewerLinkAllowed(payload.SlideID) {
			metrics.ViewerLinkDebouncedTotal.Inc()
			c.logger.Debug(ctx, "Viewer link request suppressed inside cooldown window")
			return nil
		}
		url, err := c.engine.RequestViewerLink(ctx, domain.ViewerLinkRequest{
			SlideID:        payload.SlideID,
			ExternalCaseID: payload.ExternalCaseID,
			Patient:        payload.Patient,
		})
		if err != nil {
			return c.failure(ctx, req, err)
		}
		return c.success(req, domain.ViewerLinkResult{SlideID: payload.SlideID, URL: url})

	case domain.OpGetAuthInfo:
		info, err := c.engine.GetAuthInfo(ctx)
		if err != nil {
			return c.failure(ctx, req, err)
		}
		return c.success(req, info)

	case domain.OpClaimPairingCode:
		var payload domain.ClaimPairingPayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil || payload.Code == "" {
			return c.badRequest(req, "code is required")
		}
		info, err := c.engine.ClaimPairingCode(ctx, payload.Code)
		if err != nil {
			return c.failure(ctx, req, err)
		}
		return c.success(req, info)

	default:
		c.logger.Warn(ctx, "Unknown operation type", "type", req.Type)
		return c.badRequest(req, "unknown operation type")
	}
}

func (c *RequestCoordinator) success(req domain.OpRequest, payload interface{}) *domain.OpResult {
	res := domain.NewResultMessage(req.ID, req.Type, payload)
	return &res
}

// failure converts an engine error into a wire-level error result instead of
// letting it cross the boundary as a Go error.
func (c *RequestCoordinator) failure(ctx context.Context, req domain.OpRequest, err error) *domain.OpResult {
	code := domain.CodeForError(err)
	c.logger.Info(ctx, "Operation failed", "code", string(code), "error", err.Error())
	res := domain.NewErrorResult(req.ID, req.Type, domain.NewErrorResponse(code, userMessageFor(code), err.Error()))
	return &res
}

func (c *RequestCoordinator) badRequest(req domain.OpRequest, details string) *domain.OpResult {
	res := domain.NewErrorResult(req.ID, req.Type,
		domain.NewErrorResponse(domain.ErrCodeBadRequest, "Invalid operation payload.", details))
	return &res
}

func (c *RequestCoordinator) dropStale(ctx context.Context, req domain.OpRequest, caseID string) *domain.OpResult {
	metrics.StaleResultsDroppedTotal.Inc()
	current, gen := c.CurrentCase()
	c.logger.Debug(ctx, "Dropping result for case that is no longer current",
		"result_case_id", caseID, "current_case_id", current, "generation", gen, "op", req.Type)
	return nil
}

// userMessageFor maps error codes to the distinct user-facing messages the UI
// shows; 404, 410 and 429 must never collapse into one generic string.
func userMessageFor(code domain.ErrorCode) string {
	switch code {
	case domain.ErrCodeNotConfigured:
		return "No credential configured. Pair this device or set a key first."
	case domain.ErrCodeNotFound:
		return "Not found."
	case domain.ErrCodeExpired:
		return "Expired or already used."
	case domain.ErrCodeRateLimited:
		return "Rate limited. Try again shortly."
	case domain.ErrCodeBadRequest:
		return "Invalid operation payload."
	default:
		return "The slide service could not complete the request."
	}
}
