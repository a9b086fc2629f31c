package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/config"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/metrics"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
	"gitlab.com/supernavi/api/navi-bridge-service/pkg/casekeys"
	"gitlab.com/supernavi/api/navi-bridge-service/pkg/crypto"
)

// Resolver is the engine surface the request coordinator drives. It exists so
// the coordinator can be exercised against a fake engine in tests.
type Resolver interface {
	ResolveStatus(ctx context.Context, caseID string) (*domain.StatusSnapshot, error)
	InvalidateAndRefetch(ctx context.Context, caseID string) (*domain.StatusSnapshot, error)
	AttachSlide(ctx context.Context, caseID, slideID string, patient *domain.PatientMeta) (*domain.MutationResult, error)
	DetachSlide(ctx context.Context, caseID, slideID string) (*domain.MutationResult, error)
	RequestViewerLink(ctx context.Context, req domain.ViewerLinkRequest) (string, error)
	GetAuthInfo(ctx context.Context) (*domain.AuthInfo, error)
	ClaimPairingCode(ctx context.Context, code string) (*domain.AuthInfo, error)
}

// ResolutionEngine decides, for each case status request, which source to
// query (edge agent through the tunnel first, cloud as the authoritative
// fallback), how to cache the answer, and how to invalidate it on mutation.
//
// The engine is retry-free: edge failures are absorbed (the edge is expected
// to be unreachable often and is cheap to probe), cloud failures propagate,
// and idempotent re-invocation is the caller's recovery mechanism. Overlapping
// resolutions for the same case are not serialized; both complete and the
// cache's overwrite-by-key semantics makes the last write win.
type ResolutionEngine struct {
	logger         domain.Logger
	configProvider config.Provider
	cache          domain.StatusCacheStore
	edge           domain.EdgeSource
	cloud          domain.CloudSource

	// agentMu guards the resolved edge agent identifier, which becomes known
	// only after a successful authenticated identity lookup.
	agentMu     sync.RWMutex
	edgeAgentID string
}

// NewResolutionEngine creates a new ResolutionEngine. The edge agent identifier
// is seeded from configuration when a previous run already resolved it.
func NewResolutionEngine(logger domain.Logger, cfgProvider config.Provider, cache domain.StatusCacheStore, edge domain.EdgeSource, cloud domain.CloudSource) *ResolutionEngine {
	if logger == nil {
		panic("logger is nil in NewResolutionEngine")
	}
	if cfgProvider == nil {
		panic("config provider is nil in NewResolutionEngine")
	}
	if cache == nil {
		panic("cache store is nil in NewResolutionEngine")
	}
	return &ResolutionEngine{
		logger:         logger,
		configProvider: cfgProvider,
		cache:          cache,
		edge:           edge,
		cloud:          cloud,
		edgeAgentID:    cfgProvider.Get().Edge.AgentID,
	}
}

// EdgeAgentID returns the currently resolved edge agent identifier, or "" when
// no agent is known and every resolution must use the cloud.
func (e *ResolutionEngine) EdgeAgentID() string {
	e.agentMu.RLock()
	defer e.agentMu.RUnlock()
	return e.edgeAgentID
}

func (e *ResolutionEngine) setEdgeAgentID(ctx context.Context, agentID string) {
	e.agentMu.Lock()
	changed := e.edgeAgentID != agentID
	e.edgeAgentID = agentID
	e.agentMu.Unlock()
	if changed {
		e.logger.Info(ctx, "Edge agent identifier resolved", "agent_id", agentID)
	}
}

func (e *ResolutionEngine) cacheTTL() time.Duration {
	ttlSeconds := e.configProvider.Get().Cache.TTLSeconds
	if ttlSeconds <= 0 {
		ttlSeconds = 60
	}
	return time.Duration(ttlSeconds) * time.Second
}

// ResolveStatus returns the current status snapshot for a case: cache hit if a
// live entry exists, otherwise edge-first resolution with unconditional cloud
// fallback. Failures are never cached.
func (e *ResolutionEngine) ResolveStatus(ctx context.Context, rawCaseID string) (*domain.StatusSnapshot, error) {
	caseID := casekeys.Canonical(rawCaseID)
	key := casekeys.StatusKey(caseID)

	cached, err := e.cache.Get(ctx, key)
	if err == nil && cached != nil {
		metrics.ObserveCacheHit()
		return cached, nil
	}
	if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		// A broken cache must not break resolution; fall through to the sources.
		e.logger.Warn(ctx, "Status cache read failed, resolving from sources", "key", key, "error", err.Error())
	}
	metrics.ObserveCacheMiss()

	if snap := e.edge.FetchStatus(ctx, e.EdgeAgentID(), caseID); snap != nil {
		e.storeSnapshot(ctx, key, snap)
		metrics.ObserveResolution("edge")
		return snap, nil
	}

	// Cloud is authoritative and is always tried before declaring failure.
	snap, err := e.cloud.FetchStatus(ctx, caseID)
	if err != nil {
		metrics.ObserveResolution("failed")
		return nil, err
	}
	e.storeSnapshot(ctx, key, snap)
	metrics.ObserveResolution("cloud")
	return snap, nil
}

// InvalidateAndRefetch drops any cached entry for the case and resolves fresh.
func (e *ResolutionEngine) InvalidateAndRefetch(ctx context.Context, rawCaseID string) (*domain.StatusSnapshot, error) {
	caseID := casekeys.Canonical(rawCaseID)
	if err := e.cache.Invalidate(ctx, casekeys.StatusKey(caseID)); err != nil {
		e.logger.Warn(ctx, "Cache invalidation failed before refetch", "case_id", caseID, "error", err.Error())
	}
	return e.ResolveStatus(ctx, caseID)
}

// InvalidateCase drops the cached entry for a case without refetching. Used by
// the NATS case-updated feed.
func (e *ResolutionEngine) InvalidateCase(ctx context.Context, rawCaseID string) error {
	return e.cache.Invalidate(ctx, casekeys.StatusKey(casekeys.Canonical(rawCaseID)))
}

func (e *ResolutionEngine) storeSnapshot(ctx context.Context, key string, snap *domain.StatusSnapshot) {
	if err := e.cache.Set(ctx, key, snap, e.cacheTTL()); err != nil {
		// Non-fatal: the snapshot is still served, the next call re-resolves.
		e.logger.Warn(ctx, "Failed to cache status snapshot", "key", key, "error", err.Error())
	}
}

// AttachSlide binds a slide to a case. The edge path is preferred when an
// agent is reachable; regardless of the edge outcome the mutation is mirrored
// to the cloud best-effort so the two sources stay loosely consistent. The
// operation succeeds once either source confirms it; a failed cloud mirror
// after an edge success is logged, not surfaced. On success the cache entry
// for the case is invalidated unconditionally — the next resolution re-fetches
// rather than patching the cached snapshot.
func (e *ResolutionEngine) AttachSlide(ctx context.Context, rawCaseID, slideID string, patient *domain.PatientMeta) (*domain.MutationResult, error) {
	return e.mutate(ctx, rawCaseID, slideID,
		func(ctx context.Context, agentID, caseID string) bool {
			return e.edge.LinkSlide(ctx, agentID, caseID, slideID, patient)
		},
		func(ctx context.Context, caseID string) error {
			return e.cloud.LinkSlide(ctx, caseID, slideID, patient)
		})
}

// DetachSlide removes a slide's case binding, with the same edge-preferred,
// cloud-mirrored, cache-invalidating semantics as AttachSlide.
func (e *ResolutionEngine) DetachSlide(ctx context.Context, rawCaseID, slideID string) (*domain.MutationResult, error) {
	return e.mutate(ctx, rawCaseID, slideID,
		func(ctx context.Context, agentID, caseID string) bool {
			return e.edge.UnlinkSlide(ctx, agentID, caseID, slideID)
		},
		func(ctx context.Context, caseID string) error {
			return e.cloud.UnlinkSlide(ctx, caseID, slideID)
		})
}

func (e *ResolutionEngine) mutate(
	ctx context.Context,
	rawCaseID, slideID string,
	edgeOp func(ctx context.Context, agentID, caseID string) bool,
	cloudOp func(ctx context.Context, caseID string) error,
) (*domain.MutationResult, error) {
	caseID := casekeys.Canonical(rawCaseID)

	viaEdge := false
	if agentID := e.EdgeAgentID(); agentID != "" {
		viaEdge = edgeOp(ctx, agentID, caseID)
	}

	cloudErr := cloudOp(ctx, caseID)
	if cloudErr != nil && !viaEdge {
		// Neither source confirmed the mutation.
		return nil, cloudErr
	}
	if cloudErr != nil {
		metrics.MutationMirrorFailuresTotal.Inc()
		e.logger.Warn(ctx, "Cloud mirror failed after edge mutation succeeded",
			"case_id", caseID, "slide_id", slideID, "error", cloudErr.Error())
	}

	if err := e.cache.Invalidate(ctx, casekeys.StatusKey(caseID)); err != nil {
		e.logger.Warn(ctx, "Cache invalidation after mutation failed", "case_id", caseID, "error", err.Error())
	}

	return &domain.MutationResult{
		CaseID:          caseID,
		SlideID:         slideID,
		ViaEdge:         viaEdge,
		MirroredToCloud: cloudErr == nil,
	}, nil
}

// RequestViewerLink asks the cloud for an opaque navigable URL for a slide.
// Debouncing of duplicate requests is the coordinator's concern, not the engine's.
func (e *ResolutionEngine) RequestViewerLink(ctx context.Context, req domain.ViewerLinkRequest) (string, error) {
	return e.cloud.CreateViewerLink(ctx, req)
}

// GetAuthInfo reports the selected credential and, when one is active, the
// authenticated identity. A successful identity lookup is the only way the
// edge agent identifier becomes known; until then every resolution
// transparently uses the cloud alone.
func (e *ResolutionEngine) GetAuthInfo(ctx context.Context) (*domain.AuthInfo, error) {
	mode := SelectAuth(e.configProvider.Get().Cloud)
	info := &domain.AuthInfo{
		Mode:                  mode.Kind,
		CredentialFingerprint: crypto.Fingerprint(mode.Secret),
		EdgeAgentID:           e.EdgeAgentID(),
	}
	if !mode.Active() {
		// Not configured is an answer here, not a failure: the UI uses it to
		// prompt pairing.
		return info, nil
	}

	identity, err := e.cloud.WhoAmI(ctx)
	if err != nil {
		return nil, err
	}
	info.Identity = identity
	if identity.AgentID != "" {
		e.setEdgeAgentID(ctx, identity.AgentID)
		info.EdgeAgentID = identity.AgentID
	}
	return info, nil
}

// ClaimPairingCode exchanges a 6-character pairing code for device credentials,
// persists them, and returns the refreshed auth info. The device token takes
// effect immediately for subsequent calls.
func (e *ResolutionEngine) ClaimPairingCode(ctx context.Context, code string) (*domain.AuthInfo, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 6 {
		return nil, domain.ErrInvalidPairingCode
	}

	grant, err := e.cloud.ClaimPairingCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := e.configProvider.PersistPairingGrant(grant); err != nil {
		// The claim succeeded remotely; failing to persist means the pairing
		// is lost on restart, which the user must hear about.
		e.logger.Error(ctx, "Failed to persist pairing grant", "device_id", grant.DeviceID, "error", err.Error())
		return nil, err
	}
	e.logger.Info(ctx, "Pairing code claimed, device credentials stored",
		"device_id", grant.DeviceID, "device_name", grant.DeviceName)

	return e.GetAuthInfo(ctx)
}
