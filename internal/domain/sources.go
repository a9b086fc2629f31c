package domain

import "context"

// EdgeSource queries the locally reachable agent through the cloud-brokered
// tunnel. Edge reachability is uncertain and cheap to probe, so this source
// never returns an error: any failure (timeout, non-success status, transport
// error, malformed payload) collapses to "unavailable" — a nil snapshot or a
// false confirmation.
type EdgeSource interface {
	// FetchStatus returns the edge's view of a case, or nil when the edge is
	// unavailable or its answer is unusable.
	FetchStatus(ctx context.Context, agentID, caseID string) *StatusSnapshot

	// LinkSlide binds a slide to a case on the edge agent. Returns false when
	// the edge could not confirm the mutation.
	LinkSlide(ctx context.Context, agentID, caseID, slideID string, patient *PatientMeta) bool

	// UnlinkSlide removes a slide's case binding on the edge agent.
	UnlinkSlide(ctx context.Context, agentID, caseID, slideID string) bool
}

// CloudSource is the authoritative remote API. Calls fail with ErrNotConfigured
// when no credential is active and with *APIError on non-success responses.
// No retries happen at this layer; retry is the caller's recovery mechanism.
type CloudSource interface {
	FetchStatus(ctx context.Context, caseID string) (*StatusSnapshot, error)
	LinkSlide(ctx context.Context, caseID, slideID string, patient *PatientMeta) error
	UnlinkSlide(ctx context.Context, caseID, slideID string) error
	CreateViewerLink(ctx context.Context, req ViewerLinkRequest) (string, error)
	WhoAmI(ctx context.Context) (*Identity, error)
	ClaimPairingCode(ctx context.Context, code string) (*PairingGrant, error)
}
