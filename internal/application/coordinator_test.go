package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

// fakeResolver lets each test script the engine's answers and, through
// onResolve, interleave pointer moves with an in-flight resolution.
type fakeResolver struct {
	snapshot  *domain.StatusSnapshot
	err       error
	onResolve func(caseID string)

	resolveCalls    int
	refreshCalls    int
	attachCalls     int
	viewerLinkCalls int
	viewerURL       string
	authInfo        *domain.AuthInfo
}

func (f *fakeResolver) ResolveStatus(ctx context.Context, caseID string) (*domain.StatusSnapshot, error) {
	f.resolveCalls++
	if f.onResolve != nil {
		f.onResolve(caseID)
	}
	return f.snapshot, f.err
}

func (f *fakeResolver) InvalidateAndRefetch(ctx context.Context, caseID string) (*domain.StatusSnapshot, error) {
	f.refreshCalls++
	return f.snapshot, f.err
}

func (f *fakeResolver) AttachSlide(ctx context.Context, caseID, slideID string, patient *domain.PatientMeta) (*domain.MutationResult, error) {
	f.attachCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.MutationResult{CaseID: caseID, SlideID: slideID, MirroredToCloud: true}, nil
}

func (f *fakeResolver) DetachSlide(ctx context.Context, caseID, slideID string) (*domain.MutationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.MutationResult{CaseID: caseID, SlideID: slideID, MirroredToCloud: true}, nil
}

func (f *fakeResolver) RequestViewerLink(ctx context.Context, req domain.ViewerLinkRequest) (string, error) {
	f.viewerLinkCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.viewerURL, nil
}

func (f *fakeResolver) GetAuthInfo(ctx context.Context) (*domain.AuthInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.authInfo, nil
}

func (f *fakeResolver) ClaimPairingCode(ctx context.Context, code string) (*domain.AuthInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.authInfo, nil
}

func newTestCoordinator(engine Resolver) *RequestCoordinator {
	return NewRequestCoordinator(domain.NewNopLogger(), newStubProvider(), engine)
}

func request(t *testing.T, id, opType string, payload interface{}) domain.OpRequest {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return domain.OpRequest{ID: id, Type: opType, Payload: raw}
}

func TestSetCurrentCaseBumpsGenerationOnlyOnChange(t *testing.T) {
	c := newTestCoordinator(&fakeResolver{})
	ctx := context.Background()

	gen1 := c.SetCurrentCase(ctx, "sp000123")
	gen2 := c.SetCurrentCase(ctx, "AP000123") // canonical alias, no change
	gen3 := c.SetCurrentCase(ctx, "CY000001")

	assert.Equal(t, gen1, gen2, "re-detecting the same canonical case must not bump the generation")
	assert.Greater(t, gen3, gen2)

	current, _ := c.CurrentCase()
	assert.Equal(t, "CY000001", current)
}

func TestCaseChangedMessageMovesPointerAndSendsNoReply(t *testing.T) {
	c := newTestCoordinator(&fakeResolver{})

	res := c.Handle(context.Background(), request(t, "", domain.OpCaseChanged, domain.CaseChangedPayload{CaseID: "ap000123"}))
	assert.Nil(t, res, "case_changed is fire-and-forget")

	current, gen := c.CurrentCase()
	assert.Equal(t, "AP000123", current)
	assert.Equal(t, uint64(1), gen)

	// Empty case clears the pointer and still counts as a move.
	res = c.Handle(context.Background(), request(t, "", domain.OpCaseChanged, domain.CaseChangedPayload{}))
	assert.Nil(t, res)
	current, gen = c.CurrentCase()
	assert.Equal(t, "", current)
	assert.Equal(t, uint64(2), gen)
}

func TestResolveStatusDeliveredWhileCaseStillCurrent(t *testing.T) {
	engine := &fakeResolver{snapshot: cloudSnapshot("AP000123", "s1")}
	c := newTestCoordinator(engine)
	c.SetCurrentCase(context.Background(), "AP000123")

	res := c.Handle(context.Background(), request(t, "req-1", domain.OpResolveStatus, domain.ResolveStatusPayload{CaseID: "AP000123"}))
	require.NotNil(t, res)
	assert.Equal(t, "req-1", res.ID)
	assert.Equal(t, domain.MessageTypeResult, res.Type)
	assert.Equal(t, domain.OpResolveStatus, res.Op)
	assert.Same(t, engine.snapshot, res.Payload)
}

func TestResolveStatusDroppedWhenUserNavigatedAway(t *testing.T) {
	engine := &fakeResolver{snapshot: cloudSnapshot("AP000123", "s1")}
	c := newTestCoordinator(engine)
	// The pointer moves while the resolution is in flight.
	engine.onResolve = func(string) { c.SetCurrentCase(context.Background(), "CY000777") }
	c.SetCurrentCase(context.Background(), "AP000123")

	res := c.Handle(context.Background(), request(t, "req-1", domain.OpResolveStatus, domain.ResolveStatusPayload{CaseID: "AP000123"}))
	assert.Nil(t, res, "a result for a case that is no longer current must be dropped, not delivered")
	assert.Equal(t, 1, engine.resolveCalls)
}

func TestResolveStatusErrorAlsoSuppressedWhenStale(t *testing.T) {
	engine := &fakeResolver{err: &domain.APIError{Status: 404, Body: "gone"}}
	c := newTestCoordinator(engine)
	engine.onResolve = func(string) { c.SetCurrentCase(context.Background(), "CY000777") }
	c.SetCurrentCase(context.Background(), "AP000123")

	res := c.Handle(context.Background(), request(t, "req-1", domain.OpResolveStatus, domain.ResolveStatusPayload{CaseID: "AP000123"}))
	assert.Nil(t, res, "stale suppression applies before error mapping")
}

func TestRefreshStatusUsesInvalidatingPath(t *testing.T) {
	engine := &fakeResolver{snapshot: cloudSnapshot("AP000123")}
	c := newTestCoordinator(engine)
	c.SetCurrentCase(context.Background(), "AP000123")

	res := c.Handle(context.Background(), request(t, "req-2", domain.OpRefreshStatus, domain.ResolveStatusPayload{CaseID: "AP000123"}))
	require.NotNil(t, res)
	assert.Equal(t, 1, engine.refreshCalls)
	assert.Zero(t, engine.resolveCalls)
}

func TestViewerLinkDebouncedInsideCooldownWindow(t *testing.T) {
	engine := &fakeResolver{viewerURL: "https://viewer.test/s1"}
	c := newTestCoordinator(engine)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	current := base
	c.now = func() time.Time { return current }

	first := c.Handle(context.Background(), request(t, "vl-1", domain.OpRequestViewerLink, domain.ViewerLinkPayload{SlideID: "s1"}))
	require.NotNil(t, first)
	assert.Equal(t, domain.MessageTypeResult, first.Type)

	// A duplicate inside the window is suppressed entirely, not queued.
	current = base.Add(1500 * time.Millisecond)
	second := c.Handle(context.Background(), request(t, "vl-2", domain.OpRequestViewerLink, domain.ViewerLinkPayload{SlideID: "s1"}))
	assert.Nil(t, second)
	assert.Equal(t, 1, engine.viewerLinkCalls)

	// A different slide is independent.
	other := c.Handle(context.Background(), request(t, "vl-3", domain.OpRequestViewerLink, domain.ViewerLinkPayload{SlideID: "s2"}))
	require.NotNil(t, other)

	// After the window expires the same slide is allowed again.
	current = base.Add(2100 * time.Millisecond)
	third := c.Handle(context.Background(), request(t, "vl-4", domain.OpRequestViewerLink, domain.ViewerLinkPayload{SlideID: "s1"}))
	require.NotNil(t, third)
	assert.Equal(t, 3, engine.viewerLinkCalls)
}

func TestViewerLinkWindowClearedByTimeNotByResponse(t *testing.T) {
	engine := &fakeResolver{err: &domain.APIError{Status: 500, Body: "upstream broke"}}
	c := newTestCoordinator(engine)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	current := base
	c.now = func() time.Time { return current }

	first := c.Handle(context.Background(), request(t, "vl-1", domain.OpRequestViewerLink, domain.ViewerLinkPayload{SlideID: "s1"}))
	require.NotNil(t, first)
	assert.Equal(t, domain.MessageTypeError, first.Type, "the winning request's failure is still delivered")

	// The failed request started the window all the same.
	current = base.Add(500 * time.Millisecond)
	assert.Nil(t, c.Handle(context.Background(), request(t, "vl-2", domain.OpRequestViewerLink, domain.ViewerLinkPayload{SlideID: "s1"})))
}

func TestHandleRejectsMalformedPayloads(t *testing.T) {
	c := newTestCoordinator(&fakeResolver{})

	cases := []domain.OpRequest{
		{ID: "r1", Type: domain.OpResolveStatus, Payload: json.RawMessage(`{"caseId":""}`)},
		{ID: "r2", Type: domain.OpAttachSlide, Payload: json.RawMessage(`{"caseId":"AP1"}`)},
		{ID: "r3", Type: domain.OpDetachSlide, Payload: json.RawMessage(`not json`)},
		{ID: "r4", Type: domain.OpRequestViewerLink, Payload: json.RawMessage(`{}`)},
		{ID: "r5", Type: domain.OpClaimPairingCode, Payload: json.RawMessage(`{"code":""}`)},
		{ID: "r6", Type: "teleport_slide", Payload: json.RawMessage(`{}`)},
	}
	for _, req := range cases {
		res := c.Handle(context.Background(), req)
		require.NotNil(t, res, "request %s", req.ID)
		assert.Equal(t, domain.MessageTypeError, res.Type)
		assert.Equal(t, req.ID, res.ID)

		errResp, ok := res.Payload.(domain.ErrorResponse)
		require.True(t, ok)
		assert.Equal(t, domain.ErrCodeBadRequest, errResp.Code)
	}
}

func TestFailureMappingKeepsUpstreamStatusesDistinct(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code domain.ErrorCode
	}{
		{"not found", &domain.APIError{Status: 404, Body: "no case"}, domain.ErrCodeNotFound},
		{"expired", &domain.APIError{Status: 410, Body: "used up"}, domain.ErrCodeExpired},
		{"rate limited", &domain.APIError{Status: 429, Body: "slow down"}, domain.ErrCodeRateLimited},
		{"not configured", domain.ErrNotConfigured, domain.ErrCodeNotConfigured},
		{"other upstream", &domain.APIError{Status: 502, Body: "bad gateway"}, domain.ErrCodeUpstream},
	}

	messages := make(map[string]struct{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCoordinator(&fakeResolver{err: tc.err})
			c.SetCurrentCase(context.Background(), "AP000123")

			res := c.Handle(context.Background(), request(t, "req-x", domain.OpResolveStatus, domain.ResolveStatusPayload{CaseID: "AP000123"}))
			require.NotNil(t, res)
			assert.Equal(t, domain.MessageTypeError, res.Type)

			errResp, ok := res.Payload.(domain.ErrorResponse)
			require.True(t, ok)
			assert.Equal(t, tc.code, errResp.Code)
			messages[errResp.Message] = struct{}{}
		})
	}
	assert.Len(t, messages, len(cases), "each failure class needs its own user-facing message")
}

func TestGetAuthInfoPassesThrough(t *testing.T) {
	engine := &fakeResolver{authInfo: &domain.AuthInfo{Mode: domain.AuthDeviceToken, CredentialFingerprint: "abc123def456"}}
	c := newTestCoordinator(engine)

	res := c.Handle(context.Background(), domain.OpRequest{ID: "auth-1", Type: domain.OpGetAuthInfo})
	require.NotNil(t, res)
	assert.Equal(t, domain.MessageTypeResult, res.Type)
	assert.Same(t, engine.authInfo, res.Payload)
}
