package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/config"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/application"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

// Authentication headers. Exactly one is attached per request, depending on
// which credential variant is active.
const (
	HeaderDeviceToken = "x-device-token"
	HeaderLegacyKey   = "x-supernavi-key"
)

// Client implements domain.CloudSource against the SuperNavi cloud API.
// It performs no retries: 4xx responses are terminal for the call and retry
// policy belongs to the caller.
type Client struct {
	httpClient     *http.Client
	configProvider config.Provider
	logger         domain.Logger
}

// NewClient creates a new cloud API client.
func NewClient(cfgProvider config.Provider, logger domain.Logger) *Client {
	if cfgProvider == nil {
		panic("config provider cannot be nil in cloudapi.NewClient")
	}
	if logger == nil {
		panic("logger cannot be nil in cloudapi.NewClient")
	}
	return &Client{
		// Per-call deadlines come from the request context; the zero-timeout
		// client defers entirely to them.
		httpClient:     &http.Client{},
		configProvider: cfgProvider,
		logger:         logger,
	}
}

// do issues one authenticated JSON request and returns the raw response body.
// A non-2xx status yields *domain.APIError carrying the status code so callers
// can distinguish 404 / 410 / 429 upstream.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	cfg := c.configProvider.Get()
	mode := application.SelectAuth(cfg.Cloud)
	if !mode.Active() {
		return nil, domain.ErrNotConfigured
	}
	return c.doWithAuth(ctx, method, path, body, &mode)
}

// doWithAuth is the transport core. mode may be nil for the single
// pre-credential call (pairing claim with no legacy key configured).
func (c *Client) doWithAuth(ctx context.Context, method, path string, body interface{}, mode *domain.AuthMode) (json.RawMessage, error) {
	cfg := c.configProvider.Get()

	timeout := time.Duration(cfg.Cloud.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body for %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	fullURL := strings.TrimRight(cfg.Cloud.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(reqCtx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if mode != nil && mode.Active() {
		switch mode.Kind {
		case domain.AuthDeviceToken:
			req.Header.Set(HeaderDeviceToken, mode.Secret)
		case domain.AuthLegacyKey:
			req.Header.Set(HeaderLegacyKey, mode.Secret)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "Cloud API request failed at transport level", "method", method, "path", path, "error", err.Error())
		return nil, fmt.Errorf("cloud request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read cloud response for %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn(ctx, "Cloud API returned non-success status",
			"method", method, "path", path, "status", resp.StatusCode)
		return nil, &domain.APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// statusPayload is the cloud's slide-listing shape for a case.
type statusPayload struct {
	ReadySlides      []domain.SlideRef `json:"readySlides"`
	ProcessingSlides []domain.SlideRef `json:"processingSlides"`
	CandidateSlides  []domain.SlideRef `json:"candidateSlides,omitempty"`
}

// FetchStatus retrieves the authoritative slide listing for a case.
func (c *Client) FetchStatus(ctx context.Context, caseID string) (*domain.StatusSnapshot, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/cases/"+url.PathEscape(caseID)+"/slides", nil)
	if err != nil {
		return nil, err
	}
	var payload statusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode cloud status for case %s: %w", caseID, err)
	}
	return &domain.StatusSnapshot{
		CaseID:           caseID,
		ReadySlides:      payload.ReadySlides,
		ProcessingSlides: payload.ProcessingSlides,
		CandidateSlides:  payload.CandidateSlides,
		Provenance:       domain.ProvenanceCloud,
	}, nil
}

type caseLinkPayload struct {
	CaseID  string              `json:"caseId"`
	Patient *domain.PatientMeta `json:"patient,omitempty"`
}

// LinkSlide binds a slide to a case in the cloud.
func (c *Client) LinkSlide(ctx context.Context, caseID, slideID string, patient *domain.PatientMeta) error {
	_, err := c.do(ctx, http.MethodPost, "/api/slides/"+url.PathEscape(slideID)+"/case-link",
		caseLinkPayload{CaseID: caseID, Patient: patient})
	return err
}

// UnlinkSlide removes a slide's case binding in the cloud.
func (c *Client) UnlinkSlide(ctx context.Context, caseID, slideID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/slides/"+url.PathEscape(slideID)+"/case-link",
		caseLinkPayload{CaseID: caseID})
	return err
}

// CreateViewerLink asks the cloud for an opaque navigable viewer URL.
func (c *Client) CreateViewerLink(ctx context.Context, req domain.ViewerLinkRequest) (string, error) {
	raw, err := c.do(ctx, http.MethodPost, "/api/viewer-links", req)
	if err != nil {
		return "", err
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode viewer link response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("viewer link response contained no url")
	}
	return out.URL, nil
}

// WhoAmI fetches the authenticated identity, including the edge agent identifier
// when one is provisioned for the account.
func (c *Client) WhoAmI(ctx context.Context) (*domain.Identity, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/auth/whoami", nil)
	if err != nil {
		return nil, err
	}
	var identity domain.Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return nil, fmt.Errorf("failed to decode whoami response: %w", err)
	}
	return &identity, nil
}

type pairingClaimPayload struct {
	Code       string `json:"code"`
	DeviceName string `json:"deviceName,omitempty"`
}

// ClaimPairingCode exchanges a 6-character pairing code for device credentials.
// Pairing precedes a device credential, so the call goes out with the legacy
// key when one is configured and unauthenticated otherwise. The cloud answers
// 404 for an unknown code, 410 for a consumed/expired one, 429 when rate limited.
func (c *Client) ClaimPairingCode(ctx context.Context, code string) (*domain.PairingGrant, error) {
	cfg := c.configProvider.Get()
	var mode *domain.AuthMode
	if cfg.Cloud.LegacyKey != "" {
		mode = &domain.AuthMode{Kind: domain.AuthLegacyKey, Secret: cfg.Cloud.LegacyKey}
	}

	raw, err := c.doWithAuth(ctx, http.MethodPost, "/api/pairing/claim",
		pairingClaimPayload{Code: code, DeviceName: cfg.Cloud.DeviceName}, mode)
	if err != nil {
		return nil, err
	}
	var grant domain.PairingGrant
	if err := json.Unmarshal(raw, &grant); err != nil {
		return nil, fmt.Errorf("failed to decode pairing grant: %w", err)
	}
	if grant.DeviceToken == "" {
		return nil, fmt.Errorf("pairing grant contained no device token")
	}
	return &grant, nil
}
