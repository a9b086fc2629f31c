package edge

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

	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/cloudapi"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/config"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/application"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

// Client implements domain.EdgeSource against the local agent, reached through
// the cloud-brokered tunnel. Edge reachability is uncertain by design: every
// failure mode (no agent, timeout, non-success status, transport error,
// malformed payload) collapses to "unavailable" and the engine falls back to
// the cloud. Nothing here ever reaches the caller as an error.
type Client struct {
	httpClient     *http.Client
	configProvider config.Provider
	logger         domain.Logger
}

// NewClient creates a new edge tunnel client.
func NewClient(cfgProvider config.Provider, logger domain.Logger) *Client {
	if cfgProvider == nil {
		panic("config provider cannot be nil in edge.NewClient")
	}
	if logger == nil {
		panic("logger cannot be nil in edge.NewClient")
	}
	return &Client{
		httpClient:     &http.Client{},
		configProvider: cfgProvider,
		logger:         logger,
	}
}

// do issues one request through the tunnel with a hard short timeout.
// It returns nil on any failure.
func (c *Client) do(ctx context.Context, agentID, method, path string, body interface{}) json.RawMessage {
	if agentID == "" {
		// No agent resolved yet; skip network I/O entirely.
		return nil
	}

	cfg := c.configProvider.Get()
	mode := application.SelectAuth(cfg.Cloud)
	if !mode.Active() {
		return nil
	}

	timeout := time.Duration(cfg.Edge.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil
		}
		reqBody = bytes.NewReader(payload)
	}

	fullURL := fmt.Sprintf("%s/tunnel/%s%s", strings.TrimRight(cfg.Cloud.BaseURL, "/"), url.PathEscape(agentID), path)
	req, err := http.NewRequestWithContext(reqCtx, method, fullURL, reqBody)
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	switch mode.Kind {
	case domain.AuthDeviceToken:
		req.Header.Set(cloudapi.HeaderDeviceToken, mode.Secret)
	case domain.AuthLegacyKey:
		req.Header.Set(cloudapi.HeaderLegacyKey, mode.Secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug(ctx, "Edge tunnel request failed, treating edge as unavailable",
			"agent_id", agentID, "path", path, "error", err.Error())
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug(ctx, "Edge tunnel returned non-success status, treating edge as unavailable",
			"agent_id", agentID, "path", path, "status", resp.StatusCode)
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	return respBody
}

// statusPayload is the edge agent's slide-listing shape. ReadySlides is a
// pointer so a missing or null field is distinguishable from an empty listing:
// only a present (possibly empty) listing counts as a usable answer.
type statusPayload struct {
	ReadySlides      *[]domain.SlideRef `json:"readySlides"`
	ProcessingSlides []domain.SlideRef  `json:"processingSlides"`
	CandidateSlides  []domain.SlideRef  `json:"candidateSlides,omitempty"`
}

// FetchStatus returns the edge's view of a case, or nil when the edge is
// unavailable or its answer lacks a slide listing.
func (c *Client) FetchStatus(ctx context.Context, agentID, caseID string) *domain.StatusSnapshot {
	raw := c.do(ctx, agentID, http.MethodGet, "/cases/"+url.PathEscape(caseID)+"/slides", nil)
	if raw == nil {
		return nil
	}

	var payload statusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Debug(ctx, "Edge status payload was malformed, treating edge as unavailable",
			"agent_id", agentID, "error", err.Error())
		return nil
	}
	if payload.ReadySlides == nil {
		// The edge protocol has no explicit success field; a present slide
		// listing is the validity signal.
		c.logger.Debug(ctx, "Edge status payload had no slide listing, treating edge as unavailable", "agent_id", agentID)
		return nil
	}

	return &domain.StatusSnapshot{
		CaseID:           caseID,
		ReadySlides:      *payload.ReadySlides,
		ProcessingSlides: payload.ProcessingSlides,
		CandidateSlides:  payload.CandidateSlides,
		Provenance:       domain.ProvenanceEdge,
	}
}

type caseLinkPayload struct {
	CaseID  string              `json:"caseId"`
	Patient *domain.PatientMeta `json:"patient,omitempty"`
}

// LinkSlide binds a slide to a case on the edge agent. False means the edge
// could not confirm the mutation.
func (c *Client) LinkSlide(ctx context.Context, agentID, caseID, slideID string, patient *domain.PatientMeta) bool {
	raw := c.do(ctx, agentID, http.MethodPost, "/slides/"+url.PathEscape(slideID)+"/case-link",
		caseLinkPayload{CaseID: caseID, Patient: patient})
	return raw != nil
}

// UnlinkSlide removes a slide's case binding on the edge agent.
func (c *Client) UnlinkSlide(ctx context.Context, agentID, caseID, slideID string) bool {
	raw := c.do(ctx, agentID, http.MethodDelete, "/slides/"+url.PathEscape(slideID)+"/case-link",
		caseLinkPayload{CaseID: caseID})
	return raw != nil
}
