package cloudapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/config"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

type stubProvider struct {
	cfg *config.Config
}

func (p *stubProvider) Get() *config.Config { return p.cfg }

func (p *stubProvider) PersistPairingGrant(*domain.PairingGrant) error { return nil }

func newClientAgainst(serverURL string, cloud config.CloudConfig) *Client {
	cloud.BaseURL = serverURL
	return NewClient(&stubProvider{cfg: &config.Config{Cloud: cloud}}, domain.NewNopLogger())
}

func TestDeviceTokenWinsOverLegacyKey(t *testing.T) {
	var gotDeviceToken, gotLegacyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDeviceToken = r.Header.Get(HeaderDeviceToken)
		gotLegacyKey = r.Header.Get(HeaderLegacyKey)
		json.NewEncoder(w).Encode(statusPayload{ReadySlides: []domain.SlideRef{}})
	}))
	defer server.Close()

	client := newClientAgainst(server.URL, config.CloudConfig{DeviceToken: "tok-1", LegacyKey: "key-1"})
	_, err := client.FetchStatus(context.Background(), "AP000123")
	require.NoError(t, err)

	assert.Equal(t, "tok-1", gotDeviceToken)
	assert.Empty(t, gotLegacyKey, "the legacy key must never be sent when a device token exists")
}

func TestLegacyKeyUsedWhenNoDeviceToken(t *testing.T) {
	var gotDeviceToken, gotLegacyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDeviceToken = r.Header.Get(HeaderDeviceToken)
		gotLegacyKey = r.Header.Get(HeaderLegacyKey)
		json.NewEncoder(w).Encode(statusPayload{})
	}))
	defer server.Close()

	client := newClientAgainst(server.URL, config.CloudConfig{LegacyKey: "key-1"})
	_, err := client.FetchStatus(context.Background(), "AP000123")
	require.NoError(t, err)

	assert.Empty(t, gotDeviceToken)
	assert.Equal(t, "key-1", gotLegacyKey)
}

func TestNoCredentialFailsBeforeAnyNetworkAttempt(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	client := newClientAgainst(server.URL, config.CloudConfig{})
	_, err := client.FetchStatus(context.Background(), "AP000123")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	assert.Zero(t, requests)
}

func TestFetchStatusMapsPayloadWithCloudProvenance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/cases/AP000123/slides", r.URL.Path)
		json.NewEncoder(w).Encode(statusPayload{
			ReadySlides:      []domain.SlideRef{{SlideID: "s1", Barcode: "BC-1", StainTag: "HE"}},
			ProcessingSlides: []domain.SlideRef{{SlideID: "s2"}},
		})
	}))
	defer server.Close()

	client := newClientAgainst(server.URL, config.CloudConfig{DeviceToken: "tok-1"})
	snap, err := client.FetchStatus(context.Background(), "AP000123")
	require.NoError(t, err)

	assert.Equal(t, "AP000123", snap.CaseID)
	assert.Equal(t, domain.ProvenanceCloud, snap.Provenance)
	require.Len(t, snap.ReadySlides, 1)
	assert.Equal(t, "BC-1", snap.ReadySlides[0].Barcode)
	require.Len(t, snap.ProcessingSlides, 1)
	assert.True(t, snap.HasViewable())
}

func TestUpstreamStatusCodesStayDistinguishable(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusNotFound, domain.IsNotFound, "404"},
		{http.StatusGone, domain.IsExpired, "410"},
		{http.StatusTooManyRequests, domain.IsRateLimited, "429"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer server.Close()

			client := newClientAgainst(server.URL, config.CloudConfig{DeviceToken: "tok-1"})
			_, err := client.FetchStatus(context.Background(), "AP000123")
			require.Error(t, err)
			assert.True(t, tc.check(err))

			var apiErr *domain.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.Status)
		})
	}
}

func TestLinkSlidePostsCaseBinding(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody caseLinkPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newClientAgainst(server.URL, config.CloudConfig{DeviceToken: "tok-1"})
	err := client.LinkSlide(context.Background(), "AP000123", "s1", &domain.PatientMeta{Name: "Doe, J."})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/slides/s1/case-link", gotPath)
	assert.Equal(t, "AP000123", gotBody.CaseID)
	require.NotNil(t, gotBody.Patient)
	assert.Equal(t, "Doe, J.", gotBody.Patient.Name)
}

func TestClaimPairingCodeWithoutAnyCredentialGoesOutUnauthenticated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pairing/claim", r.URL.Path)
		assert.Empty(t, r.Header.Get(HeaderDeviceToken))
		assert.Empty(t, r.Header.Get(HeaderLegacyKey))

		var body pairingClaimPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "AB12CD", body.Code)
		assert.Equal(t, "scanner-pc", body.DeviceName)

		json.NewEncoder(w).Encode(domain.PairingGrant{DeviceToken: "tok-new", DeviceID: "dev-7"})
	}))
	defer server.Close()

	client := newClientAgainst(server.URL, config.CloudConfig{DeviceName: "scanner-pc"})
	grant, err := client.ClaimPairingCode(context.Background(), "AB12CD")
	require.NoError(t, err)
	assert.Equal(t, "tok-new", grant.DeviceToken)
	assert.Equal(t, "dev-7", grant.DeviceID)
}

func TestClaimPairingCodeSendsLegacyKeyWhenConfigured(t *testing.T) {
	var gotLegacyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLegacyKey = r.Header.Get(HeaderLegacyKey)
		json.NewEncoder(w).Encode(domain.PairingGrant{DeviceToken: "tok-new"})
	}))
	defer server.Close()

	client := newClientAgainst(server.URL, config.CloudConfig{LegacyKey: "key-1"})
	_, err := client.ClaimPairingCode(context.Background(), "AB12CD")
	require.NoError(t, err)
	assert.Equal(t, "key-1", gotLegacyKey)
}

func TestClaimPairingCodeRejectsGrantWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.PairingGrant{DeviceID: "dev-7"})
	}))
	defer server.Close()

	client := newClientAgainst(server.URL, config.CloudConfig{LegacyKey: "key-1"})
	_, err := client.ClaimPairingCode(context.Background(), "AB12CD")
	assert.ErrorContains(t, err, "no device token")
}
