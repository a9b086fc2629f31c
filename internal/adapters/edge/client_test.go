package edge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/cloudapi"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/config"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

type stubProvider struct {
	cfg *config.Config
}

func (p *stubProvider) Get() *config.Config { return p.cfg }

func (p *stubProvider) PersistPairingGrant(*domain.PairingGrant) error { return nil }

func newClientAgainst(serverURL string) *Client {
	return NewClient(&stubProvider{cfg: &config.Config{
		Cloud: config.CloudConfig{BaseURL: serverURL, DeviceToken: "tok-1"},
		Edge:  config.EdgeConfig{TimeoutSeconds: 1},
	}}, domain.NewNopLogger())
}

func TestFetchStatusWithoutAgentMakesNoNetworkCall(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	client := newClientAgainst(server.URL)
	snap := client.FetchStatus(context.Background(), "", "AP000123")
	assert.Nil(t, snap)
	assert.Zero(t, requests)
}

func TestFetchStatusTransportFailureIsUnavailableNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := newClientAgainst(server.URL)
	snap := client.FetchStatus(context.Background(), "agent-9", "AP000123")
	assert.Nil(t, snap)
}

func TestFetchStatusNonSuccessStatusIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent offline", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newClientAgainst(server.URL)
	assert.Nil(t, client.FetchStatus(context.Background(), "agent-9", "AP000123"))
}

func TestFetchStatusNullSlideListingIsUnusable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"readySlides":null,"processingSlides":[]}`))
	}))
	defer server.Close()

	client := newClientAgainst(server.URL)
	assert.Nil(t, client.FetchStatus(context.Background(), "agent-9", "AP000123"),
		"a 200 without a slide listing is not a usable edge answer")
}

func TestFetchStatusEmptyListingIsAUsableAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tunnel/agent-9/cases/AP000123/slides", r.URL.Path)
		assert.Equal(t, "tok-1", r.Header.Get(cloudapi.HeaderDeviceToken))
		w.Write([]byte(`{"readySlides":[],"processingSlides":[]}`))
	}))
	defer server.Close()

	client := newClientAgainst(server.URL)
	snap := client.FetchStatus(context.Background(), "agent-9", "AP000123")
	require.NotNil(t, snap, "an empty-but-present listing means the edge answered: no slides yet")
	assert.Equal(t, domain.ProvenanceEdge, snap.Provenance)
	assert.Empty(t, snap.ReadySlides)
	assert.False(t, snap.HasViewable())
}

func TestFetchStatusMapsSlideListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"readySlides":[{"slideId":"s1","barcode":"BC-1"}],"processingSlides":[{"slideId":"s2"}]}`))
	}))
	defer server.Close()

	client := newClientAgainst(server.URL)
	snap := client.FetchStatus(context.Background(), "agent-9", "AP000123")
	require.NotNil(t, snap)
	require.Len(t, snap.ReadySlides, 1)
	assert.Equal(t, "s1", snap.ReadySlides[0].SlideID)
	require.Len(t, snap.ProcessingSlides, 1)
	assert.True(t, snap.HasViewable())
}

func TestLinkSlideReportsConfirmation(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newClientAgainst(server.URL)
	assert.True(t, client.LinkSlide(context.Background(), "agent-9", "AP000123", "s1", nil))
	assert.Equal(t, "/tunnel/agent-9/slides/s1/case-link", gotPath)

	// Without a resolved agent the mutation is not attempted.
	assert.False(t, client.LinkSlide(context.Background(), "", "AP000123", "s1", nil))
}

func TestUnlinkSlideFailureIsUnconfirmedNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such binding", http.StatusNotFound)
	}))
	defer server.Close()

	client := newClientAgainst(server.URL)
	assert.False(t, client.UnlinkSlide(context.Background(), "agent-9", "AP000123", "s1"))
}
