package slavie

import (
	"context"
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestTenor(t testing.TB, handler http.HandlerFunc) *Tenor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultTestConfig(t).Tenor
	cfg.BaseURL = srv.URL + "/v2/search"
	cfg.APIKey = "tenor-key"
	cfg.ClientKey = "slavie"
	cfg.Limit = 5
	cfg.RequestsPerSecond = 100
	return newTenor(cfg, srv.Client())
}

func TestTenorSearch(t *testing.T) {
	tenor := newTestTenor(
		t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/search", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "anime hug", q.Get("q"))
			assert.Equal(t, "tenor-key", q.Get("key"))
			assert.Equal(t, "slavie", q.Get("client_key"))
			assert.Equal(t, "5", q.Get("limit"))

			_ = json.NewEncoder(w).Encode(
				tenorSearchResponse{
					Results: []tenorResult{
						{
							ID: "1",
							MediaFormats: map[string]tenorMediaFormat{
								"gif": {URL: "https://media.tenor.com/1.gif"},
							},
						},
						{
							ID: "2",
							MediaFormats: map[string]tenorMediaFormat{
								"mp4": {URL: "https://media.tenor.com/2.mp4"},
							},
						},
					},
				},
			)
		},
	)

	urls, err := tenor.Search(context.Background(), "anime hug")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://media.tenor.com/1.gif"}, urls)

	gif, err := tenor.RandomGIF(context.Background(), "anime hug")
	require.NoError(t, err)
	assert.Equal(t, "https://media.tenor.com/1.gif", gif)
}

func TestTenorNoResults(t *testing.T) {
	tenor := newTestTenor(
		t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"results": []}`))
		},
	)
	_, err := tenor.RandomGIF(context.Background(), "nothing")
	assert.ErrorIs(t, err, errTenorNoResults)
}

func TestTenorErrorStatus(t *testing.T) {
	tenor := newTestTenor(
		t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
	)
	_, err := tenor.Search(context.Background(), "hug")
	assert.Error(t, err)
}

func TestGIFURLFallsBackOnTimeout(t *testing.T) {
	s, _ := newTestSlavie(t)
	s.tenor = newTestTenor(
		t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		},
	)
	s.tenor.config.Timeout = 50 * time.Millisecond

	start := time.Now()
	assert.Empty(t, s.gifURL(context.Background(), s.RuntimeConfig(), "anime kiss"))
	assert.Less(t, time.Since(start), 3*time.Second)

	cfg := s.RuntimeConfig()
	cfg.TenorEnabled = false
	assert.Empty(t, s.gifURL(context.Background(), cfg, "anime kiss"))
}

func TestProposalAndAbandonEmbedsHaveGIFs(t *testing.T) {
	s, _ := newTestSlavie(t)
	var queries []string
	s.tenor = newTestTenor(
		t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query().Get("q")
			queries = append(queries, q)
			_ = json.NewEncoder(w).Encode(
				tenorSearchResponse{
					Results: []tenorResult{
						{
							ID: q,
							MediaFormats: map[string]tenorMediaFormat{
								"gif": {URL: "https://media.tenor.com/" + q + ".gif"},
							},
						},
					},
				},
			)
		},
	)

	resp := interact(t, s, slashInteraction(testMember("alice", 0), commandMarry, userOpt(optionMember, "bob")))
	require.Len(t, resp.Data.Embeds, 1)
	require.NotNil(t, resp.Data.Embeds[0].Image)
	assert.Equal(t, "https://media.tenor.com/"+tenorQueryProposal+".gif", resp.Data.Embeds[0].Image.URL)

	adopt(t, s.engine, "alice", "carol")
	resp = interact(t, s, slashInteraction(testMember("alice", 0), commandAbandon, userOpt(optionMember, "carol")))
	require.Len(t, resp.Data.Embeds, 1)
	require.NotNil(t, resp.Data.Embeds[0].Image)

	assert.Equal(t, []string{tenorQueryProposal, tenorQueryAbandon}, queries)
}
