package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfgate/hfgate/pkg/hub"
	"github.com/hfgate/hfgate/pkg/spaces"
)

func TestLiveMetrics(t *testing.T) {
	t.Run("unknown instance is rejected without upstream contact", func(t *testing.T) {
		f := newFixture(t, "alice:TOKEN_A")

		rec := f.do(http.MethodGet, "/api/proxy/live-metrics/alice/ghost", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, int64(0), f.upstream.streamCount.Load())
	})

	t.Run("stopped instance is rejected", func(t *testing.T) {
		f := newFixture(t, "alice:TOKEN_A")
		f.cache.ReplaceAll([]spaces.Space{
			{RepoID: "alice/app1", Name: "App", Status: "paused", Token: "TOKEN_A"},
		})

		rec := f.do(http.MethodGet, "/api/proxy/live-metrics/alice/app1", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "not running")
		assert.Equal(t, int64(0), f.upstream.streamCount.Load())
	})

	t.Run("running instance pipes the upstream stream", func(t *testing.T) {
		f := newFixture(t, "alice:TOKEN_A")
		f.cache.ReplaceAll([]spaces.Space{
			{RepoID: "alice/app1", Name: "App", Status: "running", Token: "TOKEN_A"},
		})
		f.upstream.streamBody = "data: {\"cpu\":0.5}\n\ndata: {\"cpu\":0.7}\n\n"

		rec := f.do(http.MethodGet, "/api/proxy/live-metrics/alice/app1", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, f.upstream.streamBody, rec.Body.String())
		assert.Equal(t, int64(1), f.upstream.streamCount.Load())
	})

	t.Run("status match is case insensitive", func(t *testing.T) {
		f := newFixture(t, "alice:TOKEN_A")
		f.cache.ReplaceAll([]spaces.Space{
			{RepoID: "alice/app1", Name: "App", Status: "RUNNING", Token: "TOKEN_A"},
		})
		f.upstream.streamBody = "data: ok\n\n"

		rec := f.do(http.MethodGet, "/api/proxy/live-metrics/alice/app1", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("upstream connect failure maps to its status", func(t *testing.T) {
		f := newFixture(t, "alice:TOKEN_A")
		f.cache.ReplaceAll([]spaces.Space{
			{RepoID: "alice/app1", Name: "App", Status: "running", Token: "TOKEN_A"},
		})
		f.upstream.streamErr = &hub.APIError{StatusCode: http.StatusBadGateway, Message: "no route"}

		rec := f.do(http.MethodGet, "/api/proxy/live-metrics/alice/app1", nil, nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "could not open metrics stream")
	})
}
