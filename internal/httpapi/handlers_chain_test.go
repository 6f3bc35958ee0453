package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackflow/watchtower/internal/chainevent"
	"github.com/stackflow/watchtower/internal/dispute"
	"github.com/stackflow/watchtower/internal/httpapi"
	"github.com/stackflow/watchtower/internal/store"
	"github.com/stackflow/watchtower/internal/verifier"
	"github.com/stackflow/watchtower/internal/watchtower"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", 50)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	parser := chainevent.NewParser(nil, ".stackflow-pipe")
	core := watchtower.New(st, parser, verifier.AcceptAll{}, dispute.Noop{}, nil, false, nil)
	return httpapi.New(httpapi.Config{Core: core}).Handler()
}

func TestHandleNewBlockEmptyPayloadIsAccepted(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/new_block", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "observedEvents")
}

func TestHandleNewBlockMalformedJSONIsRejected(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/new_block", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.NotEqual(t, http.StatusOK, rec.Code)
}

func TestHandleNewBurnBlockZeroHeightIsIgnored(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/new_burn_block", strings.NewReader(`{"burn_block_height": 0}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ignored":true`)
}

func TestHandleNewBurnBlockMalformedBodyIsIgnored(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/new_burn_block", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ignored":true`)
}

func TestHandleNewBurnBlockValidHeightIsProcessed(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/new_burn_block", strings.NewReader(`{"burn_block_height": 100}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "expiredClosures")
}

func TestIgnoredEndpointsReturn200(t *testing.T) {
	h := newTestHandler(t)
	for _, path := range []string{"/new_mempool_tx", "/drop_mempool_tx", "/new_microblocks"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
