package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapse-market/synapse-core/internal/adapter"
)

func newTestClient(t *testing.T, handler http.Handler) (*PinataClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewPinataClient(srv.URL, srv.URL, "key", "secret", adapter.NewHTTPClient(5*time.Second), adapter.NewClock())
	return client, srv
}

func TestPin(t *testing.T) {
	var gotAuth string
	var gotEnvelope struct {
		PinataContent struct {
			Content   string `json:"content"`
			Timestamp int64  `json:"timestamp"`
		} `json:"pinataContent"`
	}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/pinning/pinJSONToIPFS", r.URL.Path)
		gotAuth = r.Header.Get("pinata_api_key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEnvelope))
		fmt.Fprint(w, `{"IpfsHash":"QmTestCID"}`)
	}))

	cid, err := client.Pin(context.Background(), "plan content")
	require.NoError(t, err)
	assert.Equal(t, "QmTestCID", cid)
	assert.Equal(t, "key", gotAuth)
	assert.Equal(t, "plan content", gotEnvelope.PinataContent.Content)
	assert.Positive(t, gotEnvelope.PinataContent.Timestamp)
}

func TestPinEmptyCID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))

	_, err := client.Pin(context.Background(), "plan content")
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ipfs/QmTestCID", r.URL.Path)
		fmt.Fprint(w, `{"content":"plan content","timestamp":1700000000000}`)
	}))

	content, err := client.Get(context.Background(), "QmTestCID")
	require.NoError(t, err)
	assert.Equal(t, "plan content", content)
}

func TestUnpin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodDelete, r.Method)
			require.Equal(t, "/pinning/unpin/QmTestCID", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		assert.NoError(t, client.Unpin(context.Background(), "QmTestCID"))
	})

	t.Run("already unpinned", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		assert.NoError(t, client.Unpin(context.Background(), "QmGone"))
	})

	t.Run("server error", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		assert.Error(t, client.Unpin(context.Background(), "QmTestCID"))
	})
}

func TestIsPinned(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/data/pinList", r.URL.Path)
		require.Equal(t, "QmTestCID", r.URL.Query().Get("hashContains"))
		require.Equal(t, "pinned", r.URL.Query().Get("status"))
		fmt.Fprint(w, `{"count":1,"rows":[{"ipfs_pin_hash":"QmTestCID"}]}`)
	}))

	pinned, err := client.IsPinned(context.Background(), "QmTestCID")
	require.NoError(t, err)
	assert.True(t, pinned)
}
