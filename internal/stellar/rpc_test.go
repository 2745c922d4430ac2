package stellar

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

func newRPCServer(t *testing.T, handler func(method string, params json.RawMessage) (interface{}, *rpcError)) *JSONRPCClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      uint64          `json:"id"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "2.0", req.JSONRPC)

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return NewJSONRPCClient(srv.URL, adapter.NewHTTPClient(5*time.Second))
}

func TestGetLatestLedger(t *testing.T) {
	client := newRPCServer(t, func(method string, _ json.RawMessage) (interface{}, *rpcError) {
		require.Equal(t, "getLatestLedger", method)
		return map[string]interface{}{"sequence": 123456}, nil
	})

	seq, err := client.GetLatestLedger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), seq)
}

func TestGetEvents(t *testing.T) {
	client := newRPCServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		require.Equal(t, "getEvents", method)

		var req GetEventsRequest
		require.NoError(t, json.Unmarshal(params, &req))
		assert.Equal(t, uint64(1000), req.StartLedger)
		assert.Equal(t, "json", req.XDRFormat, "json rendering requested by default")
		require.Len(t, req.Filters, 1)
		assert.Equal(t, []string{"CCONTRACT"}, req.Filters[0].ContractIDs)

		return map[string]interface{}{
			"events": []map[string]interface{}{{
				"ledger":    1001,
				"txHash":    "abcd",
				"topicJson": []map[string]interface{}{{"symbol": "plan_st"}},
				"valueJson": map[string]interface{}{"string": "payload"},
			}},
			"latestLedger": 1050,
		}, nil
	})

	resp, err := client.GetEvents(context.Background(), GetEventsRequest{
		StartLedger: 1000,
		Filters:     []EventFilter{{Type: "contract", ContractIDs: []string{"CCONTRACT"}}},
		Pagination:  &Pagination{Limit: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1050), resp.LatestLedger)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, uint64(1001), resp.Events[0].Ledger)

	topic, err := resp.Events[0].Topics[0].Text()
	require.NoError(t, err)
	assert.Equal(t, "plan_st", topic)
}

func TestRPCErrorMapped(t *testing.T) {
	client := newRPCServer(t, func(method string, _ json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32600, Message: "invalid request"}
	})

	_, err := client.GetLatestLedger(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid request")
}

func TestSendAndGetTransaction(t *testing.T) {
	client := newRPCServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		switch method {
		case "sendTransaction":
			var req struct {
				Transaction string `json:"transaction"`
			}
			require.NoError(t, json.Unmarshal(params, &req))
			assert.Equal(t, "signed-xdr", req.Transaction)
			return map[string]interface{}{"status": "PENDING", "hash": "txhash"}, nil
		case "getTransaction":
			return map[string]interface{}{"status": "SUCCESS", "ledger": 2000}, nil
		default:
			return nil, &rpcError{Code: -32601, Message: fmt.Sprintf("unknown method %s", method)}
		}
	})

	sent, err := client.SendTransaction(context.Background(), "signed-xdr")
	require.NoError(t, err)
	assert.Equal(t, "txhash", sent.Hash)

	tx, err := client.GetTransaction(context.Background(), sent.Hash)
	require.NoError(t, err)
	assert.Equal(t, TxStatusSuccess, tx.Status)
	assert.Equal(t, uint64(2000), tx.Ledger)
}
