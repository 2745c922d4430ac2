package stellar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/synapse-market/synapse-core/internal/adapter"
)

// RPCClient defines the Soroban RPC operations the indexer and providers need
//
//go:generate mockgen -source=rpc.go -destination=../mocks/rpc.go -package=mocks -mock_names=RPCClient=MockRPCClient
type RPCClient interface {
	// GetLatestLedger returns the sequence of the latest closed ledger
	GetLatestLedger(ctx context.Context) (uint64, error)
	// GetEvents fetches contract events starting at a ledger
	GetEvents(ctx context.Context, req GetEventsRequest) (*EventsResponse, error)
	// SimulateTransaction simulates an envelope without submitting it
	SimulateTransaction(ctx context.Context, envelopeXDR string) (*SimulateResponse, error)
	// SendTransaction submits a signed envelope
	SendTransaction(ctx context.Context, envelopeXDR string) (*SendResponse, error)
	// GetTransaction polls the status of a submitted transaction
	GetTransaction(ctx context.Context, hash string) (*TransactionResponse, error)
	// GetLedgerEntries reads current ledger entries by base64 XDR keys
	GetLedgerEntries(ctx context.Context, keys []string) (*LedgerEntriesResponse, error)
}

// GetEventsRequest selects which events to fetch
type GetEventsRequest struct {
	StartLedger uint64        `json:"startLedger,omitempty"`
	Filters     []EventFilter `json:"filters"`
	Pagination  *Pagination   `json:"pagination,omitempty"`
	XDRFormat   string        `json:"xdrFormat"`
}

// EventFilter narrows events to one contract
type EventFilter struct {
	Type        string   `json:"type"`
	ContractIDs []string `json:"contractIds"`
}

// Pagination pages through event results
type Pagination struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// ContractEvent is one event emitted by a contract, with topics and value
// rendered as JSON ScVals
type ContractEvent struct {
	Type           string  `json:"type"`
	Ledger         uint64  `json:"ledger"`
	LedgerClosedAt string  `json:"ledgerClosedAt"`
	ContractID     string  `json:"contractId"`
	ID             string  `json:"id"`
	TxHash         string  `json:"txHash"`
	Topics         []ScVal `json:"topicJson"`
	Value          ScVal   `json:"valueJson"`
}

// EventsResponse is the result of a getEvents call
type EventsResponse struct {
	Events       []ContractEvent `json:"events"`
	LatestLedger uint64          `json:"latestLedger"`
	Cursor       string          `json:"cursor"`
}

// SimulateResponse is the result of a simulateTransaction call
type SimulateResponse struct {
	TransactionDataXDR string           `json:"transactionData"`
	MinResourceFee     string           `json:"minResourceFee"`
	Results            []SimulateResult `json:"results"`
	LatestLedger       uint64           `json:"latestLedger"`
	Error              string           `json:"error"`
}

// SimulateResult carries the return value of one simulated host function
type SimulateResult struct {
	ReturnValue ScVal    `json:"returnValueJson"`
	Auth        []string `json:"auth"`
}

// SendResponse is the result of a sendTransaction call
type SendResponse struct {
	Status         string `json:"status"`
	Hash           string `json:"hash"`
	ErrorResultXDR string `json:"errorResultXdr"`
	LatestLedger   uint64 `json:"latestLedger"`
}

// LedgerEntry is one current ledger entry, base64 XDR encoded
type LedgerEntry struct {
	Key                string `json:"key"`
	XDR                string `json:"xdr"`
	LastModifiedLedger uint64 `json:"lastModifiedLedgerSeq"`
}

// LedgerEntriesResponse is the result of a getLedgerEntries call
type LedgerEntriesResponse struct {
	Entries      []LedgerEntry `json:"entries"`
	LatestLedger uint64        `json:"latestLedger"`
}

// Transaction status values returned by getTransaction
const (
	TxStatusSuccess  = "SUCCESS"
	TxStatusNotFound = "NOT_FOUND"
	TxStatusFailed   = "FAILED"
	TxStatusPending  = "PENDING"
)

// TransactionResponse is the result of a getTransaction call
type TransactionResponse struct {
	Status      string `json:"status"`
	Ledger      uint64 `json:"ledger"`
	ReturnValue ScVal  `json:"returnValueJson"`
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// JSONRPCClient implements RPCClient over plain JSON-RPC 2.0
type JSONRPCClient struct {
	url        string
	httpClient adapter.HTTPClient
	nextID     atomic.Uint64
}

// NewJSONRPCClient creates an RPC client for a Soroban node
func NewJSONRPCClient(url string, httpClient adapter.HTTPClient) *JSONRPCClient {
	return &JSONRPCClient{url: url, httpClient: httpClient}
}

func (c *JSONRPCClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	respBody, err := c.httpClient.Post(ctx, c.url, "application/json", nil, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s failed: %w", method, resp.Error)
	}

	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}

	return nil
}

// GetLatestLedger returns the sequence of the latest closed ledger
func (c *JSONRPCClient) GetLatestLedger(ctx context.Context) (uint64, error) {
	var result struct {
		Sequence uint64 `json:"sequence"`
	}
	if err := c.call(ctx, "getLatestLedger", nil, &result); err != nil {
		return 0, err
	}
	return result.Sequence, nil
}

// GetEvents fetches contract events starting at a ledger
func (c *JSONRPCClient) GetEvents(ctx context.Context, req GetEventsRequest) (*EventsResponse, error) {
	if req.XDRFormat == "" {
		req.XDRFormat = "json"
	}
	var result EventsResponse
	if err := c.call(ctx, "getEvents", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SimulateTransaction simulates an envelope without submitting it
func (c *JSONRPCClient) SimulateTransaction(ctx context.Context, envelopeXDR string) (*SimulateResponse, error) {
	params := struct {
		Transaction string `json:"transaction"`
		XDRFormat   string `json:"xdrFormat"`
	}{Transaction: envelopeXDR, XDRFormat: "json"}

	var result SimulateResponse
	if err := c.call(ctx, "simulateTransaction", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendTransaction submits a signed envelope
func (c *JSONRPCClient) SendTransaction(ctx context.Context, envelopeXDR string) (*SendResponse, error) {
	params := struct {
		Transaction string `json:"transaction"`
	}{Transaction: envelopeXDR}

	var result SendResponse
	if err := c.call(ctx, "sendTransaction", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTransaction polls the status of a submitted transaction
func (c *JSONRPCClient) GetTransaction(ctx context.Context, hash string) (*TransactionResponse, error) {
	params := struct {
		Hash      string `json:"hash"`
		XDRFormat string `json:"xdrFormat"`
	}{Hash: hash, XDRFormat: "json"}

	var result TransactionResponse
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLedgerEntries reads current ledger entries by base64 XDR keys
func (c *JSONRPCClient) GetLedgerEntries(ctx context.Context, keys []string) (*LedgerEntriesResponse, error) {
	params := struct {
		Keys []string `json:"keys"`
	}{Keys: keys}

	var result LedgerEntriesResponse
	if err := c.call(ctx, "getLedgerEntries", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

var _ RPCClient = (*JSONRPCClient)(nil)
