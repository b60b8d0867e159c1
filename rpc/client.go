package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"questchain/crypto"
)

// Client is a thin JSON-RPC client for questd. Calls are signed when a key
// is configured.
type Client struct {
	endpoint string
	key      *crypto.PrivateKey
	http     *http.Client
	nextID   atomic.Int64
	nowFn    func() time.Time
}

// NewClient returns a client for endpoint. key may be nil for read-only use.
func NewClient(endpoint string, key *crypto.PrivateKey) *Client {
	c := &Client{
		endpoint: endpoint,
		key:      key,
		http:     &http.Client{Timeout: 10 * time.Second},
		nowFn:    time.Now,
	}
	// Distinct ids keep identical calls in the same second from hashing to
	// the same signed body.
	c.nextID.Store(time.Now().UnixNano())
	return c
}

type clientRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type clientResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Call invokes method with params and decodes the result into out. A nil
// params sends an empty parameter list. Server-side failures are returned as
// *RPCError.
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body := clientRequest{JSONRPC: jsonRPCVersion, Method: method, Params: []interface{}{}, ID: c.nextID.Add(1)}
	if params != nil {
		body.Params = []interface{}{params}
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != nil {
		ts, sig, err := SignRequest(c.key, buf, c.nowFn())
		if err != nil {
			return err
		}
		req.Header.Set(HeaderTimestamp, ts)
		req.Header.Set(HeaderSignature, sig)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes))
	if err != nil {
		return err
	}
	var rpcResp clientResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("rpc %s: status=%d body=%s", method, resp.StatusCode, string(raw))
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("rpc returned empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}
