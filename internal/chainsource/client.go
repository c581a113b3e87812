package chainsource

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Lykhoyda/WebZjs/config"
	klog "github.com/Lykhoyda/WebZjs/internal/log"
	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/types"
	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"
)

// DefaultTimeout bounds calls when no timeout is configured. Block range
// streams are bounded by their context only.
const DefaultTimeout = 30 * time.Second

// ErrBadResponse is returned when a response cannot be decoded.
var ErrBadResponse = errors.New("malformed response")

// Client is a JSON-RPC 2.0 HTTP client for a chain-data server.
type Client struct {
	endpoint string
	http     *http.Client
	stream   *http.Client
	limiter  ratelimit.Limiter
	logger   zerolog.Logger
	nextID   atomic.Int64
}

var _ Source = (*Client)(nil)

// New creates a client for endpoint with the default timeout and no
// request pacing.
func New(endpoint string) *Client {
	return NewFromConfig(config.LightwalletdConfig{URL: endpoint})
}

// NewFromConfig creates a client from the lightwalletd settings. A
// positive RequestsPerSecond paces every call, block range streams
// included.
func NewFromConfig(cfg config.LightwalletdConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limiter := ratelimit.NewUnlimited()
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RequestsPerSecond)
	}
	return &Client{
		endpoint: cfg.URL,
		http:     &http.Client{Timeout: timeout},
		stream:   &http.Client{},
		limiter:  limiter,
		logger:   klog.RPC,
	}
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(l zerolog.Logger) {
	c.logger = l
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// RPCError is returned when the server responds with an error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// post sends one request and returns the HTTP response. The caller closes
// the body.
func (c *Client) post(ctx context.Context, hc *http.Client, method string, params any) (*http.Response, error) {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.limiter.Take()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: http status %d", method, resp.StatusCode)
	}
	return resp, nil
}

// Call invokes a JSON-RPC method and unmarshals the result into result.
// If result is nil, the response result is discarded.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	resp, err := c.post(ctx, c.http, method, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("%s: %w: %v", method, ErrBadResponse, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%s: %w: %v", method, ErrBadResponse, err)
		}
	}
	return nil
}

// LatestHeight returns the height of the server's best block.
func (c *Client) LatestHeight(ctx context.Context) (types.BlockHeight, error) {
	var id BlockID
	if err := c.Call(ctx, MethodGetLatestBlock, nil, &id); err != nil {
		return 0, err
	}
	return id.Height, nil
}

// TreeState returns the tree state at the end of the block at height.
func (c *Client) TreeState(ctx context.Context, height types.BlockHeight) (*block.TreeState, error) {
	var ts block.TreeState
	if err := c.Call(ctx, MethodGetTreeState, HeightParam{Height: height}, &ts); err != nil {
		return nil, err
	}
	return &ts, nil
}

// SubmitTransaction broadcasts raw and returns the server's verdict.
func (c *Client) SubmitTransaction(ctx context.Context, raw []byte) (*SendResponse, error) {
	var resp SendResponse
	if err := c.Call(ctx, MethodSendTransaction, RawTxParam{Data: hex.EncodeToString(raw)}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BlockRange streams blocks start..end inclusive. The response's result
// array is decoded one block at a time, so a large range is never held in
// memory.
func (c *Client) BlockRange(ctx context.Context, start, end types.BlockHeight) iter.Seq2[*block.CompactBlock, error] {
	return func(yield func(*block.CompactBlock, error) bool) {
		if end < start {
			yield(nil, fmt.Errorf("%s: end %d below start %d", MethodGetBlockRange, end, start))
			return
		}
		resp, err := c.post(ctx, c.stream, MethodGetBlockRange, RangeParam{Start: start, End: end})
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		n, err := decodeBlockStream(resp.Body, yield)
		if err != nil {
			yield(nil, fmt.Errorf("%s %d-%d: %w", MethodGetBlockRange, start, end, err))
			return
		}
		c.logger.Debug().
			Uint32("start", uint32(start)).
			Uint32("end", uint32(end)).
			Int("blocks", n).
			Msg("Block range streamed")
	}
}

// decodeBlockStream walks a JSON-RPC response object, yielding each
// element of its result array as it is decoded.
func decodeBlockStream(r io.Reader, yield func(*block.CompactBlock, error) bool) (int, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return 0, err
	}
	n := 0
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return n, fmt.Errorf("%w: %v", ErrBadResponse, err)
		}
		key, _ := tok.(string)
		switch key {
		case "result":
			if err := expectDelim(dec, '['); err != nil {
				return n, err
			}
			for dec.More() {
				var b block.CompactBlock
				if err := dec.Decode(&b); err != nil {
					return n, fmt.Errorf("%w: block %d: %v", ErrBadResponse, n, err)
				}
				n++
				if !yield(&b, nil) {
					return n, nil
				}
			}
			if err := expectDelim(dec, ']'); err != nil {
				return n, err
			}
		case "error":
			var rpcErr RPCError
			if err := dec.Decode(&rpcErr); err != nil {
				return n, fmt.Errorf("%w: %v", ErrBadResponse, err)
			}
			return n, &rpcErr
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return n, fmt.Errorf("%w: %v", ErrBadResponse, err)
			}
		}
	}
	return n, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: got %v, want %v", ErrBadResponse, tok, want)
	}
	return nil
}
