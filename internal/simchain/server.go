package simchain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Lykhoyda/WebZjs/internal/chainsource"
	klog "github.com/Lykhoyda/WebZjs/internal/log"
	"github.com/rs/zerolog"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// maxRangeBlocks bounds one getblockrange request.
const maxRangeBlocks = 10_000

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server serves a chain source over JSON-RPC 2.0 HTTP.
type Server struct {
	addr        string
	source      chainsource.Source
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	corsOrigins []string // Empty = no CORS headers.
}

// NewServer creates a server for source listening on addr. Browser
// wallets need corsOrigins to reach it.
func NewServer(addr string, source chainsource.Source, corsOrigins ...string) *Server {
	s := &Server{
		addr:        addr,
		source:      source,
		logger:      klog.RPC,
		corsOrigins: corsOrigins,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	// Block ranges are streamed rather than built in memory.
	if req.Method == chainsource.MethodGetBlockRange {
		s.handleGetBlockRange(r.Context(), w, &req)
		return
	}

	result, rpcErr := s.dispatch(r.Context(), &req)
	if rpcErr != nil {
		writeJSON(w, Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID})
		return
	}
	writeJSON(w, Response{JSONRPC: "2.0", Result: result, ID: req.ID})
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, req *Request) (any, *Error) {
	switch req.Method {
	case chainsource.MethodGetLatestBlock:
		h, err := s.source.LatestHeight(ctx)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: err.Error()}
		}
		return chainsource.BlockID{Height: h}, nil

	case chainsource.MethodGetTreeState:
		var params chainsource.HeightParam
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
		ts, err := s.source.TreeState(ctx, params.Height)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: err.Error()}
		}
		return ts, nil

	case chainsource.MethodSendTransaction:
		var params chainsource.RawTxParam
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(params.Data)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid data: must be hex"}
		}
		resp, err := s.source.SubmitTransaction(ctx, raw)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: err.Error()}
		}
		return resp, nil

	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// handleGetBlockRange writes the result array one block at a time. A
// failure after the array has started closes it and appends an error
// member, which clients see after the blocks already sent.
func (s *Server) handleGetBlockRange(ctx context.Context, w http.ResponseWriter, req *Request) {
	var params chainsource.RangeParam
	if err := parseParams(req, &params); err != nil {
		writeJSON(w, Response{JSONRPC: "2.0", Error: err, ID: req.ID})
		return
	}
	if params.End < params.Start || params.End-params.Start >= maxRangeBlocks {
		writeError(w, req.ID, CodeInvalidParams, fmt.Sprintf("invalid range %d-%d", params.Start, params.End))
		return
	}

	id, _ := json.Marshal(req.ID)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":[`, id)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	n := 0
	for b, err := range s.source.BlockRange(ctx, params.Start, params.End) {
		if err != nil {
			msg, _ := json.Marshal(&Error{Code: CodeInternalError, Message: err.Error()})
			fmt.Fprintf(w, `],"error":%s}`, msg)
			s.logger.Warn().Err(err).Int("sent", n).Msg("Block range failed")
			return
		}
		if n > 0 {
			io.WriteString(w, ",")
		}
		if err := enc.Encode(b); err != nil {
			s.logger.Warn().Err(err).Msg("Block range write failed")
			return
		}
		n++
		if flusher != nil {
			flusher.Flush()
		}
	}
	io.WriteString(w, "]}")
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id any, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}
	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target any) *Error {
	if len(req.Params) == 0 {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(req.Params, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
