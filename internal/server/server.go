package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/ironsheep/mtobjects/internal/detect"
	"github.com/ironsheep/mtobjects/internal/imaging"
	"github.com/ironsheep/mtobjects/internal/logger"
)

const component = "server"

// Version is reported in the initialize handshake.
var Version = "dev"

// Server handles MCP protocol communication
type Server struct {
	cache    *imaging.ImageCache
	pipeline *detect.Pipeline
	log      logger.Logger

	// results holds the latest detection per image path, so that crops and
	// maps reuse it instead of detecting again.
	mu      sync.Mutex
	results map[string]*detect.Result
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a server that detects with pipeline. A nil pipeline uses the
// default configuration and a nil log discards output.
func New(pipeline *detect.Pipeline, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if pipeline == nil {
		pipeline = mustDefaultPipeline(log)
	}
	return &Server{
		cache:    imaging.NewImageCache(),
		pipeline: pipeline,
		log:      log,
		results:  make(map[string]*detect.Result),
	}
}

// mustDefaultPipeline builds a pipeline from the default configuration. The
// defaults always validate; a failure is a programming error.
func mustDefaultPipeline(log logger.Logger) *detect.Pipeline {
	pipeline, err := detect.New(nil, log)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "default detection configuration is invalid"))
	}
	return pipeline
}

// Run serves MCP on stdin and stdout until stdin closes.
func (s *Server) Run() error {
	return s.Serve(context.Background(), os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses to
// w. It returns when r is exhausted or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warning(component, "failed to parse request", map[string]interface{}{"error": err.Error()})
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.log.Error(component, err, map[string]interface{}{"method": req.Method})
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scanner error")
	}

	return nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	s.log.Debug(component, "request", map[string]interface{}{"method": req.Method})
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "mto",
				"version": Version,
			},
		},
	}
}
