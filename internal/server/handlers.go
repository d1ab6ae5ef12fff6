package server

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/ironsheep/mtobjects/internal/background"
	"github.com/ironsheep/mtobjects/internal/detect"
	"github.com/ironsheep/mtobjects/internal/imaging"
	"github.com/ironsheep/mtobjects/internal/maxtree"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "mto_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Error(component, err, map[string]interface{}{"tool": params.Name})
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Loads images from cache, detecting objects as needed
//  4. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Detection
	case "mto_detect":
		return s.handleDetect(ctx, args)
	case "mto_tree_summary":
		return s.handleTreeSummary(ctx, args)

	// Rendering
	case "mto_object_crop":
		return s.handleObjectCrop(ctx, args)
	case "mto_segmentation_map":
		return s.handleSegmentationMap(ctx, args)

	default:
		return nil, errors.Newf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

// === Detection Handlers ===

// defaultMaxObjects bounds the object list returned by mto_detect.
const defaultMaxObjects = 200

type detectArgs struct {
	Path string `json:"path"`

	// Optional overrides of the server configuration.
	Direction       string   `json:"direction"`
	Test            string   `json:"test"`
	SigmaMultiplier *float64 `json:"sigma_multiplier"`
	AreaExponent    *float64 `json:"area_exponent"`
	Floor           *float64 `json:"floor"`
	MinArea         *int     `json:"min_area"`
	MoveFactor      *float64 `json:"move_factor"`
	Deblend         *bool    `json:"deblend"`

	MaxObjects int `json:"max_objects"`
}

// DetectResponse is the mto_detect result: the detection with its object
// list possibly truncated.
type DetectResponse struct {
	detect.Result

	// ObjectCount is the number of detected objects before truncation.
	ObjectCount int `json:"object_count"`

	// Truncated reports that Objects holds only the first MaxObjects.
	Truncated bool `json:"truncated,omitempty"`
}

func (s *Server) handleDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a detectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.MaxObjects <= 0 {
		a.MaxObjects = defaultMaxObjects
	}

	pipeline, err := s.pipelineFor(a)
	if err != nil {
		return nil, err
	}
	res, err := s.detect(ctx, pipeline, a.Path)
	if err != nil {
		return nil, err
	}

	resp := &DetectResponse{Result: *res, ObjectCount: len(res.Objects)}
	if len(resp.Objects) > a.MaxObjects {
		resp.Objects = resp.Objects[:a.MaxObjects]
		resp.Truncated = true
	}
	return resp, nil
}

// pipelineFor returns the server pipeline, or a new one when a carries
// overrides.
func (s *Server) pipelineFor(a detectArgs) (*detect.Pipeline, error) {
	cfg := *s.pipeline.Config()
	changed := false
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst, changed = *v, true
		}
	}
	if a.Direction != "" {
		cfg.Detection.Direction, changed = a.Direction, true
	}
	if a.Test != "" {
		cfg.Significance.Test, changed = a.Test, true
	}
	set(&cfg.Significance.SigmaMultiplier, a.SigmaMultiplier)
	set(&cfg.Significance.AreaExponent, a.AreaExponent)
	set(&cfg.Significance.Floor, a.Floor)
	set(&cfg.Significance.MoveFactor, a.MoveFactor)
	if a.MinArea != nil {
		cfg.Significance.MinArea, changed = *a.MinArea, true
	}
	if a.Deblend != nil {
		cfg.Significance.Deblend, changed = *a.Deblend, true
	}
	if !changed {
		return s.pipeline, nil
	}
	return detect.New(&cfg, s.log)
}

// detect runs pipeline on the image at path and remembers the result.
func (s *Server) detect(ctx context.Context, pipeline *detect.Pipeline, path string) (*detect.Result, error) {
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	res, err := pipeline.Run(ctx, img)
	if err != nil {
		return nil, errors.Wrapf(err, "detecting objects in %s", path)
	}
	s.mu.Lock()
	s.results[path] = res
	s.mu.Unlock()
	return res, nil
}

// result returns the latest detection for path, running one with the
// server configuration if there is none.
func (s *Server) result(ctx context.Context, path string) (*detect.Result, error) {
	s.mu.Lock()
	res, ok := s.results[path]
	s.mu.Unlock()
	if ok {
		return res, nil
	}
	return s.detect(ctx, s.pipeline, path)
}

type pathArgs struct {
	Path string `json:"path"`
}

// TreeSummaryResponse describes the tree and decisions of a detection.
type TreeSummaryResponse struct {
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Precision  string              `json:"precision"`
	Direction  string              `json:"direction"`
	Test       string              `json:"test"`
	Tree       maxtree.Summary     `json:"tree"`
	Decisions  map[string]int      `json:"decisions"`
	Background background.Estimate `json:"background"`
	Objects    int                 `json:"objects"`
	Timings    map[string]float64  `json:"timings_ms"`
}

func (s *Server) handleTreeSummary(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	res, err := s.result(ctx, a.Path)
	if err != nil {
		return nil, err
	}
	return &TreeSummaryResponse{
		Width:      res.Width,
		Height:     res.Height,
		Precision:  res.Precision,
		Direction:  res.Direction,
		Test:       res.Test,
		Tree:       res.Tree,
		Decisions:  res.Decisions,
		Background: res.Background,
		Objects:    len(res.Objects),
		Timings:    res.Timings,
	}, nil
}

// === Rendering Handlers ===

type objectCropArgs struct {
	Path  string  `json:"path"`
	ID    int32   `json:"id"`
	Pad   *int    `json:"pad"`
	Scale float64 `json:"scale"`
}

// ObjectCropResponse is a cutout together with the object it shows.
type ObjectCropResponse struct {
	Object *detect.Object `json:"object"`
	*imaging.RenderResult
}

func (s *Server) handleObjectCrop(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a objectCropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	pad := 4
	if a.Pad != nil {
		pad = *a.Pad
	}
	if pad < 0 {
		return nil, errors.Newf("pad must be non-negative, got %d", pad)
	}

	res, err := s.result(ctx, a.Path)
	if err != nil {
		return nil, err
	}
	cut, err := res.Cutout(a.ID, pad, a.Scale)
	if err != nil {
		return nil, err
	}
	return &ObjectCropResponse{Object: res.Object(a.ID), RenderResult: cut}, nil
}

type segmentationMapArgs struct {
	Path    string   `json:"path"`
	Overlay bool     `json:"overlay"`
	Opacity *float64 `json:"opacity"`
	ShowIDs bool     `json:"show_ids"`
}

func (s *Server) handleSegmentationMap(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a segmentationMapArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	res, err := s.result(ctx, a.Path)
	if err != nil {
		return nil, err
	}
	if !a.Overlay {
		return imaging.EncodePNG(res.Segmentation())
	}

	opacity := 0.5
	if a.Opacity != nil {
		opacity = *a.Opacity
	}
	over, err := res.Overlay(opacity, a.ShowIDs)
	if err != nil {
		return nil, err
	}
	return imaging.EncodePNG(over)
}
