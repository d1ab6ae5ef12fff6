// Package server implements the MCP (Model Context Protocol) server for object detection.
//
// This package provides a JSON-RPC 2.0 server that exposes the detection pipeline
// through the MCP protocol, so that MCP clients can find and inspect sources in
// astronomical and other noisy images.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//
// Detection:
//   - mto_detect: Detect objects, optionally overriding the configuration
//   - mto_tree_summary: Tree shape, decision counts and timings
//
// Rendering:
//   - mto_object_crop: Cut one object out of the stretched image
//   - mto_segmentation_map: Label map, alone or over the image
//
// # Caching
//
// Decoded images are cached by path for the lifetime of the server. The
// latest detection per path is kept as well; mto_tree_summary,
// mto_object_crop and mto_segmentation_map reuse it and detect with the
// server configuration only when the image has not been detected yet.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
// The server is started by "mto serve":
//
//	srv := server.New(pipeline, log)
//	if err := srv.Run(); err != nil {
//	    return err
//	}
package server
