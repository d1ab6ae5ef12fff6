package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file (PNG, JPEG, GIF or TIFF; 16-bit grayscale keeps full depth)",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format, bit depth and whether it is grayscale. The image stays cached for later calls.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Detection
		{
			Name:        "mto_detect",
			Description: "Detect objects (sources) in an image with a max-tree and a per-node significance test. Returns the measured background, tree statistics and one entry per object with centroid, flux, peak, shape and test score. Later crop and map calls reuse this detection.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"direction": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"bright", "dark"},
						"description": "Detect objects brighter or darker than the background. Default from configuration",
					},
					"test": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"area-scaled", "chi-squared"},
						"description": "Significance test. Default from configuration",
					},
					"sigma_multiplier": map[string]interface{}{
						"type":        "number",
						"description": "Area-scaled threshold in noise sigmas",
					},
					"area_exponent": map[string]interface{}{
						"type":        "number",
						"description": "Exponent of the area scaling",
					},
					"floor": map[string]interface{}{
						"type":        "number",
						"description": "Level in noise sigmas above the background below which nodes are not tested",
					},
					"min_area": map[string]interface{}{
						"type":        "integer",
						"description": "Smallest object area in pixels",
					},
					"move_factor": map[string]interface{}{
						"type":        "number",
						"description": "Move object boundaries up by this many noise sigmas",
					},
					"deblend": map[string]interface{}{
						"type":        "boolean",
						"description": "Split significant branches into nested objects",
					},
					"max_objects": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of objects listed. Default 200",
						"default":     defaultMaxObjects,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "mto_tree_summary",
			Description: "Summarize the max-tree of the latest detection on an image: node, root and leaf counts, depth, per-status decision counts and stage timings. Detects with the server configuration if the image has not been detected yet.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Rendering
		{
			Name:        "mto_object_crop",
			Description: "Crop one detected object from the stretched image and return it as base64-encoded PNG together with its measurements.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"id": map[string]interface{}{
						"type":        "integer",
						"description": "Object ID from mto_detect (1-based)",
					},
					"pad": map[string]interface{}{
						"type":        "integer",
						"description": "Pixels of context around the bounding box. Default 4",
						"default":     4,
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor (e.g., 4.0 to enlarge small objects). Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"path", "id"},
			},
		},
		{
			Name:        "mto_segmentation_map",
			Description: "Render the segmentation map of the latest detection as base64-encoded PNG, one colour per object, or blended over the stretched image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"overlay": map[string]interface{}{
						"type":        "boolean",
						"description": "Blend the map over the image instead of drawing it on black",
						"default":     false,
					},
					"opacity": map[string]interface{}{
						"type":        "number",
						"description": "Overlay opacity in [0, 1]. Default 0.5",
						"default":     0.5,
					},
					"show_ids": map[string]interface{}{
						"type":        "boolean",
						"description": "Draw object IDs on the overlay",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
