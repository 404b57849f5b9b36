package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// pointSchema describes a normalized {x, y} corner.
var pointSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"x": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
		"y": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
	},
	"required": []string{"x", "y"},
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Session lifecycle
		{
			Name:        "scan_capture",
			Description: "Capture a still and start a new scan session. Without a path the configured frame source is used (the newest image in the watched directory). Any previous session is discarded.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Optional absolute path of an image file to capture instead of the frame source",
					},
					"image_base64": map[string]interface{}{
						"type":        "string",
						"description": "Optional base64-encoded image (JPEG, PNG, WebP, ...) to capture instead of the frame source",
					},
				},
			},
		},
		{
			Name:        "scan_detect",
			Description: "Detect the document borders in the captured still. Returns the quadrilateral (TL, TR, BR, BL in normalized 0-1 coordinates) and whether the fallback inset was used. With enabled=false the session goes straight to review without a quadrilateral.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"enabled": map[string]interface{}{
						"type":        "boolean",
						"description": "Run automatic detection. Default true",
						"default":     true,
					},
				},
			},
		},
		{
			Name:        "scan_status",
			Description: "Return the current state and session snapshot.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "scan_retake",
			Description: "Discard the current session and return to live capture. Cancels a running detection.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},

		// Corner editing
		{
			Name:        "scan_adjust_corner",
			Description: "Move one corner of the quadrilateral. The point is clamped to the frame. Edits that make the shape self-intersecting are rejected and the previous quadrilateral is kept.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"index": map[string]interface{}{
						"type":        "integer",
						"minimum":     0,
						"maximum":     3,
						"description": "Corner index: 0=top-left, 1=top-right, 2=bottom-right, 3=bottom-left",
					},
					"x": map[string]interface{}{
						"type":        "number",
						"description": "Normalized X coordinate (0-1)",
					},
					"y": map[string]interface{}{
						"type":        "number",
						"description": "Normalized Y coordinate (0-1)",
					},
				},
				"required": []string{"index", "x", "y"},
			},
		},
		{
			Name:        "scan_set_corners",
			Description: "Replace all four corners at once, in TL, TR, BR, BL order.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"corners": map[string]interface{}{
						"type":        "array",
						"items":       pointSchema,
						"minItems":    4,
						"maxItems":    4,
						"description": "Four normalized corners",
					},
				},
				"required": []string{"corners"},
			},
		},
		{
			Name:        "scan_overlay",
			Description: "Render the captured still with the quadrilateral, corner handles and labels drawn on top. Returns a base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Stroke color as hex. Default #00C8FF",
					},
					"stroke_width": map[string]interface{}{
						"type":        "integer",
						"description": "Outline width in pixels. Default 3",
					},
					"handle_radius": map[string]interface{}{
						"type":        "integer",
						"description": "Corner handle radius in pixels. Default 8",
					},
					"show_labels": map[string]interface{}{
						"type":        "boolean",
						"description": "Draw TL/TR/BR/BL labels. Default true",
						"default":     true,
					},
				},
			},
		},

		{
			Name:        "scan_edges",
			Description: "Render the edge map the border detector sees for the captured still (downscaled, Canny, dilated) as a base64-encoded PNG. Useful for tuning the Canny thresholds.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},

		// Output
		{
			Name:        "scan_commit",
			Description: "Rectify the region inside the quadrilateral onto an upright page. Returns the encoded page, or saves it to the document store when save=true.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"format": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"jpeg", "png"},
						"description": "Output format. Default jpeg",
						"default":     "jpeg",
					},
					"quality": map[string]interface{}{
						"type":        "integer",
						"description": "JPEG quality 1-100. Default from configuration",
					},
					"save": map[string]interface{}{
						"type":        "boolean",
						"description": "Store the page as a document instead of returning it inline",
					},
					"owner_id": map[string]interface{}{
						"type":        "string",
						"description": "Document owner. Defaults to the configured owner",
					},
					"folder_id": map[string]interface{}{
						"type":        "string",
						"description": "Optional folder to file the document in",
					},
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Document name. Defaults to a timestamped name",
					},
					"tags": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Optional tags",
					},
					"ocr": map[string]interface{}{
						"type":        "boolean",
						"description": "Run OCR on the page and store the text with the document",
					},
					"ocr_language": map[string]interface{}{
						"type":        "string",
						"description": "Tesseract language code. Default from configuration",
					},
				},
			},
		},

		// Document store
		{
			Name:        "folder_create",
			Description: "Create a folder for an owner's documents.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"owner_id": map[string]interface{}{
						"type":        "string",
						"description": "Folder owner. Defaults to the configured owner",
					},
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Folder name",
					},
				},
				"required": []string{"name"},
			},
		},
		{
			Name:        "document_list",
			Description: "List an owner's stored documents, newest first, optionally restricted to one folder.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"owner_id": map[string]interface{}{
						"type":        "string",
						"description": "Document owner. Defaults to the configured owner",
					},
					"folder_id": map[string]interface{}{
						"type":        "string",
						"description": "Optional folder filter",
					},
				},
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
