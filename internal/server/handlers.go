package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/docscan-mcp/internal/capture"
	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
	"github.com/ironsheep/docscan-mcp/internal/ocr"
	"github.com/ironsheep/docscan-mcp/internal/storage"
)

// ErrStoreDisabled is returned by document tools when no store is configured.
var ErrStoreDisabled = errors.New("document store is not configured")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "scan_capture", "scan_commit").
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
		s.logger.Debug("tool failed", zap.String("tool", params.Name), zap.Error(err))
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
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Session lifecycle
	case "scan_capture":
		return s.handleScanCapture(ctx, args)
	case "scan_detect":
		return s.handleScanDetect(ctx, args)
	case "scan_status":
		return s.handleScanStatus()
	case "scan_retake":
		return s.handleScanRetake()

	// Corner editing
	case "scan_adjust_corner":
		return s.handleScanAdjustCorner(args)
	case "scan_set_corners":
		return s.handleScanSetCorners(args)
	case "scan_overlay":
		return s.handleScanOverlay(args)
	case "scan_edges":
		return s.handleScanEdges(ctx)

	// Output
	case "scan_commit":
		return s.handleScanCommit(ctx, args)

	// Document store
	case "folder_create":
		return s.handleFolderCreate(ctx, args)
	case "document_list":
		return s.handleDocumentList(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
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

// decodeArgs unmarshals tool arguments. Tools without required arguments may
// be called with none at all.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// sessionResult is the common response of the session tools.
type sessionResult struct {
	State   capture.State    `json:"state"`
	Session *capture.Session `json:"session,omitempty"`
}

func (s *Server) status() sessionResult {
	snap, ok := s.engine.Session()
	if !ok {
		return sessionResult{State: snap.State}
	}
	return sessionResult{State: snap.State, Session: &snap}
}

// === Session Lifecycle Handlers ===

type scanCaptureArgs struct {
	Path        string `json:"path"`
	ImageBase64 string `json:"image_base64"`
}

func (s *Server) handleScanCapture(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a scanCaptureArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	var (
		snap capture.Session
		err  error
	)
	switch {
	case a.Path != "" && a.ImageBase64 != "":
		return nil, fmt.Errorf("path and image_base64 are mutually exclusive")
	case a.Path != "":
		snap, err = s.engine.CaptureFrom(ctx, capture.NewFileSource(a.Path, s.cache))
	case a.ImageBase64 != "":
		raw, derr := base64.StdEncoding.DecodeString(a.ImageBase64)
		if derr != nil {
			return nil, fmt.Errorf("invalid image_base64: %w", derr)
		}
		img, derr := imaging.Decode(bytes.NewReader(raw))
		if derr != nil {
			return nil, derr
		}
		upload := capture.NewStaticSource()
		upload.Push(img)
		snap, err = s.engine.CaptureFrom(ctx, upload)
	default:
		snap, err = s.engine.Capture(ctx)
	}
	if err != nil {
		return nil, err
	}
	return sessionResult{State: snap.State, Session: &snap}, nil
}

type scanDetectArgs struct {
	Enabled *bool `json:"enabled"`
}

type scanDetectResult struct {
	Cancelled bool                    `json:"cancelled,omitempty"`
	Quad      *geometry.Quadrilateral `json:"quad,omitempty"`
	Fallback  bool                    `json:"fallback,omitempty"`
	State     capture.State           `json:"state"`
}

func (s *Server) handleScanDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a scanDetectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	enabled := true
	if a.Enabled != nil {
		enabled = *a.Enabled
	}

	quad, err := s.engine.DetectBorders(ctx, enabled)
	if errors.Is(err, capture.ErrDetectionCancelled) {
		// The session moved on; the result is dropped, not reported as a failure.
		return scanDetectResult{Cancelled: true, State: s.engine.State()}, nil
	}
	if err != nil {
		return nil, err
	}

	res := scanDetectResult{Quad: quad, State: s.engine.State()}
	if snap, ok := s.engine.Session(); ok {
		res.Fallback = snap.Fallback
	}
	return res, nil
}

func (s *Server) handleScanStatus() (interface{}, error) {
	return s.status(), nil
}

func (s *Server) handleScanRetake() (interface{}, error) {
	s.engine.Retake()
	return s.status(), nil
}

// === Corner Editing Handlers ===

type scanAdjustCornerArgs struct {
	Index *int     `json:"index"`
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
}

type quadResult struct {
	Quad  geometry.Quadrilateral `json:"quad"`
	State capture.State          `json:"state"`
}

func (s *Server) handleScanAdjustCorner(args json.RawMessage) (interface{}, error) {
	var a scanAdjustCornerArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Index == nil || a.X == nil || a.Y == nil {
		return nil, fmt.Errorf("index, x and y are required")
	}

	quad, err := s.engine.AdjustCorner(*a.Index, geometry.Point{X: *a.X, Y: *a.Y})
	if err != nil {
		return nil, err
	}
	return quadResult{Quad: quad, State: s.engine.State()}, nil
}

type scanSetCornersArgs struct {
	Corners []geometry.Point `json:"corners"`
}

func (s *Server) handleScanSetCorners(args json.RawMessage) (interface{}, error) {
	var a scanSetCornersArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.Corners) != 4 {
		return nil, fmt.Errorf("expected 4 corners, got %d", len(a.Corners))
	}

	var q geometry.Quadrilateral
	copy(q[:], a.Corners)
	quad, err := s.engine.SetQuadrilateral(q)
	if err != nil {
		return nil, err
	}
	return quadResult{Quad: quad, State: s.engine.State()}, nil
}

type scanOverlayArgs struct {
	Color        string `json:"color"`
	StrokeWidth  int    `json:"stroke_width"`
	HandleRadius int    `json:"handle_radius"`
	ShowLabels   *bool  `json:"show_labels"`
}

func (s *Server) handleScanOverlay(args json.RawMessage) (interface{}, error) {
	var a scanOverlayArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	opts := imaging.OverlayOptions{
		Color:        a.Color,
		StrokeWidth:  a.StrokeWidth,
		HandleRadius: a.HandleRadius,
		ShowLabels:   true,
	}
	if a.ShowLabels != nil {
		opts.ShowLabels = *a.ShowLabels
	}
	return s.engine.Overlay(opts)
}

type scanEdgesResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	EdgePixels  int    `json:"edge_pixels"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

func (s *Server) handleScanEdges(ctx context.Context) (interface{}, error) {
	edges, err := s.engine.Edges(ctx)
	if err != nil {
		return nil, err
	}
	encoded, mimeType, err := imaging.EncodeBase64(edges.Image(), imaging.FormatPNG, 0)
	if err != nil {
		return nil, err
	}
	return scanEdgesResult{
		Width:       edges.Width,
		Height:      edges.Height,
		EdgePixels:  edges.Count(),
		ImageBase64: encoded,
		MimeType:    mimeType,
	}, nil
}

// === Output Handlers ===

type scanCommitArgs struct {
	Format      string   `json:"format"`
	Quality     int      `json:"quality"`
	Save        bool     `json:"save"`
	OwnerID     string   `json:"owner_id"`
	FolderID    string   `json:"folder_id"`
	Name        string   `json:"name"`
	Tags        []string `json:"tags"`
	OCR         bool     `json:"ocr"`
	OCRLanguage string   `json:"ocr_language"`
}

type scanCommitResult struct {
	SessionID   string                 `json:"session_id"`
	Width       int                    `json:"width"`
	Height      int                    `json:"height"`
	Quad        geometry.Quadrilateral `json:"quad"`
	ContentType string                 `json:"content_type"`
	Size        int                    `json:"size"`
	ImageBase64 string                 `json:"image_base64,omitempty"`
	DocumentID  string                 `json:"document_id,omitempty"`
	SaveError   string                 `json:"save_error,omitempty"`
	OCRText     string                 `json:"ocr_text,omitempty"`
	OCRError    string                 `json:"ocr_error,omitempty"`
}

func (s *Server) handleScanCommit(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a scanCommitArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	format, err := imaging.ParseFormat(a.Format)
	if err != nil {
		return nil, err
	}
	if a.Quality == 0 {
		a.Quality = s.jpegQuality
	}
	owner := strings.TrimSpace(a.OwnerID)
	if owner == "" {
		owner = s.defaultOwner
	}
	// Check what can be checked before the session is consumed.
	if a.Save {
		if s.store == nil {
			return nil, ErrStoreDisabled
		}
		if owner == "" {
			return nil, fmt.Errorf("owner_id is required to save")
		}
	}

	page, err := s.engine.Commit(ctx)
	if err != nil {
		return nil, err
	}

	data, contentType, err := imaging.Encode(page.Image, format, a.Quality)
	if err != nil {
		return nil, err
	}

	res := scanCommitResult{
		SessionID:   page.SessionID,
		Width:       page.Width,
		Height:      page.Height,
		Quad:        page.Quad,
		ContentType: contentType,
		Size:        len(data),
	}

	if a.OCR {
		lang := a.OCRLanguage
		if lang == "" {
			lang = s.ocrLanguage
		}
		text, err := ocr.ExtractWith(page.Image, ocr.Options{Language: lang, TessdataPrefix: s.tessdataPrefix})
		if err != nil {
			s.logger.Warn("ocr failed", zap.String("session", page.SessionID), zap.Error(err))
			res.OCRError = err.Error()
		} else {
			res.OCRText = text
		}
	}

	if !a.Save {
		res.ImageBase64 = base64.StdEncoding.EncodeToString(data)
		return res, nil
	}

	name := strings.TrimSpace(a.Name)
	if name == "" {
		name = "Scan " + time.Now().Format("2006-01-02 15:04:05")
	}
	id, err := s.store.Save(ctx, storage.NewDocument{
		OwnerID:     owner,
		FolderID:    a.FolderID,
		Name:        name,
		ContentType: contentType,
		Data:        data,
		Tags:        a.Tags,
		OCRText:     res.OCRText,
	})
	if err != nil {
		// The session is already rectified; hand the page back so it is not lost.
		s.logger.Warn("failed to save page", zap.String("session", page.SessionID), zap.Error(err))
		res.SaveError = err.Error()
		res.ImageBase64 = base64.StdEncoding.EncodeToString(data)
		return res, nil
	}
	res.DocumentID = id
	return res, nil
}

// === Document Store Handlers ===

type folderCreateArgs struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

func (s *Server) handleFolderCreate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a folderCreateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, ErrStoreDisabled
	}
	if a.OwnerID == "" {
		a.OwnerID = s.defaultOwner
	}
	return s.store.CreateFolder(ctx, a.OwnerID, a.Name)
}

type documentListArgs struct {
	OwnerID  string `json:"owner_id"`
	FolderID string `json:"folder_id"`
}

func (s *Server) handleDocumentList(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a documentListArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, ErrStoreDisabled
	}
	if a.OwnerID == "" {
		a.OwnerID = s.defaultOwner
	}
	docs, err := s.store.ListDocuments(ctx, a.OwnerID, a.FolderID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	}, nil
}
