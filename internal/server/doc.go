// Package server implements the MCP (Model Context Protocol) server for the
// document scanner.
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
// Session lifecycle:
//   - scan_capture: Capture a still from the frame source, a file or an upload
//   - scan_detect: Detect document borders (or skip detection)
//   - scan_status: Current state and session snapshot
//   - scan_retake: Discard the session
//
// Corner editing:
//   - scan_adjust_corner: Move one corner
//   - scan_set_corners: Replace all four corners
//   - scan_overlay: Preview the still with the quadrilateral drawn on it
//   - scan_edges: Show the edge map the detector works on
//
// Output and storage:
//   - scan_commit: Rectify the page, optionally OCR and save it
//   - folder_create: Create a document folder
//   - document_list: List stored documents
//
// Requests are handled one at a time in arrival order.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000 and the Go error string in data. A detection whose session was
// superseded is not an error: scan_detect answers {"cancelled": true}.
package server
