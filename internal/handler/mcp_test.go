package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tester-box/internal/adapter"
	"tester-box/internal/bundle"
	"tester-box/internal/model"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

// testMeta returns request metadata naming the test shopper.
func testMeta() map[string]any {
	return map[string]any{"session": testSession}
}

func TestMCPServerCreation(t *testing.T) {
	h, _ := testHandler(&adapter.Mock{})
	if h.NewMCPServer() == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	if h.NewMCPHandler() == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPInitialize(t *testing.T) {
	_, mux := testHandler(&adapter.Mock{})

	req := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2025-06-18",
			"clientInfo": map[string]string{
				"name":    "test-client",
				"version": "1.0.0",
			},
			"capabilities": map[string]any{},
		},
	}

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	if resp.Error != nil {
		t.Errorf("Unexpected error: %+v", resp.Error)
	}
	if resp.Result == nil {
		t.Error("Expected result in response")
	}
}

func TestMCPToolsList(t *testing.T) {
	_, mux := testHandler(&adapter.Mock{})
	sessionID := initMCPSession(t, mux)

	resp := rpc(t, mux, sessionID, jsonrpcRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	var toolsResult struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expectedTools := map[string]bool{
		"get_catalog":      false,
		"get_bundle":       false,
		"apply_filter":     false,
		"select_product":   false,
		"deselect_product": false,
		"submit_bundle":    false,
		"get_cart":         false,
		"remove_cart_line": false,
		"get_wishlist":     false,
		"toggle_wishlist":  false,
	}
	for _, tool := range toolsResult.Tools {
		if _, ok := expectedTools[tool.Name]; ok {
			expectedTools[tool.Name] = true
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPGetCatalog(t *testing.T) {
	_, mux := testHandler(catalogMock())
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "get_catalog", map[string]any{
		"meta":  testMeta(),
		"brand": "Dior",
	})
	if result.IsError {
		t.Fatalf("Expected success, got error: %+v", result.Content)
	}

	var catalog model.TesterCatalog
	decodeToolText(t, result, &catalog)
	if len(catalog.Products) != 6 {
		t.Errorf("products = %d, want 6", len(catalog.Products))
	}
	for _, p := range catalog.Products {
		if p.Brand == nil || *p.Brand != "Dior" {
			t.Errorf("product %s brand = %v", p.ID, p.Brand)
		}
	}
}

func TestMCPBundleFlowSharesRESTSession(t *testing.T) {
	rec := &cartRecorder{}
	_, mux := testHandler(rec.mock())
	sessionID := initMCPSession(t, mux)

	// Nine items over REST, the tenth over MCP.
	for i := 1; i < model.BundleSize; i++ {
		do(mux, "POST", "/bundle/items", map[string]string{"product_id": fmt.Sprintf("p%d", i)})
	}
	result := callTool(t, mux, sessionID, "select_product", map[string]any{
		"meta":       testMeta(),
		"product_id": "p10",
	})
	var snap bundle.Snapshot
	decodeToolText(t, result, &snap)
	if snap.State != bundle.StateReady || snap.Count != model.BundleSize {
		t.Fatalf("state = %s count = %d", snap.State, snap.Count)
	}

	result = callTool(t, mux, sessionID, "submit_bundle", map[string]any{"meta": testMeta()})
	var view CartView
	decodeToolText(t, result, &view)
	if view.Count != 1 || view.Cart == nil || view.Cart.ID != "cart-1" {
		t.Errorf("cart view = %+v", view)
	}

	if badge := decodeBody[SessionView](t, do(mux, "GET", "/session", nil)); badge.CartCount != 1 {
		t.Errorf("REST sees cart count %d, want 1", badge.CartCount)
	}
}

func TestMCPToggleWishlist(t *testing.T) {
	_, mux := testHandler(catalogMock())
	sessionID := initMCPSession(t, mux)

	var toggle ToggleView
	decodeToolText(t, callTool(t, mux, sessionID, "toggle_wishlist", map[string]any{
		"meta":       testMeta(),
		"product_id": "p4",
	}), &toggle)
	if !toggle.Saved || toggle.Count != 1 {
		t.Errorf("toggle = %+v", toggle)
	}

	view := decodeBody[WishlistView](t, do(mux, "GET", "/wishlist", nil))
	if len(view.IDs) != 1 || view.IDs[0] != "p4" {
		t.Errorf("ids = %v", view.IDs)
	}
}

func TestMCPToolErrors(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{
			name: "unknown product",
			tool: "select_product",
			args: map[string]any{"meta": testMeta(), "product_id": "nope"},
			want: "NOT_FOUND",
		},
		{
			name: "unknown facet",
			tool: "apply_filter",
			args: map[string]any{"meta": testMeta(), "facet": "price", "value": "10"},
			want: "VALIDATION_ERROR",
		},
		{
			name: "bad session id",
			tool: "get_bundle",
			args: map[string]any{"meta": map[string]any{"session": "../etc"}},
			want: "VALIDATION_ERROR",
		},
		{
			name: "incomplete box",
			tool: "submit_bundle",
			args: map[string]any{"meta": testMeta()},
			want: "VALIDATION_ERROR",
		},
		{
			name: "no cart",
			tool: "remove_cart_line",
			args: map[string]any{"meta": testMeta(), "line_id": "line-1"},
			want: "NOT_FOUND",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, mux := testHandler(catalogMock())
			sessionID := initMCPSession(t, mux)

			msg := toolError(t, mux, sessionID, tc.tool, tc.args)
			if !strings.Contains(msg, tc.want) {
				t.Errorf("error = %q, want %s", msg, tc.want)
			}
		})
	}
}

func TestMCPMissingMeta(t *testing.T) {
	_, mux := testHandler(catalogMock())
	sessionID := initMCPSession(t, mux)

	if msg := toolError(t, mux, sessionID, "get_cart", map[string]any{}); msg == "" {
		t.Error("expected an error for missing meta")
	}
}

func TestMCPInternalErrorHidden(t *testing.T) {
	mock := catalogMock()
	mock.FetchProductsByIDsFunc = func(ctx context.Context, ids []string) ([]model.Product, error) {
		return nil, model.NewInternalError(context.DeadlineExceeded)
	}
	_, mux := testHandler(mock)
	sessionID := initMCPSession(t, mux)

	msg := toolError(t, mux, sessionID, "get_wishlist", map[string]any{"meta": testMeta()})
	if strings.Contains(msg, "deadline") {
		t.Errorf("internal detail leaked: %q", msg)
	}
}

// === helpers ===

// rpc posts one JSON-RPC message to /mcp and decodes the response.
func rpc(t *testing.T, mux *http.ServeMux, sessionID string, req jsonrpcRequest) jsonrpcResponse {
	t.Helper()

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	// MCP returns 200 OK even for tool errors, error is in the result
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

// callTool invokes a tool that is expected to succeed.
func callTool(t *testing.T, mux *http.ServeMux, sessionID, name string, args map[string]any) callToolResult {
	t.Helper()

	raw, _ := json.Marshal(args)
	resp := rpc(t, mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: raw},
	})
	if resp.Error != nil {
		t.Fatalf("%s: unexpected error: %+v", name, resp.Error)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	if result.IsError {
		t.Fatalf("%s: expected success, got error: %+v", name, result.Content)
	}
	return result
}

// toolError invokes a tool that is expected to fail and returns the error
// text, whether it came back as a JSON-RPC error or a tool error result.
func toolError(t *testing.T, mux *http.ServeMux, sessionID, name string, args map[string]any) string {
	t.Helper()

	raw, _ := json.Marshal(args)
	resp := rpc(t, mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      3,
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: raw},
	})
	if resp.Error != nil {
		return resp.Error.Message
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	if !result.IsError {
		t.Fatalf("%s: expected error, got %+v", name, result.Content)
	}
	var texts []string
	for _, c := range result.Content {
		texts = append(texts, c.Text)
	}
	return strings.Join(texts, " ")
}

func decodeToolText(t *testing.T, result callToolResult, v any) {
	t.Helper()
	if len(result.Content) == 0 || result.Content[0].Type != "text" {
		t.Fatalf("Expected text content, got %+v", result.Content)
	}
	if err := json.Unmarshal([]byte(result.Content[0].Text), v); err != nil {
		t.Fatalf("Failed to parse tool text: %v", err)
	}
}

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]any{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}

	return w.Header().Get("Mcp-Session-Id")
}
