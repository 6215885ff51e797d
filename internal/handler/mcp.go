// MCP transport handler using the official MCP Go SDK.
// Exposes the storefront operations as MCP tools.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"tester-box/internal/model"
	"tester-box/internal/session"
	"tester-box/internal/shopper"
)

// === MCP Meta Types ===
// meta carries what REST clients send as headers:
// - Shopper-Session header id → meta["session"]

// MCPMeta represents request metadata in MCP requests.
type MCPMeta struct {
	Session string `json:"session" jsonschema:"shopper session id, the id of the Shopper-Session header" validate:"required"`
}

// === MCP Tool Input Types ===

// SessionInput is the input of tools that need nothing but the session.
type SessionInput struct {
	Meta MCPMeta `json:"meta" jsonschema:"request metadata"`
}

// CatalogInput is the input schema for get_catalog.
type CatalogInput struct {
	Meta          MCPMeta `json:"meta" jsonschema:"request metadata"`
	Brand         *string `json:"brand,omitempty" jsonschema:"only products of this brand"`
	FragranceType *string `json:"fragrance_type,omitempty" jsonschema:"only products of this fragrance type"`
	Gender        *string `json:"gender,omitempty" jsonschema:"only products for this gender"`
}

// FilterInput is the input schema for apply_filter.
type FilterInput struct {
	Meta  MCPMeta `json:"meta" jsonschema:"request metadata"`
	Facet string  `json:"facet" jsonschema:"one of brand, fragrance_type, gender" validate:"required,oneof=brand fragrance_type gender"`
	Value *string `json:"value,omitempty" jsonschema:"value to require; omit or null to clear the facet"`
}

// ProductInput is the input schema for tools acting on one product.
type ProductInput struct {
	Meta      MCPMeta `json:"meta" jsonschema:"request metadata"`
	ProductID string  `json:"product_id" jsonschema:"catalog product id" validate:"required,max=256"`
}

// CartInput is the input schema for get_cart.
type CartInput struct {
	Meta    MCPMeta `json:"meta" jsonschema:"request metadata"`
	Refresh bool    `json:"refresh,omitempty" jsonschema:"re-read the cart from the store first"`
}

// LineInput is the input schema for remove_cart_line.
type LineInput struct {
	Meta   MCPMeta `json:"meta" jsonschema:"request metadata"`
	LineID string  `json:"line_id" jsonschema:"cart line id" validate:"required"`
}

// NewMCPServer creates an MCP server with the storefront tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "tester-box",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Tester box storefront. Pick exactly ten perfume testers, then submit them " +
				"to the cart as one box. Every call carries meta.session to identify the shopper.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_catalog",
		Description: "List tester products with the available filter values. Optional brand, fragrance_type and gender narrow the list.",
	}, h.mcpGetCatalog)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_bundle",
		Description: "Get the tester box in progress: selection, remaining slots, active filters and the filtered product list.",
	}, h.mcpGetBundle)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_filter",
		Description: "Set or clear one facet filter of the tester box product list.",
	}, h.mcpApplyFilter)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_product",
		Description: "Add a product to the tester box. Ignored when the box already holds ten or the product is already selected.",
	}, h.mcpSelectProduct)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "deselect_product",
		Description: "Remove a product from the tester box.",
	}, h.mcpDeselectProduct)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_bundle",
		Description: "Add the full tester box to the cart as a single line. Requires exactly ten selected products.",
	}, h.mcpSubmitBundle)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the shopper's cart and item count.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_cart_line",
		Description: "Remove one line from the cart.",
	}, h.mcpRemoveCartLine)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_wishlist",
		Description: "List saved product ids and the products they resolve to.",
	}, h.mcpGetWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "toggle_wishlist",
		Description: "Save a product to the wishlist, or remove it if already saved.",
	}, h.mcpToggleWishlist)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCatalog(ctx context.Context, req *mcp.CallToolRequest, input CatalogInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	active := model.ActiveFilters{
		Brand:         nonEmpty(input.Brand),
		FragranceType: nonEmpty(input.FragranceType),
		Gender:        nonEmpty(input.Gender),
	}
	return h.mcpResult(h.catalog(ctx, s, active))
}

func (h *Handler) mcpGetBundle(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpResult(h.bundle(ctx, s))
}

func (h *Handler) mcpApplyFilter(ctx context.Context, req *mcp.CallToolRequest, input FilterInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpResult(h.applyFilter(ctx, s, input.Facet, input.Value))
}

func (h *Handler) mcpSelectProduct(ctx context.Context, req *mcp.CallToolRequest, input ProductInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpResult(h.selectProduct(ctx, s, input.ProductID))
}

func (h *Handler) mcpDeselectProduct(ctx context.Context, req *mcp.CallToolRequest, input ProductInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpResult(h.deselectProduct(ctx, s, input.ProductID))
}

func (h *Handler) mcpSubmitBundle(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpResult(h.submit(ctx, s))
}

func (h *Handler) mcpGetCart(ctx context.Context, req *mcp.CallToolRequest, input CartInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpResult(h.cart(ctx, s, input.Refresh))
}

func (h *Handler) mcpRemoveCartLine(ctx context.Context, req *mcp.CallToolRequest, input LineInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpResult(h.removeLine(ctx, s, input.LineID))
}

func (h *Handler) mcpGetWishlist(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpResult(h.wishlist(ctx, s))
}

func (h *Handler) mcpToggleWishlist(ctx context.Context, req *mcp.CallToolRequest, input ProductInput) (*mcp.CallToolResult, any, error) {
	s, err := h.mcpSession(ctx, input, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpResult(h.toggleWishlist(ctx, s, input.ProductID))
}

// mcpSession validates a tool input and resolves the session named in its meta.
func (h *Handler) mcpSession(ctx context.Context, input any, meta MCPMeta) (*session.Session, error) {
	if err := validateStruct(input); err != nil {
		return nil, h.mcpError(err)
	}
	if err := shopper.ValidateID(meta.Session); err != nil {
		return nil, h.mcpError(model.NewValidationError("meta.session", err.Error()))
	}
	s, err := h.sessions.Get(ctx, meta.Session)
	if err != nil {
		return nil, h.mcpError(err)
	}
	return s, nil
}

// mcpResult renders an operation's output as JSON text content.
func (h *Handler) mcpResult(out any, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, nil, h.mcpError(model.NewInternalError(err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// mcpError converts storefront errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Kind != model.KindInternal {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}

func nonEmpty(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}
