// boxctl is a CLI tool for driving the tester box storefront.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	boxctl catalog [-brand B] [-type T] [-gender G]
//	boxctl bundle
//	boxctl filter -facet brand|fragrance_type|gender [-value V]
//	boxctl add -product ID
//	boxctl remove -product ID
//	boxctl submit
//	boxctl cart [-refresh]
//	boxctl remove-line -line ID
//	boxctl wishlist
//	boxctl toggle -product ID
//
// Every command takes -server URL and -session ID. Without -session the
// server starts a new session; boxctl prints its id so later calls can reuse it.
//
// Examples:
//
//	SID=$(boxctl bundle -q)
//	for p in $(boxctl catalog -session $SID -q | head -10); do boxctl add -session $SID -product $p -q; done
//	boxctl submit -session $SID
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"tester-box/internal/shopper"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	sessionID string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

// command is one boxctl subcommand.
type command struct {
	name    string
	summary string
	run     func(args []string) error
}

var commands = []command{
	{"catalog", "List tester products, optionally filtered", runCatalog},
	{"bundle", "Show the tester box in progress", runBundle},
	{"filter", "Set or clear a facet filter on the box product list", runFilter},
	{"add", "Add a product to the box", runAdd},
	{"remove", "Remove a product from the box", runRemove},
	{"submit", "Add the full box to the cart", runSubmit},
	{"cart", "Show the cart", runCart},
	{"remove-line", "Remove a line from the cart", runRemoveLine},
	{"wishlist", "Show the wishlist", runWishlist},
	{"toggle", "Save or unsave a product in the wishlist", runToggle},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "-h" || name == "-help" || name == "--help" || name == "help" {
		printUsage()
		return
	}

	for _, cmd := range commands {
		if cmd.name == name {
			if err := cmd.run(os.Args[2:]); err != nil {
				fatal("%s: %v", name, err)
			}
			return
		}
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
	printUsage()
	os.Exit(1)
}

func printUsage() {
	var b strings.Builder
	for _, cmd := range commands {
		fmt.Fprintf(&b, "  %-12s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(os.Stderr, `boxctl - tester box storefront tool

Usage:
  boxctl <command> [options]

Commands:
%s
Examples:
  # Start a session and capture its id
  SID=$(boxctl bundle -q)

  # Narrow the list and pick products
  boxctl filter -session "$SID" -facet brand -value Dior
  boxctl add -session "$SID" -product gid://shopify/Product/1

  # Send the box to the cart
  boxctl submit -session "$SID"

Run 'boxctl <command> -h' for command-specific options.
`, b.String())
}

// newFlagSet registers the flags every command shares.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", envOr("BOXCTL_SERVER", "http://localhost:8080"), "Storefront base URL")
	fs.StringVar(&sessionID, "session", os.Getenv("BOXCTL_SESSION"), "Shopper session id (new session if empty)")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output ids")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: boxctl %s %s\n\nOptions:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// =============================================================================
// RESPONSE SHAPES
// =============================================================================

type product struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Brand         *string `json:"brand"`
	FragranceType *string `json:"fragrance_type"`
	Gender        *string `json:"gender"`
	Selected      bool    `json:"selected"`
}

type money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
	Display      string `json:"display"`
}

type cartView struct {
	Cart *struct {
		ID          string `json:"id"`
		CheckoutURL string `json:"checkout_url"`
		Cost        struct {
			TotalAmount money `json:"total_amount"`
		} `json:"cost"`
		Lines []struct {
			ID          string `json:"id"`
			Quantity    int    `json:"quantity"`
			Merchandise struct {
				Title   string `json:"title"`
				Product struct {
					Title string `json:"title"`
				} `json:"product"`
				Price money `json:"price"`
			} `json:"merchandise"`
			Attributes []struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			} `json:"attributes"`
		} `json:"lines"`
	} `json:"cart"`
	Count int `json:"count"`
}

type snapshot struct {
	State      string    `json:"state"`
	Confirming bool      `json:"confirming"`
	Selected   []product `json:"selected"`
	Count      int       `json:"count"`
	Remaining  int       `json:"remaining"`
	BundleSize int       `json:"bundle_size"`
	Items      []product `json:"items"`
}

// =============================================================================
// CATALOG / BUNDLE COMMANDS
// =============================================================================

func runCatalog(args []string) error {
	fs := newFlagSet("catalog", "[-brand B] [-type T] [-gender G]")
	var brand, fragranceType, gender string
	fs.StringVar(&brand, "brand", "", "Only this brand")
	fs.StringVar(&fragranceType, "type", "", "Only this fragrance type")
	fs.StringVar(&gender, "gender", "", "Only this gender")
	parseFlags(fs, args)

	var catalog struct {
		Products []product `json:"products"`
		Filters  struct {
			Brands         []string `json:"brands"`
			FragranceTypes []string `json:"fragrance_types"`
			Genders        []string `json:"genders"`
		} `json:"filters"`
	}
	if err := doRequest("GET", catalogPath(brand, fragranceType, gender), nil, &catalog); err != nil {
		return err
	}

	if quiet {
		for _, p := range catalog.Products {
			fmt.Println(p.ID)
		}
		return nil
	}
	printSuccess("%d products", len(catalog.Products))
	for _, p := range catalog.Products {
		fmt.Printf("  %s%s%s  %s %s\n", colorCyan, p.ID, colorReset, p.Title, facets(p))
	}
	fmt.Printf("  %sBrands:%s %s\n", colorYellow, colorReset, strings.Join(catalog.Filters.Brands, ", "))
	fmt.Printf("  %sTypes:%s %s\n", colorYellow, colorReset, strings.Join(catalog.Filters.FragranceTypes, ", "))
	fmt.Printf("  %sGenders:%s %s\n", colorYellow, colorReset, strings.Join(catalog.Filters.Genders, ", "))
	return nil
}

// catalogPath builds /catalog with only the non-empty facet params.
func catalogPath(brand, fragranceType, gender string) string {
	q := url.Values{}
	if brand != "" {
		q.Set("brand", brand)
	}
	if fragranceType != "" {
		q.Set("fragrance_type", fragranceType)
	}
	if gender != "" {
		q.Set("gender", gender)
	}
	if len(q) == 0 {
		return "/catalog"
	}
	return "/catalog?" + q.Encode()
}

func runBundle(args []string) error {
	fs := newFlagSet("bundle", "")
	parseFlags(fs, args)
	return bundleRequest("GET", "/bundle", nil)
}

func runFilter(args []string) error {
	fs := newFlagSet("filter", "-facet brand|fragrance_type|gender [-value V]")
	var facet, value string
	fs.StringVar(&facet, "facet", "", "Facet to constrain (required)")
	fs.StringVar(&value, "value", "", "Value to require (empty clears the facet)")
	parseFlags(fs, args)

	if facet == "" {
		fs.Usage()
		os.Exit(1)
	}
	body := map[string]any{"facet": facet, "value": nil}
	if value != "" {
		body["value"] = value
	}
	return bundleRequest("PUT", "/bundle/filters", body)
}

func runAdd(args []string) error {
	fs := newFlagSet("add", "-product ID")
	var productID string
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	parseFlags(fs, args)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}
	return bundleRequest("POST", "/bundle/items", map[string]string{"product_id": productID})
}

func runRemove(args []string) error {
	fs := newFlagSet("remove", "-product ID")
	var productID string
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	parseFlags(fs, args)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}
	return bundleRequest("DELETE", "/bundle/items/"+url.PathEscape(productID), nil)
}

func bundleRequest(method, path string, body any) error {
	var snap snapshot
	if err := doRequest(method, path, body, &snap); err != nil {
		return err
	}

	if quiet {
		fmt.Println(sessionID)
		return nil
	}
	printSuccess("Box %d/%d (%s)", snap.Count, snap.BundleSize, snap.State)
	for i, p := range snap.Selected {
		fmt.Printf("  %2d. %s\n", i+1, p.Title)
	}
	if snap.Confirming {
		printInfo("Box is full, run 'boxctl submit' to add it to the cart")
	} else if snap.Remaining > 0 {
		printInfo("%d more to choose from %d listed products", snap.Remaining, len(snap.Items))
	}
	return nil
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runSubmit(args []string) error {
	fs := newFlagSet("submit", "")
	parseFlags(fs, args)
	return cartRequest("POST", "/bundle/submit", "Box added to cart")
}

func runCart(args []string) error {
	fs := newFlagSet("cart", "[-refresh]")
	var refresh bool
	fs.BoolVar(&refresh, "refresh", false, "Re-read the cart from the store")
	parseFlags(fs, args)

	path := "/cart"
	if refresh {
		path += "?refresh=true"
	}
	return cartRequest("GET", path, "Cart retrieved")
}

func runRemoveLine(args []string) error {
	fs := newFlagSet("remove-line", "-line ID")
	var lineID string
	fs.StringVar(&lineID, "line", "", "Cart line ID (required)")
	parseFlags(fs, args)

	if lineID == "" {
		fs.Usage()
		os.Exit(1)
	}
	return cartRequest("DELETE", "/cart/lines/"+url.PathEscape(lineID), "Line removed")
}

func cartRequest(method, path, done string) error {
	var view cartView
	if err := doRequest(method, path, nil, &view); err != nil {
		return err
	}

	if quiet {
		if view.Cart != nil {
			fmt.Println(view.Cart.CheckoutURL)
		}
		return nil
	}
	printSuccess("%s", done)
	if view.Cart == nil {
		printInfo("Cart is empty")
		return nil
	}
	fmt.Printf("  Items: %s%d%s\n", colorCyan, view.Count, colorReset)
	for _, line := range view.Cart.Lines {
		fmt.Printf("  %s%s%s  %dx %s  %s\n", colorGray, line.ID, colorReset,
			line.Quantity, line.Merchandise.Product.Title, line.Merchandise.Price.Display)
		for _, attr := range line.Attributes {
			fmt.Printf("      %s: %s\n", attr.Key, attr.Value)
		}
	}
	fmt.Printf("  Total: %s%s%s\n", colorGreen, view.Cart.Cost.TotalAmount.Display, colorReset)
	fmt.Printf("  Checkout: %s\n", view.Cart.CheckoutURL)
	return nil
}

// =============================================================================
// WISHLIST COMMANDS
// =============================================================================

func runWishlist(args []string) error {
	fs := newFlagSet("wishlist", "")
	parseFlags(fs, args)

	var view struct {
		IDs      []string  `json:"ids"`
		Products []product `json:"products"`
	}
	if err := doRequest("GET", "/wishlist", nil, &view); err != nil {
		return err
	}

	if quiet {
		for _, id := range view.IDs {
			fmt.Println(id)
		}
		return nil
	}
	printSuccess("%d saved", len(view.IDs))
	for _, p := range view.Products {
		fmt.Printf("  %s%s%s  %s %s\n", colorCyan, p.ID, colorReset, p.Title, facets(p))
	}
	if missing := len(view.IDs) - len(view.Products); missing > 0 {
		printWarning("%d saved products are no longer available", missing)
	}
	return nil
}

func runToggle(args []string) error {
	fs := newFlagSet("toggle", "-product ID")
	var productID string
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	parseFlags(fs, args)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	var view struct {
		Saved bool `json:"saved"`
		Count int  `json:"count"`
	}
	if err := doRequest("POST", "/wishlist/"+url.PathEscape(productID), nil, &view); err != nil {
		return err
	}
	if quiet {
		fmt.Println(view.Saved)
		return nil
	}
	if view.Saved {
		printSuccess("Saved (%d in wishlist)", view.Count)
	} else {
		printSuccess("Removed (%d in wishlist)", view.Count)
	}
	return nil
}

// =============================================================================
// HTTP
// =============================================================================

// doRequest sends one call as the current session and decodes the reply
// into out. A session minted by the server is adopted for the process.
func doRequest(method, path string, body, out any) error {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(serverURL, "/")+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if sessionID != "" {
		header, err := shopper.FormatHeader(sessionID)
		if err != nil {
			return fmt.Errorf("encoding session: %w", err)
		}
		req.Header.Set(shopper.HeaderName, header)
	}

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if header := resp.Header.Get(shopper.HeaderName); header != "" {
		if id, err := shopper.ParseHeader(header); err == nil && id != sessionID {
			sessionID = id
			if !quiet {
				printInfo("Session %s", sessionID)
			}
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return responseError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// responseError turns the error envelope into a readable error.
func responseError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Code    string   `json:"code"`
			Message string   `json:"message"`
			Fields  []string `json:"fields"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code == "" {
		return fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
	}
	msg := fmt.Sprintf("%s: %s", envelope.Error.Code, envelope.Error.Message)
	if len(envelope.Error.Fields) > 0 {
		msg += fmt.Sprintf(" (%s)", strings.Join(envelope.Error.Fields, "."))
	}
	return fmt.Errorf("HTTP %d %s", status, msg)
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func facets(p product) string {
	var parts []string
	for _, v := range []*string{p.Brand, p.FragranceType, p.Gender} {
		if v != nil {
			parts = append(parts, *v)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return colorGray + "(" + strings.Join(parts, ", ") + ")" + colorReset
}

func printRequest(method, path string, body []byte) {
	if !verbose {
		return
	}
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	if !verbose {
		return
	}
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(pretty.String())
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...any) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
