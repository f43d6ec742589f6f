// Package wikipedia exposes Wikipedia search as an MCP tool.
//
// Talks to the public REST search API directly; no wrapper library.
// Results carry article titles, URLs, descriptions, and excerpts with the
// API's highlight markup stripped.
package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zanatools/zana/internal/tools"
)

const (
	defaultLanguage   = "en"
	defaultNumResults = 3
	maxNumResults     = 10
	defaultTimeout    = 10 * time.Second
	defaultUserAgent  = "ZanaTools/1.0 (https://github.com/zanatools/zana)"

	maxResponseBytes = 1 << 20 // 1 MB
)

// htmlTag matches markup in search excerpts, like the searchmatch spans the
// API wraps around hits.
var htmlTag = regexp.MustCompile(`<[^>]*>`)

// Config holds static tool settings.
type Config struct {
	Language  string        // Default language code. Default: "en".
	UserAgent string        // Identifying User-Agent header.
	Timeout   time.Duration // Per-request timeout. Default: 10s.
}

// Tools is the Wikipedia tool set registered on the MCP server.
type Tools struct {
	client *http.Client
	config Config
	logger *slog.Logger

	// searchURL builds the search endpoint for a language. Tests point it
	// at a local server.
	searchURL func(lang string) string
}

// NewTools creates the Wikipedia tool set.
func NewTools(cfg Config, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Tools{
		client: &http.Client{},
		config: cfg,
		logger: logger,
		searchURL: func(lang string) string {
			return fmt.Sprintf("https://%s.wikipedia.org/w/rest.php/v1/search/page", lang)
		},
	}
}

// Register adds the Wikipedia tools to the registry.
func (t *Tools) Register(r tools.Registry) {
	r.AddTool(t.searchTool())
}

type searchArgs struct {
	Query      string `json:"query"`
	Lang       string `json:"lang"`
	NumResults *int   `json:"num_results"`
}

func (t *Tools) searchTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("search_wikipedia",
		mcp.WithDescription("Search Wikipedia and return summaries of the top matching articles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search term.")),
		mcp.WithString("lang", mcp.Description("Language code. Defaults to 'en'.")),
		mcp.WithNumber("num_results", mcp.Description("Number of articles to return (1-10, default 3).")),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args searchArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		numResults := defaultNumResults
		if args.NumResults != nil {
			numResults = *args.NumResults
		}
		return t.executeSearch(ctx, args.Query, args.Lang, numResults), nil
	}
}

type searchPage struct {
	Title       string `json:"title"`
	Key         string `json:"key"`
	Description string `json:"description"`
	Excerpt     string `json:"excerpt"`
}

type searchResponse struct {
	Pages []searchPage `json:"pages"`
}

type articleResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
}

type searchResult struct {
	Query   string          `json:"query"`
	Lang    string          `json:"lang"`
	Count   int             `json:"count"`
	Results []articleResult `json:"results"`
}

type searchError struct {
	Error string `json:"error"`
	Query string `json:"query,omitempty"`
}

func (t *Tools) executeSearch(ctx context.Context, query, lang string, numResults int) *mcp.CallToolResult {
	if query == "" {
		return jsonResult(searchError{Error: "Query cannot be empty"})
	}
	if lang == "" {
		lang = t.config.Language
	}
	numResults = clampResults(numResults)

	params := url.Values{
		"q":     {query},
		"limit": {strconv.Itoa(numResults)},
	}
	endpoint := t.searchURL(lang) + "?" + params.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return jsonResult(searchError{Error: fmt.Sprintf("Search failed: %v", err)})
	}
	req.Header.Set("User-Agent", t.config.UserAgent)

	t.logger.Info("wikipedia search",
		slog.String("lang", lang),
		slog.Int("num_results", numResults),
	)

	resp, err := t.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return jsonResult(searchError{Error: "Request timed out"})
		}
		return jsonResult(searchError{Error: fmt.Sprintf("Network error: %v", err)})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.logger.Warn("wikipedia API error", slog.Int("status", resp.StatusCode))
		return jsonResult(searchError{
			Error: fmt.Sprintf("Wikipedia API error: %d", resp.StatusCode),
			Query: query,
		})
	}

	var decoded searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return jsonResult(searchError{Error: fmt.Sprintf("Search failed: %v", err)})
	}

	results := make([]articleResult, 0, len(decoded.Pages))
	for _, page := range decoded.Pages {
		description := page.Description
		if description == "" {
			description = "No description available."
		}
		results = append(results, articleResult{
			Title:       page.Title,
			URL:         fmt.Sprintf("https://%s.wikipedia.org/wiki/%s", lang, page.Key),
			Description: description,
			Snippet:     stripHTML(page.Excerpt),
		})
	}

	return jsonResult(searchResult{
		Query:   query,
		Lang:    lang,
		Count:   len(results),
		Results: results,
	})
}

func clampResults(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxNumResults {
		return maxNumResults
	}
	return n
}

func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	return htmlTag.ReplaceAllString(s, "")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

func decodeArgs(request mcp.CallToolRequest, out any) error {
	data, err := json.Marshal(request.GetArguments())
	if err != nil {
		return fmt.Errorf("reading arguments: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
