// Package tools is the single invocation surface shared by the HTTP and MCP
// front ends: a named operation plus a string-keyed argument map.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/aem"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/metrics"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/models"
)

// Tool names.
const (
	ListFolders         = "list_folders"
	ListPublishedAssets = "list_published_assets"
	SearchAssets        = "search_assets"
	ListAssetsByFolder  = "list_assets_by_folder"
	BulkUpdateMetadata  = "bulk_update_metadata"
	ListAssetsByCreator = "list_assets_by_creator"
	ListAllAssets       = "list_all_assets"
	GetAssetDetails     = "get_asset_details"
	UpdateAssetMetadata = "update_asset_metadata"
)

// Front ends, used as the metrics label and audit actor.
const (
	FrontendHTTP = "http"
	FrontendMCP  = "mcp"
	FrontendCLI  = "cli"
)

// Gateway is the set of asset operations the tools expose.
type Gateway interface {
	ListFolders(ctx context.Context, path string) ([]models.Folder, error)
	ListAssets(ctx context.Context, opts aem.ListOptions) ([]models.Asset, error)
	SearchAssets(ctx context.Context, query string, limit int) ([]models.Asset, error)
	GetPublishedAssets(ctx context.Context, limit int) ([]models.Asset, error)
	GetAssetsByCreator(ctx context.Context, createdBy string, limit int) ([]models.Asset, error)
	GetAssetsByFolder(ctx context.Context, path string) ([]models.Asset, error)
	GetAsset(ctx context.Context, path string) (*models.Asset, error)
	UpdateAssetMetadata(ctx context.Context, path string, fields map[string]any) (*models.Asset, error)
}

// BulkRunner performs folder-wide metadata updates.
type BulkRunner interface {
	BulkUpdate(ctx context.Context, folderPath string, fields map[string]any) (*models.BulkUpdateResult, error)
}

// Tool describes one operation.
type Tool struct {
	Name        string
	Description string
	Required    []string
	Optional    []string
}

type handler func(ctx context.Context, args Args) (any, error)

var catalog = []Tool{
	{Name: ListFolders, Description: "List folders under a DAM path", Optional: []string{"path"}},
	{Name: ListPublishedAssets, Description: "List assets that are published", Optional: []string{"limit"}},
	{Name: SearchAssets, Description: "Full-text search across assets", Required: []string{"query"}, Optional: []string{"limit"}},
	{Name: ListAssetsByFolder, Description: "List the assets in a folder", Required: []string{"folderPath"}},
	{Name: BulkUpdateMetadata, Description: "Update metadata on one asset or on every asset in a folder", Required: []string{"metadata", "assetId|folderPath"}},
	{Name: ListAssetsByCreator, Description: "List assets created by a user", Required: []string{"createdBy"}, Optional: []string{"limit"}},
	{Name: ListAllAssets, Description: "List assets, optionally under a path", Optional: []string{"path", "limit"}},
	{Name: GetAssetDetails, Description: "Get full details and metadata of one asset", Required: []string{"assetId"}},
	{Name: UpdateAssetMetadata, Description: "Update metadata fields of one asset", Required: []string{"assetId", "metadata"}},
}

// Dispatcher validates arguments and routes tool calls to the gateway and
// bulk runner.
type Dispatcher struct {
	gateway  Gateway
	bulk     BulkRunner
	handlers map[string]handler
	logger   *logging.Logger
	metrics  *metrics.Metrics
	audit    logging.AuditStore
}

type Option func(*Dispatcher)

func WithLogger(logger *logging.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithAuditStore records a TOOL_CALL event for every invocation.
func WithAuditStore(store logging.AuditStore) Option {
	return func(d *Dispatcher) {
		d.audit = store
	}
}

func NewDispatcher(gateway Gateway, bulk BulkRunner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gateway: gateway,
		bulk:    bulk,
		logger:  logging.NewLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = map[string]handler{
		ListFolders:         d.listFolders,
		ListPublishedAssets: d.listPublishedAssets,
		SearchAssets:        d.searchAssets,
		ListAssetsByFolder:  d.listAssetsByFolder,
		BulkUpdateMetadata:  d.bulkUpdateMetadata,
		ListAssetsByCreator: d.listAssetsByCreator,
		ListAllAssets:       d.listAllAssets,
		GetAssetDetails:     d.getAssetDetails,
		UpdateAssetMetadata: d.updateAssetMetadata,
	}
	return d
}

// Tools returns the catalog in display order.
func (d *Dispatcher) Tools() []Tool {
	out := make([]Tool, len(catalog))
	copy(out, catalog)
	return out
}

// Names returns the tool names in display order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(catalog))
	for _, t := range catalog {
		names = append(names, t.Name)
	}
	return names
}

// Call runs one tool. Invocation mistakes come back as *errors.ErrUnknownTool
// or *errors.ErrMissingArgument; everything else is an operation failure.
func (d *Dispatcher) Call(ctx context.Context, frontend, name string, args map[string]any) (any, error) {
	h, ok := d.handlers[name]
	if !ok {
		err := &errors.ErrUnknownTool{Name: name}
		d.record(ctx, frontend, name, err)
		return nil, err
	}

	d.logger.InfoWithContext(ctx, "tool call", "tool", name, "frontend", frontend)
	result, err := h(ctx, Args(args))
	d.record(ctx, frontend, name, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Dispatcher) record(ctx context.Context, frontend, name string, err error) {
	d.metrics.RecordToolCall(name, frontend, err == nil)
	if err != nil {
		d.logger.WarnWithContext(ctx, "tool call failed", "tool", name, "frontend", frontend, "error", err.Error())
	}
	if d.audit == nil {
		return
	}
	event := logging.NewAuditEvent(logging.ToolCall, name, logging.StatusSuccess).
		WithActor(frontend).
		WithContext(ctx)
	if err != nil {
		event.WithError(err.Error())
		if errors.IsClientError(err) {
			event.WithSeverity(logging.SeverityWarning)
		}
	}
	d.audit.SaveEventAsync(event)
}

func (d *Dispatcher) listFolders(ctx context.Context, args Args) (any, error) {
	return d.gateway.ListFolders(ctx, args.StringOr("path", "/"))
}

func (d *Dispatcher) listPublishedAssets(ctx context.Context, args Args) (any, error) {
	limit, err := args.Limit()
	if err != nil {
		return nil, err
	}
	return d.gateway.GetPublishedAssets(ctx, limit)
}

func (d *Dispatcher) searchAssets(ctx context.Context, args Args) (any, error) {
	query, err := args.RequireString("query")
	if err != nil {
		return nil, err
	}
	limit, err := args.Limit()
	if err != nil {
		return nil, err
	}
	return d.gateway.SearchAssets(ctx, query, limit)
}

func (d *Dispatcher) listAssetsByFolder(ctx context.Context, args Args) (any, error) {
	folder, err := args.RequireString("folderPath")
	if err != nil {
		return nil, err
	}
	return d.gateway.GetAssetsByFolder(ctx, folder)
}

func (d *Dispatcher) listAssetsByCreator(ctx context.Context, args Args) (any, error) {
	createdBy, err := args.RequireString("createdBy")
	if err != nil {
		return nil, err
	}
	limit, err := args.Limit()
	if err != nil {
		return nil, err
	}
	return d.gateway.GetAssetsByCreator(ctx, createdBy, limit)
}

func (d *Dispatcher) listAllAssets(ctx context.Context, args Args) (any, error) {
	limit, err := args.Limit()
	if err != nil {
		return nil, err
	}
	return d.gateway.ListAssets(ctx, aem.ListOptions{Path: args.StringOr("path", ""), Limit: limit})
}

func (d *Dispatcher) getAssetDetails(ctx context.Context, args Args) (any, error) {
	id, err := args.RequireString("assetId")
	if err != nil {
		return nil, err
	}
	return d.gateway.GetAsset(ctx, id)
}

func (d *Dispatcher) updateAssetMetadata(ctx context.Context, args Args) (any, error) {
	id, err := args.RequireString("assetId")
	if err != nil {
		return nil, err
	}
	fields, err := args.RequireObject("metadata")
	if err != nil {
		return nil, err
	}
	return d.gateway.UpdateAssetMetadata(ctx, id, fields)
}

// bulkUpdateMetadata updates a single asset when assetId is given, otherwise
// every asset in folderPath.
func (d *Dispatcher) bulkUpdateMetadata(ctx context.Context, args Args) (any, error) {
	fields, err := args.RequireObject("metadata")
	if err != nil {
		return nil, err
	}
	if id := args.StringOr("assetId", ""); id != "" {
		return d.gateway.UpdateAssetMetadata(ctx, id, fields)
	}
	if folder := args.StringOr("folderPath", ""); folder != "" {
		return d.bulk.BulkUpdate(ctx, folder, fields)
	}
	return nil, &errors.ErrMissingArgument{
		Field:   "assetId",
		Message: "Either assetId or folderPath parameter is required",
	}
}

// Args wraps the loosely typed argument map of a tool call.
type Args map[string]any

// StringOr returns the named string argument, or def when it is absent or
// empty.
func (a Args) StringOr(name, def string) string {
	if v, ok := a[name]; ok && v != nil {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return def
}

// RequireString returns the named argument or an ErrMissingArgument.
func (a Args) RequireString(name string) (string, error) {
	s := a.StringOr(name, "")
	if s == "" {
		return "", &errors.ErrMissingArgument{Field: name}
	}
	return s, nil
}

// RequireObject returns the named argument as a JSON object. A JSON string
// holding an object is accepted too.
func (a Args) RequireObject(name string) (map[string]any, error) {
	switch v := a[name].(type) {
	case map[string]any:
		if len(v) > 0 {
			return v, nil
		}
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err == nil && len(m) > 0 {
			return m, nil
		}
	}
	return nil, &errors.ErrMissingArgument{Field: name}
}

// Limit reads the optional limit argument. It accepts a JSON number or a
// numeric string; absent means the gateway default.
func (a Args) Limit() (int, error) {
	v, ok := a["limit"]
	if !ok || v == nil {
		return aem.DefaultLimit, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, &errors.ErrMissingArgument{Field: "limit", Message: "limit must be an integer"}
		}
		return int(i), nil
	case string:
		if strings.TrimSpace(n) == "" {
			return aem.DefaultLimit, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, &errors.ErrMissingArgument{Field: "limit", Message: "limit must be an integer"}
		}
		return i, nil
	}
	return 0, &errors.ErrMissingArgument{Field: "limit", Message: "limit must be an integer"}
}
