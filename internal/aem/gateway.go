package aem

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/metrics"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/models"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/transport"
)

// DefaultLimit is used when a listing does not ask for a positive limit.
const DefaultLimit = 100

// TokenProvider yields a valid bearer token, refreshing it when needed.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// ListOptions narrows ListAssets. Published and CreatedBy are applied to the
// fetched page, not sent upstream.
type ListOptions struct {
	Path      string
	Published *bool
	CreatedBy string
	Query     string
	Limit     int
}

// Gateway routes each operation to the modern or classic API surface and
// normalizes the responses into models.Asset and models.Folder.
type Gateway struct {
	client   *transport.Client
	baseURL  string
	clientID string
	oauth    TokenProvider
	classic  TokenProvider
	logger   *logging.Logger
	metrics  *metrics.Metrics
	audit    logging.AuditStore
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithServiceAccount enables the classic API surface. Without it, classic
// operations fail with a configuration error.
func WithServiceAccount(p TokenProvider) Option {
	return func(g *Gateway) {
		g.classic = p
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithAuditStore records metadata writes.
func WithAuditStore(store logging.AuditStore) Option {
	return func(g *Gateway) {
		g.audit = store
	}
}

// NewGateway creates a gateway for the AEM author instance at baseURL. The
// OAuth provider backs the modern surface and clientID is sent as its API key.
func NewGateway(client *transport.Client, baseURL, clientID string, oauth TokenProvider, opts ...Option) *Gateway {
	g := &Gateway{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		oauth:    oauth,
		logger:   logging.NewLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// HasServiceAccount reports whether classic operations are available.
func (g *Gateway) HasServiceAccount() bool {
	return g.classic != nil
}

// ListFolders returns the subfolders of path from the folders API.
func (g *Gateway) ListFolders(ctx context.Context, path string) ([]models.Folder, error) {
	body, err := g.modern(ctx, foldersEndpoint, url.Values{
		"path":  {DAMPath(path)},
		"limit": {strconv.Itoa(DefaultLimit)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	children := objects(body["children"])
	folders := make([]models.Folder, 0, len(children))
	for _, child := range children {
		folders = append(folders, mapFolder(child))
	}
	g.logger.DebugWithContext(ctx, "listed folders", "path", path, "count", len(folders))
	return folders, nil
}

// ListAssets queries the assets API and applies the published and creator
// filters client-side.
func (g *Gateway) ListAssets(ctx context.Context, opts ListOptions) ([]models.Asset, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if opts.Path != "" {
		query.Set("path", DAMPath(opts.Path))
	}
	if opts.Query != "" {
		query.Set("fulltext", opts.Query)
	}

	body, err := g.modern(ctx, assetsEndpoint, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	items := objects(body["items"])
	if len(items) == 0 {
		items = objects(body["entities"])
	}

	assets := make([]models.Asset, 0, len(items))
	for _, item := range items {
		asset := mapAsset(item)
		if opts.Published != nil && asset.Published != *opts.Published {
			continue
		}
		if opts.CreatedBy != "" && (asset.CreatedBy == nil || *asset.CreatedBy != opts.CreatedBy) {
			continue
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func (g *Gateway) SearchAssets(ctx context.Context, query string, limit int) ([]models.Asset, error) {
	return g.ListAssets(ctx, ListOptions{Query: query, Limit: limit})
}

func (g *Gateway) GetPublishedAssets(ctx context.Context, limit int) ([]models.Asset, error) {
	published := true
	return g.ListAssets(ctx, ListOptions{Published: &published, Limit: limit})
}

func (g *Gateway) GetAssetsByCreator(ctx context.Context, createdBy string, limit int) ([]models.Asset, error) {
	return g.ListAssets(ctx, ListOptions{CreatedBy: createdBy, Limit: limit})
}

// GetAssetsByFolder lists the assets directly inside a folder. The classic
// API is tried first; when it answers 403 the folders API is asked instead,
// since permissions for the two surfaces are granted independently. Any other
// failure is returned as is.
func (g *Gateway) GetAssetsByFolder(ctx context.Context, path string) ([]models.Asset, error) {
	rel := NormalizePath(path)
	token, err := g.classicToken(ctx)
	if err != nil {
		return nil, err
	}
	body, err := g.classicFetch(ctx, token, path)
	if err == nil {
		return classicFolderAssets(rel, body), nil
	}

	if errors.StatusCode(err) != http.StatusForbidden {
		return nil, err
	}

	g.metrics.RecordFolderFallback()
	g.logger.WarnWithContext(ctx, "classic listing forbidden, falling back to folders API", "path", path)

	folder, ferr := g.modern(ctx, foldersEndpoint, url.Values{
		"path":  {DAMPath(path)},
		"limit": {strconv.Itoa(DefaultLimit)},
	})
	if ferr != nil {
		return nil, fmt.Errorf("failed to list assets in folder: %w", ferr)
	}

	var assets []models.Asset
	for _, child := range objects(folder["children"]) {
		if !looksLikeAsset(child) {
			continue
		}
		asset := mapAsset(child)
		if asset.Path == "" && asset.Name != "" {
			asset.Path = DAMPath(joinRel(rel, asset.Name))
		}
		assets = append(assets, asset)
	}
	if assets == nil {
		assets = []models.Asset{}
	}
	return assets, nil
}

// GetAsset fetches one asset from the classic API. Every Siren property is
// kept in Metadata, including non-standard ones such as predicted tags.
func (g *Gateway) GetAsset(ctx context.Context, path string) (*models.Asset, error) {
	body, err := g.classicGet(ctx, path)
	if err != nil {
		return nil, err
	}

	properties, _ := body["properties"].(map[string]any)
	if properties == nil {
		properties = map[string]any{}
	}
	asset := classicAsset(NormalizePath(path), "", properties)
	return &asset, nil
}

// UpdateAssetMetadata writes fields to the asset through the classic API and
// returns the asset as re-read after the write.
func (g *Gateway) UpdateAssetMetadata(ctx context.Context, path string, fields map[string]any) (*models.Asset, error) {
	token, err := g.classicToken(ctx)
	if err != nil {
		return nil, err
	}

	properties := MapMetadataFields(fields)
	_, err = g.client.Do(ctx, transport.Request{
		Method: http.MethodPut,
		URL:    classicItemURL(g.baseURL, path),
		Token:  token,
		Body: map[string]any{
			"class":      "asset",
			"properties": properties,
		},
		Surface: transport.SurfaceClassic,
	})
	g.recordUpdate(ctx, path, properties, err)
	if err != nil {
		return nil, err
	}

	return g.GetAsset(ctx, path)
}

func (g *Gateway) recordUpdate(ctx context.Context, path string, properties map[string]any, err error) {
	if err != nil {
		g.logger.ErrorWithContext(ctx, "metadata update failed", "path", path, "error", err.Error())
	} else {
		g.logger.InfoWithContext(ctx, "metadata updated", "path", path, "fields", len(properties))
	}
	if g.audit == nil {
		return
	}

	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	event := logging.NewAuditEvent(logging.MetadataUpdate, "update_metadata", logging.StatusSuccess).
		WithResource(DAMPath(path)).
		WithContext(ctx).
		WithDetails(map[string]interface{}{"fields": keys})
	if err != nil {
		event.WithError(err.Error())
	}
	g.audit.SaveEventAsync(event)
}

func (g *Gateway) modern(ctx context.Context, endpoint string, query url.Values) (map[string]any, error) {
	token, err := g.oauth.Token(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     g.baseURL + endpoint,
		Query:   query,
		Token:   token,
		Headers: map[string]string{"x-api-key": g.clientID},
		Surface: transport.SurfaceModern,
	})
	if err != nil {
		return nil, err
	}
	body, _ := resp.(map[string]any)
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

func (g *Gateway) classicToken(ctx context.Context) (string, error) {
	if g.classic == nil {
		return "", &errors.ErrConfig{Message: "service account not configured"}
	}
	return g.classic.Token(ctx)
}

func (g *Gateway) classicGet(ctx context.Context, path string) (map[string]any, error) {
	token, err := g.classicToken(ctx)
	if err != nil {
		return nil, err
	}
	return g.classicFetch(ctx, token, path)
}

func (g *Gateway) classicFetch(ctx context.Context, token, path string) (map[string]any, error) {
	resp, err := g.client.Do(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     ClassicURL(g.baseURL, path),
		Token:   token,
		Surface: transport.SurfaceClassic,
	})
	if err != nil {
		return nil, err
	}
	body, _ := resp.(map[string]any)
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

// classicFolderAssets maps the asset entities of a Siren folder listing.
func classicFolderAssets(folderRel string, body map[string]any) []models.Asset {
	entities := objects(body["entities"])
	assets := make([]models.Asset, 0, len(entities))
	for _, entity := range entities {
		if !strings.Contains(sirenClass(entity), "assets/asset") {
			continue
		}
		properties, _ := entity["properties"].(map[string]any)
		if properties == nil {
			properties = map[string]any{}
		}
		name, _ := stringValue(properties["name"])
		assets = append(assets, classicAsset(joinRel(folderRel, name), name, properties))
	}
	return assets
}

// classicAsset builds an Asset from Siren properties. The path is always the
// absolute DAM path of rel; the properties map is kept whole as Metadata.
func classicAsset(rel, name string, properties map[string]any) models.Asset {
	src := source{properties}
	if md, ok := properties["metadata"].(map[string]any); ok {
		src = append(src, md)
	}
	asset := buildAsset(src, properties)
	asset.Path = DAMPath(rel)
	if asset.Name == "" {
		asset.Name = name
	}
	if asset.Name == "" {
		asset.Name = lastSegment(rel)
	}
	return asset
}
