// Package mcp exposes the asset tools over the Model Context Protocol. Every
// handler delegates to the shared tools dispatcher, so argument validation
// and error messages match the HTTP front end.
package mcp

import (
	"context"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/models"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/tools"
)

const serverInstructions = "Tools for browsing, searching and updating assets in Adobe Experience Manager. " +
	"Assets and folders are addressed by DAM path; paths without the /content/dam prefix are accepted."

// Dispatcher runs named tools. *tools.Dispatcher satisfies it.
type Dispatcher interface {
	Call(ctx context.Context, frontend, name string, args map[string]any) (any, error)
}

// Server owns the MCP tool registry.
type Server struct {
	dispatcher Dispatcher
	descr      map[string]string
	logger     *logging.Logger
	mcp        *mcpsdk.Server
}

// NewServer registers every catalog tool on a fresh MCP server.
func NewServer(d Dispatcher, catalog []tools.Tool, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewLogger()
	}
	s := &Server{
		dispatcher: d,
		descr:      make(map[string]string, len(catalog)),
		logger:     logger,
	}
	for _, t := range catalog {
		s.descr[t.Name] = t.Description
	}

	s.mcp = mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    models.ServiceName,
		Version: models.ServiceVersion,
	}, &mcpsdk.ServerOptions{
		Instructions: serverInstructions,
	})
	s.registerTools()
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcpsdk.Server {
	return s.mcp
}

// Handler serves the registry over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.mcp
	}, nil)
}

// Inputs. Fields are all optional at the schema level so that missing
// arguments reach the dispatcher and produce its error messages.

type ListFoldersInput struct {
	Path string `json:"path,omitempty" jsonschema:"Folder path to list (defaults to the DAM root)"`
}

type LimitInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of assets to return (default 100)"`
}

type SearchAssetsInput struct {
	Query string `json:"query,omitempty" jsonschema:"Full-text search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of assets to return (default 100)"`
}

type FolderInput struct {
	FolderPath string `json:"folderPath,omitempty" jsonschema:"DAM path of the folder"`
}

type CreatorInput struct {
	CreatedBy string `json:"createdBy,omitempty" jsonschema:"User id of the asset creator"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of assets to return (default 100)"`
}

type ListAllAssetsInput struct {
	Path  string `json:"path,omitempty" jsonschema:"Restrict the listing to this path"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of assets to return (default 100)"`
}

type AssetInput struct {
	AssetID string `json:"assetId,omitempty" jsonschema:"DAM path of the asset"`
}

type UpdateMetadataInput struct {
	AssetID  string         `json:"assetId,omitempty" jsonschema:"DAM path of the asset"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"Metadata fields to set; friendly names such as title map to dc:title"`
}

type BulkUpdateInput struct {
	AssetID    string         `json:"assetId,omitempty" jsonschema:"Update a single asset at this DAM path"`
	FolderPath string         `json:"folderPath,omitempty" jsonschema:"Update every asset in this folder"`
	Metadata   map[string]any `json:"metadata,omitempty" jsonschema:"Metadata fields to set"`
}

// Outputs. Structured tool output must be a JSON object.

type FoldersOutput struct {
	Folders []models.Folder `json:"folders"`
}

type AssetsOutput struct {
	Assets []models.Asset `json:"assets"`
}

type AssetOutput struct {
	Asset *models.Asset `json:"asset"`
}

type UpdateMetadataOutput struct {
	Success bool          `json:"success"`
	AssetID string        `json:"assetId"`
	Message string        `json:"message"`
	Asset   *models.Asset `json:"asset,omitempty"`
}

type BulkUpdateOutput struct {
	Result any `json:"result"`
}

func (s *Server) tool(name string) *mcpsdk.Tool {
	return &mcpsdk.Tool{Name: name, Description: s.descr[name]}
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcp, s.tool(tools.ListFolders), s.handleListFolders)
	mcpsdk.AddTool(s.mcp, s.tool(tools.ListPublishedAssets), s.handleListPublished)
	mcpsdk.AddTool(s.mcp, s.tool(tools.SearchAssets), s.handleSearch)
	mcpsdk.AddTool(s.mcp, s.tool(tools.ListAssetsByFolder), s.handleByFolder)
	mcpsdk.AddTool(s.mcp, s.tool(tools.BulkUpdateMetadata), s.handleBulkUpdate)
	mcpsdk.AddTool(s.mcp, s.tool(tools.ListAssetsByCreator), s.handleByCreator)
	mcpsdk.AddTool(s.mcp, s.tool(tools.ListAllAssets), s.handleListAll)
	mcpsdk.AddTool(s.mcp, s.tool(tools.GetAssetDetails), s.handleGetAsset)
	mcpsdk.AddTool(s.mcp, s.tool(tools.UpdateAssetMetadata), s.handleUpdateMetadata)
}

// call runs the tool with a correlation ID attached. Returned errors become
// IsError results carrying the message as text.
func (s *Server) call(ctx context.Context, name string, args map[string]any) (any, error) {
	ctx, _ = logging.EnsureCorrelationID(ctx)
	return s.dispatcher.Call(ctx, tools.FrontendMCP, name, args)
}

func (s *Server) assets(ctx context.Context, name string, args map[string]any) (*mcpsdk.CallToolResult, AssetsOutput, error) {
	res, err := s.call(ctx, name, args)
	if err != nil {
		return nil, AssetsOutput{}, err
	}
	assets, ok := res.([]models.Asset)
	if !ok {
		return nil, AssetsOutput{}, unexpected(name, res)
	}
	out := make([]models.Asset, 0, len(assets))
	for i := range assets {
		out = append(out, *objectMetadata(&assets[i]))
	}
	return nil, AssetsOutput{Assets: out}, nil
}

func (s *Server) handleListFolders(ctx context.Context, _ *mcpsdk.CallToolRequest, in ListFoldersInput) (*mcpsdk.CallToolResult, FoldersOutput, error) {
	res, err := s.call(ctx, tools.ListFolders, args("path", in.Path))
	if err != nil {
		return nil, FoldersOutput{}, err
	}
	folders, ok := res.([]models.Folder)
	if !ok {
		return nil, FoldersOutput{}, unexpected(tools.ListFolders, res)
	}
	if folders == nil {
		folders = []models.Folder{}
	}
	return nil, FoldersOutput{Folders: folders}, nil
}

func (s *Server) handleListPublished(ctx context.Context, _ *mcpsdk.CallToolRequest, in LimitInput) (*mcpsdk.CallToolResult, AssetsOutput, error) {
	return s.assets(ctx, tools.ListPublishedAssets, withLimit(nil, in.Limit))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcpsdk.CallToolRequest, in SearchAssetsInput) (*mcpsdk.CallToolResult, AssetsOutput, error) {
	return s.assets(ctx, tools.SearchAssets, withLimit(args("query", in.Query), in.Limit))
}

func (s *Server) handleByFolder(ctx context.Context, _ *mcpsdk.CallToolRequest, in FolderInput) (*mcpsdk.CallToolResult, AssetsOutput, error) {
	return s.assets(ctx, tools.ListAssetsByFolder, args("folderPath", in.FolderPath))
}

func (s *Server) handleByCreator(ctx context.Context, _ *mcpsdk.CallToolRequest, in CreatorInput) (*mcpsdk.CallToolResult, AssetsOutput, error) {
	return s.assets(ctx, tools.ListAssetsByCreator, withLimit(args("createdBy", in.CreatedBy), in.Limit))
}

func (s *Server) handleListAll(ctx context.Context, _ *mcpsdk.CallToolRequest, in ListAllAssetsInput) (*mcpsdk.CallToolResult, AssetsOutput, error) {
	return s.assets(ctx, tools.ListAllAssets, withLimit(args("path", in.Path), in.Limit))
}

func (s *Server) handleGetAsset(ctx context.Context, _ *mcpsdk.CallToolRequest, in AssetInput) (*mcpsdk.CallToolResult, AssetOutput, error) {
	res, err := s.call(ctx, tools.GetAssetDetails, args("assetId", in.AssetID))
	if err != nil {
		return nil, AssetOutput{}, err
	}
	asset, ok := res.(*models.Asset)
	if !ok {
		return nil, AssetOutput{}, unexpected(tools.GetAssetDetails, res)
	}
	return nil, AssetOutput{Asset: objectMetadata(asset)}, nil
}

func (s *Server) handleUpdateMetadata(ctx context.Context, _ *mcpsdk.CallToolRequest, in UpdateMetadataInput) (*mcpsdk.CallToolResult, UpdateMetadataOutput, error) {
	a := args("assetId", in.AssetID)
	if len(in.Metadata) > 0 {
		a["metadata"] = in.Metadata
	}
	res, err := s.call(ctx, tools.UpdateAssetMetadata, a)
	if err != nil {
		return nil, UpdateMetadataOutput{}, err
	}
	asset, _ := res.(*models.Asset)
	return nil, UpdateMetadataOutput{
		Success: true,
		AssetID: in.AssetID,
		Message: "Metadata updated successfully",
		Asset:   objectMetadata(asset),
	}, nil
}

func (s *Server) handleBulkUpdate(ctx context.Context, _ *mcpsdk.CallToolRequest, in BulkUpdateInput) (*mcpsdk.CallToolResult, BulkUpdateOutput, error) {
	a := args("assetId", in.AssetID)
	if in.FolderPath != "" {
		a["folderPath"] = in.FolderPath
	}
	if len(in.Metadata) > 0 {
		a["metadata"] = in.Metadata
	}
	res, err := s.call(ctx, tools.BulkUpdateMetadata, a)
	if err != nil {
		return nil, BulkUpdateOutput{}, err
	}
	return nil, BulkUpdateOutput{Result: res}, nil
}

// objectMetadata returns a copy of a whose Metadata is never nil. The output
// schema inferred for models.Asset types metadata as an object, so a null
// there fails output validation.
func objectMetadata(a *models.Asset) *models.Asset {
	if a == nil {
		return nil
	}
	out := *a
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	return &out
}

// args builds an argument map holding key only when value is set.
func args(key, value string) map[string]any {
	m := make(map[string]any, 3)
	if value != "" {
		m[key] = value
	}
	return m
}

func withLimit(m map[string]any, limit int) map[string]any {
	if m == nil {
		m = make(map[string]any, 1)
	}
	if limit > 0 {
		m["limit"] = limit
	}
	return m
}

func unexpected(tool string, v any) error {
	return fmt.Errorf("%s returned unexpected result type %T", tool, v)
}
