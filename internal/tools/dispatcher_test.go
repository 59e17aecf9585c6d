package tools

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/aem"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/metrics"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/models"
)

// stubGateway records the last call and returns canned values.
type stubGateway struct {
	lastOp    string
	lastPath  string
	lastLimit int
	lastOpts  aem.ListOptions
	lastQuery string
	fields    map[string]any
	err       error
}

func (s *stubGateway) ListFolders(_ context.Context, path string) ([]models.Folder, error) {
	s.lastOp, s.lastPath = "ListFolders", path
	return []models.Folder{{ID: "f1", Path: "/a", Name: "a"}}, s.err
}

func (s *stubGateway) ListAssets(_ context.Context, opts aem.ListOptions) ([]models.Asset, error) {
	s.lastOp, s.lastOpts = "ListAssets", opts
	return []models.Asset{{ID: "1"}}, s.err
}

func (s *stubGateway) SearchAssets(_ context.Context, query string, limit int) ([]models.Asset, error) {
	s.lastOp, s.lastQuery, s.lastLimit = "SearchAssets", query, limit
	return []models.Asset{}, s.err
}

func (s *stubGateway) GetPublishedAssets(_ context.Context, limit int) ([]models.Asset, error) {
	s.lastOp, s.lastLimit = "GetPublishedAssets", limit
	return []models.Asset{}, s.err
}

func (s *stubGateway) GetAssetsByCreator(_ context.Context, createdBy string, limit int) ([]models.Asset, error) {
	s.lastOp, s.lastQuery, s.lastLimit = "GetAssetsByCreator", createdBy, limit
	return []models.Asset{}, s.err
}

func (s *stubGateway) GetAssetsByFolder(_ context.Context, path string) ([]models.Asset, error) {
	s.lastOp, s.lastPath = "GetAssetsByFolder", path
	return []models.Asset{}, s.err
}

func (s *stubGateway) GetAsset(_ context.Context, path string) (*models.Asset, error) {
	s.lastOp, s.lastPath = "GetAsset", path
	if s.err != nil {
		return nil, s.err
	}
	return &models.Asset{Path: path}, nil
}

func (s *stubGateway) UpdateAssetMetadata(_ context.Context, path string, fields map[string]any) (*models.Asset, error) {
	s.lastOp, s.lastPath, s.fields = "UpdateAssetMetadata", path, fields
	if s.err != nil {
		return nil, s.err
	}
	return &models.Asset{Path: path}, nil
}

type stubBulk struct {
	folder string
	fields map[string]any
}

func (s *stubBulk) BulkUpdate(_ context.Context, folder string, fields map[string]any) (*models.BulkUpdateResult, error) {
	s.folder, s.fields = folder, fields
	r := models.NewBulkUpdateResult(1)
	r.Record(folder+"/a.jpg", nil)
	return r, nil
}

func newTestDispatcher(gw *stubGateway, bulk *stubBulk, opts ...Option) *Dispatcher {
	opts = append([]Option{WithLogger(logging.NewLogger(logging.WithOutput(&bytes.Buffer{})))}, opts...)
	return NewDispatcher(gw, bulk, opts...)
}

func TestNamesMatchCatalog(t *testing.T) {
	d := newTestDispatcher(&stubGateway{}, &stubBulk{})
	names := d.Names()
	assert.Len(t, names, 9)
	assert.Equal(t, ListFolders, names[0])
	assert.Contains(t, names, UpdateAssetMetadata)
	for _, name := range names {
		_, ok := d.handlers[name]
		assert.True(t, ok, "no handler for %s", name)
	}
	assert.Len(t, d.Tools(), len(names))
}

func TestCallRoutesWithDefaults(t *testing.T) {
	tests := []struct {
		name   string
		tool   string
		args   map[string]any
		wantOp string
		check  func(t *testing.T, gw *stubGateway)
	}{
		{
			name: "list folders default path", tool: ListFolders, args: nil, wantOp: "ListFolders",
			check: func(t *testing.T, gw *stubGateway) { assert.Equal(t, "/", gw.lastPath) },
		},
		{
			name: "published default limit", tool: ListPublishedAssets, args: map[string]any{}, wantOp: "GetPublishedAssets",
			check: func(t *testing.T, gw *stubGateway) { assert.Equal(t, 100, gw.lastLimit) },
		},
		{
			name: "search string limit", tool: SearchAssets, args: map[string]any{"query": "beach", "limit": "25"}, wantOp: "SearchAssets",
			check: func(t *testing.T, gw *stubGateway) {
				assert.Equal(t, "beach", gw.lastQuery)
				assert.Equal(t, 25, gw.lastLimit)
			},
		},
		{
			name: "creator numeric limit", tool: ListAssetsByCreator, args: map[string]any{"createdBy": "alice", "limit": float64(5)}, wantOp: "GetAssetsByCreator",
			check: func(t *testing.T, gw *stubGateway) {
				assert.Equal(t, "alice", gw.lastQuery)
				assert.Equal(t, 5, gw.lastLimit)
			},
		},
		{
			name: "all assets with path", tool: ListAllAssets, args: map[string]any{"path": "/content/dam/x"}, wantOp: "ListAssets",
			check: func(t *testing.T, gw *stubGateway) {
				assert.Equal(t, aem.ListOptions{Path: "/content/dam/x", Limit: 100}, gw.lastOpts)
			},
		},
		{
			name: "folder listing", tool: ListAssetsByFolder, args: map[string]any{"folderPath": "x"}, wantOp: "GetAssetsByFolder",
			check: func(t *testing.T, gw *stubGateway) { assert.Equal(t, "x", gw.lastPath) },
		},
		{
			name: "asset details", tool: GetAssetDetails, args: map[string]any{"assetId": "/content/dam/x/a.jpg"}, wantOp: "GetAsset",
			check: func(t *testing.T, gw *stubGateway) { assert.Equal(t, "/content/dam/x/a.jpg", gw.lastPath) },
		},
		{
			name: "update metadata", tool: UpdateAssetMetadata,
			args:   map[string]any{"assetId": "x/a.jpg", "metadata": map[string]any{"title": "T"}},
			wantOp: "UpdateAssetMetadata",
			check: func(t *testing.T, gw *stubGateway) {
				assert.Equal(t, map[string]any{"title": "T"}, gw.fields)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &stubGateway{}
			d := newTestDispatcher(gw, &stubBulk{})
			result, err := d.Call(context.Background(), FrontendHTTP, tt.tool, tt.args)
			require.NoError(t, err)
			assert.NotNil(t, result)
			assert.Equal(t, tt.wantOp, gw.lastOp)
			tt.check(t, gw)
		})
	}
}

func TestCallMissingArguments(t *testing.T) {
	tests := []struct {
		tool    string
		args    map[string]any
		wantMsg string
	}{
		{SearchAssets, map[string]any{}, "query parameter is required"},
		{ListAssetsByFolder, map[string]any{"folderPath": ""}, "folderPath parameter is required"},
		{ListAssetsByCreator, nil, "createdBy parameter is required"},
		{GetAssetDetails, map[string]any{}, "assetId parameter is required"},
		{UpdateAssetMetadata, map[string]any{"assetId": "a"}, "metadata parameter is required"},
		{BulkUpdateMetadata, map[string]any{"folderPath": "f"}, "metadata parameter is required"},
		{BulkUpdateMetadata, map[string]any{"metadata": map[string]any{"title": "T"}}, "Either assetId or folderPath parameter is required"},
		{SearchAssets, map[string]any{"query": "q", "limit": "ten"}, "limit must be an integer"},
	}

	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			gw := &stubGateway{}
			d := newTestDispatcher(gw, &stubBulk{})
			_, err := d.Call(context.Background(), FrontendHTTP, tt.tool, tt.args)
			require.Error(t, err)

			var missing *errors.ErrMissingArgument
			require.True(t, stderrors.As(err, &missing))
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.True(t, errors.IsClientError(err))
			assert.Empty(t, gw.lastOp)
		})
	}
}

func TestCallUnknownTool(t *testing.T) {
	m := metrics.NewMetrics("tools_test")
	d := newTestDispatcher(&stubGateway{}, &stubBulk{}, WithMetrics(m))

	_, err := d.Call(context.Background(), FrontendMCP, "delete_everything", nil)
	require.Error(t, err)
	assert.Equal(t, "Unknown tool: delete_everything", err.Error())
	assert.True(t, errors.IsClientError(err))
}

func TestBulkUpdateRouting(t *testing.T) {
	gw := &stubGateway{}
	bulk := &stubBulk{}
	d := newTestDispatcher(gw, bulk)
	fields := map[string]any{"title": "T"}

	single, err := d.Call(context.Background(), FrontendHTTP, BulkUpdateMetadata, map[string]any{
		"assetId": "x/a.jpg", "folderPath": "x", "metadata": fields,
	})
	require.NoError(t, err)
	assert.IsType(t, &models.Asset{}, single)
	assert.Equal(t, "UpdateAssetMetadata", gw.lastOp)
	assert.Empty(t, bulk.folder)

	folder, err := d.Call(context.Background(), FrontendHTTP, BulkUpdateMetadata, map[string]any{
		"folderPath": "x", "metadata": `{"title":"T"}`,
	})
	require.NoError(t, err)
	result, ok := folder.(*models.BulkUpdateResult)
	require.True(t, ok)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, "x", bulk.folder)
	assert.Equal(t, fields, bulk.fields)
}

type memAudit struct {
	events []*logging.AuditEvent
}

func (m *memAudit) SaveEvent(e *logging.AuditEvent) error { m.events = append(m.events, e); return nil }
func (m *memAudit) SaveEventAsync(e *logging.AuditEvent)   { _ = m.SaveEvent(e) }
func (m *memAudit) QueryEvents(context.Context, logging.AuditQueryFilters) ([]*logging.AuditEvent, error) {
	return m.events, nil
}
func (m *memAudit) CountEvents(context.Context, logging.AuditQueryFilters) (int, error) {
	return len(m.events), nil
}
func (m *memAudit) GetEventByID(context.Context, string) (*logging.AuditEvent, error) {
	return nil, nil
}
func (m *memAudit) Close() error { return nil }

func TestCallAuditsOutcome(t *testing.T) {
	audit := &memAudit{}
	gw := &stubGateway{err: stderrors.New("upstream returned status 500")}
	d := newTestDispatcher(gw, &stubBulk{}, WithAuditStore(audit))

	_, err := d.Call(context.Background(), FrontendCLI, GetAssetDetails, map[string]any{"assetId": "a"})
	require.Error(t, err)
	assert.False(t, errors.IsClientError(err))

	require.Len(t, audit.events, 1)
	event := audit.events[0]
	assert.Equal(t, logging.ToolCall, event.EventType)
	assert.Equal(t, GetAssetDetails, event.Action)
	assert.Equal(t, FrontendCLI, event.Actor)
	assert.Equal(t, logging.StatusFailure, event.Status)
	assert.Equal(t, logging.SeverityError, event.Severity)
}
