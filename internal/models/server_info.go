package models

const (
	ServiceName        = "aem-assets-mcp-server"
	ServiceVersion     = "1.0.0"
	ServiceDescription = "MCP Server for Adobe Experience Manager Assets Author API"
)

// ServerInfo is served from GET / and GET /api/mcp.
type ServerInfo struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Tools       []string `json:"tools"`
}

// NewServerInfo describes this service with the given tool names.
func NewServerInfo(tools []string) ServerInfo {
	return ServerInfo{
		Name:        ServiceName,
		Version:     ServiceVersion,
		Description: ServiceDescription,
		Tools:       tools,
	}
}
