package aem

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/models"
)

// aliases lists candidate source keys for one logical field. The first key
// present with a non-empty value wins.
type aliases []string

// assetFields maps each Asset field to the keys the modern, classic and
// folders surfaces use for it.
var assetFields = struct {
	ID, Path, Name, Title, Description          aliases
	AssetType, MimeType, Size, Width, Height    aliases
	Published, CreatedBy, CreatedAt, ModifiedBy aliases
	ModifiedAt                                  aliases
}{
	ID:          aliases{"id", "repo:id", "assetId", "repo:assetId", "jcr:uuid"},
	Path:        aliases{"path", "repo:path"},
	Name:        aliases{"name", "repo:name"},
	Title:       aliases{"title", "dc:title", "jcr:title"},
	Description: aliases{"description", "dc:description"},
	AssetType:   aliases{"assetType", "dam:assetType"},
	MimeType:    aliases{"mimeType", "dc:format", "repo:format"},
	Size:        aliases{"size", "repo:size", "dam:size"},
	Width:       aliases{"width", "tiff:ImageWidth", "exif:PixelXDimension"},
	Height:      aliases{"height", "tiff:ImageLength", "exif:PixelYDimension"},
	Published:   aliases{"published", "dam:published"},
	CreatedBy:   aliases{"createdBy", "dc:creator", "repo:createdBy", "jcr:createdBy"},
	CreatedAt:   aliases{"createdAt", "repo:createDate", "created", "jcr:created"},
	ModifiedBy:  aliases{"modifiedBy", "repo:modifiedBy", "jcr:lastModifiedBy"},
	ModifiedAt:  aliases{"modifiedAt", "repo:modifyDate", "modified", "jcr:lastModified"},
}

var folderFields = struct {
	ID, Path, Name, Title                        aliases
	CreatedBy, CreatedAt, ModifiedBy, ModifiedAt aliases
}{
	ID:         aliases{"folderId", "id", "repo:id"},
	Path:       aliases{"path", "repo:path"},
	Name:       aliases{"name", "repo:name"},
	Title:      aliases{"title", "dc:title", "jcr:title"},
	CreatedBy:  aliases{"createdBy", "repo:createdBy"},
	CreatedAt:  aliases{"createdAt", "created", "repo:createDate"},
	ModifiedBy: aliases{"modifiedBy", "repo:modifiedBy"},
	ModifiedAt: aliases{"modifiedAt", "modified", "repo:modifyDate"},
}

// metadataAliases maps friendly field names to their Dublin Core properties.
var metadataAliases = map[string]string{
	"title":       "dc:title",
	"description": "dc:description",
	"subject":     "dc:subject",
	"creator":     "dc:creator",
	"language":    "dc:language",
	"keywords":    "dc:keywords",
}

// MapMetadataFields rewrites friendly keys to namespaced properties. Keys that
// already carry a namespace, or that have no alias, are kept as given.
func MapMetadataFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if !strings.Contains(key, ":") {
			if mapped, ok := metadataAliases[strings.ToLower(key)]; ok {
				key = mapped
			}
		}
		out[key] = value
	}
	return out
}

// source is an ordered set of maps searched for a key. Classic responses
// keep some fields under properties.metadata, so both are consulted.
type source []map[string]any

func (s source) lookup(keys aliases) (any, bool) {
	for _, key := range keys {
		for _, m := range s {
			v, ok := m[key]
			if !ok || v == nil {
				continue
			}
			if str, isStr := v.(string); isStr && str == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func (s source) str(keys aliases) string {
	if v, ok := s.lookup(keys); ok {
		if str, ok := stringValue(v); ok {
			return str
		}
	}
	return ""
}

func (s source) optStr(keys aliases) *string {
	if v, ok := s.lookup(keys); ok {
		if str, ok := stringValue(v); ok {
			return &str
		}
	}
	return nil
}

func (s source) optInt(keys aliases) *int64 {
	if v, ok := s.lookup(keys); ok {
		if n, ok := intValue(v); ok {
			return &n
		}
	}
	return nil
}

func (s source) boolean(keys aliases) bool {
	if v, ok := s.lookup(keys); ok {
		return boolValue(v)
	}
	return false
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case []any:
		// Multi-valued properties such as dc:title arrive as lists.
		if len(t) > 0 {
			return stringValue(t[0])
		}
	}
	return "", false
}

func intValue(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func boolValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	case float64:
		return t != 0
	}
	return false
}

// mapAsset builds an Asset from one modern or folders-surface entry.
// Missing aliases degrade to empty values, never to an error.
func mapAsset(item map[string]any) models.Asset {
	src := source{item}
	if md, ok := item["metadata"].(map[string]any); ok {
		src = append(src, md)
	}
	return buildAsset(src, metadataOf(item))
}

func buildAsset(src source, metadata map[string]any) models.Asset {
	f := assetFields
	return models.Asset{
		ID:          src.str(f.ID),
		Path:        src.str(f.Path),
		Name:        src.str(f.Name),
		Title:       src.optStr(f.Title),
		Description: src.optStr(f.Description),
		Metadata:    metadata,
		AssetType:   src.optStr(f.AssetType),
		MimeType:    src.optStr(f.MimeType),
		Size:        src.optInt(f.Size),
		Width:       src.optInt(f.Width),
		Height:      src.optInt(f.Height),
		Published:   src.boolean(f.Published),
		CreatedBy:   src.optStr(f.CreatedBy),
		CreatedAt:   src.optStr(f.CreatedAt),
		ModifiedBy:  src.optStr(f.ModifiedBy),
		ModifiedAt:  src.optStr(f.ModifiedAt),
	}
}

func metadataOf(item map[string]any) map[string]any {
	if md, ok := item["metadata"].(map[string]any); ok {
		return md
	}
	return map[string]any{}
}

func mapFolder(item map[string]any) models.Folder {
	src := source{item}
	f := folderFields
	return models.Folder{
		ID:         src.str(f.ID),
		Path:       src.str(f.Path),
		Name:       src.str(f.Name),
		Title:      src.optStr(f.Title),
		CreatedBy:  src.optStr(f.CreatedBy),
		CreatedAt:  src.optStr(f.CreatedAt),
		ModifiedBy: src.optStr(f.ModifiedBy),
		ModifiedAt: src.optStr(f.ModifiedAt),
	}
}

// looksLikeAsset reports whether a folders-surface child is an asset rather
// than a subfolder.
func looksLikeAsset(item map[string]any) bool {
	for _, key := range []string{"assetId", "repo:assetId"} {
		if v, ok := item[key]; ok && v != nil && v != "" {
			return true
		}
	}
	if t, ok := item["type"].(string); ok {
		return strings.Contains(strings.ToLower(t), "asset")
	}
	return false
}

// sirenClass joins an entity's class, which Siren encodes as a list.
func sirenClass(entity map[string]any) string {
	switch c := entity["class"].(type) {
	case string:
		return c
	case []any:
		parts := make([]string, 0, len(c))
		for _, v := range c {
			parts = append(parts, fmt.Sprint(v))
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// objects keeps the map entries of a JSON array and drops the rest.
func objects(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
