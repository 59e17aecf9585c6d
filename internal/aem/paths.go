// Package aem reconciles the modern AEM Assets and Folders APIs with the
// classic Siren Assets HTTP API behind a single Gateway.
package aem

import (
	"net/url"
	"strings"
)

const (
	damRoot = "/content/dam"

	classicEndpoint = "/api/assets"
	assetsEndpoint  = "/adobe/assets"
	foldersEndpoint = "/adobe/folders"
)

// NormalizePath converts any accepted spelling of a DAM path into the
// relative form used by the classic API: the /content/dam prefix (or a
// single leading slash) is removed and surrounding slashes are trimmed.
// NormalizePath(NormalizePath(p)) == NormalizePath(p).
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	switch {
	case strings.HasPrefix(path, damRoot+"/"):
		path = strings.TrimPrefix(path, damRoot+"/")
	case path == damRoot:
		path = ""
	default:
		path = strings.TrimPrefix(path, "/")
	}
	return strings.Trim(path, "/")
}

// DAMPath renders a path as an absolute repository path under /content/dam.
func DAMPath(path string) string {
	rel := NormalizePath(path)
	if rel == "" {
		return damRoot
	}
	return damRoot + "/" + rel
}

// ClassicURL is the Siren JSON resource for path: {base}/api/assets/{rel}.json,
// or {base}/api/assets.json for the DAM root.
func ClassicURL(baseURL, path string) string {
	rel := NormalizePath(path)
	if rel == "" {
		return baseURL + classicEndpoint + ".json"
	}
	return baseURL + classicEndpoint + "/" + escapePath(rel) + ".json"
}

// classicItemURL addresses the asset itself, without the .json selector, as
// required for PUT.
func classicItemURL(baseURL, path string) string {
	rel := NormalizePath(path)
	if rel == "" {
		return baseURL + classicEndpoint
	}
	return baseURL + classicEndpoint + "/" + escapePath(rel)
}

// escapePath percent-encodes each segment while keeping the separators.
func escapePath(rel string) string {
	segments := strings.Split(rel, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// lastSegment returns the final element of a relative path.
// joinRel appends name to a relative folder path; an empty folder is the DAM
// root.
func joinRel(folderRel, name string) string {
	if folderRel == "" {
		return name
	}
	return folderRel + "/" + name
}

func lastSegment(rel string) string {
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		return rel[i+1:]
	}
	return rel
}
