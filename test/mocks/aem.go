// Package mocks provides an in-process stand-in for Adobe IMS and an AEM
// author instance, covering the modern Assets and Folders APIs and the
// classic Siren Assets HTTP API.
package mocks

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// Tokens handed out by the fake IMS.
const (
	OAuthToken          = "oauth-access-token"
	ServiceAccountToken = "sa-access-token"
	ClientID            = "test-client"
	ClientSecret        = "test-secret"
)

// RecordedRequest is one call seen by the fake.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	APIKey string
	Body   []byte
}

// FakeAEM serves IMS and AEM endpoints from in-memory fixtures. Paths are
// absolute DAM paths such as /content/dam/marketing.
type FakeAEM struct {
	Server *httptest.Server

	mu sync.Mutex
	// folders maps a DAM folder path to its modern folders-API children.
	folders map[string][]map[string]any
	// assets is returned by the modern assets API.
	assets []map[string]any
	// classic maps a DAM path to Siren properties; folders list entries.
	classic map[string]map[string]any
	// classicChildren maps a DAM folder path to the asset names it holds.
	classicChildren map[string][]string
	// statuses forces a status for "METHOD path" on the classic API.
	statuses map[string]int
	requests []RecordedRequest
}

// NewFakeAEM starts a fake server that is closed with the test.
func NewFakeAEM(t testing.TB) *FakeAEM {
	t.Helper()
	f := &FakeAEM{
		folders:         map[string][]map[string]any{},
		classic:         map[string]map[string]any{},
		classicChildren: map[string][]string{},
		statuses:        map[string]int{},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the base URL for both IMS and AEM.
func (f *FakeAEM) URL() string { return f.Server.URL }

// TokenURL is the OAuth client-credentials endpoint.
func (f *FakeAEM) TokenURL() string { return f.Server.URL + "/ims/token" }

// AddFolder registers a subfolder under parent in the folders API.
func (f *FakeAEM) AddFolder(parent, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimRight(parent, "/") + "/" + name
	f.folders[parent] = append(f.folders[parent], map[string]any{
		"folderId": "fld-" + name,
		"path":     path,
		"name":     name,
		"title":    strings.ToUpper(name[:1]) + name[1:],
	})
}

// AddAsset registers an asset in folder for every surface: the classic
// listing and item resources, the folders-API children and the assets API.
func (f *FakeAEM) AddAsset(folder, name string, properties map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimRight(folder, "/") + "/" + name

	props := map[string]any{"name": name}
	for k, v := range properties {
		props[k] = v
	}
	f.classic[path] = props
	f.classicChildren[folder] = append(f.classicChildren[folder], name)

	modern := map[string]any{
		"assetId": "urn:aaid:aem:" + name,
		"path":    path,
		"name":    name,
	}
	for k, v := range properties {
		modern[k] = v
	}
	f.folders[folder] = append(f.folders[folder], modern)
	f.assets = append(f.assets, modern)
}

// SetStatus forces status for method on the classic resource of path.
func (f *FakeAEM) SetStatus(method, path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[method+" "+path] = status
}

// Properties returns the current classic properties of an asset.
func (f *FakeAEM) Properties(path string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]any{}
	for k, v := range f.classic[path] {
		out[k] = v
	}
	return out
}

// Requests returns the calls seen so far.
func (f *FakeAEM) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// Count returns how many requests matched method and path prefix.
func (f *FakeAEM) Count(method, pathPrefix string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			n++
		}
	}
	return n
}

func (f *FakeAEM) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Auth:   r.Header.Get("Authorization"),
		APIKey: r.Header.Get("x-api-key"),
		Body:   body,
	})
	f.mu.Unlock()

	switch {
	case r.URL.Path == "/ims/token":
		f.serveToken(w, r, body)
	case strings.HasPrefix(r.URL.Path, "/ims/exchange/jwt"):
		f.serveExchange(w, r, body)
	case r.URL.Path == "/adobe/folders":
		f.serveModern(w, r, func() any {
			return map[string]any{"children": f.folders[r.URL.Query().Get("path")]}
		})
	case r.URL.Path == "/adobe/assets":
		f.serveModern(w, r, func() any {
			return map[string]any{"items": f.assets}
		})
	case strings.HasPrefix(r.URL.Path, "/api/assets"):
		f.serveClassic(w, r, body)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeAEM) serveToken(w http.ResponseWriter, r *http.Request, body []byte) {
	form := parseForm(body)
	if form.Get("client_id") != ClientID || form.Get("client_secret") != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_token": OAuthToken, "expires_in": 86399})
}

func (f *FakeAEM) serveExchange(w http.ResponseWriter, r *http.Request, body []byte) {
	form := parseForm(body)
	if form.Get("jwt_token") == "" || form.Get("client_id") == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_token": ServiceAccountToken, "expires_in": 3600})
}

func (f *FakeAEM) serveModern(w http.ResponseWriter, r *http.Request, payload func() any) {
	if r.Header.Get("Authorization") != "Bearer "+OAuthToken || r.Header.Get("x-api-key") != ClientID {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, payload())
}

func (f *FakeAEM) serveClassic(w http.ResponseWriter, r *http.Request, body []byte) {
	if r.Header.Get("Authorization") != "Bearer "+ServiceAccountToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, "/api/assets")
	rel = strings.TrimSuffix(rel, ".json")
	path := "/content/dam" + rel

	f.mu.Lock()
	defer f.mu.Unlock()

	if status, ok := f.statuses[r.Method+" "+path]; ok {
		writeJSON(w, status, map[string]any{"message": http.StatusText(status)})
		return
	}

	switch r.Method {
	case http.MethodGet:
		if names, ok := f.classicChildren[path]; ok {
			entities := make([]map[string]any, 0, len(names))
			for _, name := range names {
				entities = append(entities, map[string]any{
					"class":      []string{"assets/asset"},
					"properties": f.classic[path+"/"+name],
				})
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"class":    []string{"assets/folder"},
				"entities": entities,
			})
			return
		}
		props, ok := f.classic[path]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"class":      []string{"assets/asset"},
			"properties": props,
		})
	case http.MethodPut:
		props, ok := f.classic[path]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
			return
		}
		var req struct {
			Class      string         `json:"class"`
			Properties map[string]any `json:"properties"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.Class != "asset" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad request"})
			return
		}
		for k, v := range req.Properties {
			props[k] = v
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ServiceAccountJSON returns a descriptor whose IMS endpoint is the fake,
// signed with a fresh RSA key.
func (f *FakeAEM) ServiceAccountJSON(t testing.TB) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	doc := map[string]any{
		"integration": map[string]any{
			"imsEndpoint": f.Server.URL,
			"org":         "ORG@AdobeOrg",
			"id":          "TECH@techacct.adobe.com",
			"metascopes":  "ent_aem_cloud_api",
			"privateKey":  string(keyPEM),
			"technicalAccount": map[string]any{
				"clientId":     "sa-client",
				"clientSecret": "sa-secret",
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal descriptor: %v", err)
	}
	return string(data)
}

func parseForm(body []byte) url.Values {
	values, _ := url.ParseQuery(string(body))
	return values
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
