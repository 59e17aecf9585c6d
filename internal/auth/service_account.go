package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
)

const defaultIMSHost = "ims-na1.adobelogin.com"

// ServiceAccount is the technical-account descriptor exported from the AEM
// Developer Console.
type ServiceAccount struct {
	IMSEndpoint        string
	OrgID              string
	TechnicalAccountID string
	ClientID           string
	ClientSecret       string
	Metascopes         []string
	PrivateKey         string
	Certificate        string
	// Source is the file the descriptor came from, empty for inline JSON.
	Source string
}

type serviceAccountFile struct {
	Integration *struct {
		IMSEndpoint      string          `json:"imsEndpoint"`
		Org              string          `json:"org"`
		ID               string          `json:"id"`
		Metascopes       json.RawMessage `json:"metascopes"`
		PrivateKey       string          `json:"privateKey"`
		PublicKey        string          `json:"publicKey"`
		Cert             string          `json:"cert"`
		TechnicalAccount *struct {
			ClientID     string `json:"clientId"`
			ClientSecret string `json:"clientSecret"`
		} `json:"technicalAccount"`
	} `json:"integration"`
}

// LoadServiceAccount accepts either a JSON document or a path to one. The
// input is tried as JSON first.
func LoadServiceAccount(input string) (*ServiceAccount, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, &errors.ErrConfig{Message: "service account not configured"}
	}

	data := []byte(input)
	source := ""
	if !IsInlineDescriptor(input) {
		raw, err := os.ReadFile(input)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, &errors.ErrConfig{Message: "service account file not found: " + input, Err: err}
			}
			return nil, &errors.ErrConfig{Message: "failed to read service account file " + input, Err: err}
		}
		data = raw
		source = input
	}

	sa, err := ParseServiceAccount(data)
	if err != nil {
		return nil, err
	}
	sa.Source = source
	return sa, nil
}

// IsInlineDescriptor reports whether input is a JSON document rather than a
// file path. Malformed JSON still counts as inline so it is reported as a
// parse error instead of being opened as a file.
func IsInlineDescriptor(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "{")
}

// ParseServiceAccount decodes a descriptor document.
func ParseServiceAccount(data []byte) (*ServiceAccount, error) {
	var file serviceAccountFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &errors.ErrConfig{Message: "invalid service account JSON", Err: err}
	}
	in := file.Integration
	if in == nil {
		return nil, &errors.ErrConfig{Message: "invalid service account JSON: missing 'integration'"}
	}
	if in.TechnicalAccount == nil {
		return nil, &errors.ErrConfig{Message: "invalid service account JSON: missing 'integration.technicalAccount'"}
	}
	if in.TechnicalAccount.ClientID == "" {
		return nil, &errors.ErrConfig{Message: "invalid service account JSON: missing 'technicalAccount.clientId'"}
	}
	if in.PrivateKey == "" {
		return nil, &errors.ErrConfig{Message: "invalid service account JSON: missing 'integration.privateKey'"}
	}

	scopes, err := parseMetascopes(in.Metascopes)
	if err != nil {
		return nil, &errors.ErrConfig{Message: "invalid service account JSON: bad 'metascopes'", Err: err}
	}

	cert := in.PublicKey
	if cert == "" {
		cert = in.Cert
	}

	return &ServiceAccount{
		IMSEndpoint:        normalizeIMSEndpoint(in.IMSEndpoint),
		OrgID:              in.Org,
		TechnicalAccountID: in.ID,
		ClientID:           in.TechnicalAccount.ClientID,
		ClientSecret:       in.TechnicalAccount.ClientSecret,
		Metascopes:         scopes,
		PrivateKey:         in.PrivateKey,
		Certificate:        cert,
	}, nil
}

// IMSHost is the endpoint without its scheme.
func (sa *ServiceAccount) IMSHost() string {
	host := strings.TrimPrefix(sa.IMSEndpoint, "https://")
	return strings.TrimPrefix(host, "http://")
}

// MetascopeURLs expands bare scope names to https://{ims_host}/s/{scope}.
// Values that already start with "http" are kept as they are.
func (sa *ServiceAccount) MetascopeURLs() []string {
	out := make([]string, 0, len(sa.Metascopes))
	for _, scope := range sa.Metascopes {
		if strings.HasPrefix(scope, "http") {
			out = append(out, scope)
			continue
		}
		out = append(out, fmt.Sprintf("https://%s/s/%s", sa.IMSHost(), scope))
	}
	return out
}

func normalizeIMSEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = defaultIMSHost
	}
	if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
		endpoint = "https://" + endpoint
	}
	return endpoint
}

// parseMetascopes accepts a comma separated string or a list of strings.
func parseMetascopes(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return compact(list), nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return compact(strings.Split(single, ",")), nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
