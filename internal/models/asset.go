package models

// Asset is the normalized view of an AEM asset. It is built fresh from
// every upstream response and never cached. Optional fields are nil when
// the source API omitted them.
type Asset struct {
	ID          string         `json:"id"`
	Path        string         `json:"path"`
	Name        string         `json:"name"`
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	AssetType   *string        `json:"asset_type"`
	MimeType    *string        `json:"mime_type"`
	Size        *int64         `json:"size"`
	Width       *int64         `json:"width"`
	Height      *int64         `json:"height"`
	Published   bool           `json:"published"`
	CreatedBy   *string        `json:"created_by"`
	CreatedAt   *string        `json:"created_at"`
	ModifiedBy  *string        `json:"modified_by"`
	ModifiedAt  *string        `json:"modified_at"`
}

// Identifier returns the value used to address the asset in ledgers and
// logs: its path when known, otherwise its id.
func (a *Asset) Identifier() string {
	if a.Path != "" {
		return a.Path
	}
	return a.ID
}

// Folder is the normalized view of an AEM folder.
type Folder struct {
	ID         string  `json:"id"`
	Path       string  `json:"path"`
	Name       string  `json:"name"`
	Title      *string `json:"title"`
	CreatedBy  *string `json:"created_by"`
	CreatedAt  *string `json:"created_at"`
	ModifiedBy *string `json:"modified_by"`
	ModifiedAt *string `json:"modified_at"`
}
