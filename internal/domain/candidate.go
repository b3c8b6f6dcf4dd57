package domain

// IndexerQuery is what the indexer collaborator is asked for.
type IndexerQuery struct {
	Query   string
	Season  int
	Episode int
}

// Candidate is one locator returned by an indexer. Locator is opaque to the
// cache: it is fed to the resolver as-is.
type Candidate struct {
	Title      string `json:"title"`
	Locator    string `json:"locator"`
	Indexer    string `json:"indexer,omitempty"`
	Size       int64  `json:"size"`
	Seeders    int    `json:"seeders"`
	Resolution int    `json:"resolution,omitempty"`
	Season     int    `json:"season,omitempty"`
	Episode    int    `json:"episode,omitempty"`
	Complete   bool   `json:"complete,omitempty"`
}
