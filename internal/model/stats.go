package model

// SourceStats summarizes the backlog of a single data source.
type SourceStats struct {
	DataSource  string `json:"datasource"`
	Raw         int64  `json:"raw"`
	Unprocessed int64  `json:"unprocessed"`
	Quarantined int64  `json:"quarantined"`
	Messages    int64  `json:"messages"`
}
