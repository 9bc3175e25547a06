package model

// MessageEntity is the normalized message derived from exactly one RawEvent.
type MessageEntity struct {
	ID           int64  `json:"id"`
	DataSourceID int64  `json:"datasource_id"`
	Message      string `json:"message"`
	RawID        int64  `json:"raw_id"`
}

// MessageView is the read shape served by the query API.
type MessageView struct {
	DataSourceName string `json:"datasource_name"`
	Message        string `json:"message"`
}
