package models

// MSubscribeCommand is sent by WebSocket clients to filter pushed snapshots.
type MSubscribeCommand struct {
	Command string   `json:"command"`
	Symbols []string `json:"symbols"`
}

// MSnapshotUpdate is the message pushed to WebSocket clients.
type MSnapshotUpdate struct {
	Type      string          `json:"type"` // "INITIAL" or "UPDATE"
	Symbol    string          `json:"symbol"`
	Snapshot  MSymbolSnapshot `json:"snapshot"`
	Timestamp int64           `json:"timestamp"`
}
