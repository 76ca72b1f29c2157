package entity

// Item is one discoverable resource with its download lifecycle state.
type Item struct {
	ID          int64  // Row identifier, assigned at discovery, never reused in a session
	LinkID      string // Stable hash of the normalized source URL, used for dedup and counters
	SourceURL   string // Absolute URL, immutable after creation
	DisplayName string // Sanitized name, used to derive the destination path
	DestPath    string // Computed from the save dir at admission time, empty until then
	Status      Status
	Progress    int   // 0-100, last known value; 0 while the total size is unknown
	Written     int64 // Bytes written so far
	Size        int64 // Content length reported by the server, 0 if unknown
}

// LinkRecord is one candidate resource found on a page.
type LinkRecord struct {
	URL  string
	Name string
}

// Event is emitted by a transfer worker. Terminal is set exactly once per
// worker run; the terminal event is always the last one the worker sends.
type Event struct {
	ItemID   int64
	Status   Status
	Progress int
	Written  int64
	Size     int64
	Terminal bool
}
