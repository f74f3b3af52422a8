package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet      QueryType = iota // Retrieve an entry by key.
	QueryTListKeys                  // List all keys.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTListKeys:
		return "ListKeys"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type QueryType // The type of Query to perform.
	Key  string    // The key for the Query (empty for ListKeys).
}

// QueryResult is the result of a QueryTGet operation.
// ListKeys returns a plain []string.
type QueryResult struct {
	Ok    bool
	Value string
}
