package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultItem    ResultType = "item"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	ItemID  string     `json:"itemId"`
	TeamID  string     `json:"teamId"`
	Status  string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text         string
	FilterType   ResultType // empty = all types
	FilterTeamID string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexItem(item ItemRecord) error
	IndexComment(c CommentRecord) error
	DeleteItem(id string) error
	DeleteComment(id string) error
}

// ItemRecord is the data we index for a tracked item.
type ItemRecord struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	NextStep string `json:"nextStep"`
	TeamID   string `json:"teamId"`
	Status   string `json:"status"`
}

// CommentRecord is the data we index for an item comment.
type CommentRecord struct {
	ID     string `json:"id"`
	Body   string `json:"body"`
	ItemID string `json:"itemId"`
	TeamID string `json:"teamId"`
}
