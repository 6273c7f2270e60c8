package agent

// EventType identifies one kind of stream event emitted during a run.
type EventType string

const (
	EventStart          EventType = "start"
	EventContent        EventType = "content"
	EventSearch         EventType = "search"
	EventSearchComplete EventType = "search_complete"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// Event is a single record in the ordered stream produced by an agent
// run. Exactly one terminal event (done or error) is emitted per run and
// nothing follows it.
type Event struct {
	Type EventType `json:"type"`
	// Content carries a delta of the user-facing answer text (content).
	Content string `json:"content,omitempty"`
	// Message carries human-readable text for start/search_complete/done/error.
	Message string `json:"message,omitempty"`
	// Query is the search query being executed (search).
	Query string `json:"query,omitempty"`
	// Count is the 1-based sequence number of the search within the run (search).
	Count int `json:"count,omitempty"`
}

// Terminal reports whether the event ends the run's stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
