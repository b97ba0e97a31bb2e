package core

// Client is a live connection as seen by the core layer. A Session is attached
// to it only after registration succeeds.
type Client struct {
	ID       string
	Addr     string
	Commands chan *Command
	Events   chan *Event

	// closed is owned by the hub goroutine; Events is closed exactly once.
	closed bool
}

// NewClient constructs a client with initialized channels.
func NewClient(id, addr string) *Client {
	return &Client{
		ID:       id,
		Addr:     addr,
		Commands: make(chan *Command, 16),
		Events:   make(chan *Event, 64),
	}
}
