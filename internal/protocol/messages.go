package protocol

// Message is anything the registry can hand out: a command or a reply.
// Activate tells the instance which concrete id it was fetched for, so one
// type can serve several aliased ids.
type Message interface {
	ID() int
	Activate(id int)
}

// Command is an outbound message.
type Command interface {
	Message

	// Encode writes the payload. It must not keep references into w.
	Encode(w *Writer) error
}

// Reply is an inbound message.
type Reply interface {
	Message

	// Decode reads the payload. Called once per frame on the receiver goroutine.
	Decode(r *Reader) error

	// Ready reports whether everything Execute depends on is available.
	// Replies that are not ready wait in the executor's delayed queue.
	Ready() bool

	// Execute applies the reply. It returns false to be called again
	// before any other reply runs.
	Execute() bool
}

// Base stores the activated id. Embed it in commands and replies.
type Base struct {
	id int
}

// ID returns the id the instance was activated with.
func (b *Base) ID() int {
	return b.id
}

// Activate sets the id the instance represents.
func (b *Base) Activate(id int) {
	b.id = id
}

// AlwaysReady can be embedded by replies without preconditions.
type AlwaysReady struct{}

// Ready always returns true.
func (AlwaysReady) Ready() bool {
	return true
}
