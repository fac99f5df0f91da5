// Package transport defines the messaging primitive winmsg channels are
// built on: post a structured value to a target window-like context, and
// subscribe to inbound values with the sender's origin and a handle back
// to the sender attached.
package transport

// Message is the unit delivered to a subscriber.
type Message struct {
	Data   []byte
	Origin string // sender's origin
	Source Window // sender's context, usable to reply without a prior reference
}

// Window is an opaque handle to a context that can be posted to.
type Window interface {
	// Addr identifies the window for logging/debugging. Two handles to the
	// same context report the same address.
	Addr() string
}

// Context is the local end of a transport: a window of its own plus the
// ability to send and to observe inbound messages.
type Context interface {
	Window

	// Origin reports the scheme+host+port identity of this context.
	Origin() string

	// Parent returns the parent context. A top-level context is its own
	// parent, mirroring how a top-level browser window behaves.
	Parent() Window

	// Top returns the top-level context of this context's tree.
	Top() Window

	// Send posts data to the target window. targetOrigin restricts delivery
	// to a target with exactly that origin; "*" disables the restriction.
	// Delivery is fire-and-forget: a restriction miss is not an error.
	Send(to Window, data []byte, targetOrigin string) error

	// Subscribe registers a listener for messages delivered to this context.
	// The returned cancel func removes the listener and closes the channel.
	Subscribe() (<-chan Message, func(), error)
}

// Wildcard disables the target-origin restriction on Send.
const Wildcard = "*"
