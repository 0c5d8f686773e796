package core

// Frame is a raw wire payload (a marshaled JSON event).
type Frame []byte

// SignalConnection abstracts the transport endpoint used to push
// events to a peer. Owned by the adapter; the adapter must Close() it.
// TrySend is non-blocking best-effort: a full buffer is an error for
// the caller to count or ignore, never a reason to stall.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
