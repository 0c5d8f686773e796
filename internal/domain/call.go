package domain

type (
	CallID   string
	CallType string
)

// CallState is bookkeeping for cleanup, not a gate on signal
// forwarding: candidates are relayed in RINGING and ACTIVE alike.
type CallState int32

const (
	CallRinging CallState = iota
	CallActive
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallRinging:
		return "RINGING"
	case CallActive:
		return "ACTIVE"
	case CallEnded:
		return "ENDED"
	}
	return "UNKNOWN"
}

// EndReason distinguishes a local hang-up from a remote-initiated end
// and from implicit termination by disconnect or ring timeout.
type EndReason string

const (
	EndNormal      EndReason = "NORMAL"
	EndRemoteEnded EndReason = "REMOTE_ENDED"
	EndTimedOut    EndReason = "TIMED_OUT"
)
