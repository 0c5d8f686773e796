package app

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"peerline/go-backend/internal/core"
	"peerline/go-backend/internal/domain"
	"peerline/go-backend/internal/metrics"
)

// Event type tags shared by the gateway and the relay.
const (
	EvSendMessage   = "send-message"
	EvNewMessage    = "new-message"
	EvCallInitiate  = "call-initiate"
	EvCallInitiated = "call-initiated"
	EvCallIncoming  = "call-incoming"
	EvCallFailed    = "call-failed"
	EvCallAnswer    = "call-answer"
	EvCallAnswered  = "call-answered"
	EvCallCandidate = "call-candidate"
	EvCallEnd       = "call-end"
	EvCallEnded     = "call-ended"
)

const CodeUserUnavailable = "USER_UNAVAILABLE"

type NewMessageEvent struct {
	Type    string          `json:"type"`
	Message *domain.Message `json:"message"`
}

// CallInitiatedEvent acknowledges an accepted call to its originator
// so the caller can reference the session by ID later.
type CallInitiatedEvent struct {
	Type   string        `json:"type"`
	CallID domain.CallID `json:"callId"`
	To     domain.UserID `json:"to"`
}

type CallIncomingEvent struct {
	Type          string          `json:"type"`
	CallID        domain.CallID   `json:"callId"`
	SignalPayload json.RawMessage `json:"signalPayload"`
	From          domain.UserID   `json:"from"`
	CallType      domain.CallType `json:"callType"`
}

type CallFailedEvent struct {
	Type      string `json:"type"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

type CallAnsweredEvent struct {
	Type          string          `json:"type"`
	SignalPayload json.RawMessage `json:"signalPayload"`
	From          domain.UserID   `json:"from"`
}

type CallCandidateEvent struct {
	Type      string                  `json:"type"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	From      domain.UserID           `json:"from"`
}

type CallEndedEvent struct {
	Type   string           `json:"type"`
	From   domain.UserID    `json:"from"`
	Reason domain.EndReason `json:"reason"`
}

// send marshals v and pushes it best-effort. Delivery is
// fire-and-forget; a full buffer only bumps a counter.
func send(conn core.SignalConnection, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.events").Msg("marshal outbound event")
		return false
	}
	if err := conn.TrySend(core.Frame(b)); err != nil {
		metrics.FramesDropped.Inc()
		log.Debug().Err(err).Str("module", "app.events").Msg("dropped outbound frame")
		return false
	}
	return true
}
