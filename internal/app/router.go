package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"peerline/go-backend/internal/core"
	"peerline/go-backend/internal/domain"
	"peerline/go-backend/internal/metrics"
)

// MessageStore persists chat messages before they are fanned out.
// Save fills in the record's ID and timestamp.
type MessageStore interface {
	Save(ctx context.Context, msg *domain.Message) error
}

// Router dispatches inbound realtime events: chat messages fan out to
// everyone else, signaling events go to exactly one recipient through
// registry lookup. It validates nothing and never reorders events
// from a single connection.
type Router struct {
	Registry *Registry
	Calls    *CallManager
	Store    MessageStore
}

// Connect registers the authenticated principal's connection.
func (r *Router) Connect(uid domain.UserID, sig core.SignalConnection) (*Connection, error) {
	return r.Registry.Register(uid, sig)
}

// Disconnect drives the full teardown for conn: every call it
// participates in is ended, then the registry entry is dropped.
// Safe to call more than once.
func (r *Router) Disconnect(uid domain.UserID, conn *Connection) {
	r.Registry.Release(uid, conn)
}

// SendMessage persists the message and then broadcasts the stored
// record to every other connection. Persistence failure suppresses
// the broadcast: nothing is announced that is not stored.
func (r *Router) SendMessage(ctx context.Context, from domain.UserID, content string, recipient domain.UserID, replyTo domain.MessageID) (*domain.Message, error) {
	msg := &domain.Message{
		SenderID:    from,
		RecipientID: recipient,
		ReplyToID:   replyTo,
		Content:     content,
	}
	if err := r.Store.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	b, err := json.Marshal(NewMessageEvent{Type: EvNewMessage, Message: msg})
	if err != nil {
		return nil, fmt.Errorf("marshal message event: %w", err)
	}
	res := r.Registry.Broadcast(from, core.Frame(b))
	metrics.MessagesBroadcast.Inc()
	log.Debug().Str("module", "app.router").Str("from", string(from)).Int("sent_to", res.SentTo).Msg("message broadcast")
	return msg, nil
}

func (r *Router) InitiateCall(from, target domain.UserID, kind domain.CallType, payload json.RawMessage) (domain.CallID, error) {
	return r.Calls.Initiate(from, target, kind, payload)
}

func (r *Router) AnswerCall(from, target domain.UserID, payload json.RawMessage) {
	r.Calls.RelayAnswer(from, target, payload)
}

func (r *Router) RelayCandidate(from, target domain.UserID, cand webrtc.ICECandidateInit) {
	r.Calls.RelayCandidate(from, target, cand)
}

// EndCall routes the two inbound call-end shapes: by call ID when the
// sender holds the session, by peer ID otherwise.
func (r *Router) EndCall(from domain.UserID, id domain.CallID, target domain.UserID, reason domain.EndReason) {
	if id != "" {
		if reason == "" {
			reason = domain.EndNormal
		}
		r.Calls.End(from, id, reason)
		return
	}
	if target != "" {
		r.Calls.EndWithPeer(from, target)
	}
}
