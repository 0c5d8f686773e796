package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"peerline/go-backend/internal/domain"
	"peerline/go-backend/internal/metrics"
)

// ErrUnreachable is returned by Initiate when the callee holds no
// live connection. No session is created in that case.
var ErrUnreachable = errors.New("callee unreachable")

// CallSession tracks one signaling exchange between two principals.
// Caller and callee are immutable after creation; only state moves.
type CallSession struct {
	ID        domain.CallID
	CallerID  domain.UserID
	CalleeID  domain.UserID
	Kind      domain.CallType
	StartedAt time.Time

	state atomic.Int32
	timer *time.Timer
}

func (s *CallSession) State() domain.CallState {
	return domain.CallState(s.state.Load())
}

// answer flips RINGING to ACTIVE. Bookkeeping only: signal forwarding
// never consults the state.
func (s *CallSession) answer() bool {
	return s.state.CompareAndSwap(int32(domain.CallRinging), int32(domain.CallActive))
}

// end transitions to ENDED; only the first caller wins.
func (s *CallSession) end() bool {
	if domain.CallState(s.state.Swap(int32(domain.CallEnded))) == domain.CallEnded {
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	return true
}

func (s *CallSession) peerOf(uid domain.UserID) domain.UserID {
	if uid == s.CallerID {
		return s.CalleeID
	}
	return s.CallerID
}

// CallManager owns call lifecycle. Sessions live in memory only,
// referenced from both participants' connections; the registry is
// consulted for reachability on every delivery.
type CallManager struct {
	reg         *Registry
	ringTimeout time.Duration
}

// NewCallManager wires itself into the registry so connection removal
// cascades into End for every held session.
func NewCallManager(reg *Registry, ringTimeout time.Duration) *CallManager {
	m := &CallManager{reg: reg, ringTimeout: ringTimeout}
	reg.SetCallEnder(m)
	return m
}

// Call IDs compose caller, callee and the current timestamp. Unique
// enough for a single process; a distributed registry would need a
// random 128-bit token instead.
func mintCallID(caller, callee domain.UserID) domain.CallID {
	return domain.CallID(fmt.Sprintf("%s-%s-%d", caller, callee, time.Now().UnixNano()))
}

// Initiate creates a RINGING session and delivers call-incoming to
// the callee. A second call between the same pair is a second,
// independently tracked session.
func (m *CallManager) Initiate(caller, callee domain.UserID, kind domain.CallType, payload json.RawMessage) (domain.CallID, error) {
	calleeConn, ok := m.reg.Lookup(callee)
	if !ok {
		metrics.CallsFailed.Inc()
		log.Info().Str("module", "app.calls").Str("caller", string(caller)).Str("callee", string(callee)).Msg("callee unreachable")
		return "", ErrUnreachable
	}
	callerConn, ok := m.reg.Lookup(caller)
	if !ok {
		// Caller dropped between event receipt and here.
		return "", ErrUnreachable
	}

	s := &CallSession{
		ID:        mintCallID(caller, callee),
		CallerID:  caller,
		CalleeID:  callee,
		Kind:      kind,
		StartedAt: time.Now(),
	}
	if m.ringTimeout > 0 {
		s.timer = time.AfterFunc(m.ringTimeout, func() { m.timeout(s) })
	}
	callerConn.addCall(s)
	calleeConn.addCall(s)

	send(calleeConn.Signal, CallIncomingEvent{
		Type:          EvCallIncoming,
		CallID:        s.ID,
		SignalPayload: payload,
		From:          caller,
		CallType:      kind,
	})
	metrics.CallsInitiated.Inc()
	log.Info().Str("module", "app.calls").Str("call", string(s.ID)).Str("caller", string(caller)).Str("callee", string(callee)).Str("kind", string(kind)).Msg("call initiated")
	return s.ID, nil
}

// RelayAnswer forwards an answer payload verbatim. If the recipient
// is offline the event is silently dropped, matching the asymmetry
// with Initiate's explicit failure.
func (m *CallManager) RelayAnswer(from, to domain.UserID, payload json.RawMessage) {
	toConn, ok := m.reg.Lookup(to)
	if !ok {
		m.dropSignal(EvCallAnswer, from, to)
		return
	}
	for _, s := range toConn.callsWith(from) {
		if s.answer() {
			log.Debug().Str("module", "app.calls").Str("call", string(s.ID)).Msg("call active")
			break
		}
	}
	send(toConn.Signal, CallAnsweredEvent{Type: EvCallAnswered, SignalPayload: payload, From: from})
}

// RelayCandidate forwards an ICE candidate verbatim, in RINGING and
// ACTIVE alike.
func (m *CallManager) RelayCandidate(from, to domain.UserID, cand webrtc.ICECandidateInit) {
	toConn, ok := m.reg.Lookup(to)
	if !ok {
		m.dropSignal(EvCallCandidate, from, to)
		return
	}
	send(toConn.Signal, CallCandidateEvent{Type: EvCallCandidate, Candidate: cand, From: from})
}

// End terminates the identified session held by owner. Unknown call
// IDs are a no-op, never an error.
func (m *CallManager) End(owner domain.UserID, id domain.CallID, reason domain.EndReason) {
	conn, ok := m.reg.Lookup(owner)
	if !ok {
		return
	}
	s, ok := conn.call(id)
	if !ok {
		return
	}
	m.finish(s, owner, reason)
}

// EndWithPeer ends every session the target shares with the sender.
// When nothing is tracked the call-ended is still relayed verbatim,
// preserving the end-fallback behavior.
func (m *CallManager) EndWithPeer(from, to domain.UserID) {
	toConn, ok := m.reg.Lookup(to)
	if !ok {
		m.dropSignal(EvCallEnd, from, to)
		return
	}
	sessions := toConn.callsWith(from)
	if len(sessions) == 0 {
		send(toConn.Signal, CallEndedEvent{Type: EvCallEnded, From: from, Reason: domain.EndRemoteEnded})
		return
	}
	for _, s := range sessions {
		m.finish(s, from, domain.EndRemoteEnded)
	}
}

// finish transitions the session to ENDED, scrubs it from both
// participants and notifies the surviving peer with the reason.
func (m *CallManager) finish(s *CallSession, endedBy domain.UserID, reason domain.EndReason) {
	if !s.end() {
		return
	}
	metrics.CallsEnded.Inc()

	peer := s.peerOf(endedBy)
	if c, ok := m.reg.Lookup(endedBy); ok {
		c.removeCall(s.ID)
	}
	if c, ok := m.reg.Lookup(peer); ok {
		c.removeCall(s.ID)
		send(c.Signal, CallEndedEvent{Type: EvCallEnded, From: endedBy, Reason: reason})
	}
	log.Info().Str("module", "app.calls").Str("call", string(s.ID)).Str("ended_by", string(endedBy)).Str("reason", string(reason)).Msg("call ended")
}

// timeout fires for sessions still RINGING past the configured
// deadline; both parties hear TIMED_OUT.
func (m *CallManager) timeout(s *CallSession) {
	if s.State() != domain.CallRinging {
		return
	}
	if !s.end() {
		return
	}
	metrics.CallsEnded.Inc()
	for _, uid := range []domain.UserID{s.CallerID, s.CalleeID} {
		if c, ok := m.reg.Lookup(uid); ok {
			c.removeCall(s.ID)
			send(c.Signal, CallEndedEvent{Type: EvCallEnded, From: s.peerOf(uid), Reason: domain.EndTimedOut})
		}
	}
	log.Info().Str("module", "app.calls").Str("call", string(s.ID)).Msg("ringing call timed out")
}

// endAllFor implements the registry's cleanup cascade: no call may
// outlive a participant's connection.
func (m *CallManager) endAllFor(conn *Connection, reason domain.EndReason) {
	for _, s := range conn.callsSnapshot() {
		m.finish(s, conn.UserID, reason)
	}
}

func (m *CallManager) dropSignal(kind string, from, to domain.UserID) {
	metrics.SignalsDropped.Inc()
	log.Debug().Str("module", "app.calls").Str("kind", kind).Str("from", string(from)).Str("to", string(to)).Msg("recipient offline, signal dropped")
}
