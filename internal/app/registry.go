package app

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"peerline/go-backend/internal/config"
	"peerline/go-backend/internal/core"
	"peerline/go-backend/internal/domain"
	"peerline/go-backend/internal/metrics"
)

// ErrAlreadyConnected is returned by Register under the reject policy.
var ErrAlreadyConnected = errors.New("principal already connected")

const shardCount = 32

// Connection is one live realtime session for a principal. The calls
// map tracks every session this connection participates in (caller or
// callee side); the session itself is owned by the call manager.
type Connection struct {
	UserID    domain.UserID
	Signal    core.SignalConnection
	CreatedAt time.Time

	mu    sync.Mutex
	calls map[domain.CallID]*CallSession
}

func newConnection(uid domain.UserID, sig core.SignalConnection) *Connection {
	return &Connection{
		UserID:    uid,
		Signal:    sig,
		CreatedAt: time.Now(),
		calls:     make(map[domain.CallID]*CallSession),
	}
}

func (c *Connection) addCall(s *CallSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[s.ID] = s
}

// removeCall detaches and returns the session, or nil if unknown.
func (c *Connection) removeCall(id domain.CallID) *CallSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.calls[id]
	if !ok {
		return nil
	}
	delete(c.calls, id)
	return s
}

func (c *Connection) call(id domain.CallID) (*CallSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.calls[id]
	return s, ok
}

func (c *Connection) callsSnapshot() []*CallSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*CallSession, 0, len(c.calls))
	for _, s := range c.calls {
		out = append(out, s)
	}
	return out
}

// callsWith returns the sessions shared with peer, in any state.
func (c *Connection) callsWith(peer domain.UserID) []*CallSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*CallSession
	for _, s := range c.calls {
		if s.CallerID == peer || s.CalleeID == peer {
			out = append(out, s)
		}
	}
	return out
}

func (c *Connection) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// callEnder is how the registry cascades teardown into the call
// manager; the registry never mutates call state itself.
type callEnder interface {
	endAllFor(conn *Connection, reason domain.EndReason)
}

type shard struct {
	mu    sync.RWMutex
	conns map[domain.UserID]*Connection
}

// Registry is the single source of truth for "is principal X
// reachable now". Sharded so traffic on unrelated principals does not
// contend on one lock.
type Registry struct {
	policy string
	ender  callEnder
	shards [shardCount]shard
}

func NewRegistry(policy string) *Registry {
	r := &Registry{policy: policy}
	for i := range r.shards {
		r.shards[i].conns = make(map[domain.UserID]*Connection)
	}
	return r
}

// SetCallEnder must be called before traffic; split from the
// constructor because the call manager needs the registry first.
func (r *Registry) SetCallEnder(e callEnder) { r.ender = e }

func (r *Registry) shardFor(uid domain.UserID) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(uid))
	return &r.shards[h.Sum32()%shardCount]
}

// Register creates or replaces the entry for uid. What happens to an
// existing entry depends on the reconnect policy: replace keeps the
// historical single-slot overwrite and leaves the superseded
// connection untouched, reject refuses the newcomer, evict ends the
// old connection's calls and closes its transport first.
func (r *Registry) Register(uid domain.UserID, sig core.SignalConnection) (*Connection, error) {
	sh := r.shardFor(uid)

	sh.mu.Lock()
	prev := sh.conns[uid]
	if prev != nil && r.policy == config.ReconnectReject {
		sh.mu.Unlock()
		log.Warn().Str("module", "app.registry").Str("user", string(uid)).Msg("rejected duplicate connection")
		return nil, ErrAlreadyConnected
	}
	conn := newConnection(uid, sig)
	sh.conns[uid] = conn
	sh.mu.Unlock()

	if prev == nil {
		metrics.ActiveConnections.Inc()
	} else if r.policy == config.ReconnectEvict {
		// Teardown runs outside the shard lock: ending calls walks
		// back into the registry for peer lookups.
		if r.ender != nil {
			r.ender.endAllFor(prev, domain.EndRemoteEnded)
		}
		prev.Signal.Close()
		log.Info().Str("module", "app.registry").Str("user", string(uid)).Msg("evicted superseded connection")
	}
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Msg("registered connection")
	return conn, nil
}

// Lookup is safe to call concurrently with mutation.
func (r *Registry) Lookup(uid domain.UserID) (*Connection, bool) {
	sh := r.shardFor(uid)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.conns[uid]
	return c, ok
}

// Remove ends every call the connection participates in, then drops
// the entry. Removing an absent principal is a no-op.
func (r *Registry) Remove(uid domain.UserID) {
	sh := r.shardFor(uid)
	sh.mu.Lock()
	conn, ok := sh.conns[uid]
	if ok {
		delete(sh.conns, uid)
	}
	sh.mu.Unlock()
	if !ok {
		return
	}
	r.teardown(conn)
}

// Release is Remove guarded by connection identity, for the gateway's
// disconnect hook: a superseded connection's late teardown must not
// unregister its replacement.
func (r *Registry) Release(uid domain.UserID, conn *Connection) {
	sh := r.shardFor(uid)
	sh.mu.Lock()
	cur, ok := sh.conns[uid]
	if !ok || cur != conn {
		sh.mu.Unlock()
		return
	}
	delete(sh.conns, uid)
	sh.mu.Unlock()
	r.teardown(conn)
}

func (r *Registry) teardown(conn *Connection) {
	if r.ender != nil {
		r.ender.endAllFor(conn, domain.EndRemoteEnded)
	}
	metrics.ActiveConnections.Dec()
	log.Info().Str("module", "app.registry").Str("user", string(conn.UserID)).Msg("removed connection")
}

func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		n += len(sh.conns)
		sh.mu.RUnlock()
	}
	return n
}

// PublishResult reports delivery stats for a broadcast.
type PublishResult struct {
	SentTo  int
	Dropped int
}

// Broadcast fans a frame out to every connection except the sender.
// Fire-and-forget: sends happen on a snapshot, outside shard locks.
func (r *Registry) Broadcast(from domain.UserID, f core.Frame) PublishResult {
	res := PublishResult{}
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		targets := make([]*Connection, 0, len(sh.conns))
		for uid, c := range sh.conns {
			if uid == from {
				continue
			}
			targets = append(targets, c)
		}
		sh.mu.RUnlock()
		for _, c := range targets {
			if err := c.Signal.TrySend(f); err != nil {
				metrics.FramesDropped.Inc()
				res.Dropped++
				continue
			}
			res.SentTo++
		}
	}
	log.Debug().Str("module", "app.registry").Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", res.Dropped).Msg("broadcast result")
	return res
}
