package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"peerline/go-backend/internal/app"
	"peerline/go-backend/internal/domain"
)

// Controller is the connection gateway: it upgrades an already
// authenticated request, registers the principal and pumps events
// between the socket and the router. Authentication happens in HTTP
// middleware before the upgrade, so a rejected credential never
// touches the registry.
type Controller struct {
	Router     *app.Router
	ReadLimit  int64
	PingPeriod time.Duration
	Limiter    *HandshakeLimiter
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	uid := domain.UserID(c.GetString("user_id"))
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	if !ctl.Limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "slow down"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("upgrade failed")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := newConn(ws, 32)
	reg, err := ctl.Router.Connect(uid, conn)
	if err != nil {
		// Reject policy: the principal already holds a connection.
		b, _ := json.Marshal(gin.H{"type": "error", "error": "already_connected"})
		_ = ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = ws.WriteMessage(websocket.TextMessage, b)
		conn.Close()
		return
	}
	log.Info().Str("module", "adapters.ws").Str("user", string(uid)).Msg("connection registered")

	connCtx, cancel := context.WithCancel(ctx)
	go ctl.writePump(connCtx, conn)
	go ctl.readPump(connCtx, cancel, uid, reg, conn)
}

func (ctl *Controller) writePump(ctx context.Context, c *Conn) {
	var ping <-chan time.Time
	if ctl.PingPeriod > 0 {
		t := time.NewTicker(ctl.PingPeriod)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("write error")
				return
			}
		}
	}
}

// readPump's exit is the single disconnect hook: graceful close,
// protocol error and transport failure all land here, and the
// registry release is identity-checked so running it twice is a no-op.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, uid domain.UserID, reg *app.Connection, c *Conn) {
	defer func() {
		cancel()
		ctl.Router.Disconnect(uid, reg)
		c.Close()
		log.Info().Str("module", "adapters.ws").Str("user", string(uid)).Msg("connection closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleEvent(uid, c, data)
		}
	}
}

func (ctl *Controller) handleEvent(uid domain.UserID, c *Conn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("bad json")
		ctl.sendError(c, "bad_payload")
		return
	}

	switch env.Type {
	case app.EvSendMessage:
		ctl.handleSendMessage(uid, c, data)
	case app.EvCallInitiate:
		ctl.handleCallInitiate(uid, c, data)
	case app.EvCallAnswer:
		ctl.handleCallAnswer(uid, c, data)
	case app.EvCallCandidate:
		ctl.handleCallCandidate(uid, c, data)
	case app.EvCallEnd:
		ctl.handleCallEnd(uid, c, data)
	case "ping":
		ctl.sendJSON(c, gin.H{"type": "pong"})
	default:
		log.Warn().Str("module", "adapters.ws").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *Controller) sendJSON(c *Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *Conn, msg string) {
	ctl.sendJSON(c, gin.H{"type": "error", "error": msg})
}

func (ctl *Controller) handleSendMessage(uid domain.UserID, c *Conn, data []byte) {
	var p struct {
		Content     string `json:"content"`
		RecipientID string `json:"recipientId"`
		ReplyToID   string `json:"replyToId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	_, err := ctl.Router.SendMessage(context.Background(), uid, p.Content, domain.UserID(p.RecipientID), domain.MessageID(p.ReplyToID))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Str("user", string(uid)).Msg("send message")
		ctl.sendError(c, "message_not_saved")
	}
}

func (ctl *Controller) handleCallInitiate(uid domain.UserID, c *Conn, data []byte) {
	var p struct {
		TargetUserID  string          `json:"targetUserId"`
		CallType      string          `json:"callType"`
		SignalPayload json.RawMessage `json:"signalPayload"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	id, err := ctl.Router.InitiateCall(uid, domain.UserID(p.TargetUserID), domain.CallType(p.CallType), p.SignalPayload)
	if err != nil {
		ctl.sendJSON(c, app.CallFailedEvent{
			Type:      app.EvCallFailed,
			ErrorCode: app.CodeUserUnavailable,
			Message:   "user is not available",
		})
		return
	}
	ctl.sendJSON(c, app.CallInitiatedEvent{Type: app.EvCallInitiated, CallID: id, To: domain.UserID(p.TargetUserID)})
}

func (ctl *Controller) handleCallAnswer(uid domain.UserID, c *Conn, data []byte) {
	var p struct {
		TargetUserID  string          `json:"targetUserId"`
		SignalPayload json.RawMessage `json:"signalPayload"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Router.AnswerCall(uid, domain.UserID(p.TargetUserID), p.SignalPayload)
}

func (ctl *Controller) handleCallCandidate(uid domain.UserID, c *Conn, data []byte) {
	var p struct {
		TargetUserID string                  `json:"targetUserId"`
		Candidate    webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Router.RelayCandidate(uid, domain.UserID(p.TargetUserID), p.Candidate)
}

func (ctl *Controller) handleCallEnd(uid domain.UserID, c *Conn, data []byte) {
	var p struct {
		CallID       string `json:"callId"`
		TargetUserID string `json:"targetUserId"`
		Reason       string `json:"reason"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Router.EndCall(uid, domain.CallID(p.CallID), domain.UserID(p.TargetUserID), domain.EndReason(p.Reason))
}
