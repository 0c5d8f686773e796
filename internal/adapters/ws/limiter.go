package ws

import "golang.org/x/time/rate"

// HandshakeLimiter throttles new websocket handshakes. A nil limiter
// allows everything, which is the default configuration.
type HandshakeLimiter struct {
	lim *rate.Limiter
}

func NewHandshakeLimiter(perSecond float64, burst int) *HandshakeLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &HandshakeLimiter{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *HandshakeLimiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.lim.Allow()
}
