package feed

import (
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WSFeed subscribes to a remote push feed over WebSocket. The wire format is
// one JSON Event per message on <url>/<scope>. Delivery is not assumed
// guaranteed over mobile connections; the ledger's poll covers gaps.
type WSFeed struct {
	URL    string
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

func NewWSFeed(url string, logger *slog.Logger) *WSFeed {
	return &WSFeed{URL: url, Dialer: websocket.DefaultDialer, Logger: logger}
}

func (f *WSFeed) Subscribe(scope string) *Subscription {
	ch := make(chan Event, 16)
	done := make(chan struct{})
	go f.run(scope, ch, done)
	return &Subscription{C: ch, release: func() { close(done) }}
}

// run dials and reads until the subscription closes. Dropped connections are
// re-dialed with exponential backoff and jitter.
func (f *WSFeed) run(scope string, ch chan Event, done <-chan struct{}) {
	defer close(ch)
	attempt := 0
	for {
		select {
		case <-done:
			return
		default:
		}

		conn, _, err := f.dialer().Dial(f.endpoint(scope), nil)
		if err != nil {
			attempt++
			f.Logger.Warn("feed dial failed", "scope", scope, "attempt", attempt, "err", err)
			select {
			case <-done:
				return
			case <-time.After(nextBackoff(attempt)):
			}
			continue
		}
		attempt = 0

		f.readLoop(conn, ch, done)
	}
}

func (f *WSFeed) readLoop(conn *websocket.Conn, ch chan Event, done <-chan struct{}) {
	defer func() { _ = conn.Close() }()
	// The watcher lives only as long as this connection, so reconnects on a
	// flaky link do not accumulate goroutines.
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-done:
			_ = conn.Close()
		case <-connDone:
		}
	}()
	conn.SetReadLimit(1 << 20)
	for {
		var evt Event
		if err := conn.ReadJSON(&evt); err != nil {
			return
		}
		select {
		case ch <- evt:
		case <-done:
			return
		default:
		}
	}
}

func (f *WSFeed) dialer() *websocket.Dialer {
	if f.Dialer != nil {
		return f.Dialer
	}
	return websocket.DefaultDialer
}

func (f *WSFeed) endpoint(scope string) string {
	return strings.TrimRight(f.URL, "/") + "/" + scope
}

// nextBackoff doubles per attempt up to 30s, with jitter in the upper half so
// reconnecting clients spread out.
func nextBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := time.Second * time.Duration(1<<(attempt-1))
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	return base/2 + time.Duration(rand.Int63n(int64(base/2)+1))
}
