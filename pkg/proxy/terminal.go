package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harborctl/harbor/pkg/harborerr"
	"github.com/harborctl/harbor/pkg/metrics"
	"github.com/harborctl/harbor/pkg/runtime"
	"github.com/harborctl/harbor/pkg/types"
)

// Terminal rejection codes carried by TerminalError, distinguishing why a
// proxy attempt never got going. They are not sent as websocket close
// frames: a rejection happens before the upgrade.
const (
	CloseUnauthorized   = 4001
	CloseAccessDenied   = 4003
	CloseShipNotFound   = 4004
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TerminalError carries a close code alongside a message, used by
// callers to reject an upgrade with the spec's distinct status codes.
type TerminalError struct {
	Code int
	Err  error
}

func (e *TerminalError) Error() string { return e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// ServeTerminal upgrades w/r to a websocket and proxies it
// bidirectionally to the Ship's own terminal websocket endpoint. It
// validates token, Ship status, and session binding before upgrading.
// When a check fails it returns a *TerminalError with the matching code
// and does not upgrade, so no websocket close frame reaches the client;
// pkg/api answers such a rejection with an HTTP status instead.
func (p *Proxy) ServeTerminal(w http.ResponseWriter, r *http.Request, token, shipID, sessionID string, cols, rows int) error {
	if token != p.cfg.AccessToken {
		return &TerminalError{Code: CloseUnauthorized, Err: harborerr.ErrUnauthorized}
	}

	ship, err := p.store.GetShip(shipID)
	if err != nil || ship.Status != types.ShipRunning || ship.IPAddress == "" {
		return &TerminalError{Code: CloseShipNotFound, Err: harborerr.ErrNotFound}
	}

	_, binding, err := p.authorize(shipID, sessionID)
	if err != nil {
		return &TerminalError{Code: CloseAccessDenied, Err: harborerr.ErrSessionNotBound}
	}

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrading client connection: %w", err)
	}
	defer clientConn.Close()

	downstream := runtime.DownstreamAddress(ship.IPAddress, p.cfg.ShipContainerPort)
	upstreamURL := fmt.Sprintf("ws://%s/term/ws?session_id=%s&cols=%d&rows=%d",
		downstream, url.QueryEscape(sessionID), cols, rows)

	upstreamConn, _, err := websocket.DefaultDialer.DialContext(r.Context(), upstreamURL, nil)
	if err != nil {
		return fmt.Errorf("dialing ship terminal: %w", err)
	}
	defer upstreamConn.Close()

	metrics.TerminalSessionsActive.Inc()
	defer metrics.TerminalSessionsActive.Dec()

	p.pumpTerminal(clientConn, upstreamConn)

	binding.LastActivity = time.Now().UTC()
	_ = p.store.UpdateBinding(binding)
	_ = p.scheduler.Schedule(shipID)

	return nil
}

// pumpTerminal runs the two forwarding loops until either side closes
// or errors, then waits for both to stop before returning.
func (p *Proxy) pumpTerminal(client, upstream *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	// Closing both connections unblocks whichever loop is still waiting
	// in ReadMessage once the other direction has stopped.
	go func() {
		<-ctx.Done()
		client.Close()
		upstream.Close()
	}()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		forward(ctx, client, upstream)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		forward(ctx, upstream, client)
	}()

	wg.Wait()
}

// forward relays frames from src to dst, preserving text/binary frame
// type, until src errors, dst errors, or ctx is canceled by the other
// direction stopping first.
func forward(ctx context.Context, src, dst *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgType, data, err := src.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			return
		}
	}
}
