// Package stream provides the persistent event source: a websocket connection
// to the agent backend that delivers decoded stream events one at a time, in
// send order, and accepts prompt submissions on the same connection.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"codeflow/internal/types"
)

const handshakeTimeout = 10 * time.Second

// Source is a single persistent connection to the agent backend. Events are
// decoded and delivered from one read-pump goroutine, which is what gives
// the per-connection FIFO guarantee. No delivery guarantee is made across
// reconnects; reconnection policy belongs to the caller.
type Source struct {
	// OnEvent receives each decoded event in arrival order. It runs on the
	// read-pump goroutine; handlers must not block for long.
	OnEvent func(*types.ClassifiedStreamEvent)

	// OnConnect fires after the handshake succeeds.
	OnConnect func()

	// OnDisconnect fires exactly once per connection when the read pump
	// exits. err is nil for a locally requested or clean remote close.
	OnDisconnect func(err error)

	// OnError receives transport faults that do not necessarily terminate
	// the in-flight message (decode failures, abnormal closes).
	OnError func(err error)

	url string
	log *logrus.Entry

	mu      sync.Mutex // guards conn and all writes to it
	conn    *websocket.Conn
	closing bool
}

// NewSource creates a source for the given websocket URL.
func NewSource(url string, log *logrus.Entry) *Source {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Source{url: url, log: log}
}

// Connect establishes the websocket connection and starts the read pump.
// Returns an error if a connection is already open.
func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return fmt.Errorf("already connected to %s", s.url)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to connect to %s: %w", s.url, err)
	}

	s.conn = conn
	s.closing = false
	s.mu.Unlock()

	s.log.WithField("url", s.url).Info("connected to agent stream")

	go s.readPump(conn)

	// Fired without the mutex so the callback may use the source (send an
	// opening prompt, check Connected).
	if s.OnConnect != nil {
		s.OnConnect()
	}
	return nil
}

// Connected reports whether a connection is currently open.
func (s *Source) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// SendPrompt submits a new request on the open connection. System-originated
// prompts are flagged so the rendering layer can hide the originating turn.
func (s *Source) SendPrompt(text, sessionID string, system bool) error {
	data, err := types.MarshalPromptFrame(types.PromptFrame{
		Text:      text,
		SessionID: sessionID,
		System:    system,
	})
	if err != nil {
		return fmt.Errorf("failed to encode prompt: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send prompt: %w", err)
	}
	return nil
}

// Disconnect releases the connection. Idempotent: calling it with no open
// connection is a no-op. The read pump reports the resulting close as clean.
func (s *Source) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return
	}
	s.closing = true

	// Best effort: tell the peer we are going away before tearing down.
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = s.conn.Close()
	s.conn = nil
}

// readPump reads and dispatches frames until the connection dies. It owns
// all reads; decode failures are reported but do not stop the pump.
func (s *Source) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.finish(conn, err)
			return
		}

		ev, err := types.ClassifyStreamEvent(data)
		if err != nil {
			s.log.WithError(err).Warn("failed to decode stream frame")
			if s.OnError != nil {
				s.OnError(fmt.Errorf("failed to decode stream frame: %w", err))
			}
			continue
		}

		if ev.EventType == types.StreamEventUnknown {
			s.log.WithField("frame", string(ev.Raw)).Debug("ignoring unknown event type")
			continue
		}

		if s.OnEvent != nil {
			s.OnEvent(ev)
		}
	}
}

// finish tears down state after the read loop exits and reports the
// disconnect exactly once.
func (s *Source) finish(conn *websocket.Conn, err error) {
	s.mu.Lock()
	requested := s.closing
	if s.conn == conn {
		_ = conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	clean := requested ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)

	if clean {
		s.log.Info("agent stream closed")
		if s.OnDisconnect != nil {
			s.OnDisconnect(nil)
		}
		return
	}

	s.log.WithError(err).Warn("agent stream connection lost")
	if s.OnError != nil {
		s.OnError(err)
	}
	if s.OnDisconnect != nil {
		s.OnDisconnect(err)
	}
}
