// Package controller implements the per-session request state machine. It
// owns the submit/abort surface, enforces the single-active-stream rule, and
// routes decoded events into the transcript reconciler.
package controller

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"codeflow/internal/transcript"
	"codeflow/internal/types"
)

// ErrStreamActive is returned by Submit while a request is streaming.
var ErrStreamActive = errors.New("a stream is already active for this session")

// State is the request lifecycle state of a session.
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateErrored   State = "errored"
)

// streaming reports whether a request is in flight. Every non-streaming
// state accepts a new submit.
func (s State) streaming() bool {
	return s == StateStreaming
}

// PromptSender is the event-source surface the controller drives.
type PromptSender interface {
	SendPrompt(text, sessionID string, system bool) error
	Disconnect()
}

// TranscriptCache mirrors settled transcripts locally (replay support).
type TranscriptCache interface {
	SaveMessages(sessionID string, msgs []types.Message) error
}

// Controller serializes all access to the reconciler: events arrive on the
// read-pump goroutine, submit/abort on the caller's, and the mutex makes
// each operation atomic with respect to the others.
type Controller struct {
	// OnTransportError fires when the connection is lost mid-stream with no
	// recovery path; the request has already been marked errored.
	OnTransportError func(err error)

	sessionID string
	source    PromptSender
	rec       *transcript.Reconciler
	cache     TranscriptCache
	log       *logrus.Entry

	mu    sync.Mutex
	state State
}

// New creates a controller for one session.
func New(sessionID string, source PromptSender, rec *transcript.Reconciler, log *logrus.Entry) *Controller {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		sessionID: sessionID,
		source:    source,
		rec:       rec,
		log:       log.WithField("session", sessionID),
		state:     StateIdle,
	}
}

// SetCache attaches the local replay cache. Optional.
func (c *Controller) SetCache(cache TranscriptCache) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = cache
}

// SessionID returns the session this controller drives.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// State returns the current request state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the current transcript.
func (c *Controller) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.Messages()
}

// Seed installs messages loaded from the durable store on session reopen.
// Rejected mid-stream: replacing the message list would orphan the open
// message.
func (c *Controller) Seed(msgs []types.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.streaming() {
		return ErrStreamActive
	}
	c.rec.Seed(msgs)
	return nil
}

// NewChat resets the session to an empty transcript. Rejected mid-stream;
// abort first.
func (c *Controller) NewChat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.streaming() {
		return ErrStreamActive
	}
	c.rec.Reset()
	c.state = StateIdle
	return nil
}

// Submit sends a prompt on the open connection and moves the session to
// streaming. At most one stream may be active; submitting during one is
// rejected, not queued. System-originated prompts are flagged so the
// rendering layer can hide the originating turn.
func (c *Controller) Submit(prompt string, system bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.streaming() {
		return ErrStreamActive
	}

	if err := c.source.SendPrompt(prompt, c.sessionID, system); err != nil {
		return fmt.Errorf("failed to submit prompt: %w", err)
	}

	c.rec.AppendUserMessage(prompt, system)
	c.state = StateStreaming
	c.log.WithField("system", system).Debug("prompt submitted")
	return nil
}

// Abort cancels the in-flight request: it finalizes the open message through
// the same snapshot path stream_end uses, asks the source to release the
// connection, and marks the request aborted without waiting for further
// events. Idempotent; a no-op unless streaming. Cancellation is cooperative:
// the backend may keep generating, and its late events are discarded by the
// completion ledger.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.streaming() {
		return
	}

	if id := c.rec.Abort(); id != "" {
		c.log.WithField("message", id).Info("stream aborted")
	}
	c.source.Disconnect()
	c.state = StateAborted
	c.mirrorTranscript()
}

// HandleEvent routes one decoded event into the reconciler and advances the
// request state on terminal events. Wire it as the event source's OnEvent.
func (c *Controller) HandleEvent(ev *types.ClassifiedStreamEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasOpen := c.rec.HasOpen()
	openID := c.rec.OpenMessageID()

	c.rec.Apply(ev)

	switch ev.EventType {
	case types.StreamEventStreamEnd:
		if wasOpen && ev.StreamEnd.MessageID == openID && !c.rec.HasOpen() {
			c.state = StateCompleted
			c.mirrorTranscript()
		}

	case types.StreamEventError:
		if wasOpen && !c.rec.HasOpen() {
			c.state = StateErrored
			c.mirrorTranscript()
		}

	case types.StreamEventResponse:
		// Legacy single-event completion. The id is optional on the wire; an
		// id-less response cannot be ledger-checked, but while streaming with
		// no open message it is still the exchange finishing.
		if !wasOpen && c.state.streaming() &&
			(ev.Response.MessageID == "" || c.rec.Ledger().Contains(ev.Response.MessageID)) {
			c.state = StateCompleted
			c.mirrorTranscript()
		}
	}
}

// HandleDisconnect reacts to the connection closing. A clean close is
// ignored; losing the connection mid-stream finalizes the open message with
// what accumulated and marks the request errored.
func (c *Controller) HandleDisconnect(err error) {
	c.mu.Lock()

	if err == nil || !c.state.streaming() {
		c.mu.Unlock()
		return
	}

	c.log.WithError(err).Warn("connection lost mid-stream")
	c.rec.Abort()
	c.state = StateErrored
	c.mirrorTranscript()
	callback := c.OnTransportError
	c.mu.Unlock()

	if callback != nil {
		callback(err)
	}
}

// mirrorTranscript writes the settled transcript to the local replay cache.
// Best effort; failures are logged only. Caller holds the mutex.
func (c *Controller) mirrorTranscript() {
	if c.cache == nil {
		return
	}
	if err := c.cache.SaveMessages(c.sessionID, c.rec.Messages()); err != nil {
		c.log.WithError(err).Warn("failed to mirror transcript to local cache")
	}
}
