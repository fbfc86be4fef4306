// Package persist writes finalized message metadata to the durable store and
// loads prior session messages when a session is reopened. All writes are
// best effort: a persistence failure is logged and never rolls back or blocks
// in-memory transcript state.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"codeflow/internal/types"
)

const requestTimeout = 15 * time.Second

// Persister is the HTTP client for the durable store. It implements
// transcript.MetadataSink: PersistMetadata dispatches each write as a
// fire-and-forget task so event processing never blocks on the network.
type Persister struct {
	baseURL string
	client  *http.Client
	log     *logrus.Entry
	wg      sync.WaitGroup
}

// NewPersister creates a persister for the store at baseURL
// (e.g. "http://localhost:4000").
func NewPersister(baseURL string, log *logrus.Entry) *Persister {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Persister{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
		log:     log,
	}
}

// PersistMetadata asynchronously PATCHes the metadata snapshot for a
// finalized message. Failures are logged only.
func (p *Persister) PersistMetadata(messageID string, snapshot types.MessageMetadata) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.patchMetadata(messageID, snapshot); err != nil {
			p.log.WithError(err).WithField("message", messageID).
				Warn("failed to persist message metadata")
		}
	}()
}

// Flush waits for all in-flight writes. Called on shutdown and in tests.
func (p *Persister) Flush() {
	p.wg.Wait()
}

func (p *Persister) patchMetadata(messageID string, snapshot types.MessageMetadata) error {
	body, err := json.Marshal(map[string]any{"metadata": snapshot})
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	url := fmt.Sprintf("%s/api/messages/%s", p.baseURL, messageID)
	req, err := http.NewRequest(http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("metadata write failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("metadata write returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// FetchMessages loads the prior messages of a session to seed the transcript
// on reopen. The last message may already carry metadata.
func (p *Persister) FetchMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	url := fmt.Sprintf("%s/api/sessions/%s/messages", p.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session fetch returned %d", resp.StatusCode)
	}

	var payload struct {
		Messages []types.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode session messages: %w", err)
	}
	return payload.Messages, nil
}
