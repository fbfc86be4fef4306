package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"codeflow/internal/controller"
	"codeflow/internal/persist"
	"codeflow/internal/store"
	"codeflow/internal/stream"
	"codeflow/internal/transcript"
	"codeflow/internal/types"
	"codeflow/internal/workspace"
)

func newChatCmd() *cobra.Command {
	var (
		serverURL     string
		workspaceRoot string
		sessionID     string
		resume        bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session with the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := settingsManager.GetSettings()
			if serverURL == "" {
				serverURL = cfg.ServerURL
			}
			if workspaceRoot == "" {
				workspaceRoot = cfg.WorkspaceRoot
			}
			if sessionID == "" {
				sessionID = uuid.New().String()
				resume = false
			}
			return runChat(serverURL, workspaceRoot, sessionID, resume)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "agent backend base URL (overrides settings)")
	cmd.Flags().StringVar(&workspaceRoot, "workspace-root", "", "directory for generated file trees (overrides settings)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to open (default: a fresh session)")
	cmd.Flags().BoolVar(&resume, "resume", true, "load prior messages when opening an existing session")

	return cmd
}

func runChat(serverURL, workspaceRoot, sessionID string, resume bool) error {
	log := logrus.WithField("component", "chat")

	persister := persist.NewPersister(serverURL, logrus.WithField("component", "persist"))
	rec := transcript.NewReconciler(persister, logrus.WithField("component", "transcript"))
	syncer := workspace.NewSyncer(workspaceRoot, logrus.WithField("component", "workspace"))

	cache, err := store.NewTranscriptStore(settingsManager.TranscriptDBPath())
	if err != nil {
		return fmt.Errorf("failed to open transcript cache: %w", err)
	}
	defer cache.Close()

	source := stream.NewSource(wsURL(serverURL), logrus.WithField("component", "stream"))
	ctrl := controller.New(sessionID, source, rec, log)
	ctrl.SetCache(cache)

	renderer := newRenderer(os.Stdout)
	rec.OnChange = renderer.Render
	rec.OnFilesUpdated = syncer.Apply
	rec.OnStreamError = func(e transcript.StreamError) {
		if e.RateLimited {
			fmt.Fprintf(os.Stderr, "\n!! rate limited by the agent backend: %s\n", e.Message)
			return
		}
		fmt.Fprintf(os.Stderr, "\n!! agent error: %s\n", e.Message)
	}
	ctrl.OnTransportError = func(err error) {
		fmt.Fprintf(os.Stderr, "\n!! connection lost: %v\n", err)
	}

	source.OnEvent = ctrl.HandleEvent
	source.OnDisconnect = ctrl.HandleDisconnect

	if resume {
		prior, err := persister.FetchMessages(context.Background(), sessionID)
		if err != nil {
			log.WithError(err).Warn("could not load prior session messages")
		} else if len(prior) > 0 {
			if err := ctrl.Seed(prior); err != nil {
				log.WithError(err).Warn("could not seed prior session messages")
			} else {
				renderer.Render(prior)
			}
		}
	}

	if err := source.Connect(context.Background()); err != nil {
		return err
	}
	defer source.Disconnect()
	defer persister.Flush()
	defer syncer.Wait()

	fmt.Printf("session %s connected to %s\n", sessionID, serverURL)
	fmt.Println(`type a prompt and press enter; commands: /abort /new /quit`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			ctrl.Abort()
			return nil
		case "/abort":
			ctrl.Abort()
			fmt.Println("aborted")
			continue
		case "/new":
			ctrl.Abort()
			if err := ctrl.NewChat(); err != nil {
				fmt.Fprintf(os.Stderr, "cannot start a new chat: %v\n", err)
				continue
			}
			renderer.Reset()
			if !source.Connected() {
				if err := source.Connect(context.Background()); err != nil {
					return err
				}
			}
			fmt.Println("new chat")
			continue
		}

		if !source.Connected() {
			if err := source.Connect(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "reconnect failed: %v\n", err)
				continue
			}
		}
		if err := ctrl.Submit(line, false); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
}

// wsURL derives the websocket endpoint from the HTTP base URL.
func wsURL(serverURL string) string {
	ws := strings.Replace(serverURL, "http://", "ws://", 1)
	ws = strings.Replace(ws, "https://", "wss://", 1)
	return strings.TrimRight(ws, "/") + "/ws"
}

// renderer prints transcript updates incrementally: for the streaming
// message only the newly appended suffix is written, so output reads like
// the agent typing.
type renderer struct {
	mu      sync.Mutex
	out     *os.File
	printed map[string]int // message id -> runes already written
	lastID  string
}

func newRenderer(out *os.File) *renderer {
	return &renderer{out: out, printed: make(map[string]int)}
}

func (r *renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printed = make(map[string]int)
	r.lastID = ""
}

func (r *renderer) Render(msgs []types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range msgs {
		if msg.Hidden {
			continue
		}
		content := []rune(msg.Content)
		done, seen := r.printed[msg.ID]
		if !seen {
			if r.lastID != "" {
				fmt.Fprintln(r.out)
			}
			fmt.Fprintf(r.out, "[%s] ", msg.Role)
			r.lastID = msg.ID
		}
		if done > len(content) {
			// Content was replaced with something shorter (display switch at
			// a reasoning seal); reprint it in full on a new line.
			fmt.Fprintf(r.out, "\n[%s] ", msg.Role)
			done = 0
		}
		if done < len(content) {
			fmt.Fprint(r.out, string(content[done:]))
			r.printed[msg.ID] = len(content)
		} else if !seen {
			r.printed[msg.ID] = len(content)
		}
	}
}
