package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"codeflow/internal/store"
	"codeflow/internal/types"
)

func newReplayCmd() *cobra.Command {
	var showHidden bool

	cmd := &cobra.Command{
		Use:   "replay [session_id]",
		Short: "Replay a cached session transcript offline",
		Long: "Without arguments, lists cached sessions. With a session id, prints the\n" +
			"cached transcript including per-message metadata.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := store.NewTranscriptStore(settingsManager.TranscriptDBPath())
			if err != nil {
				return fmt.Errorf("failed to open transcript cache: %w", err)
			}
			defer cache.Close()

			if len(args) == 0 {
				return listSessions(cmd, cache)
			}
			return printTranscript(cmd, cache, args[0], showHidden)
		},
	}

	cmd.Flags().BoolVar(&showHidden, "hidden", false, "include system-originated prompt turns")

	return cmd
}

func listSessions(cmd *cobra.Command, cache *store.TranscriptStore) error {
	sessions, err := cache.Sessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		cmd.Println("no cached sessions")
		return nil
	}
	for _, id := range sessions {
		count, err := cache.Count(id)
		if err != nil {
			return err
		}
		cmd.Printf("%s  (%d messages)\n", id, count)
	}
	return nil
}

func printTranscript(cmd *cobra.Command, cache *store.TranscriptStore, sessionID string, showHidden bool) error {
	msgs, err := cache.GetMessages(sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if len(msgs) == 0 {
		return fmt.Errorf("no cached messages for session %s", sessionID)
	}

	for _, msg := range msgs {
		if msg.Hidden && !showHidden {
			continue
		}
		cmd.Printf("[%s] %s: %s\n", msg.Timestamp.Format("15:04:05"), msg.Role, msg.Content)
		if msg.Metadata != nil {
			printMetadata(cmd, msg.Metadata)
		}
	}
	return nil
}

func printMetadata(cmd *cobra.Command, meta *types.MessageMetadata) {
	if meta.ThinkingDuration > 0 {
		cmd.Printf("    thought for %.1fs\n", meta.ThinkingDuration)
	}
	for _, op := range meta.FileOperations {
		cmd.Printf("    %s %s\n", op.Operation, op.FilePath)
	}
	if meta.TokenUsage != nil {
		cmd.Printf("    tokens: %d in / %d out\n", meta.TokenUsage.InputTokens, meta.TokenUsage.OutputTokens)
	}
}
