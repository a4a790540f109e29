package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/reel/internal/core"
	"github.com/tessro/reel/internal/tail"
)

var (
	tailContainer string
	tailNoEmoji   bool
	tailTimestamp bool
	tailFormat    string
	tailInterval  time.Duration
	tailAutoplay  bool
	tailProvider  string
)

var tailCmd = &cobra.Command{
	Use:   "tail <video-id>",
	Short: "Follow an embedded player's events in real-time",
	Long: `Embed a video and print its state changes as they happen.

Events tracked:
  - State changes (ready, playing, paused, ended)
  - Seeks beyond normal playback drift
  - Volume and mute changes
  - Errors and teardown`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func init() {
	tailCmd.Flags().StringVarP(&tailContainer, "container", "C", "player", "container to embed into")
	tailCmd.Flags().BoolVar(&tailNoEmoji, "no-emoji", false, "disable emoji output")
	tailCmd.Flags().BoolVarP(&tailTimestamp, "timestamp", "t", false, "show timestamps")
	tailCmd.Flags().StringVarP(&tailFormat, "format", "f", "", "custom format template")
	tailCmd.Flags().DurationVarP(&tailInterval, "interval", "i", time.Second, "poll interval")
	tailCmd.Flags().BoolVar(&tailAutoplay, "autoplay", false, "start playback once ready")
	tailCmd.Flags().StringVar(&tailProvider, "provider", "", "widget provider (youtube, sim)")

	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	videoID, err := core.ParseVideoID(args[0])
	if err != nil {
		return err
	}

	c := *cfg
	if cmd.Flags().Changed("autoplay") {
		c.Player.Autoplay = tailAutoplay
	}
	if cmd.Flags().Changed("provider") {
		c.Provider.Name = tailProvider
	}
	if err := c.Validate(); err != nil {
		return err
	}

	// Handle Ctrl+C gracefully
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := log("cli").WithField("video", videoID)
	b, err := openBackend(ctx, &c, []string{tailContainer}, l)
	if err != nil {
		return fmt.Errorf("start %s provider: %w", c.Provider.Name, err)
	}
	defer func() { _ = b.close() }()

	mgr := b.manager(&c, l)
	defer mgr.Close()

	ctrl := mgr.Open(videoID, tailContainer)
	watcher := tail.NewWatcher(ctrl, tailInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- watcher.Start(ctx)
	}()
	go func() {
		if err := ctrl.Initialize(ctx, initOptions(c.Player)); err != nil {
			l.WithError(err).Debug("initialize failed")
		}
	}()

	formatter := tail.NewFormatter(
		tail.WithEmoji(!tailNoEmoji),
		tail.WithTimestamp(tailTimestamp),
		tail.WithTemplate(tailFormat),
	)

	// Print events as they arrive
	for {
		select {
		case event, ok := <-watcher.Events():
			if !ok {
				return waitWatcher(errCh)
			}
			if err := printEvent(formatter, event); err != nil {
				return err
			}

		case err := <-errCh:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func printEvent(f *tail.Formatter, e tail.Event) error {
	if !JSONOutput() {
		fmt.Println(f.Format(e))
		return nil
	}
	out := struct {
		Event     string       `json:"event"`
		Timestamp time.Time    `json:"timestamp"`
		Player    snapshotJSON `json:"player"`
	}{
		Event:     e.Type.String(),
		Timestamp: e.Timestamp,
	}
	if e.Current != nil {
		out.Player = toSnapshotJSON(*e.Current)
	}
	return printJSON(out)
}

func waitWatcher(errCh <-chan error) error {
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
