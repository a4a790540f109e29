package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/reel/internal/config"
	"github.com/tessro/reel/internal/core"
	"github.com/tessro/reel/internal/player"
	"github.com/tessro/reel/internal/registry"
	"github.com/tessro/reel/internal/tui"
	"github.com/tessro/reel/internal/wizard"
)

var (
	playContainers []string
	playAutoplay   bool
	playMuted      bool
	playLoop       bool
	playProvider   string
	playHeadless   bool
	playOnce       bool
)

var playCmd = &cobra.Command{
	Use:   "play [video-id]",
	Short: "Embed a video and open the control surface",
	Long: `Embed a video in one or more containers and control it interactively.
The video may be an id or a watch URL. Without one, you are prompted for it.

Examples:
  reel play dQw4w9WgXcQ
  reel play https://youtu.be/dQw4w9WgXcQ --autoplay
  reel play dQw4w9WgXcQ --container left --container right
  reel play dQw4w9WgXcQ --provider sim --once --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringArrayVar(&playContainers, "container", []string{"player"}, "container id (repeatable)")
	playCmd.Flags().BoolVar(&playAutoplay, "autoplay", false, "start playback once ready")
	playCmd.Flags().BoolVar(&playMuted, "muted", false, "start muted")
	playCmd.Flags().BoolVar(&playLoop, "loop", false, "loop the video")
	playCmd.Flags().StringVar(&playProvider, "provider", "", "widget provider (youtube, sim)")
	playCmd.Flags().BoolVar(&playHeadless, "headless", false, "run the browser headless")
	playCmd.Flags().BoolVar(&playOnce, "once", false, "initialize, print the players and exit")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	var videoID string
	var err error
	if len(args) > 0 {
		videoID, err = core.ParseVideoID(args[0])
	} else {
		videoID, err = wizard.PromptVideo()
	}
	if err != nil {
		return err
	}

	c := *cfg
	applyPlayFlags(cmd, &c)
	if err := c.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := log("cli").WithField("video", videoID)
	b, err := openBackend(ctx, &c, playContainers, l)
	if err != nil {
		return fmt.Errorf("start %s provider: %w", c.Provider.Name, err)
	}
	defer func() {
		if err := b.close(); err != nil {
			l.WithError(err).Warn("provider shutdown")
		}
	}()

	mgr := b.manager(&c, l)
	opts := initOptions(c.Player)

	if playOnce {
		return reportPlay(ctx, mgr, videoID, opts)
	}

	for _, id := range playContainers {
		ctrl := mgr.Open(videoID, id)
		go func() {
			if err := ctrl.Initialize(ctx, opts); err != nil {
				l.WithField("container", ctrl.ContainerID()).WithError(err).Warn("initialize failed")
			}
		}()
	}

	return tui.Run(tui.NewApp(mgr, settings(c.Controls, c.Player.Autoplay)))
}

// reportPlay initializes every container and prints the resulting
// instances instead of opening the control surface.
func reportPlay(ctx context.Context, mgr *registry.Manager, videoID string, opts player.InitOptions) error {
	defer mgr.Close()

	initErr := mgr.InitializeAll(ctx, videoID, playContainers, opts)

	snaps := mgr.Snapshots()
	if !JSONOutput() {
		writeSnapshots(os.Stdout, snaps)
	} else {
		out := make([]snapshotJSON, 0, len(snaps))
		for _, s := range snaps {
			out = append(out, toSnapshotJSON(s))
		}
		if err := printJSON(out); err != nil {
			return err
		}
	}
	if initErr != nil {
		return fmt.Errorf("initialize: %w", initErr)
	}
	return nil
}

// applyPlayFlags overrides config with the flags the user set.
func applyPlayFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("autoplay") {
		c.Player.Autoplay = playAutoplay
	}
	if flags.Changed("muted") {
		c.Player.Muted = playMuted
	}
	if flags.Changed("loop") {
		c.Player.Loop = playLoop
	}
	if flags.Changed("provider") {
		c.Provider.Name = playProvider
	}
	if flags.Changed("headless") {
		c.Provider.Headless = playHeadless
	}
}

func settings(c config.ControlsConfig, autoplay bool) tui.Settings {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return tui.Settings{
		RefreshInterval: ms(c.RefreshInterval),
		AutoHideDelay:   ms(c.AutoHideDelay),
		FadeDuration:    ms(c.FadeDuration),
		SeekStep:        float64(c.SeekStep),
		VolumeStep:      c.VolumeStep,
		Autoplay:        autoplay,
	}
}
