package cli

import (
	"fmt"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"
)

// Set via ldflags at build time
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Browser   string `json:"browser"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{
			Version:   Version,
			Commit:    Commit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			Browser:   browserPath(),
		}
		if JSONOutput() {
			return printJSON(info)
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "reel %s\n", info.Version)
		if !Verbose() {
			return nil
		}
		t := NewTableWriter(out)
		t.Row("  commit:", info.Commit)
		t.Row("  built:", info.BuildDate)
		t.Row("  go:", info.GoVersion)
		t.Row("  platform:", info.Platform)
		t.Row("  browser:", info.Browser)
		t.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// browserPath reports the Chromium binary the youtube provider would use.
func browserPath() string {
	if cfg != nil && cfg.Provider.BrowserBin != "" {
		return cfg.Provider.BrowserBin
	}
	if path, ok := launcher.LookPath(); ok {
		return path
	}
	return "not found (downloaded on first use)"
}
