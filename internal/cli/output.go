package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/tessro/reel/internal/core"
	"github.com/tessro/reel/internal/tail"
)

// Table provides a simple table formatter.
type Table struct {
	w *tabwriter.Writer
}

// NewTableWriter creates a table writing to a specific writer.
func NewTableWriter(out io.Writer, headers ...string) *Table {
	t := &Table{w: tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)}
	if len(headers) > 0 {
		t.Row(headers...)
	}
	return t
}

// Row adds a row to the table.
func (t *Table) Row(values ...string) {
	_, _ = t.w.Write([]byte(strings.Join(values, "\t") + "\n"))
}

// Flush writes the table output.
func (t *Table) Flush() {
	_ = t.w.Flush()
}

// printJSON writes v as one JSON document on stdout.
func printJSON(v interface{}) error {
	return json.NewEncoder(os.Stdout).Encode(v)
}

// snapshotJSON is the machine-readable form of an instance.
type snapshotJSON struct {
	VideoID     string  `json:"video_id"`
	ContainerID string  `json:"container_id"`
	State       string  `json:"state"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	Volume      int     `json:"volume"`
	Muted       bool    `json:"muted"`
	Error       string  `json:"error,omitempty"`
}

func toSnapshotJSON(s core.Snapshot) snapshotJSON {
	out := snapshotJSON{
		VideoID:     s.VideoID,
		ContainerID: s.ContainerID,
		State:       s.State.String(),
		CurrentTime: s.CurrentTime,
		Duration:    s.Duration,
		Volume:      s.Volume,
		Muted:       s.Muted,
	}
	if s.LastError != nil {
		out.Error = s.LastError.Error()
	}
	return out
}

// writeSnapshots prints a summary table of instances.
func writeSnapshots(out io.Writer, snaps []core.Snapshot) {
	t := NewTableWriter(out, "CONTAINER", "VIDEO", "STATE", "POSITION", "VOLUME", "ERROR")
	for _, s := range snaps {
		volume := fmt.Sprintf("%d%%", s.Volume)
		if s.Muted {
			volume = "muted"
		}
		errText := ""
		if s.LastError != nil {
			errText = s.LastError.Error()
		}
		t.Row(
			s.ContainerID,
			s.VideoID,
			s.State.String(),
			tail.FormatSeconds(s.CurrentTime)+" / "+tail.FormatSeconds(s.Duration),
			volume,
			errText,
		)
	}
	t.Flush()
}
