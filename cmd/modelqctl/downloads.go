package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/comicaholic/genai-studio/internal/apiclient"
	"github.com/comicaholic/genai-studio/internal/cli/output"
	"github.com/comicaholic/genai-studio/internal/queue"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type queuedDownload struct {
	ID         string `json:"id"`
	ArtifactID string `json:"artifact_id"`
}

// downloadList renders queue items as a table.
type downloadList []queue.Item

func (dl downloadList) Headers() []string {
	return []string{"ID", "Artifact", "Status", "Progress", "Size", "Speed", "ETA"}
}

func (dl downloadList) Rows() [][]string {
	rows := make([][]string, 0, len(dl))
	for _, it := range dl {
		rows = append(rows, []string{
			it.ID,
			it.ArtifactID,
			string(it.Status),
			formatProgress(it.Progress),
			formatSize(it),
			formatSpeed(it),
			formatETA(it.ETASeconds),
		})
	}

	return rows
}

func itemDetails(it queue.Item) output.KeyValues {
	kv := output.KeyValues{
		{"ID", it.ID},
		{"Artifact", it.ArtifactID},
		{"Status", string(it.Status)},
		{"Progress", formatProgress(it.Progress)},
		{"Downloaded", humanize.Bytes(uint64(max(it.DownloadedBytes, 0)))},
		{"Size", formatSize(it)},
		{"Speed", formatSpeed(it)},
		{"ETA", formatETA(it.ETASeconds)},
		{"Created", it.CreatedAt.Local().Format(time.DateTime)},
	}

	if it.StartedAt != nil {
		kv = append(kv, [2]string{"Started", it.StartedAt.Local().Format(time.DateTime)})
	}

	if it.CompletedAt != nil {
		kv = append(kv, [2]string{"Completed", it.CompletedAt.Local().Format(time.DateTime)})
	}

	if it.LocalPath != nil {
		kv = append(kv, [2]string{"Path", *it.LocalPath})
	}

	if it.Error != nil {
		kv = append(kv, [2]string{"Error", *it.Error})
	}

	return kv
}

func formatProgress(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}

func formatSize(it queue.Item) string {
	switch {
	case it.DisplaySize != "":
		return it.DisplaySize
	case it.TotalBytes > 0:
		return humanize.Bytes(uint64(it.TotalBytes))
	default:
		return "-"
	}
}

func formatSpeed(it queue.Item) string {
	if it.Status != queue.StatusDownloading || it.SpeedBytesPerSec <= 0 {
		return "-"
	}

	return humanize.Bytes(uint64(it.SpeedBytesPerSec)) + "/s"
}

func formatETA(eta *int64) string {
	if eta == nil {
		return "-"
	}

	return (time.Duration(*eta) * time.Second).String()
}

func (c *cli) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <artifact-id>...",
		Short: "Queue one or more artifacts for download",
		Example: `  modelqctl add demo/model-1
  modelqctl add org/model-a org/model-b -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := c.format()
			if err != nil {
				return err
			}

			client := c.client()
			ids := make([]queuedDownload, 0, len(args))

			for _, artifactID := range args {
				id, err := client.Enqueue(cmd.Context(), artifactID)
				if err != nil {
					return err
				}

				ids = append(ids, queuedDownload{ID: id, ArtifactID: artifactID})
			}

			if format == output.FormatTable {
				for _, q := range ids {
					fmt.Fprintf(c.out, "Queued %s as %s\n", q.ArtifactID, q.ID)
				}

				return nil
			}

			return output.Print(c.out, format, ids, nil, false, "")
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show one download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := c.format()
			if err != nil {
				return err
			}

			item, err := c.client().Get(cmd.Context(), args[0])
			if errors.Is(err, apiclient.ErrNotFound) {
				return fmt.Errorf("download %s not found", args[0])
			}

			if err != nil {
				return err
			}

			return output.Print(c.out, format, item, itemDetails(item), false, "")
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var active, completed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List downloads",
		Example: `  modelqctl list
  modelqctl list --active
  modelqctl list --completed -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := c.format()
			if err != nil {
				return err
			}

			lists, err := c.client().List(cmd.Context())
			if err != nil {
				return err
			}

			items := lists.All

			switch {
			case active:
				items = lists.Active
			case completed:
				items = lists.Completed
			}

			if items == nil {
				items = []queue.Item{}
			}

			return output.Print(c.out, format, items, downloadList(items), len(items) == 0, "No downloads found.")
		},
	}

	cmd.Flags().BoolVar(&active, "active", false, "Only queued and downloading items")
	cmd.Flags().BoolVar(&completed, "completed", false, "Only completed items")
	cmd.MarkFlagsMutuallyExclusive("active", "completed")

	return cmd
}

func (c *cli) cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>...",
		Short: "Cancel queued or running downloads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := c.client()

			var refused []string

			for _, id := range args {
				ok, err := client.Cancel(cmd.Context(), id)
				if err != nil {
					return err
				}

				if !ok {
					refused = append(refused, id)

					continue
				}

				fmt.Fprintf(c.out, "Cancelled %s\n", id)
			}

			if len(refused) > 0 {
				return fmt.Errorf("not cancellable (unknown or finished): %s", strings.Join(refused, ", "))
			}

			return nil
		},
	}
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"remove"},
		Short:   "Remove downloads from the queue",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := c.client()

			for _, id := range args {
				err := client.Remove(cmd.Context(), id)
				if errors.Is(err, apiclient.ErrNotFound) {
					return fmt.Errorf("download %s not found", id)
				}

				if err != nil {
					return err
				}

				fmt.Fprintf(c.out, "Removed %s\n", id)
			}

			return nil
		},
	}
}

func (c *cli) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := c.format()
			if err != nil {
				return err
			}

			removed, err := c.client().ClearCompleted(cmd.Context())
			if err != nil {
				return err
			}

			if format == output.FormatTable {
				fmt.Fprintf(c.out, "Removed %d completed download(s)\n", removed)

				return nil
			}

			return output.Print(c.out, format, map[string]int{"removed": removed}, nil, false, "")
		},
	}
}
