package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCmd(client *Client) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent data-access requests and their provenance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/v1/history"
			if limit > 0 {
				path = fmt.Sprintf("%s?limit=%d", path, limit)
			}

			var entries []struct {
				ID          int64  `json:"id"`
				RequestedAt string `json:"requested_at"`
				Table       string `json:"table"`
				Source      string `json:"source"`
				DurationMS  int64  `json:"duration_ms"`
				RowCount    int    `json:"row_count"`
				Error       string `json:"error,omitempty"`
			}
			if err := client.Get(cmd.Context(), path, &entries); err != nil {
				return err
			}
			if outputFormat(cmd) == "json" {
				return printJSON(cmd, entries)
			}

			columns := []string{"requested at", "table", "source", "rows", "ms", "error"}
			rows := make([][]interface{}, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []interface{}{e.RequestedAt, e.Table, e.Source, e.RowCount, e.DurationMS, e.Error})
			}
			printTable(cmd, columns, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum entries to show (default 50)")
	return cmd
}
