package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type queryResult struct {
	Table   string                   `json:"table"`
	Source  string                   `json:"source"`
	Columns []string                 `json:"columns,omitempty"`
	Rows    [][]interface{}          `json:"rows,omitempty"`
	Records []map[string]interface{} `json:"records,omitempty"`
}

func newQueryCmd(client *Client) *cobra.Command {
	var filters []string

	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Query a logical table (issues, review_aspects, locations)",
		Example: `  vocctl query issues
  vocctl query issues --filter property_id=denver-downtown
  vocctl query locations -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filterMap := make(map[string]string, len(filters))
			for _, f := range filters {
				key, val, ok := strings.Cut(f, "=")
				if !ok {
					return fmt.Errorf("invalid filter %q: expected column=value", f)
				}
				filterMap[key] = val
			}

			body := map[string]interface{}{
				"table": args[0],
				"shape": "table",
			}
			if len(filterMap) > 0 {
				body["filters"] = filterMap
			}

			var result queryResult
			if err := client.Post(cmd.Context(), "/v1/query", body, &result); err != nil {
				return err
			}

			if outputFormat(cmd) == "json" {
				return printJSON(cmd, result)
			}
			printTable(cmd, result.Columns, result.Rows)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d rows (source: %s)\n", len(result.Rows), result.Source)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Filter as column=value (repeatable)")
	return cmd
}

func newPropertiesCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "properties",
		Short: "List the monitored properties",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var result queryResult
			if err := client.Get(cmd.Context(), "/v1/properties", &result); err != nil {
				return err
			}
			if outputFormat(cmd) == "json" {
				return printJSON(cmd, result)
			}
			printRecords(cmd, result.Records)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d properties (source: %s)\n", len(result.Records), result.Source)
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(cmd *cobra.Command, columns []string, rows [][]interface{}) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(columns, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprintf("%v", cell)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}

func printRecords(cmd *cobra.Command, records []map[string]interface{}) {
	if len(records) == 0 {
		return
	}
	columns := make([]string, 0, len(records[0]))
	for col := range records[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	rows := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		row := make([]interface{}, len(columns))
		for i, col := range columns {
			row[i] = rec[col]
		}
		rows = append(rows, row)
	}
	printTable(cmd, columns, rows)
}
