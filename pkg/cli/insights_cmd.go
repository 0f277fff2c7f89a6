package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newKPIsCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "kpis",
		Short: "Show portfolio-wide KPIs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var kpis struct {
				AvgNegativePct      float64 `json:"avg_negative_pct"`
				OverallSatisfaction float64 `json:"overall_satisfaction"`
				PropertiesFlagged   int     `json:"properties_flagged"`
				ReviewsProcessed    int64   `json:"reviews_processed"`
				Source              string  `json:"source"`
			}
			if err := client.Get(cmd.Context(), "/v1/insights/kpis", &kpis); err != nil {
				return err
			}
			if outputFormat(cmd) == "json" {
				return printJSON(cmd, kpis)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Overall satisfaction:  %.1f%%\n", kpis.OverallSatisfaction)
			fmt.Fprintf(out, "Avg negative reviews:  %.1f%%\n", kpis.AvgNegativePct)
			fmt.Fprintf(out, "Properties flagged:    %d\n", kpis.PropertiesFlagged)
			fmt.Fprintf(out, "Reviews processed:     %d\n", kpis.ReviewsProcessed)
			fmt.Fprintf(out, "Source:                %s\n", kpis.Source)
			return nil
		},
	}
}

func newFlaggedCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "flagged",
		Short: "List aspects in a critical or warning state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var flagged []struct {
				PropertyID   string  `json:"property_id"`
				PropertyName string  `json:"property_name"`
				Aspect       string  `json:"aspect"`
				NegativePct  float64 `json:"negative_pct"`
				Status       string  `json:"status"`
			}
			if err := client.Get(cmd.Context(), "/v1/insights/flagged", &flagged); err != nil {
				return err
			}
			if outputFormat(cmd) == "json" {
				return printJSON(cmd, flagged)
			}
			columns := []string{"property", "aspect", "negative %", "status"}
			rows := make([][]interface{}, 0, len(flagged))
			for _, f := range flagged {
				rows = append(rows, []interface{}{f.PropertyName, f.Aspect, f.NegativePct, f.Status})
			}
			printTable(cmd, columns, rows)
			return nil
		},
	}
}

func newRecommendCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <property-id>",
		Short: "Show prescriptive recommendations for a property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var recs []struct {
				Aspect      string   `json:"aspect"`
				Status      string   `json:"status"`
				NegativePct float64  `json:"negative_pct"`
				Action      string   `json:"action"`
				ActionItems []string `json:"action_items"`
				Timeline    string   `json:"timeline"`
				Cost        string   `json:"cost"`
			}
			path := "/v1/insights/recommendations/" + args[0]
			if err := client.Get(cmd.Context(), path, &recs); err != nil {
				return err
			}
			if outputFormat(cmd) == "json" {
				return printJSON(cmd, recs)
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No flagged aspects, nothing to recommend.")
				return nil
			}
			for _, rec := range recs {
				fmt.Fprintf(out, "%s [%s, %.1f%% negative]\n", rec.Aspect, rec.Status, rec.NegativePct)
				fmt.Fprintf(out, "  %s\n", rec.Action)
				for _, item := range rec.ActionItems {
					fmt.Fprintf(out, "  - %s\n", item)
				}
				fmt.Fprintf(out, "  timeline: %s, cost: %s\n\n", rec.Timeline, rec.Cost)
			}
			return nil
		},
	}
}
