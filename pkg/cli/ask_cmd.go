package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type pollResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Answer []struct {
		Type    string          `json:"type"`
		Text    string          `json:"text,omitempty"`
		SQL     string          `json:"sql,omitempty"`
		Columns []string        `json:"columns,omitempty"`
		Rows    [][]interface{} `json:"rows,omitempty"`
	} `json:"answer,omitempty"`
	Error       string `json:"error,omitempty"`
	PollAfterMS int64  `json:"poll_after_ms,omitempty"`
}

func newAskCmd(client *Client) *cobra.Command {
	var (
		property string
		showSQL  bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a natural-language question and wait for the answer",
		Example: `  vocctl ask "Which property has the most cleanliness complaints?"
  vocctl ask "How are ratings trending?" --property denver-downtown`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"question": args[0]}
			if property != "" {
				body["property_id"] = property
			}

			var submitted struct {
				ID          string `json:"id"`
				PollAfterMS int64  `json:"poll_after_ms"`
			}
			if err := client.Post(cmd.Context(), "/v1/questions", body, &submitted); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "submitted (%s), waiting for the answer...\n", submitted.ID)

			interval := time.Duration(submitted.PollAfterMS) * time.Millisecond
			if interval <= 0 {
				interval = 2 * time.Second
			}

			for {
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(interval):
				}

				var result pollResult
				if err := client.Get(cmd.Context(), "/v1/questions/"+submitted.ID, &result); err != nil {
					return err
				}
				switch result.Status {
				case "succeeded":
					return printAnswer(cmd, result, showSQL)
				case "failed":
					return fmt.Errorf("question failed: %s", result.Error)
				case "timed_out":
					return fmt.Errorf("question timed out: %s", result.Error)
				}
				if result.PollAfterMS > 0 {
					interval = time.Duration(result.PollAfterMS) * time.Millisecond
				}
			}
		},
	}

	cmd.Flags().StringVar(&property, "property", "", "Scope the question to one property id")
	cmd.Flags().BoolVar(&showSQL, "show-sql", false, "Print the SQL the service generated")
	return cmd
}

func printAnswer(cmd *cobra.Command, result pollResult, showSQL bool) error {
	if outputFormat(cmd) == "json" {
		return printJSON(cmd, result)
	}
	out := cmd.OutOrStdout()
	for _, seg := range result.Answer {
		if seg.Text != "" {
			fmt.Fprintln(out, seg.Text)
		}
		if len(seg.Columns) > 0 {
			printTable(cmd, seg.Columns, seg.Rows)
		}
		if showSQL && seg.SQL != "" {
			fmt.Fprintf(out, "\n-- generated SQL\n%s\n", seg.SQL)
		}
	}
	return nil
}
