package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		records, err := app.manager.ListRecords(context.Background())
		if err != nil {
			return err
		}
		sort.Slice(records, func(i, j int) bool {
			return records[i].LastActivity > records[j].LastActivity
		})

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMESSAGES\tTOKENS\tLAST ACTIVITY")
		for _, record := range records {
			var tokens int64
			if record.TokenUsage != nil {
				tokens = record.TokenUsage.TotalTokens
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
				record.ID, record.MessageCount, tokens, formatMillis(record.LastActivity))
		}
		return w.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session's record and usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		record, err := app.manager.Record(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("id:            %s\n", record.ID)
		fmt.Printf("created:       %s\n", formatMillis(record.CreatedAt))
		fmt.Printf("last activity: %s\n", formatMillis(record.LastActivity))
		fmt.Printf("messages:      %d\n", record.MessageCount)
		if record.ContinuedFrom != "" {
			fmt.Printf("continued from: %s\n", record.ContinuedFrom)
		}
		if record.ContinuedTo != "" {
			fmt.Printf("continued to:   %s\n", record.ContinuedTo)
		}
		if record.CompactionCount > 0 {
			fmt.Printf("compactions:   %d\n", record.CompactionCount)
		}
		printUsage(record)
		return nil
	},
}

var sessionsChainCmd = &cobra.Command{
	Use:   "chain <session-id>",
	Short: "Show a session's full continuation chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		chain, err := app.manager.Chain(context.Background(), args[0])
		if err != nil {
			return err
		}

		for i, record := range chain {
			marker := " "
			if record.ID == args[0] {
				marker = "*"
			}
			fmt.Printf("%s %d. %s (%d messages, created %s)\n",
				marker, i+1, record.ID, record.MessageCount, formatMillis(record.CreatedAt))
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.manager.Delete(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted session %s\n", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsChainCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func formatMillis(millis int64) string {
	if millis == 0 {
		return "-"
	}
	return time.UnixMilli(millis).Format(time.RFC3339)
}
