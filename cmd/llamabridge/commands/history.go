package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wagiedev/llamabridge/internal/journal"
)

var historyFlags struct {
	journal string
	limit   int
	json    bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent turns from the journal",
	Long: `Print the most recent delivered replies, newest first.

The journal directory is taken from --journal or from journal.dir in the
config file. The bridge must not be running against the same directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := historyFlags.journal
		if dir == "" && configFile != "" {
			options, err := loadConfigOnly()
			if err != nil {
				return err
			}

			dir = options.Journal.Dir
		}

		if dir == "" {
			return fmt.Errorf("flag --journal is required")
		}

		j, err := journal.Open(journal.Options{
			Dir:    dir,
			Logger: newLogger(cmd.ErrOrStderr()),
		})
		if err != nil {
			return err
		}
		defer j.Close()

		entries, err := j.List(cmd.Context(), historyFlags.limit)
		if err != nil {
			return err
		}

		if historyFlags.json {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			return enc.Encode(entries)
		}

		printEntries(cmd.OutOrStdout(), entries)

		return nil
	},
}

func printEntries(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No turns recorded.")

		return
	}

	for _, e := range entries {
		request := e.Request
		if e.TurnID == "" {
			request = "(no request)"
		}

		fmt.Fprintf(w, "%s  gen=%d  %s\n", e.AnsweredAt.Format(time.DateTime), e.Generation, request)
		fmt.Fprintf(w, "  -> %s\n", strings.ReplaceAll(e.Response, "\n", "\n     "))
	}
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyFlags.journal, "journal", "", "journal directory")
	f.IntVarP(&historyFlags.limit, "limit", "n", 20, "number of turns to show")
	f.BoolVar(&historyFlags.json, "json", false, "print entries as JSON")

	rootCmd.AddCommand(historyCmd)
}
