package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sleepsync/internal/store"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded dose runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			id, _ := cmd.Flags().GetInt64("id")
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.history == nil {
				return fmt.Errorf("history requires sqlite session storage")
			}

			if id > 0 {
				run, err := a.history.GetDoseRun(cmd.Context(), id)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("dose run %d not found", id)
				}
				if err != nil {
					return err
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(run)
				}
				fmt.Fprintf(out, "Run %d  session %s  %s\n", run.ID, run.SessionID, run.CreatedAt.Local().Format("2006-01-02 15:04"))
				fmt.Fprintf(out, "Base %.2f mg  Feedback %+.2f  Source %s  Dispatch %s\n\n",
					run.BaseDose, run.Feedback, run.Source, dispatchLabel(*run))
				printSeries(out, run.Samples)
				return nil
			}

			runs, err := a.history.ListDoseRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{"runs": runs, "count": len(runs)})
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No dose runs recorded.")
				return nil
			}
			fmt.Fprintf(out, "%-5s %-17s %8s %8s %-10s %s\n", "ID", "CREATED", "MINUTES", "DOSE", "SOURCE", "DISPATCH")
			for _, r := range runs {
				fmt.Fprintf(out, "%-5d %-17s %8.0f %8.3f %-10s %s\n",
					r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.TotalSeconds/60, r.ActiveDose, r.Source, dispatchLabel(r))
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum runs to list")
	cmd.Flags().Int64("id", 0, "Show one run with its full dose series")
	return cmd
}

func dispatchLabel(r store.DoseRun) string {
	switch {
	case r.Dispatched:
		return "sent"
	case r.DispatchError != "":
		return "failed: " + r.DispatchError
	default:
		return "pending"
	}
}
