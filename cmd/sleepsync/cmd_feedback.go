package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sleepsync/internal/feedback"
)

func newFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback [description]",
		Short: "Score how you slept and store it for the next dose",
		Long: `Score a free-text description of last night's sleep. Poor sleep raises
later doses and good sleep lowers them. Without arguments, prints the
stored score.

Examples:
  sleepsync feedback "tossed and turned, woke at 4am"
  sleepsync feedback`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				if jsonOut {
					return json.NewEncoder(out).Encode(map[string]float64{"score": a.feedback.Get()})
				}
				fmt.Fprintf(out, "Stored feedback score: %.2f\n", a.feedback.Get())
				return nil
			}

			description := strings.Join(args, " ")
			score, err := a.analyzer.Analyze(cmd.Context(), description)
			if errors.Is(err, feedback.ErrEmptyDescription) {
				return err
			}

			if jsonOut {
				result := map[string]any{"score": score, "stored": a.feedback.Get()}
				if err != nil {
					result["error"] = err.Error()
				}
				return json.NewEncoder(out).Encode(result)
			}
			if err != nil {
				fmt.Fprintf(out, "Could not score sleep description: %v\n", err)
				fmt.Fprintf(out, "Stored feedback score: %.2f\n", a.feedback.Get())
				return nil
			}
			fmt.Fprintf(out, "Sleep feedback score: %.2f\n", score)
			return nil
		},
	}
	return cmd
}
