package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sleepsync/internal/constants"
	"github.com/nvandessel/sleepsync/internal/dose"
)

func newDoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dose",
		Short: "Show the dose series for the biometric history",
		Long: `Compute the dose for every hour of biometric history without starting
a session or contacting the actuator. The last row is the dose a session
would send.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			remaining, _ := cmd.Flags().GetFloat64("remaining")
			total, _ := cmd.Flags().GetFloat64("total")
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.Compute(cmd.Context(), remaining*constants.SecondsPerMinute, total*constants.SecondsPerMinute)
			if err != nil {
				return fmt.Errorf("failed to compute dose series: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			}
			printDoseResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().Float64("remaining", 60, "Minutes remaining in the session")
	cmd.Flags().Float64("total", 60, "Total session minutes")
	return cmd
}

func printDoseResult(w io.Writer, res *dose.Result) {
	fmt.Fprintf(w, "Base dose: %.2f mg   Feedback: %+.2f   Source: %s\n\n", res.Base, res.Feedback, res.Source)
	printSeries(w, res.Series)

	if active, ok := res.Series.Active(); ok {
		fmt.Fprintf(w, "\nLatest readings: HRV %.1f ms, RHR %.1f bpm, respiratory %.1f br/min\n",
			active.CurrentHRV, active.CurrentRHR, active.CurrentResp)
		fmt.Fprintf(w, "Active dose: %.2f mg/hour\n", active.Dose)
	}
}

func printSeries(w io.Writer, series dose.Series) {
	fmt.Fprintf(w, "%-6s %-17s %7s %7s %7s %8s %8s %8s %7s\n",
		"HOUR", "TIME", "HRV", "RHR", "RESP", "ΔHRV", "ΔRHR", "ΔRESP", "DOSE")
	for _, s := range series {
		ts := "-"
		switch {
		case !s.Timestamp.IsZero():
			ts = s.Timestamp.Local().Format("01-02 15:04")
		case s.RawTimestamp != "":
			ts = s.RawTimestamp
		}
		fmt.Fprintf(w, "%-6s %-17s %7.1f %7.1f %7.1f %+8.3f %+8.3f %+8.3f %7.3f\n",
			fmt.Sprintf("-%dh", s.HourLabel), ts,
			s.CurrentHRV, s.CurrentRHR, s.CurrentResp,
			s.Deltas.HRV, s.Deltas.RHR, s.Deltas.Resp, s.Dose)
	}
}
