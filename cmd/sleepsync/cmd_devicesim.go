package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sleepsync/internal/devicesim"
	"github.com/nvandessel/sleepsync/internal/logging"
	"github.com/nvandessel/sleepsync/internal/ratelimit"
)

func newDeviceSimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device-sim",
		Short: "Run a local stand-in for the pump",
		Long: `Serve the pump's HTTP interface locally: GET / for reachability,
GET /dose?value=<mg> to accept a dose, and GET /status for the pulse plan
the device would run.

Point sleepsync at it with:
  sleepsync config set actuator.address 127.0.0.1
  sleepsync config set actuator.port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			perMinute, _ := cmd.Flags().GetFloat64("rate")
			level, _ := cmd.Flags().GetString("log-level")

			opts := []devicesim.Option{
				devicesim.WithLogger(logging.NewLogger(level, cmd.ErrOrStderr())),
				devicesim.OnDose(func(v float64) {
					plan := devicesim.ComputePumpPlan(v)
					fmt.Fprintf(cmd.OutOrStdout(), "Dose received: %.3f mg/hour (%d pulses of %v every %v)\n",
						v, plan.Calls, plan.PulseDuration, plan.PulseInterval)
				}),
			}
			if perMinute > 0 {
				opts = append(opts, devicesim.WithLimiter(ratelimit.PerMinute(perMinute, max(1, int(perMinute/6)))))
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return devicesim.New(opts...).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().Float64("rate", 60, "Maximum dose requests per minute per client (0 disables)")
	cmd.Flags().String("log-level", "info", "Log level: info, debug or trace")
	return cmd
}
