package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sleepsync/internal/store"
)

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Schema  string `json:"schema"`
	Go      string `json:"go"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version, build and store schema information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version: version,
				Commit:  commit,
				Date:    date,
				Schema:  strconv.Itoa(store.SchemaVersion),
				Go:      runtime.Version(),
			}
			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(out).Encode(info)
			}
			_, err := fmt.Fprintf(out, "sleepsync %s (%s, %s)\nstore schema v%s, %s\n",
				info.Version, info.Commit, info.Date, info.Schema, info.Go)
			return err
		},
	}
}
