package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"go.bryk.io/x/cargonetsim/metadata"
)

// Build information, set at compile time with -ldflags.
var (
	buildVersion = "dev"
	buildCode    = ""
	buildDate    = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	Run: func(_ *cobra.Command, _ []string) {
		info := metadata.FromMap(metadata.Map{
			"version":    buildVersion,
			"build_code": buildCode,
			"build_date": buildDate,
			"go":         runtime.Version(),
			"os_arch":    fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		})
		for k, v := range info.Values() {
			if v == "" {
				continue
			}
			fmt.Printf("%s: %v\n", k, v)
		}
	},
}
