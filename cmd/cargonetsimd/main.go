// cargonetsimd drives a fleet of truck simulation clients from a
// configuration file: it creates one managed client per configured
// network, runs the cooperative time-sync loop and tears everything down
// on exit.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "cargonetsimd",
	Short:         "CargoNetSim co-simulation controller",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(versionCmd)
}
