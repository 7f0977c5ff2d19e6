package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bryk.io/x/cargonetsim/cli"
	"go.bryk.io/x/cargonetsim/config"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Inspect and validate configured simulation clients",
}

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the truck clients declared in the configuration file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		for _, tc := range settings.Trucks {
			fmt.Printf("%s\texe=%s master=%s sim_time=%.0f\n",
				tc.Name, tc.ExePath, tc.MasterFilePath, tc.SimTime)
		}
		return nil
	},
}

var clientCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file without starting anything",
	RunE: func(cmd *cobra.Command, _ []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		fmt.Printf("configuration ok: broker %s:%d, %d truck client(s)\n",
			settings.Broker.Host, settings.Broker.Port, len(settings.Trucks))
		return nil
	},
}

func init() {
	params := []cli.Param{
		{
			Name:      "config",
			Usage:     "configuration file location",
			FlagKey:   "config",
			ByDefault: "cargonetsim.yaml",
			Short:     "c",
		},
	}
	for _, sub := range []*cobra.Command{clientListCmd, clientCheckCmd} {
		if err := cli.SetupCommandParams(sub, params); err != nil {
			panic(err)
		}
		clientCmd.AddCommand(sub)
	}
}

func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	location, _ := cmd.Flags().GetString("config")
	locations := append([]string{location}, config.DefaultLocations("cargonetsim.yaml")...)
	return config.Load(locations, cmd.Flags())
}
