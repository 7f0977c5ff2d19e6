package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.bryk.io/x/cargonetsim/cli"
	"go.bryk.io/x/cargonetsim/client"
	"go.bryk.io/x/cargonetsim/config"
	xlog "go.bryk.io/x/cargonetsim/log"
	"go.bryk.io/x/cargonetsim/manager"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Create the configured truck clients and run the simulation",
	Example: "cargonetsimd serve --config cargonetsim.yaml",
	RunE:    runServe,
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
		{
			Name:      "sync",
			Usage:     "advance all simulators cooperatively instead of releasing them at once",
			FlagKey:   "sync",
			ByDefault: true,
		},
	}
	if err := cli.SetupCommandParams(serveCmd, params); err != nil {
		panic(err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := xlog.WithZero(xlog.ZeroOptions{PrettyPrint: true})

	location, _ := cmd.Flags().GetString("config")
	sync, _ := cmd.Flags().GetBool("sync")
	locations := append([]string{location}, config.DefaultLocations("cargonetsim.yaml")...)
	settings, err := config.Load(locations, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := manager.New(manager.WithLogger(log))
	defer mgr.ResetServer()

	for _, tc := range settings.Trucks {
		if err := mgr.CreateClient(ctx, tc.Name, settings.ManagerConfig(tc)); err != nil {
			return err
		}
		log.WithField("client", tc.Name).Info("client ready")
	}

	if sync {
		err = mgr.RunSimulationSync(ctx, []string{"*"})
	} else {
		err = mgr.RunSimulationAsync(ctx, []string{"*"})
	}
	if err != nil {
		return err
	}

	if families, err := client.GatherMetrics(); err == nil {
		for _, mf := range families {
			log.WithFields(xlog.Fields{"metric": mf.GetName()}).Debug("final metric")
		}
	}
	log.Info("simulation completed")
	return nil
}
