package cmd

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ranswarm/ranswarm/pkg/lifecycle"
	"github.com/ranswarm/ranswarm/pkg/service"
)

var (
	addrFlag     string
	featuresFlag []string

	serveCmd = &cobra.Command{
		Use:          "serve",
		Short:        "Serve the agent swarm over HTTP",
		Long:         longServe,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bus := lifecycle.NewMemoryBus()

			registry, err := buildSwarm(featuresFlag, bus)
			if err != nil {
				return err
			}

			checkpoints, err := newCheckpointStore(context.Background())
			if err != nil {
				return err
			}

			addr := addrFlag
			if addr == "" {
				addr = viper.GetString("server.addr")
			}

			log.Info("starting engine server", "addr", addr, "agents", registry.Len())
			return service.NewEngineServer(registry, bus, checkpoints, addr).Start()
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&addrFlag, "addr", "a", "", "address to bind, overrides config")
	serveCmd.Flags().StringSliceVarP(
		&featuresFlag,
		"features",
		"f",
		[]string{"handover", "carrier-aggregation", "load-balancing"},
		"network features to spawn agents for",
	)
}

var longServe = `
Serve starts one feature agent per configured network feature and exposes
the swarm over HTTP: POST /query and /feedback drive the learning loop,
GET /events streams lifecycle and decision events as SSE, and the
checkpoint endpoints persist learned state to object storage when enabled.
`
