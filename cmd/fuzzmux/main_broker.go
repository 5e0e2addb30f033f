package main

import (
	"context"

	"github.com/cuemby/fuzzmux/pkg/broker"
	"github.com/cuemby/fuzzmux/pkg/log"
	"github.com/cuemby/fuzzmux/pkg/metrics"
	"github.com/cuemby/fuzzmux/pkg/transport"
	"github.com/spf13/cobra"
)

var mainBrokerCmd = &cobra.Command{
	Use:   "main-broker",
	Short: "Run the main broker",
	Long: `Run the main broker, which fans every accepted input and
statistics update back out to all attached fuzzer clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		exitAfter, _ := cmd.Flags().GetInt("exit-cleanly-after")

		logger := log.WithComponent("main-broker")

		tb := transport.NewTCPBroker()
		sb := broker.NewStatsBroker(tb)
		if err := sb.Bind(addr); err != nil {
			return err
		}
		defer sb.Close()
		if exitAfter > 0 {
			sb.SetExitCleanlyAfter(exitAfter)
		}

		logger.Info().Str("addr", tb.Addr()).Msg("main broker listening")
		metrics.RegisterComponent("transport", true, "bound")
		metrics.SetCriticalComponents("transport")

		serveMetrics(cmd, logger)

		ctx, cancel := context.WithCancel(context.Background())
		go handleSignals(cancel)

		err := sb.Run(ctx, broker.TightPollInterval, 0)
		if err != nil && ctx.Err() == nil {
			return err
		}
		logger.Info().Msg("main broker shut down")
		return nil
	},
}

func init() {
	mainBrokerCmd.Flags().String("addr", "127.0.0.1:9441", "Address to bind for client attachments")
	mainBrokerCmd.Flags().Int("exit-cleanly-after", 0, "Exit once this many clients have attached and all disconnected (0 disables)")
}
