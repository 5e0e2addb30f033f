package main

import (
	"context"

	"github.com/cuemby/fuzzmux/pkg/broker"
	"github.com/cuemby/fuzzmux/pkg/codec"
	"github.com/cuemby/fuzzmux/pkg/log"
	"github.com/cuemby/fuzzmux/pkg/metrics"
	"github.com/cuemby/fuzzmux/pkg/transport"
	"github.com/spf13/cobra"
)

var centralizedBrokerCmd = &cobra.Command{
	Use:   "centralized-broker",
	Short: "Run the centralized broker",
	Long: `Run the centralized broker, which routes candidate inputs from
secondary fuzzer clients to the main evaluator and discards heartbeats.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		exitAfter, _ := cmd.Flags().GetInt("exit-cleanly-after")
		gzipLevel, _ := cmd.Flags().GetInt("gzip-level")

		logger := log.WithComponent("centralized-broker")

		tb := transport.NewTCPBroker()
		cb := broker.NewCentralizedBroker(tb, codec.NewGzip(gzipLevel))
		if err := cb.Bind(addr); err != nil {
			return err
		}
		defer cb.Close()
		if exitAfter > 0 {
			cb.SetExitCleanlyAfter(exitAfter)
		}

		logger.Info().Str("addr", tb.Addr()).Msg("centralized broker listening")
		metrics.RegisterComponent("transport", true, "bound")
		metrics.SetCriticalComponents("transport")

		serveMetrics(cmd, logger)

		ctx, cancel := context.WithCancel(context.Background())
		go handleSignals(cancel)

		err := cb.Run(ctx, broker.TightPollInterval, 0)
		if err != nil && ctx.Err() == nil {
			return err
		}
		logger.Info().Msg("centralized broker shut down")
		return nil
	},
}

func init() {
	centralizedBrokerCmd.Flags().String("addr", "127.0.0.1:9440", "Address to bind for client attachments")
	centralizedBrokerCmd.Flags().Int("exit-cleanly-after", 0, "Exit once this many clients have attached and all disconnected (0 disables)")
	centralizedBrokerCmd.Flags().Int("gzip-level", 0, "Gzip compression level for adaptive payload compression")
}
