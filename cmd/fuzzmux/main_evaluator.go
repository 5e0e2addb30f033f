package main

import (
	"context"
	"os"
	"time"

	"github.com/cuemby/fuzzmux/pkg/evmgr"
	"github.com/cuemby/fuzzmux/pkg/innermgr"
	"github.com/cuemby/fuzzmux/pkg/log"
	"github.com/cuemby/fuzzmux/pkg/metrics"
	"github.com/cuemby/fuzzmux/pkg/stage"
	"github.com/cuemby/fuzzmux/pkg/transport"
	"github.com/spf13/cobra"
)

var mainEvaluatorCmd = &cobra.Command{
	Use:   "main-evaluator",
	Short: "Run the main evaluator",
	Long: `Run the distinguished client that owns the authoritative corpus:
it drains the centralized channel, re-checks or trusts forwarded
testcases, and republishes accepted ones to the main broker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		centralizedAddr, _ := cmd.Flags().GetString("centralized-broker")
		mainBrokerAddr, _ := cmd.Flags().GetString("main-broker")
		clientConfig, _ := cmd.Flags().GetString("client-config")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		pollInterval, _ := cmd.Flags().GetDuration("poll-interval")

		logger := log.WithComponent("main-evaluator")

		centralClient, err := transport.Attach(centralizedAddr)
		if err != nil {
			return err
		}
		defer centralClient.Close()
		metrics.RegisterComponent("broker_conn", true, "attached to centralized broker")

		innerClient, err := transport.Attach(mainBrokerAddr)
		if err != nil {
			return err
		}
		defer innerClient.Close()
		metrics.RegisterComponent("transport", true, "attached to main broker")
		metrics.SetCriticalComponents("broker_conn", "transport")

		inner := innermgr.NewBasic(innerClient, clientConfig)
		mgr := evmgr.NewMain(evmgr.Config{
			Inner:        inner,
			Client:       centralClient,
			ClientConfig: clientConfig,
		})

		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return err
		}
		stageStore, err := stage.NewBoltStore(dataDir)
		if err != nil {
			return err
		}
		defer stageStore.Close()
		_ = stage.NewState(stageStore)

		collector := metrics.NewCollector(inner)
		collector.Start()
		defer collector.Stop()

		serveMetrics(cmd, logger)

		ctx, cancel := context.WithCancel(context.Background())
		go handleSignals(cancel)

		logger.Info().Uint32("client_id", mgr.MgrID()).Msg("main evaluator attached")

		fuzzer := newDemoFuzzer()
		executor := demoExecutor{}
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info().Msg("shutting down main evaluator")
				_ = mgr.SendExiting(context.Background())
				return mgr.AwaitRestartSafe(context.Background())
			case <-ticker.C:
				n, err := mgr.Process(ctx, fuzzer, executor)
				if err != nil {
					logger.Warn().Err(err).Msg("process centralized channel failed")
					continue
				}
				if n > 0 {
					logger.Debug().Int("processed", n).Msg("processed forwarded testcases")
				}
			}
		}
	},
}

func init() {
	mainEvaluatorCmd.Flags().String("centralized-broker", "127.0.0.1:9440", "Centralized broker address")
	mainEvaluatorCmd.Flags().String("main-broker", "127.0.0.1:9441", "Main broker address")
	mainEvaluatorCmd.Flags().String("client-config", "default", "Observer-compatibility class this evaluator trusts without re-execution")
	mainEvaluatorCmd.Flags().String("data-dir", "./fuzzmux-data", "Directory for stage restart-progress persistence")
	mainEvaluatorCmd.Flags().Duration("poll-interval", 5*time.Millisecond, "Centralized channel poll interval")
}
