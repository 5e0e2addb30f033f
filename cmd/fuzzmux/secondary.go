package main

import (
	"context"
	"time"

	"github.com/cuemby/fuzzmux/pkg/evmgr"
	"github.com/cuemby/fuzzmux/pkg/fuzzcore"
	"github.com/cuemby/fuzzmux/pkg/innermgr"
	"github.com/cuemby/fuzzmux/pkg/log"
	"github.com/cuemby/fuzzmux/pkg/metrics"
	"github.com/cuemby/fuzzmux/pkg/transport"
	"github.com/cuemby/fuzzmux/pkg/wire"
	"github.com/spf13/cobra"
)

var secondaryCmd = &cobra.Command{
	Use:   "secondary",
	Short: "Run a secondary fuzzer client",
	Long: `Run a fuzzer client that evaluates inputs locally and forwards
accepted candidates to the centralized broker for the main evaluator to
re-check, per the centralized event manager's secondary role.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		centralizedAddr, _ := cmd.Flags().GetString("centralized-broker")
		mainBrokerAddr, _ := cmd.Flags().GetString("main-broker")
		clientConfig, _ := cmd.Flags().GetString("client-config")
		heartbeat, _ := cmd.Flags().GetDuration("heartbeat-interval")

		logger := log.WithComponent("secondary")

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
		mgr := evmgr.NewSecondary(evmgr.Config{
			Inner:        inner,
			Client:       centralClient,
			ClientConfig: clientConfig,
		})

		collector := metrics.NewCollector(inner)
		collector.Start()
		defer collector.Stop()

		serveMetrics(cmd, logger)

		ctx, cancel := context.WithCancel(context.Background())
		go handleSignals(cancel)

		logger.Info().Uint32("client_id", mgr.MgrID()).Msg("secondary attached")

		fuzzer := newDemoFuzzer()
		executor := demoExecutor{}
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		var executions uint64
		for {
			select {
			case <-ctx.Done():
				logger.Info().Msg("shutting down secondary")
				_ = mgr.SendExiting(context.Background())
				return mgr.AwaitRestartSafe(context.Background())
			case <-ticker.C:
				executions++
				input := []byte{byte(executions)}
				_, corpusID, err := fuzzer.EvaluateInputWithObservers(ctx, executor, input, true)
				if err != nil {
					logger.Warn().Err(err).Msg("evaluate input failed")
					continue
				}
				if corpusID != nil {
					if err := mgr.Fire(ctx, wire.NewTestcase{
						Input:        input,
						ClientConfig: clientConfig,
						ExitKind:     fuzzcore.ExitOk,
						CorpusSize:   uint64(fuzzer.corpus.Len()),
						Time:         uint64(time.Now().Unix()),
						Executions:   executions,
					}); err != nil {
						logger.Warn().Err(err).Msg("fire NewTestcase failed")
					}
				}
				if err := mgr.Fire(ctx, wire.UpdateExecStats{
					Time:       uint64(time.Now().Unix()),
					Executions: executions,
				}); err != nil {
					logger.Warn().Err(err).Msg("fire UpdateExecStats failed")
				}
			}
		}
	},
}

func init() {
	secondaryCmd.Flags().String("centralized-broker", "127.0.0.1:9440", "Centralized broker address")
	secondaryCmd.Flags().String("main-broker", "127.0.0.1:9441", "Main broker address")
	secondaryCmd.Flags().String("client-config", "default", "Observer-compatibility class shared with the main evaluator")
	secondaryCmd.Flags().Duration("heartbeat-interval", time.Second, "Interval between simulated fuzzing iterations")
}
