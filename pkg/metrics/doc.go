// Package metrics defines and registers the Prometheus metrics exposed by
// every fuzzmux process role: broker dispatch throughput and latency
// (updated by pkg/broker), the adaptive serialization ratio (sampled from
// pkg/innermgr by Collector), and testcase acceptance/re-execution counts,
// serialization duration and stage retry/skip counts, which are registered
// but not updated by any package in this module. All metrics are
// registered at package init via prometheus.MustRegister and served at
// /metrics through Handler(). HealthHandler/ReadyHandler/LivenessHandler
// back the corresponding HTTP probes each cmd/fuzzmux role exposes.
package metrics
