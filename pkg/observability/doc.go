// Package observability provides the operational surface of the delivery
// engine: Prometheus metrics for the task pipeline and outbound deliveries,
// liveness/readiness probes over the storage dependencies, and graceful
// shutdown coordination.
package observability
