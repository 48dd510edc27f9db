// Package telemetry wires OpenTelemetry tracing and metrics for the server.
//
// Spans go to stderr as JSON when tracing is enabled. OpenTelemetry
// instruments are bridged into the Prometheus registry, which also holds
// the file cache counters, and can be exposed on an HTTP /metrics endpoint.
//
//	p, err := telemetry.Init(ctx, telemetry.Config{ServiceName: "gosight", Trace: true, Metrics: true})
//	if err != nil {
//	    return err
//	}
//	defer p.Shutdown(context.Background())
package telemetry
