// Package telemetry provides observability instrumentation for the
// build core: structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing, unified
// behind a single Telemetry value carried on context.Context.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "plytool"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//	ctx = tel.WithContext(ctx)
//
// # Cook runs and jobs
//
//	ctx = telemetry.WithCookRunContext(ctx, cookRunID, workspace)
//	defer telemetry.EndCookRunContext(ctx, cookRunID, status, err)
//
//	ctx = telemetry.WithJobContext(ctx, cookRunID, jobID, target, command)
//	defer telemetry.EndJobContext(ctx, cookRunID, jobID, target, command, status, err)
//
//	err := telemetry.RecordProviderOperation(ctx, "libpng.prebuilt", "install", func() error {
//	    return provider.Install(ctx, fs, folder, args)
//	})
//
// # Metrics
//
// Key series exposed under the configured namespace:
//
//   - plywood_cook_runs_started_total{workspace}
//   - plywood_cook_run_duration_seconds{status}
//   - plywood_jobs_executed_total{command,status}
//   - plywood_job_duration_seconds{command,target_kind}
//   - plywood_provider_calls_total{provider,operation}
//   - plywood_cache_lookups_total{outcome}
//   - plywood_errors_by_class_total{class}
//
// # Events
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("%s: %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// # Configuration
//
// DevelopmentConfig and ProductionConfig provide pre-tuned setups; a
// custom Config can be built directly for anything in between.
package telemetry
