// Package observability provides structured logging and distributed tracing
// for the authorization service.
//
// Logging goes through the Logger interface, backed by zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("token issued",
//	    observability.String("subject_id", "u-1"),
//	    observability.String("kid", kid),
//	)
//
// Request, trace and subject IDs stored in a context are attached to log
// lines by Logger.WithContext.
//
// Tracing uses the OpenTelemetry SDK with an OTLP gRPC exporter. A disabled
// TracingConfig yields a tracer backed by the global no-op provider.
package observability
