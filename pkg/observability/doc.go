// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Logging
//
// Logger wraps logrus. Middleware attaches one to the request context and
// FromContext enriches it with the request id, tenant id and user id:
//
//	observability.FromContext(ctx).WithError(err).Error("signup failed")
//
// # Metrics
//
// Metrics registers the HTTP and identity counters on a dedicated registry. A nil
// *Metrics records nothing, so services and tests can run without one:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordAuthEvent("signin", "success")
//
// # Tracing
//
//	tp, err := observability.InitTracing(ctx, cfg, logger)
//	ctx, span := observability.StartSpan(ctx, "auth.SignUp")
//	defer observability.EndSpan(span, err)
//
// # Health
//
//	observability.RegisterHealthRoutes(router, observability.NewHealthChecker(db, redisClient, version))
package observability
