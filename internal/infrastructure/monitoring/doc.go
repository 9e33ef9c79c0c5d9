/*
Package monitoring provides Prometheus metrics for the terminal service.

Metrics cover HTTP requests, session lifecycle (active, started per mode,
sandbox provisioning latency, failed teardown steps), filter denials per rule
and WebSocket traffic. Collectors are registered on an explicit registry:

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics)
	// ... provision ...
	timer.Stop("success")
*/
package monitoring
