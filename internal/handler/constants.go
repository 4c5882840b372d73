// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

// Route pattern constants for chi router registration.
const (
	// RouteAnalytics is the prefix of the public tracking endpoints.
	RouteAnalytics = "/api/analytics"
	// RouteSession starts a session.
	RouteSession = "/session"
	// RouteSessionEnd ends a session.
	RouteSessionEnd = "/session/end"
	// RoutePageView records a page view.
	RoutePageView = "/pageview"
	// RoutePageExit records leaving a page.
	RoutePageExit = "/page-exit"

	// RouteStatistics is the statistics report.
	RouteStatistics = "/api/statistics"
	// RouteRealtime is the realtime block on its own.
	RouteRealtime = "/api/statistics/realtime"
	// RouteRollup triggers daily rollups.
	RouteRollup = "/api/statistics/rollup"
	// RouteLogs lists audit log entries.
	RouteLogs = "/api/logs"
	// RouteEvents lists persisted system events.
	RouteEvents = "/api/events"

	// RouteHealth is the health summary.
	RouteHealth = "/health"
	// RouteHealthLive is the liveness check.
	RouteHealthLive = "/health/live"
	// RouteHealthReady is the readiness check.
	RouteHealthReady = "/health/ready"
	// RouteMetrics exposes Prometheus metrics.
	RouteMetrics = "/metrics"
)

// maxBeaconBytes bounds tracking request bodies.
const maxBeaconBytes = 16 << 10
