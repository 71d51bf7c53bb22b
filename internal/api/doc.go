// Package api implements the HTTP REST API and WebSocket server for ddcwatch.
//
// This package provides:
//   - REST endpoints for the display inventory and event history
//   - WebSocket hub for real-time hotplug event broadcasts
//   - A rescan endpoint that triggers an immediate bus check
//   - Middleware stack (request ID, logging, recovery, body limits)
//
// # Architecture
//
// The API server sits between consumers (desktop integrations, scripts,
// dashboards) and the watch engine. It reads the display registry and the
// SQLite event history directly; hotplug events reach WebSocket clients
// through a dispatcher subscription, so the watch loop never blocks on a
// slow client.
//
// # Security
//
// The server binds to localhost by default and carries no authentication.
// It is intended for same-host consumers; anything network-facing should
// sit behind a reverse proxy.
//
// # Graceful Degradation
//
// The server operates without MQTT and without InfluxDB. Only the
// corresponding metrics sections go missing from /api/v1/metrics.
package api
