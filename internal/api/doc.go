// Package api implements the HTTP API and WebSocket feed for the item store.
//
// This package provides:
//   - Item CRUD endpoints under /items
//   - System endpoints under /api/v1 (health, metrics, audit, ws)
//   - WebSocket hub broadcasting item.created, item.replaced, item.updated
//     and item.deleted events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Error responses
//
// Every error body has the shape {"status":404,"code":"not_found","message":"Item not found"}.
// Malformed JSON is a 400 bad_request; a well-formed body with a missing,
// null or mistyped field, or a non-integer {id}, is a 422 validation_error.
//
// # Graceful Degradation
//
// MQTT, InfluxDB and the audit database are optional. After a successful
// mutation the server fans the event out to whichever are configured; a
// failure there is logged and never changes the HTTP result.
//
// The server follows the same lifecycle pattern as the infrastructure clients:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
