// Package ws implements the WebSocket hub for calcengine.
//
// Hub manages connected clients. Every client owns one engine session per
// calculator it edits: field edits sent by the client are debounced and
// recalculated by the engine, and outcomes are pushed back. Engine statistics
// are broadcast to all clients on a configurable interval.
//
// Messages accepted from clients:
//
//	{"type": "input",       "calculator_id": "loan", "field": "loanAmount", "value": 250000}
//	{"type": "recalculate", "calculator_id": "loan"}
//	{"type": "close",       "calculator_id": "loan"}
//
// Messages sent to clients:
//
//	{"event": "stats",  "data": { /* same schema as GET /api/v1/stats */ }}
//	{"event": "result", "data": {"session_id", "calculator_id", "inputs", "result"}}
//	{"event": "error",  "data": {"session_id", "calculator_id", "error": {...}}}
//
// Superseded recalculations are never pushed. The upgrader accepts all
// origins. The endpoint is mounted at /ws/stream by the api package.
package ws
