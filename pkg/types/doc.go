// Package types defines the shared Go types exchanged between the calculation
// engine and its collaborators (HTTP API, WebSocket hub, gRPC transport, CLI).
// These are the canonical in-memory representations of calculator inputs,
// results, validation outcomes and error payloads; they carry JSON tags so the
// same values travel over every transport unchanged.
package types
