// Package rpc exposes the calculation engine over gRPC.
//
// The service is declared by hand rather than generated: messages are plain Go
// structs carried by a JSON codec registered under the content subtype
// "json". Methods:
//
//	/calcengine.v1.Calculator/Calculate   CalculateRequest → CalculateResponse
//	/calcengine.v1.Calculator/Stats       StatsRequest     → StatsResponse
//
// Engine errors map to status codes: validation → InvalidArgument, unknown
// calculator → NotFound, calculation failure → Internal, superseded or
// canceled → Canceled. Field errors travel in the status message and in the
// "calcengine-error" trailer as JSON.
//
// APIKeyInterceptor enforces a static API key carried in gRPC metadata.
// Client is the matching client used by the CLI.
package rpc
