// Package observe provides observability primitives for query fetches.
//
// It wires OpenTelemetry tracing and metrics plus a JSON structured logger.
// The cache package wraps every fetch attempt with a Middleware; a nil
// configuration falls back to NopMiddleware, so telemetry is opt-in.
package observe
