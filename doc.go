// Package lintas is a client operation runtime: it turns a serialized
// request into a response through a single orchestrated invocation loop:
//
//   - Interceptor pipeline with fixed read and modify hook points
//   - Layered, type-keyed config bag shared across the invocation
//   - Pluggable auth schemes with cached identity resolution
//   - Per-attempt endpoint resolution and request signing
//   - Standard and adaptive retries funded by a shared token bucket
//   - Operation, attempt, connect, and read timeouts
//   - Minimum-throughput guard for streaming bodies
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Protocol-agnostic core: serializers and deserializers own the wire format
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via interceptors, runtime plugins, and component overrides
//
// Typical usage:
//
//	client := lintas.New(
//	    lintas.WithStaticEndpoint("https://api.example.com"),
//	    lintas.WithMaxAttempts(3),
//	    lintas.WithAttemptTimeout(5*time.Second),
//	    lintas.WithOperationTimeout(30*time.Second),
//	)
//	out, err := lintas.Execute[*GetItemInput, *GetItemOutput](ctx, client, getItemOp, input)
//
// Every failure surfaces as a *lintas.OperationError carrying the error kind,
// attempt count, and response metadata. The library avoids opinionated
// logging: provide a Logger (e.g. via WithSimpleLogger) + enable debug flags
// selectively (WithDebug / WithDebugConfig) for insight without noise.
package lintas
