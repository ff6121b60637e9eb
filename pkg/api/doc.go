// Package api contains the core building blocks of the praxisbridge
// execution bridge. It provides the wire protocol, the controller contract,
// and the observability primitives shared by the host and the isolated
// execution context.
//
// Most users interact with the higher-level praxisbridge package, which
// re-exports selected types and helpers from this package. The api package
// is intended for advanced use cases, custom transports, or contributors
// extending the bridge itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - The message envelope and its closed kind set
//   - Execution ids and handles
//   - Foreign-call correlation
//   - Observability
//
// # Messages
//
// Every exchange between the host controller and the isolated context is a
// Message: an envelope of id, kind, and a kind-specific payload. Requests
// flow host to context; events flow back. The kind set is closed and every
// consumer handles it exhaustively: an unknown kind is a decode error, not
// a silently dropped message.
//
// Exactly one terminal event closes out each execution id. Events for one
// id arrive in emission order; no ordering holds across ids.
//
// # Handles
//
// A Handle is the caller's subscription to a single execution id. The
// controller delivers every event tagged with the id into the handle, in
// order, and closes the stream after the terminal event. Wait and Drain are
// conveniences over the raw Events channel.
//
// # Foreign calls
//
// Code running inside the isolated context may request work only the host
// can perform: raw device I/O or a user-facing prompt. Such a call suspends
// the interpreter until the host answers with a response carrying the same
// correlation id. The bridge imposes no timeout; answering, even with a
// failure value, is the host's responsibility.
//
// # Observability
//
// The api package defines the Observer interface, which is used by the
// controller and relay to report request, event, foreign-call, terminal, and
// interrupt activity.
//
// Observers can be used to:
//
//   - Log protocol traffic and execution lifecycle transitions
//   - Collect metrics (e.g. counts, latencies, error rates)
//   - Persist an audit history of executions
//
// The praxisbridge package exposes ready-made implementations such as
// logging and basic in-memory metrics, along with helpers to combine
// multiple observers.
//
// # Usage
//
// Most applications should start from the praxisbridge package, using the
// New constructor provided there. The api package is useful when you need
// lower-level access, a custom transport, or when contributing changes to
// the bridge core.
package api
