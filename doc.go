// Package praxisbridge provides an embeddable execution bridge for Go: an
// isolated Starlark interpreter context a host application submits code to,
// streams tagged output from, answers foreign calls for, and cooperatively
// cancels.
//
// The bridge was built for lab-automation hosts where operator-facing
// protocol code runs inside the application but must never touch hardware
// directly: every device read, operator prompt, and actuation command
// crosses the bridge as an explicit message the host can observe, answer,
// or audit. The same shape fits any host embedding untrusted or
// user-supplied scripting.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Bridge
//  2. Controller
//  3. Handle
//  4. Foreign calls
//  5. Interrupt
//  6. History
//
// # Bridge
//
// A Bridge bundles the isolated interpreter context with the host-side
// controller driving it, boots the context, and waits for initialization:
//
//	bridge, err := praxisbridge.New(ctx,
//	    praxisbridge.WithPackages("protocol"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bridge.Close()
//
// Initialization is staged: the interpreter runtime and the bootstrap
// program are required, while optional packages, capability shims, and the
// final self-check degrade without failing construction. Degraded
// capabilities are listed in Capabilities().
//
// # Controller
//
// The Controller is the only way to reach the interpreter. Each operation
// (Submit, Install, Complete, Signatures, RunBlob) allocates a fresh
// execution id, sends one request, and returns a Handle. Submissions are
// classified line by line the way an interactive console would: complete
// statements execute, incomplete constructs buffer until finished, invalid
// input is rejected with a position.
//
// # Handle
//
// A Handle subscribes its caller to the event stream of one execution id:
// output events in emission order, then exactly one terminal event, after
// which the stream closes. Wait blocks for the terminal; Drain returns the
// whole stream; Run and the other package-level helpers wrap the common
// submit-and-wait pattern:
//
//	res, err := praxisbridge.Run(ctx, bridge.Controller, `print(2 + 2)`)
//	// res.Stdout == []string{"4"}
//
// # Foreign calls
//
// Interpreter code makes synchronous-looking calls that only the host can
// answer: device reads and operator prompts. The call suspends the running
// execution, surfaces as a DEVICE_READ or USER_PROMPT event with a
// correlation id, and resumes when the host responds. A ForeignHandler
// answers them automatically:
//
//	praxisbridge.WithForeignHandler(praxisbridge.ForeignHandlerFuncs{
//	    DeviceRead: func(ctx context.Context, req praxisbridge.DeviceReadPayload) (any, error) {
//	        return readHardware(req.Device, req.Command)
//	    },
//	})
//
// A handler error never strands the suspended call; the bridge delivers a
// failure value in its place. Stale responses (arriving after the call was
// cancelled) are detected by correlation id and ignored.
//
// # Interrupt
//
// Interrupt raises a cooperative cancellation flag shared with the
// interpreter. The running execution observes it at its next check-point,
// unwinds with a cancellation error, and still produces its terminal
// event; the context survives and accepts the next submission. There is no
// preemption: code that never reaches a check-point is not stopped.
//
// # History
//
// With a history store configured, the bridge appends one audit record per
// submission, terminal, foreign call and response, and interrupt:
//
//	store, err := praxisbridge.NewSQLiteHistory(db)
//	...
//	bridge, err := praxisbridge.New(ctx, praxisbridge.WithHistory(store))
//	records, err := bridge.History.ListRecords(ctx, executionID)
//
// Stores exist for SQLite, PostgreSQL, Redis, MongoDB, and memory. History
// is an audit trail, not a transcript: output events are never recorded.
//
// # Commands
//
// cmd/praxis-bridged serves a bridge over HTTP and WebSocket for remote
// hosts; cmd/praxis-repl is an interactive console over an in-process
// bridge. Both are thin shells over the same Controller surface.
//
// For examples, see the /examples directory or the project README.
package praxisbridge
