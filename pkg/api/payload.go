package api

// InitPayload configures runtime initialization.
type InitPayload struct {
	// Packages are optional runtime packages to install during the
	// initialization sequence. Failures here degrade, they do not abort.
	Packages []string `json:"packages,omitempty"`
}

// ExecPayload carries one code submission. Code may span multiple logical
// lines, including multi-line constructs completed across lines.
type ExecPayload struct {
	Code string `json:"code"`
}

// InstallPayload names optional packages to install after initialization.
type InstallPayload struct {
	Packages []string `json:"packages"`
}

// CompletePayload asks for completions of the fragment's trailing
// identifier path.
type CompletePayload struct {
	Fragment string `json:"code"`
}

// SignaturesPayload asks for call-signature help at the end of the fragment.
type SignaturesPayload struct {
	Fragment string `json:"code"`
}

// ExecuteBlobPayload runs a pre-serialized callable. Blob is a compiled
// program produced by SerializeCallable (or a compatible encoder), Entry
// names the callable to invoke from the program's globals, and Context
// supplies keyword arguments injected into the call.
type ExecuteBlobPayload struct {
	Blob    []byte         `json:"blob"`
	Entry   string         `json:"entry,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// DeviceDataPayload answers a DEVICE_READ foreign call.
type DeviceDataPayload struct {
	RequestID string `json:"request_id"`
	Data      any    `json:"data"`
}

// UserInputPayload answers a USER_PROMPT foreign call.
type UserInputPayload struct {
	RequestID string `json:"request_id"`
	Value     any    `json:"value"`
}

// InitCompletePayload reports the outcome of the initialization sequence.
type InitCompletePayload struct {
	Version  string   `json:"version"`
	Packages []string `json:"packages,omitempty"`
	Shims    []string `json:"shims,omitempty"`

	// Degraded lists capabilities that failed to load but were not fatal
	// (optional packages, individual capability shims, the self-check).
	Degraded []string `json:"degraded,omitempty"`
}

// OutputPayload is one line (or chunk) of STDOUT / STDERR text.
type OutputPayload struct {
	Text string `json:"text"`
}

// ErrorPayload is the terminal failure report for an execution id.
type ErrorPayload struct {
	Message string `json:"message"`

	// Line and Col locate a syntax error in the submission, 1-based.
	// Zero when the failure has no source position.
	Line int `json:"line,omitempty"`
	Col  int `json:"col,omitempty"`
}

// InstallCompletePayload reports per-package install outcomes. A failed
// package never fails the bridge; it appears in Failed with its error text.
type InstallCompletePayload struct {
	Installed []string          `json:"installed,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// CompletionMatch is one completion candidate.
type CompletionMatch struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// CompleteResultPayload carries completion candidates; Matches may be empty
// but is never omitted.
type CompleteResultPayload struct {
	Matches []CompletionMatch `json:"matches"`
}

// Signature describes one callable signature.
type Signature struct {
	// Label is the rendered signature, e.g. "transfer(src, dst, volume=...)".
	Label  string   `json:"label"`
	Params []string `json:"params,omitempty"`
	Doc    string   `json:"doc,omitempty"`
}

// SignatureResultPayload carries signature help for the innermost open call.
type SignatureResultPayload struct {
	Signatures []Signature `json:"signatures"`
}

// DeviceReadPayload is a foreign call requesting raw device I/O. The host
// must eventually answer with a DeviceDataPayload carrying RequestID.
type DeviceReadPayload struct {
	RequestID string `json:"request_id"`
	Device    string `json:"device"`
	Command   string `json:"command,omitempty"`
}

// UserPromptPayload is a foreign call requesting user interaction. The host
// must eventually answer with a UserInputPayload carrying RequestID.
type UserPromptPayload struct {
	RequestID string   `json:"request_id"`
	Prompt    string   `json:"prompt"`
	Choices   []string `json:"choices,omitempty"`
}

// HostCommandPayload is a one-way host-side command invocation (device
// actuation and similar). No response flows back to the interpreter.
type HostCommandPayload struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args,omitempty"`
}

// StateUpdatePayload is a one-way structured state notification, e.g. a
// labware well changing contents during a protocol run.
type StateUpdatePayload struct {
	Resource string         `json:"resource"`
	State    map[string]any `json:"state"`
}

// CallLogPayload is a one-way audit record of an interpreter-side call.
type CallLogPayload struct {
	Function string         `json:"function"`
	Args     map[string]any `json:"args,omitempty"`
}
