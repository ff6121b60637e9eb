package api

import (
	"encoding/json"
	"fmt"
)

// MessageKind identifies a bridge protocol message. The set is closed:
// consumers switch over it exhaustively and treat unknown kinds as an error
// rather than ignoring them.
type MessageKind string

// Request kinds (host -> isolated context).
const (
	KindInit        MessageKind = "INIT"
	KindExec        MessageKind = "EXEC"
	KindInstall     MessageKind = "INSTALL"
	KindComplete    MessageKind = "COMPLETE"
	KindSignatures  MessageKind = "SIGNATURES"
	KindExecuteBlob MessageKind = "EXECUTE_BLOB"
	KindInterrupt   MessageKind = "INTERRUPT"

	// Foreign-call responses. These answer a DEVICE_READ or USER_PROMPT
	// event by correlation id; they carry no execution id of their own.
	KindDeviceData MessageKind = "DEVICE_DATA"
	KindUserInput  MessageKind = "USER_INPUT"
)

// Event kinds (isolated context -> host).
const (
	KindInitComplete    MessageKind = "INIT_COMPLETE"
	KindStdout          MessageKind = "STDOUT"
	KindStderr          MessageKind = "STDERR"
	KindExecComplete    MessageKind = "EXEC_COMPLETE"
	KindError           MessageKind = "ERROR"
	KindInstallComplete MessageKind = "INSTALL_COMPLETE"
	KindCompleteResult  MessageKind = "COMPLETE_RESULT"
	KindSignatureResult MessageKind = "SIGNATURE_RESULT"

	// Foreign-call requests. The interpreter suspends until the host sends
	// the matching KindDeviceData / KindUserInput response.
	KindDeviceRead MessageKind = "DEVICE_READ"
	KindUserPrompt MessageKind = "USER_PROMPT"

	// One-way notifications. No response is expected or accepted.
	KindHostCommand MessageKind = "HOST_COMMAND"
	KindStateUpdate MessageKind = "STATE_UPDATE"
	KindCallLog     MessageKind = "CALL_LOG"
)

// IsTerminal reports whether the kind closes out its execution id.
// Exactly one terminal event is emitted per id, and no further events for
// that id may follow it.
func (k MessageKind) IsTerminal() bool {
	switch k {
	case KindInitComplete, KindExecComplete, KindError,
		KindInstallComplete, KindCompleteResult, KindSignatureResult:
		return true
	}
	return false
}

// IsRequest reports whether the kind flows host -> isolated context.
func (k MessageKind) IsRequest() bool {
	switch k {
	case KindInit, KindExec, KindInstall, KindComplete, KindSignatures,
		KindExecuteBlob, KindInterrupt, KindDeviceData, KindUserInput:
		return true
	}
	return false
}

// Message is the wire envelope exchanged between the host controller and the
// isolated execution context, in both directions.
//
// ID semantics: for a request, the fresh execution id assigned by the
// controller; for a response or streamed event, the id of the owning
// execution. KindInterrupt and the foreign-call responses carry no id, as
// does unsolicited output produced while no execution is active.
type Message struct {
	ID      string      `json:"id,omitempty"`
	Kind    MessageKind `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// Encode renders the message as a single wire envelope.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a wire envelope and decodes its payload into the
// concrete payload type for the message kind. Decoded messages therefore
// carry e.g. an ExecPayload, never a raw map.
//
// A kind outside the closed set fails with ErrUnknownKind.
func DecodeMessage(data []byte) (Message, error) {
	var w struct {
		ID      string          `json:"id"`
		Kind    MessageKind     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	payload, err := decodePayload(w.Kind, w.Payload)
	if err != nil {
		return Message{}, err
	}
	return Message{ID: w.ID, Kind: w.Kind, Payload: payload}, nil
}

// decodePayload is the single place that maps kinds to payload types.
// Every kind in the set appears here; the default branch is reached only
// for kinds this build does not know about.
func decodePayload(kind MessageKind, raw json.RawMessage) (any, error) {
	unmarshal := func(dst any) error {
		if len(raw) == 0 || string(raw) == "null" {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return nil
	}

	switch kind {
	case KindInit:
		var p InitPayload
		return p, unmarshal(&p)
	case KindExec:
		var p ExecPayload
		return p, unmarshal(&p)
	case KindInstall:
		var p InstallPayload
		return p, unmarshal(&p)
	case KindComplete:
		var p CompletePayload
		return p, unmarshal(&p)
	case KindSignatures:
		var p SignaturesPayload
		return p, unmarshal(&p)
	case KindExecuteBlob:
		var p ExecuteBlobPayload
		return p, unmarshal(&p)
	case KindInterrupt:
		return nil, nil
	case KindDeviceData:
		var p DeviceDataPayload
		return p, unmarshal(&p)
	case KindUserInput:
		var p UserInputPayload
		return p, unmarshal(&p)

	case KindInitComplete:
		var p InitCompletePayload
		return p, unmarshal(&p)
	case KindStdout, KindStderr:
		var p OutputPayload
		return p, unmarshal(&p)
	case KindExecComplete:
		return nil, nil
	case KindError:
		var p ErrorPayload
		return p, unmarshal(&p)
	case KindInstallComplete:
		var p InstallCompletePayload
		return p, unmarshal(&p)
	case KindCompleteResult:
		var p CompleteResultPayload
		return p, unmarshal(&p)
	case KindSignatureResult:
		var p SignatureResultPayload
		return p, unmarshal(&p)
	case KindDeviceRead:
		var p DeviceReadPayload
		return p, unmarshal(&p)
	case KindUserPrompt:
		var p UserPromptPayload
		return p, unmarshal(&p)
	case KindHostCommand:
		var p HostCommandPayload
		return p, unmarshal(&p)
	case KindStateUpdate:
		var p StateUpdatePayload
		return p, unmarshal(&p)
	case KindCallLog:
		var p CallLogPayload
		return p, unmarshal(&p)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
}
