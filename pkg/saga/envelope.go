package saga

import (
	"encoding/json"
	"fmt"
	"reflect"
	"runtime/debug"
)

// Envelope is the one wire shape every request, success reply, and failure
// reply is marshaled into. Payload carries the step-specific command or
// result; its shape is known only to the sending/receiving step, never to
// the engine.
//
// On the wire it is a two-element positional tuple, [saga_id, payload],
// matching the args a Celery send_task call packs a saga id and payload
// into -- the original system's non-Go participants expect exactly this
// shape, not a {"saga_id":...,"payload":...} object.
type Envelope struct {
	SagaID  int64
	Payload json.RawMessage
}

// MarshalJSON encodes the envelope as [saga_id, payload].
func (e Envelope) MarshalJSON() ([]byte, error) {
	payload := e.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	return json.Marshal([2]json.RawMessage{
		json.RawMessage(fmt.Sprintf("%d", e.SagaID)),
		payload,
	})
}

// UnmarshalJSON decodes an envelope from [saga_id, payload].
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &e.SagaID); err != nil {
		return fmt.Errorf("envelope saga_id: %w", err)
	}
	if string(tuple[1]) == "null" {
		e.Payload = nil
		return nil
	}
	e.Payload = json.RawMessage(tuple[1])
	return nil
}

// ErrorPayload is the failure reply body: enough for an orchestrator to log
// and compensate without needing the participant's internal types.
type ErrorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Module    string `json:"module"`
	Traceback string `json:"traceback,omitempty"`
}

// SerializeError captures an error's type, message, origin package, and a
// traceback for transport in an ErrorPayload. Unlike Python, a returned Go
// error carries no traceback of its own, so the traceback is the stack of
// the goroutine at the point SerializeError is called.
func SerializeError(err error) ErrorPayload {
	if err == nil {
		return ErrorPayload{}
	}
	t := reflect.TypeOf(err)
	typeName := t.String()
	module := ""
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() != "" {
		module = t.PkgPath()
	}
	return ErrorPayload{
		Type:      typeName,
		Message:   err.Error(),
		Module:    module,
		Traceback: string(debug.Stack()),
	}
}

// SerializePanic builds an ErrorPayload for a recovered panic, attaching the
// stack captured at the recover site.
func SerializePanic(recovered interface{}) ErrorPayload {
	msg := ""
	if err, ok := recovered.(error); ok {
		msg = err.Error()
	} else {
		msg = fmt.Sprintf("%v", recovered)
	}
	return ErrorPayload{
		Type:      "panic",
		Message:   msg,
		Module:    "runtime",
		Traceback: string(debug.Stack()),
	}
}
