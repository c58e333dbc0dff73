// Package ipc is the line-delimited JSON protocol used to control a running
// interview from another terminal.
package ipc

import (
	"encoding/json"
	"errors"
)

// Commands understood by a running interview.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
	CommandTurns  = "turns"
)

// Request is one client command.
type Request struct {
	Command string `json:"command"`
}

// Response is the single reply line to a Request.
type Response struct {
	OK      bool            `json:"ok"`
	State   string          `json:"state,omitempty"`
	Session string          `json:"session,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// DecodeData unmarshals the response payload into v.
func (r Response) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return errors.New("response carries no data")
	}
	return json.Unmarshal(r.Data, v)
}
