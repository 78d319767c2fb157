package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the decoded answer of the status endpoint. It is one of
// NoCommand, PlayCommand, StopCommand, PingCommand or UnknownCommand.
type Status interface {
	isStatus()
}

type NoCommand struct{}

type PlayCommand struct {
	ID       int64
	Filename string
	Issued   time.Time
}

type StopCommand struct {
	ID     int64
	Issued time.Time
}

type PingCommand struct {
	ID     int64
	Issued time.Time
}

// UnknownCommand carries an action this client does not recognize.
type UnknownCommand struct {
	ID     int64
	Action string
	Issued time.Time
}

func (NoCommand) isStatus()      {}
func (PlayCommand) isStatus()    {}
func (StopCommand) isStatus()    {}
func (PingCommand) isStatus()    {}
func (UnknownCommand) isStatus() {}

type statusWire struct {
	HasCommand bool    `json:"has_command"`
	CommandID  *int64  `json:"command_id"`
	Action     string  `json:"action"`
	TS         *int64  `json:"ts"`
	Filename   *string `json:"filename"`
}

// DecodeStatus turns a status body into exactly one Status variant.
func DecodeStatus(data []byte) (Status, error) {
	var w statusWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	if !w.HasCommand {
		return NoCommand{}, nil
	}
	if w.CommandID == nil {
		return nil, errors.New("decode status: has_command without command_id")
	}

	id := *w.CommandID
	var issued time.Time
	if w.TS != nil {
		issued = time.Unix(*w.TS, 0).UTC()
	}

	switch w.Action {
	case "PLAY":
		filename := "(unknown)"
		if w.Filename != nil {
			filename = *w.Filename
		}
		return PlayCommand{ID: id, Filename: filename, Issued: issued}, nil
	case "STOP":
		return StopCommand{ID: id, Issued: issued}, nil
	case "PING":
		return PingCommand{ID: id, Issued: issued}, nil
	default:
		return UnknownCommand{ID: id, Action: w.Action, Issued: issued}, nil
	}
}

// CommandID returns the id carried by s, if any.
func CommandID(s Status) (int64, bool) {
	switch v := s.(type) {
	case PlayCommand:
		return v.ID, true
	case StopCommand:
		return v.ID, true
	case PingCommand:
		return v.ID, true
	case UnknownCommand:
		return v.ID, true
	default:
		return 0, false
	}
}
