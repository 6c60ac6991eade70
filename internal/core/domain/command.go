package domain

import (
	"errors"

	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedCommand = errors.New("unsupported command")
)

type CommandAction string

const (
	// ACTION_SET_STATE carries ON/OFF, OPEN/CLOSE/STOP or LOCK/UNLOCK payloads.
	ACTION_SET_STATE      CommandAction = "set"
	ACTION_SET_BRIGHTNESS CommandAction = "brightness"
	ACTION_SET_POSITION   CommandAction = "position"
)

// AccessoryCommand is a framework originated write, addressed to one accessory.
type AccessoryCommand struct {
	UUID       uuid.UUID
	Domain     crestron.Domain
	CrestronID int
	Action     CommandAction
	Payload    string
}

// command and state payloads, as exchanged with the accessory framework
const (
	PAYLOAD_ON       = "on"
	PAYLOAD_OFF      = "off"
	PAYLOAD_OPEN     = "open"
	PAYLOAD_CLOSE    = "close"
	PAYLOAD_STOP     = "stop"
	PAYLOAD_LOCK     = "lock"
	PAYLOAD_UNLOCK   = "unlock"
	PAYLOAD_LOCKED   = "locked"
	PAYLOAD_UNLOCKED = "unlocked"
)
