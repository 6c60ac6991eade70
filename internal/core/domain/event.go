package domain

import "fmt"

type StateUpdateEventMixIn struct {
	Id string
}

// StateUpdateEvent is published on the event stream whenever an entity has a new state to expose.
type StateUpdateEvent interface {
	StateUpdateEvent() string
	EntityId() string
}

func (e StateUpdateEventMixIn) StateUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e StateUpdateEventMixIn) EntityId() string {
	return e.Id
}

// bridge sensors

type FloatSensorUpdateEvent struct {
	StateUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BinarySensorUpdateEvent struct {
	StateUpdateEventMixIn
	Value bool
}

type TextSensorUpdateEvent struct {
	StateUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	StateUpdateEventMixIn
	Value bool
}

// accessories, Id is the accessory object id

type LightStateUpdateEvent struct {
	StateUpdateEventMixIn
	On         bool
	Dimmable   bool
	Brightness int
}

type CoverStateUpdateEvent struct {
	StateUpdateEventMixIn
	Position int
}

type SwitchStateUpdateEvent struct {
	StateUpdateEventMixIn
	On bool
}

type LockStateUpdateEvent struct {
	StateUpdateEventMixIn
	Locked bool
}

// AccessoryRegisteredEvent asks the framework to expose a new accessory.
type AccessoryRegisteredEvent struct {
	Descriptor AccessoryDescriptor
}
