package domain

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_HUB          = "hub"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishStateUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  StateUpdateEvent
}


type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors     []GenericSensor
	Accessories []AccessoryDescriptor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// PlatformReadyEvent is sent by the MQTT actor once the retained discovery configs of
// a previous run have been collected.
type PlatformReadyEvent struct {
	Restored RestoredAccessories
}

type GetAccessoriesRequest struct {
	ActorRequestMixIn
}

type GetAccessoriesResponse struct {
	ActorResponseMixIn
	Accessories []AccessoryEntry
}

type AccessoryCommandRequest struct {
	ActorRequestMixIn
	Command AccessoryCommand
}

type AccessoryCommandResponse struct {
	ActorResponseMixIn
	Command AccessoryCommand
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
