package crestron

import "fmt"

const (
	MAX_CATALOG_SIZE = 149

	DEVICE_TYPE_DIMMER = "Dimmer"
	DEVICE_TYPE_SWITCH = "Switch"
	DEVICE_TYPE_SHADE  = "Shade"
	DEVICE_TYPE_SCENE  = "Scene"

	SCENE_TYPE_LIGHTING   = "Lighting"
	SCENE_TYPE_SHADE      = "Shade"
	SCENE_TYPE_GENERIC_IO = "genericIO"
)

// Domain tells apart the two id spaces of the hub. Device and scene ids may collide.
type Domain string

const (
	DomainDevice Domain = "device"
	DomainScene  Domain = "scene"
)

type Room struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Scene struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	RoomID int    `json:"roomId"`
	Status bool   `json:"status"`
}

type Device struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	SubType string `json:"subType,omitempty"`
	RoomID  int    `json:"roomId"`
	Level   *int   `json:"level,omitempty"`
	Status  *bool  `json:"status,omitempty"`
}

type Shade struct {
	ID       int    `json:"id"`
	Name     string `json:"name,omitempty"`
	RoomID   int    `json:"roomId,omitempty"`
	Position int    `json:"position"`
}

// NormalizedDevice is the flattened view of a device or scene, joined with its room and shade position.
type NormalizedDevice struct {
	ID       int    `json:"id"`
	Domain   Domain `json:"domain"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	SubType  string `json:"subType"`
	RoomID   int    `json:"roomId"`
	RoomName string `json:"roomName"`
	Level    int    `json:"level"`
	Status   bool   `json:"status"`
	Position int    `json:"position"`
}

func (d NormalizedDevice) Key() string {
	return fmt.Sprintf("%s:%d", d.Domain, d.ID)
}

type LightState struct {
	ID    int `json:"id"`
	Level int `json:"level"`
	Time  int `json:"time"`
}

type ShadeState struct {
	ID       int `json:"id"`
	Position int `json:"position"`
}

type loginResponse struct {
	AuthKey string `json:"authkey"`
	Version string `json:"version"`
}

type roomsResponse struct {
	Rooms []Room `json:"rooms"`
}

type scenesResponse struct {
	Scenes []Scene `json:"scenes"`
}

type devicesResponse struct {
	Devices []Device `json:"devices"`
}

type shadesResponse struct {
	Shades []Shade `json:"shades"`
}

type lightsStateRequest struct {
	Lights []LightState `json:"lights"`
}

type shadesStateRequest struct {
	Shades []ShadeState `json:"shades"`
}
