package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	"github.com/google/uuid"
)

type AccessoryKind string

const (
	KIND_LIGHT AccessoryKind = "light"
	KIND_SHADE AccessoryKind = "shade"
	KIND_SCENE AccessoryKind = "scene"
)

// EntryState tracks an accessory through the reconciliation cycles.
type EntryState string

const (
	ENTRY_STATE_REGISTERED EntryState = "registered"
	ENTRY_STATE_SYNCED     EntryState = "synced"
	ENTRY_STATE_STALE      EntryState = "stale"
)

// accessoryNamespace scopes the name based accessory UUIDs of this bridge.
var accessoryNamespace = uuid.MustParse("5b0f2a4e-8c71-4d0a-9f3e-1c6b7d2e9a40")

// AccessoryUUID derives the stable external identifier of a hub record. Device and scene
// ids live in separate spaces, so the domain is part of the name.
func AccessoryUUID(domain crestron.Domain, id int) uuid.UUID {
	return uuid.NewSHA1(accessoryNamespace, []byte(fmt.Sprintf("%s:%d", domain, id)))
}

// ObjectId is the MQTT friendly id of a hub record, e.g. device_201 or scene_101.
func ObjectId(domain crestron.Domain, id int) string {
	return fmt.Sprintf("%s_%d", domain, id)
}

func ParseObjectId(objectId string) (crestron.Domain, int, error) {
	prefix, rawId, ok := strings.Cut(objectId, "_")
	if !ok {
		return "", 0, fmt.Errorf("invalid object id %q", objectId)
	}
	var domain crestron.Domain
	switch crestron.Domain(prefix) {
	case crestron.DomainDevice:
		domain = crestron.DomainDevice
	case crestron.DomainScene:
		domain = crestron.DomainScene
	default:
		return "", 0, fmt.Errorf("invalid object id domain %q", prefix)
	}
	id, err := strconv.Atoi(rawId)
	if err != nil {
		return "", 0, errors.Join(fmt.Errorf("invalid object id %q", objectId), err)
	}
	return domain, id, nil
}

// AccessoryDescriptor is what the framework needs to know to expose an accessory.
type AccessoryDescriptor struct {
	UUID       uuid.UUID
	CrestronID int
	Domain     crestron.Domain
	Kind       AccessoryKind
	Component  string
	Name       string
	RoomName   string
	SubType    string
	Dimmable   bool
}

func (d AccessoryDescriptor) ObjectId() string {
	return ObjectId(d.Domain, d.CrestronID)
}

// AccessoryEntry is a copy of a registry entry.
type AccessoryEntry struct {
	UUID           uuid.UUID                 `json:"uuid"`
	CrestronID     int                       `json:"crestronId"`
	Domain         crestron.Domain           `json:"domain"`
	Kind           AccessoryKind             `json:"kind"`
	Name           string                    `json:"name"`
	State          EntryState                `json:"state"`
	LastKnownState crestron.NormalizedDevice `json:"lastKnownState"`
	LastSeen       time.Time                 `json:"lastSeen"`
}

// RestoredAccessories is the set of accessories the framework already knew from a previous run.
type RestoredAccessories map[uuid.UUID]struct{}

func NewRestoredAccessories(ids ...uuid.UUID) RestoredAccessories {
	r := RestoredAccessories{}
	for _, id := range ids {
		r[id] = struct{}{}
	}
	return r
}

func (r RestoredAccessories) IsRestored(id uuid.UUID) bool {
	_, ok := r[id]
	return ok
}
