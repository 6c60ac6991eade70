package port

import (
	"context"

	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	"github.com/google/uuid"
)

// Accessory is the framework side representation of a hub record.
type Accessory interface {
	UUID() uuid.UUID
	CrestronID() int
	Kind() domain.AccessoryKind
	Descriptor() domain.AccessoryDescriptor
	UpdateState(device crestron.NormalizedDevice)
	HandleCommand(ctx context.Context, cmd domain.AccessoryCommand) error
}

// AccessoryFactory picks the adapter variant for a record, false when the type is unsupported.
type AccessoryFactory interface {
	Create(device crestron.NormalizedDevice) (Accessory, bool)
}

type Platform interface {
	RegisterAccessory(acc Accessory) error
}

type RestoredCache interface {
	IsRestored(id uuid.UUID) bool
}

type EventPublisher interface {
	Publish(evt any)
}

var _ RestoredCache = domain.RestoredAccessories{}
