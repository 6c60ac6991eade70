package port

import (
	"context"

	"github.com/berfenger/crestron2mqtt/pkg/crestron"
)

// CatalogSource returns the joined, filtered and capped hub snapshot.
type CatalogSource interface {
	FetchCatalog(ctx context.Context, enabledTypes []string) ([]crestron.NormalizedDevice, error)
}

type HubCommander interface {
	GetDevice(ctx context.Context, id int) (*crestron.Device, error)
	GetShadeState(ctx context.Context, id int) (*crestron.Shade, error)
	GetScene(ctx context.Context, id int) (*crestron.Scene, error)
	SetLightsState(ctx context.Context, lights []crestron.LightState) error
	SetShadesState(ctx context.Context, shades []crestron.ShadeState) error
	RecallScene(ctx context.Context, id int) error
}

type HubInfo interface {
	Version() string
}

// ensure interface compliance
var _ CatalogSource = (*crestron.Client)(nil)
var _ HubCommander = (*crestron.Client)(nil)
var _ HubInfo = (*crestron.Client)(nil)
