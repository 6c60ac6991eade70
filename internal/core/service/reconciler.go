package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/internal/core/port"
	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrPollInProgress    = errors.New("poll in progress")
	ErrAccessoryNotFound = errors.New("accessory not found")
)

type ReconcilerConfig struct {
	EnabledTypes []string
	// FailureThreshold is the number of consecutive failed cycles after which the hub is reported unhealthy.
	FailureThreshold int
}

// CycleStats summarizes one discovery or poll cycle.
type CycleStats struct {
	Entries     int
	Updated     int
	Created     int
	Restored    int
	Unsupported int
	Failed      int
	Stale       int
}

// Reconciler keeps the registry in line with the hub catalog.
type Reconciler struct {
	catalog  port.CatalogSource
	factory  port.AccessoryFactory
	platform port.Platform
	registry *Registry
	config   ReconcilerConfig
	now      func() time.Time

	inFlight   atomic.Bool
	failures   atomic.Int32
	discovered atomic.Bool

	restoredMu sync.RWMutex
	restored   port.RestoredCache

	logger *zap.Logger
}

func NewReconciler(catalog port.CatalogSource, factory port.AccessoryFactory, platform port.Platform, config ReconcilerConfig, logger *zap.Logger) *Reconciler {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 1
	}
	return &Reconciler{
		catalog:  catalog,
		factory:  factory,
		platform: platform,
		registry: NewRegistry(),
		config:   config,
		now:      time.Now,
		logger:   logger.With(zap.String("service", "reconciler")),
	}
}

// DiscoverDevices runs the first cycle, once the platform restored the accessories of a previous run.
// Restored accessories are reused without registering them again.
func (r *Reconciler) DiscoverDevices(ctx context.Context, restored port.RestoredCache) (CycleStats, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return CycleStats{}, ErrPollInProgress
	}
	defer r.inFlight.Store(false)

	r.restoredMu.Lock()
	r.restored = restored
	r.restoredMu.Unlock()

	stats, _, err := r.cycle(ctx, "discovery")
	if err != nil {
		return stats, err
	}
	r.discovered.Store(true)
	r.logger.Info("reconciler: discovery done",
		zap.Int("entries", stats.Entries), zap.Int("created", stats.Created), zap.Int("restored", stats.Restored),
		zap.Int("unsupported", stats.Unsupported), zap.Int("failed", stats.Failed))
	return stats, nil
}

// UpdateDevices refreshes every known accessory and registers the new ones. Accessories
// missing from the catalog are marked stale, never removed.
func (r *Reconciler) UpdateDevices(ctx context.Context) (CycleStats, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return CycleStats{}, ErrPollInProgress
	}
	defer r.inFlight.Store(false)

	stats, seen, err := r.cycle(ctx, "poll")
	if err != nil {
		return stats, err
	}
	for _, e := range r.registry.MarkStale(seen) {
		stats.Stale++
		r.logger.Warn("reconciler: accessory missing from hub catalog",
			zap.String("uuid", e.UUID.String()), zap.String("domain", string(e.Domain)),
			zap.Int("id", e.CrestronID), zap.String("name", e.Name))
	}
	r.logger.Debug("reconciler: poll done",
		zap.Int("entries", stats.Entries), zap.Int("updated", stats.Updated), zap.Int("created", stats.Created),
		zap.Int("stale", stats.Stale), zap.Int("failed", stats.Failed))
	return stats, nil
}

func (r *Reconciler) cycle(ctx context.Context, name string) (CycleStats, map[uuid.UUID]struct{}, error) {
	var stats CycleStats
	devices, err := r.catalog.FetchCatalog(ctx, r.config.EnabledTypes)
	if err != nil {
		failures := int(r.failures.Add(1))
		r.logger.Error("reconciler: catalog fetch failed", zap.String("cycle", name),
			zap.Int("consecutive_failures", failures), zap.Error(err))
		if failures >= r.config.FailureThreshold {
			r.logger.Error("reconciler: hub unreachable, serving last known state",
				zap.Int("consecutive_failures", failures), zap.Int("accessories", r.registry.Len()))
		}
		return stats, nil, fmt.Errorf("%s: %w", name, err)
	}
	if prev := r.failures.Swap(0); prev >= int32(r.config.FailureThreshold) {
		r.logger.Info("reconciler: hub reachable again", zap.Int32("failed_cycles", prev))
	}

	stats.Entries = len(devices)
	seen := make(map[uuid.UUID]struct{}, len(devices))
	restored := r.restoredCache()
	for _, device := range devices {
		id := domain.AccessoryUUID(device.Domain, device.ID)
		seen[id] = struct{}{}
		if err := r.reconcileDevice(id, device, restored, &stats); err != nil {
			stats.Failed++
			r.logger.Error("reconciler: device failed", zap.String("key", device.Key()),
				zap.String("name", device.Name), zap.Error(err))
		}
	}
	return stats, seen, nil
}

func (r *Reconciler) reconcileDevice(id uuid.UUID, device crestron.NormalizedDevice, restored port.RestoredCache, stats *CycleStats) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	if acc, ok := r.registry.Get(id); ok {
		acc.UpdateState(device)
		r.registry.MarkSynced(id, device, r.now())
		stats.Updated++
		return nil
	}

	acc, ok := r.factory.Create(device)
	if !ok {
		stats.Unsupported++
		r.logger.Info("reconciler: unsupported accessory type", zap.String("key", device.Key()),
			zap.String("name", device.Name), zap.String("type", device.Type))
		return nil
	}

	if restored != nil && restored.IsRestored(id) {
		r.logger.Info("reconciler: restoring existing accessory", zap.String("key", device.Key()), zap.String("name", device.Name))
		stats.Restored++
	} else {
		r.logger.Info("reconciler: adding new accessory", zap.String("key", device.Key()), zap.String("name", device.Name))
		if err := r.platform.RegisterAccessory(acc); err != nil {
			return fmt.Errorf("register accessory: %w", err)
		}
		stats.Created++
	}
	r.registry.Add(acc, device, r.now())
	acc.UpdateState(device)
	return nil
}

func (r *Reconciler) restoredCache() port.RestoredCache {
	r.restoredMu.RLock()
	defer r.restoredMu.RUnlock()
	return r.restored
}

// Dispatch routes a framework command to the accessory it targets.
func (r *Reconciler) Dispatch(ctx context.Context, cmd domain.AccessoryCommand) error {
	acc, ok := r.registry.Get(cmd.UUID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccessoryNotFound, cmd.UUID)
	}
	return acc.HandleCommand(ctx, cmd)
}

// Discovered reports whether a discovery cycle completed, later cycles are polls.
func (r *Reconciler) Discovered() bool {
	return r.discovered.Load()
}

func (r *Reconciler) Snapshot() []domain.AccessoryEntry {
	return r.registry.Snapshot()
}

func (r *Reconciler) AccessoryCount() int {
	return r.registry.Len()
}

func (r *Reconciler) ConsecutiveFailures() int {
	return int(r.failures.Load())
}

// Healthy is false once the consecutive failed cycles reach the threshold.
func (r *Reconciler) Healthy() bool {
	return r.ConsecutiveFailures() < r.config.FailureThreshold
}
