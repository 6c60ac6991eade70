package crestron

import (
	"context"
	"net/http"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FetchCatalog reads rooms, scenes, devices and shades concurrently and returns the
// joined, filtered and capped list. Any failed read fails the whole fetch.
func (c *Client) FetchCatalog(ctx context.Context, enabledTypes []string) ([]NormalizedDevice, error) {
	var (
		rooms   roomsResponse
		scenes  scenesResponse
		devices devicesResponse
		shades  shadesResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.fetchList(gctx, "rooms", "/rooms", &rooms) })
	g.Go(func() error { return c.fetchList(gctx, "scenes", "/scenes", &scenes) })
	g.Go(func() error { return c.fetchList(gctx, "devices", "/devices", &devices) })
	g.Go(func() error { return c.fetchList(gctx, "shades", "/shades", &shades) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if rooms.Rooms == nil {
		c.logger.Debug("crestron: rooms list missing in response")
	}

	entries := normalize(rooms.Rooms, scenes.Scenes, devices.Devices, shades.Shades, enabledTypes, c.nameSeparator, c.logger)
	return capCatalog(entries, c.maxCatalogSize, c.logger), nil
}

func (c *Client) fetchList(ctx context.Context, resource, path string, out any) error {
	if err := c.call(ctx, "get "+resource, http.MethodGet, path, nil, out); err != nil {
		return &CatalogError{Resource: resource, Err: err}
	}
	return nil
}

func normalize(rooms []Room, scenes []Scene, devices []Device, shades []Shade, enabledTypes []string,
	separator string, logger *zap.Logger) []NormalizedDevice {

	roomNames := make(map[int]string, len(rooms))
	for _, r := range rooms {
		roomNames[r.ID] = r.Name
	}
	shadePositions := make(map[int]int, len(shades))
	for _, s := range shades {
		shadePositions[s.ID] = s.Position
	}

	entries := make([]NormalizedDevice, 0, len(devices)+len(scenes))

	for _, d := range devices {
		deviceType := d.Type
		if d.SubType != "" {
			deviceType = d.SubType
		}
		if !slices.Contains(enabledTypes, deviceType) {
			logger.Info("crestron: device type not enabled, skipping",
				zap.Int("id", d.ID), zap.String("name", d.Name), zap.String("type", deviceType))
			continue
		}
		roomName := roomNames[d.RoomID]
		entry := NormalizedDevice{
			ID:       d.ID,
			Domain:   DomainDevice,
			Name:     displayName(roomName, d.Name, separator),
			Type:     deviceType,
			SubType:  deviceType,
			RoomID:   d.RoomID,
			RoomName: roomName,
		}
		if d.Level != nil {
			entry.Level = *d.Level
		}
		if d.Status != nil {
			entry.Status = *d.Status
		}
		if deviceType == DEVICE_TYPE_SHADE {
			entry.Position = shadePositions[d.ID]
		}
		entries = append(entries, entry)
	}

	allScenes := slices.Contains(enabledTypes, DEVICE_TYPE_SCENE)
	for _, s := range scenes {
		if !allScenes && !slices.Contains(enabledTypes, s.Type) {
			logger.Info("crestron: scene type not enabled, skipping",
				zap.Int("id", s.ID), zap.String("name", s.Name), zap.String("type", s.Type))
			continue
		}
		roomName := roomNames[s.RoomID]
		entries = append(entries, NormalizedDevice{
			ID:       s.ID,
			Domain:   DomainScene,
			Name:     displayName(roomName, s.Name, separator),
			Type:     DEVICE_TYPE_SCENE,
			SubType:  s.Type,
			RoomID:   s.RoomID,
			RoomName: roomName,
			Status:   s.Status,
		})
	}

	return entries
}

func capCatalog(entries []NormalizedDevice, limit int, logger *zap.Logger) []NormalizedDevice {
	if len(entries) <= limit {
		return entries
	}
	dropped := entries[limit:]
	keys := make([]string, 0, len(dropped))
	for _, d := range dropped {
		keys = append(keys, d.Key()+" "+d.Name)
	}
	logger.Warn("crestron: catalog exceeds accessory limit, dropping tail",
		zap.Int("limit", limit), zap.Int("dropped", len(dropped)), zap.Strings("entries", keys))
	return entries[:limit]
}

func displayName(roomName, name, separator string) string {
	if roomName == "" {
		return name
	}
	return roomName + separator + name
}
