package crestron

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	TEST_HUB_TOKEN   = "test-token"
	TEST_HUB_VERSION = "3.10.0.54"
)

// TestHub is an in-process fake of the Crestron Home REST API served over TLS.
type TestHub struct {
	server *httptest.Server

	mu         sync.Mutex
	token      string
	currentKey string
	keySeq     int
	logins     int
	loginDelay time.Duration
	reject     map[string]int
	fail       map[string]int

	rooms   []Room
	scenes  []Scene
	devices []Device
	shades  []Shade

	lights   []LightState
	shadeSet []ShadeState
	recalled []int
}

func NewTestHub() *TestHub {
	h := &TestHub{
		token:  TEST_HUB_TOKEN,
		reject: map[string]int{},
		fail:   map[string]int{},
	}

	e := echo.New()
	e.HideBanner = true
	api := e.Group("/cws/api")
	api.GET("/login", h.login)

	authed := api.Group("", h.authMiddleware)
	authed.GET("/rooms", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"rooms": h.snapshotRooms()})
	})
	authed.GET("/scenes", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"scenes": h.snapshotScenes()})
	})
	authed.GET("/devices", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"devices": h.snapshotDevices()})
	})
	authed.GET("/shades", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"shades": h.snapshotShades()})
	})
	authed.GET("/devices/:id", h.getDevice)
	authed.GET("/Shades/:id", h.getShade)
	authed.GET("/scenes/:id", h.getScene)
	authed.POST("/Lights/SetState", h.setLights)
	authed.POST("/Shades/SetState", h.setShades)
	authed.POST("/SCENES/RECALL/:id", h.recallScene)

	h.server = httptest.NewTLSServer(e)
	return h
}

func (h *TestHub) Close() {
	h.server.Close()
}

func (h *TestHub) Host() string {
	return strings.TrimPrefix(h.server.URL, "https://")
}

// ClientConfig returns a config pointing at the fake hub, with certificate checks disabled.
func (h *TestHub) ClientConfig() ClientConfig {
	return ClientConfig{
		Host:               h.Host(),
		Token:              TEST_HUB_TOKEN,
		Timeout:            2 * time.Second,
		InsecureSkipVerify: true,
	}
}

func (h *TestHub) SetCatalog(rooms []Room, scenes []Scene, devices []Device, shades []Shade) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms, h.scenes, h.devices, h.shades = rooms, scenes, devices, shades
}

func (h *TestHub) SetDevices(devices []Device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices = devices
}

// RejectNext answers the next n requests to path with 401.
func (h *TestHub) RejectNext(path string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reject[path] = n
}

// FailWith answers every request to path with status until cleared with status 0.
func (h *TestHub) FailWith(path string, status int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if status == 0 {
		delete(h.fail, path)
		return
	}
	h.fail[path] = status
}

// ExpireSession makes the hub forget the issued auth key.
func (h *TestHub) ExpireSession() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentKey = ""
}

func (h *TestHub) SetLoginDelay(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loginDelay = d
}

func (h *TestHub) Logins() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logins
}

func (h *TestHub) LightsRequests() []LightState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]LightState(nil), h.lights...)
}

func (h *TestHub) ShadesRequests() []ShadeState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ShadeState(nil), h.shadeSet...)
}

func (h *TestHub) RecalledScenes() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.recalled...)
}

func (h *TestHub) login(c echo.Context) error {
	h.mu.Lock()
	delay := h.loginDelay
	h.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if status, ok := h.fail["/login"]; ok {
		return c.NoContent(status)
	}
	if c.Request().Header.Get(HEADER_AUTH_TOKEN) != h.token {
		return c.NoContent(http.StatusUnauthorized)
	}
	h.logins++
	h.keySeq++
	h.currentKey = fmt.Sprintf("key-%d", h.keySeq)
	return c.JSON(http.StatusOK, map[string]any{
		"authkey": h.currentKey,
		"version": TEST_HUB_VERSION,
	})
}

func (h *TestHub) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := strings.TrimPrefix(c.Request().URL.Path, "/cws/api")
		h.mu.Lock()
		if status, ok := h.fail[path]; ok {
			h.mu.Unlock()
			return c.NoContent(status)
		}
		if n := h.reject[path]; n > 0 {
			h.reject[path] = n - 1
			h.mu.Unlock()
			return c.NoContent(http.StatusUnauthorized)
		}
		key := c.Request().Header.Get(HEADER_AUTH_KEY)
		valid := key != "" && key == h.currentKey
		h.mu.Unlock()
		if !valid {
			return c.NoContent(http.StatusUnauthorized)
		}
		return next(c)
	}
}

func (h *TestHub) getDevice(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	found := []Device{}
	for _, d := range h.snapshotDevices() {
		if d.ID == id {
			found = append(found, d)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"devices": found})
}

func (h *TestHub) getShade(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	found := []Shade{}
	for _, s := range h.snapshotShades() {
		if s.ID == id {
			found = append(found, s)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"shades": found})
}

func (h *TestHub) getScene(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	found := []Scene{}
	for _, s := range h.snapshotScenes() {
		if s.ID == id {
			found = append(found, s)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"scenes": found})
}

func (h *TestHub) setLights(c echo.Context) error {
	var req lightsStateRequest
	if err := c.Bind(&req); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	h.mu.Lock()
	h.lights = append(h.lights, req.Lights...)
	for _, l := range req.Lights {
		for i := range h.devices {
			if h.devices[i].ID == l.ID {
				level := l.Level
				status := level > 0
				h.devices[i].Level = &level
				h.devices[i].Status = &status
			}
		}
	}
	h.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{"status": "success"})
}

func (h *TestHub) setShades(c echo.Context) error {
	var req shadesStateRequest
	if err := c.Bind(&req); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	h.mu.Lock()
	h.shadeSet = append(h.shadeSet, req.Shades...)
	for _, s := range req.Shades {
		for i := range h.shades {
			if h.shades[i].ID == s.ID {
				h.shades[i].Position = s.Position
			}
		}
	}
	h.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{"status": "success"})
}

func (h *TestHub) recallScene(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	h.mu.Lock()
	h.recalled = append(h.recalled, id)
	h.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{"status": "success"})
}

func (h *TestHub) snapshotRooms() []Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Room{}, h.rooms...)
}

func (h *TestHub) snapshotScenes() []Scene {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Scene{}, h.scenes...)
}

func (h *TestHub) snapshotDevices() []Device {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Device{}, h.devices...)
}

func (h *TestHub) snapshotShades() []Shade {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Shade{}, h.shades...)
}

// SampleCatalog is a small home with one room, a dimmer, a switch, a shade and two scenes.
func SampleCatalog() ([]Room, []Scene, []Device, []Shade) {
	level := 32768
	on := true
	off := false
	zero := 0
	rooms := []Room{{ID: 1, Name: "Living Room"}, {ID: 2, Name: "Kitchen"}}
	devices := []Device{
		{ID: 201, Name: "Ceiling", Type: "Light", SubType: DEVICE_TYPE_DIMMER, RoomID: 1, Level: &level, Status: &on},
		{ID: 202, Name: "Counter", Type: "Light", SubType: DEVICE_TYPE_SWITCH, RoomID: 2, Level: &zero, Status: &off},
		{ID: 203, Name: "Blind", Type: DEVICE_TYPE_SHADE, RoomID: 1},
		{ID: 204, Name: "Thermostat", Type: "Thermostat", RoomID: 1},
	}
	shades := []Shade{{ID: 203, Position: 65535}}
	scenes := []Scene{
		{ID: 101, Name: "Evening", Type: SCENE_TYPE_LIGHTING, RoomID: 1, Status: true},
		{ID: 201, Name: "Front Door", Type: SCENE_TYPE_GENERIC_IO, RoomID: 2, Status: false},
	}
	return rooms, scenes, devices, shades
}
