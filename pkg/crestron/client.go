package crestron

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type ClientConfig struct {
	Host               string
	Token              string
	Timeout            time.Duration
	InsecureSkipVerify bool
	NameSeparator      string
	MaxCatalogSize     int
}

type ClientOption func(*Client)

// WithClock replaces the clock used for session expiry.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.session.now = now
	}
}

// Client talks to the Crestron Home REST API. Every call goes through the session
// and is retried once after a 401.
type Client struct {
	transport      *transport
	session        *Session
	nameSeparator  string
	maxCatalogSize int
	logger         *zap.Logger
}

func NewClient(cfg ClientConfig, logger *zap.Logger, opts ...ClientOption) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxCatalogSize <= 0 || cfg.MaxCatalogSize > MAX_CATALOG_SIZE {
		cfg.MaxCatalogSize = MAX_CATALOG_SIZE
	}
	if cfg.NameSeparator == "" {
		cfg.NameSeparator = " "
	}
	logger = logger.With(zap.String("hub", cfg.Host))
	tr := newTransport(cfg.Host, cfg.Timeout, cfg.InsecureSkipVerify)
	c := &Client{
		transport:      tr,
		session:        newSession(tr, cfg.Token, logger),
		nameSeparator:  cfg.NameSeparator,
		maxCatalogSize: cfg.MaxCatalogSize,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Session() *Session {
	return c.session
}

// Version is the hub software version reported on the last login, empty before the first one.
func (c *Client) Version() string {
	return c.session.Version()
}

// Login establishes a session if there is none or it expired.
func (c *Client) Login(ctx context.Context) error {
	return c.session.Ensure(ctx)
}

func (c *Client) GetDevice(ctx context.Context, id int) (*Device, error) {
	var resp devicesResponse
	if err := c.call(ctx, "get device", http.MethodGet, fmt.Sprintf("/devices/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Devices) == 0 {
		return nil, &ProtocolError{Op: "get device", Reason: fmt.Sprintf("no entry for device %d", id)}
	}
	return &resp.Devices[0], nil
}

func (c *Client) GetShadeState(ctx context.Context, id int) (*Shade, error) {
	var resp shadesResponse
	if err := c.call(ctx, "get shade", http.MethodGet, fmt.Sprintf("/Shades/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Shades) == 0 {
		return nil, &ProtocolError{Op: "get shade", Reason: fmt.Sprintf("no entry for shade %d", id)}
	}
	return &resp.Shades[0], nil
}

func (c *Client) GetScene(ctx context.Context, id int) (*Scene, error) {
	var resp scenesResponse
	if err := c.call(ctx, "get scene", http.MethodGet, fmt.Sprintf("/scenes/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Scenes) == 0 {
		return nil, &ProtocolError{Op: "get scene", Reason: fmt.Sprintf("no entry for scene %d", id)}
	}
	return &resp.Scenes[0], nil
}

func (c *Client) SetLightsState(ctx context.Context, lights []LightState) error {
	if len(lights) == 0 {
		return nil
	}
	for _, l := range lights {
		if l.Level < 0 || l.Level > LEVEL_MAX {
			return fmt.Errorf("light %d level %d: %w", l.ID, l.Level, ErrValueOutOfRange)
		}
	}
	c.logger.Debug("crestron: set lights state", zap.Any("lights", lights))
	return c.call(ctx, "set lights state", http.MethodPost, "/Lights/SetState", lightsStateRequest{Lights: lights}, nil)
}

func (c *Client) SetShadesState(ctx context.Context, shades []ShadeState) error {
	if len(shades) == 0 {
		return nil
	}
	for _, s := range shades {
		if s.Position < 0 || s.Position > LEVEL_MAX {
			return fmt.Errorf("shade %d position %d: %w", s.ID, s.Position, ErrValueOutOfRange)
		}
	}
	c.logger.Debug("crestron: set shades state", zap.Any("shades", shades))
	return c.call(ctx, "set shades state", http.MethodPost, "/Shades/SetState", shadesStateRequest{Shades: shades}, nil)
}

// RecallScene asks the hub to recall a scene. The hub only acknowledges acceptance.
func (c *Client) RecallScene(ctx context.Context, id int) error {
	c.logger.Debug("crestron: recall scene", zap.Int("scene", id))
	return c.call(ctx, "recall scene", http.MethodPost, fmt.Sprintf("/SCENES/RECALL/%d", id), nil, nil)
}

func (c *Client) call(ctx context.Context, op, method, path string, body any, out any) error {
	return c.session.Do(ctx, func(ctx context.Context, authKey string) error {
		return c.transport.request(ctx, op, method, path, authKeyHeader(authKey), body, out)
	})
}
