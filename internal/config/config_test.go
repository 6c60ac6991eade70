package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Crestron: CrestronConfig{
			Host:                 "192.168.1.20",
			Token:                "token",
			EnabledTypes:         []string{"Dimmer", " Switch ", ""},
			PollIntervalSeconds:  30,
			RequestTimeoutMillis: 10000,
			PollTimeoutMillis:    60000,
			MaxAccessories:       MAX_ACCESSORIES,
			PollFailureThreshold: 3,
		},
		MQTT: MQTTConfig{
			BaseTopic:        "Crestron",
			HADiscoveryTopic: "homeassistant",
		},
	}
}

func TestValidateNormalizes(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cfg := validConfig()
	require.NoError(cfg.Validate())

	assert.Equal([]string{"Dimmer", "Switch"}, cfg.Crestron.EnabledTypes)
	assert.Equal("crestron", cfg.MQTT.BaseTopic)
	assert.Equal(30, int(cfg.Crestron.PollInterval().Seconds()))
}

func TestValidateRejects(t *testing.T) {

	assert := assert.New(t)

	cases := map[string]func(*Config){
		"missing host":          func(c *Config) { c.Crestron.Host = "" },
		"missing token":         func(c *Config) { c.Crestron.Token = "" },
		"no types":              func(c *Config) { c.Crestron.EnabledTypes = []string{" "} },
		"poll interval too low": func(c *Config) { c.Crestron.PollIntervalSeconds = 1 },
		"too many accessories":  func(c *Config) { c.Crestron.MaxAccessories = 200 },
		"poll timeout too low":  func(c *Config) { c.Crestron.PollTimeoutMillis = 100 },
		"bad base topic":        func(c *Config) { c.MQTT.BaseTopic = "crestron/home" },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		assert.Error(cfg.Validate(), name)
	}
}

func TestCheckMQTTTopic(t *testing.T) {

	assert := assert.New(t)

	topic, err := CheckMQTTTopic("Home_1")
	assert.NoError(err)
	assert.Equal("home_1", topic)

	_, err = CheckMQTTTopic("home/1")
	assert.Error(err)
}
