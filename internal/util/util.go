package util

import (
	"github.com/berfenger/crestron2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Crestron: config.CrestronConfig{
			Host:                 "-.-.-.-",
			Token:                "test-token",
			EnabledTypes:         []string{"Dimmer", "Switch", "Shade", "Scene"},
			PollIntervalSeconds:  30,
			RequestTimeoutMillis: 2000,
			PollTimeoutMillis:    10000,
			InsecureSkipVerify:   true,
			NameSeparator:        " ",
			MaxAccessories:       config.MAX_ACCESSORIES,
			PollFailureThreshold: 3,
		},
		MQTT: config.MQTTConfig{
			Host:                "localhost",
			Port:                1883,
			BaseTopic:           "crestron",
			HADiscoveryEnable:   true,
			HADiscoveryTopic:    "homeassistant",
			RestoreWindowMillis: 200,
		},
		Port: 8080,
	}
}
