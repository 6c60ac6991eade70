package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	MIN_POLL_INTERVAL_SECONDS = 5
	MAX_ACCESSORIES           = 149
)

type Config struct {
	LogLevel zapcore.Level
	Crestron CrestronConfig `mapstructure:"crestron"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Port     uint           `mapstructure:"port"`
	HttpLog  bool           `mapstructure:"http_log"`
}

type CrestronConfig struct {
	Host                 string
	Token                string
	EnabledTypes         []string `mapstructure:"enabled_types"`
	PollIntervalSeconds  uint32   `mapstructure:"poll_interval_seconds"`
	RequestTimeoutMillis uint32   `mapstructure:"request_timeout_millis"`
	PollTimeoutMillis    uint32   `mapstructure:"poll_timeout_millis"`
	InsecureSkipVerify   bool     `mapstructure:"insecure_skip_verify"`
	NameSeparator        string   `mapstructure:"name_separator"`
	MaxAccessories       int      `mapstructure:"max_accessories"`
	PollFailureThreshold int      `mapstructure:"poll_failure_threshold"`
}

type MQTTConfig struct {
	Host                string
	Port                int
	Username            string
	Password            string
	BaseTopic           string `mapstructure:"base_topic"`
	HADiscoveryEnable   bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic    string `mapstructure:"ha_discovery_topic"`
	RestoreWindowMillis uint32 `mapstructure:"restore_window_millis"`
}

func (c CrestronConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c CrestronConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMillis) * time.Millisecond
}

func (c CrestronConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutMillis) * time.Millisecond
}

func (c MQTTConfig) RestoreWindow() time.Duration {
	return time.Duration(c.RestoreWindowMillis) * time.Millisecond
}

// Validate checks required keys and bounds, and normalizes topics and type lists in place.
func (c *Config) Validate() error {
	if c.Crestron.Host == "" {
		return errors.New("config param crestron.host is required")
	}
	if c.Crestron.Token == "" {
		return errors.New("config param crestron.token is required")
	}

	var types []string
	for _, t := range c.Crestron.EnabledTypes {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		return errors.New("config param crestron.enabled_types must list at least one type")
	}
	c.Crestron.EnabledTypes = types

	if c.Crestron.PollIntervalSeconds < MIN_POLL_INTERVAL_SECONDS {
		return fmt.Errorf("config param crestron.poll_interval_seconds should be >= %d", MIN_POLL_INTERVAL_SECONDS)
	}
	if c.Crestron.RequestTimeoutMillis == 0 {
		return errors.New("config param crestron.request_timeout_millis should be > 0")
	}
	if c.Crestron.PollTimeoutMillis < c.Crestron.RequestTimeoutMillis {
		return errors.New("config param crestron.poll_timeout_millis should be >= crestron.request_timeout_millis")
	}
	if c.Crestron.MaxAccessories <= 0 || c.Crestron.MaxAccessories > MAX_ACCESSORIES {
		return fmt.Errorf("config param crestron.max_accessories should be in 1..%d", MAX_ACCESSORIES)
	}
	if c.Crestron.PollFailureThreshold <= 0 {
		return errors.New("config param crestron.poll_failure_threshold should be > 0")
	}

	baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.BaseTopic = baseTopic

	hadBaseTopic, err := CheckMQTTTopic(c.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.HADiscoveryTopic = hadBaseTopic

	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
