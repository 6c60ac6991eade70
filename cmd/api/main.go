package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/berfenger/crestron2mqtt/internal/adapter/accessory"
	adactor "github.com/berfenger/crestron2mqtt/internal/adapter/actor"
	"github.com/berfenger/crestron2mqtt/internal/config"
	"github.com/berfenger/crestron2mqtt/internal/core/actor"
	"github.com/berfenger/crestron2mqtt/internal/core/service"
	"github.com/berfenger/crestron2mqtt/internal/server"
	"github.com/berfenger/crestron2mqtt/internal/util/actorutil"
	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	if cfg.Crestron.InsecureSkipVerify {
		logger.Warn("TLS certificate verification of the Crestron hub is disabled")
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	eventStream := &eventstream.EventStream{}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, eventStream, mqttActorProvider(cfg, logger), hubActorProvider(cfg, eventStream, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Error("could not spawn master actor", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => CRESTRON2MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("CRESTRON2MQTT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("crestron2mqtt")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// comma separated lists come from env vars as a single string
	if raw := viper.GetString("crestron.enabled_types"); len(cfg.Crestron.EnabledTypes) <= 1 && strings.Contains(raw, ",") {
		cfg.Crestron.EnabledTypes = strings.Split(raw, ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

// hubActorProvider builds the hub stack once. The reconciler outlives hub actor restarts,
// so the registry and the discovery state survive them.
func hubActorProvider(cfg *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) actor.HubActorProvider {
	client := crestron.NewClient(crestron.ClientConfig{
		Host:               cfg.Crestron.Host,
		Token:              cfg.Crestron.Token,
		Timeout:            cfg.Crestron.RequestTimeout(),
		InsecureSkipVerify: cfg.Crestron.InsecureSkipVerify,
		NameSeparator:      cfg.Crestron.NameSeparator,
		MaxCatalogSize:     cfg.Crestron.MaxAccessories,
	}, logger)
	factory := accessory.NewFactory(client, eventStream, logger)
	platform := accessory.NewPlatform(eventStream, cfg.MQTT.HADiscoveryEnable, logger)
	reconciler := service.NewReconciler(client, factory, platform, service.ReconcilerConfig{
		EnabledTypes:     cfg.Crestron.EnabledTypes,
		FailureThreshold: cfg.Crestron.PollFailureThreshold,
	}, logger)

	return func(es *eventstream.EventStream) *actor.HubActor {
		return actor.NewHubActor(cfg, reconciler, client, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
	viper.SetDefault("crestron.host", "")
	viper.SetDefault("crestron.token", "")
	viper.SetDefault("crestron.enabled_types", []string{"Dimmer", "Switch", "Shade", "Scene"})
	viper.SetDefault("crestron.poll_interval_seconds", 30)
	viper.SetDefault("crestron.request_timeout_millis", 10000)
	viper.SetDefault("crestron.poll_timeout_millis", 60000)
	viper.SetDefault("crestron.insecure_skip_verify", false)
	viper.SetDefault("crestron.name_separator", " ")
	viper.SetDefault("crestron.max_accessories", config.MAX_ACCESSORIES)
	viper.SetDefault("crestron.poll_failure_threshold", 3)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.base_topic", "crestron")
	viper.SetDefault("mqtt.ha_discovery_enable", true)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("mqtt.restore_window_millis", 2000)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Crestron.Token = "*redacted*"
	slog.Info("Using", "config", cfg)
}
