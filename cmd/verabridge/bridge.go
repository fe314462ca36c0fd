package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/vera-bridge/internal/api"
	"github.com/nerrad567/vera-bridge/internal/bridges/vera"
	"github.com/nerrad567/vera-bridge/internal/dispatch"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/config"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/database"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/supervisor"
	"github.com/nerrad567/vera-bridge/internal/sink"
	"github.com/nerrad567/vera-bridge/migrations"
)

// bridge holds the wired components of a running bridge.
type bridge struct {
	log *logging.Logger

	db         *database.DB
	client     *vera.Client
	directory  *vera.Directory
	poller     *vera.Poller
	exporter   *vera.ExportPublisher
	address    *sink.Address
	pusher     *sink.Pusher
	mqttClient *mqtt.Client
	api        *api.Server
}

// newBridge opens storage and connections and wires the pipeline.
// On error everything opened so far is closed again.
func newBridge(ctx context.Context, cfg *config.Config, log *logging.Logger) (_ *bridge, err error) {
	b := &bridge{log: log}
	defer func() {
		if err != nil {
			b.close()
		}
	}()

	b.db, err = database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	applied, err := b.db.Migrate(ctx, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path, "migrations_applied", applied)

	sinkLog := log.With("component", "sink")
	b.address, err = sink.NewAddress(ctx, cfg.Sink.IP, sink.NewSQLiteStore(b.db), sinkLog)
	if err != nil {
		return nil, err
	}
	b.pusher = sink.NewPusher(sink.PusherOptions{
		Address:    b.address,
		DevicePort: cfg.Sink.DevicePort,
		Method:     cfg.Sink.Method,
		Timeout:    cfg.Sink.Timeout,
		QueueSize:  cfg.Sink.QueueSize,
		Logger:     sinkLog,
	})
	log.Info("sink configured", "ip", b.address.Current(), "device_port", cfg.Sink.DevicePort, "state_port", cfg.Sink.StatePort)

	if err := b.wirePipeline(cfg); err != nil {
		return nil, err
	}

	if cfg.MQTT.Enabled() {
		if err := b.connectDispatch(cfg); err != nil {
			return nil, err
		}
	} else {
		log.Warn("MQTT disabled: no broker configured, events go to the HTTP sink only")
	}

	if cfg.API.Enabled {
		if err := b.buildAPI(cfg); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// wirePipeline builds the directory, filter, detector, exporter and poller.
func (b *bridge) wirePipeline(cfg *config.Config) error {
	veraLog := b.log.With("component", "vera")

	filter, err := vera.ParseFilter(cfg.Filter.Events)
	if err != nil {
		veraLog.Error("invalid event filter entries skipped", "error", err)
	}
	if filter.Empty() {
		veraLog.Warn("event filter is empty: no events will be emitted")
	}

	b.client = vera.NewClient(cfg.Controller)
	b.directory = vera.NewDirectory()
	rawDedup := vera.NewDedupCache(cfg.Dedup.RawTTL, nil)

	detectorOpts := vera.DetectorOptions{
		Directory: b.directory,
		Filter:    filter,
		RawDedup:  rawDedup,
		Sink:      b.pusher,
		Logger:    veraLog,
	}
	pollerOpts := vera.PollerOptions{
		Fetcher:          b.client,
		Directory:        b.directory,
		RawDedup:         rawDedup,
		PollInterval:     cfg.Controller.PollInterval,
		ErrorBackoff:     cfg.Controller.ErrorBackoff,
		RequestTimeout:   cfg.Controller.Timeout,
		DirectoryRefresh: cfg.Controller.DirectoryRefresh,
		Logger:           veraLog,
	}

	if cfg.MQTT.Enabled() {
		mqttCfg := cfg.MQTT
		b.exporter, err = vera.NewExportPublisher(vera.ExportOptions{
			Dial: func() (vera.MQTTClient, error) {
				c, err := mqtt.Connect(mqttCfg, mqtt.RoleExport)
				if err != nil {
					return nil, err
				}
				c.SetLogger(b.log.With("component", "mqtt-export"))
				return c, nil
			},
			Dedup:  vera.NewDedupCache(cfg.Dedup.ExportTTL, nil),
			QoS:    byte(cfg.MQTT.QoS),
			Logger: b.log.With("component", "export"),
		})
		if err != nil {
			return fmt.Errorf("creating export publisher: %w", err)
		}
		detectorOpts.Exporter = b.exporter
		pollerOpts.Exporter = b.exporter
	}

	detector, err := vera.NewDetector(detectorOpts)
	if err != nil {
		return fmt.Errorf("creating event detector: %w", err)
	}
	pollerOpts.Detector = detector

	b.poller, err = vera.NewPoller(pollerOpts)
	if err != nil {
		return fmt.Errorf("creating poller: %w", err)
	}
	return nil
}

// connectDispatch connects the command client and subscribes the dispatcher.
func (b *bridge) connectDispatch(cfg *config.Config) error {
	mqttLog := b.log.With("component", "mqtt")

	client, err := mqtt.Connect(cfg.MQTT, mqtt.RoleDispatch)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	b.mqttClient = client
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() {
		mqttLog.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		mqttLog.Warn("MQTT disconnected", "error", err)
	})
	mqttLog.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", client.ClientID(),
	)

	d := dispatch.New(dispatch.Options{
		Address:   b.address,
		Snapshots: b.client,
		Pusher:    b.pusher,
		StatePort: cfg.Sink.StatePort,
		QoS:       byte(cfg.MQTT.QoS),
		Logger:    b.log.With("component", "dispatch"),
	})
	if err := d.Start(client); err != nil {
		return fmt.Errorf("starting command dispatcher: %w", err)
	}
	return nil
}

// buildAPI creates the status API server.
func (b *bridge) buildAPI(cfg *config.Config) error {
	deps := api.Deps{
		Config:        cfg.API,
		Logger:        b.log,
		Directory:     b.directory,
		Snapshots:     b.client,
		Version:       version,
		SinkIP:        b.address.Current,
		SinkBreaker:   b.pusher.BreakerState,
		PollerRunning: b.poller.Running,
	}
	if b.mqttClient != nil {
		deps.MQTTConnected = b.mqttClient.IsConnected
	}
	if b.exporter != nil {
		deps.ExporterConnected = b.exporter.Connected
	}

	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	b.api = srv
	return nil
}

// serve runs the poller and API under the supervisor until ctx is cancelled.
func (b *bridge) serve(ctx context.Context) error {
	tree := supervisor.NewTree(b.log.Logger, supervisor.TreeConfig{})
	tree.Add(supervisor.NewService("poller", b.poller.Run, b.log.Logger, vera.ErrDirectoryUnavailable))
	if b.api != nil {
		tree.Add(b.api)
	}

	b.log.Info("Vera bridge started")
	err := tree.Serve(ctx)
	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		b.log.Warn("services did not stop in time", "count", len(unstopped))
	}
	b.log.Info("Vera bridge stopped")
	return err
}

// close releases everything newBridge opened, in reverse order.
func (b *bridge) close() {
	if b.pusher != nil {
		b.pusher.Close()
	}
	if b.mqttClient != nil {
		b.log.Info("disconnecting from MQTT")
		if err := b.mqttClient.Close(); err != nil {
			b.log.Error("error closing MQTT", "error", err)
		}
	}
	if b.db != nil {
		b.log.Info("closing database")
		if err := b.db.Close(); err != nil {
			b.log.Error("error closing database", "error", err)
		}
	}
}
