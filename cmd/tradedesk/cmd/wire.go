package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/tradedesk/api"
	"github.com/rustyeddy/tradedesk/config"
	"github.com/rustyeddy/tradedesk/events"
	"github.com/rustyeddy/tradedesk/feed"
	"github.com/rustyeddy/tradedesk/journal"
	"github.com/rustyeddy/tradedesk/notify"
	"github.com/rustyeddy/tradedesk/risk"
	"github.com/rustyeddy/tradedesk/sim"
	"github.com/rustyeddy/tradedesk/store"
	"go.uber.org/zap"
)

// desk is everything serve and demo need, built from one config.
type desk struct {
	cfg     *config.Config
	log     *zap.Logger
	store   store.Store
	journal journal.Journal
	kafka   *notify.KafkaSink
	hub     *api.Hub
	engine  *sim.Engine
}

// deskOptions replace parts of the wiring, mostly for tests and the demo.
type deskOptions struct {
	scheduler sim.Scheduler
	fills     sim.FillSimulator
	clock     risk.Clock
	sinks     []notify.Sink
}

func newDesk(ctx context.Context, cfg *config.Config, log *zap.Logger, opts deskOptions) (_ *desk, err error) {
	d := &desk{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("trading day: %w", err)
	}
	minDelay, maxDelay, err := cfg.Simulation.FillDelays()
	if err != nil {
		return nil, err
	}

	if d.store, err = store.Open(cfg.Store.DSN); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	settings, err := risk.LoadOrDefault(ctx, d.store, cfg.Risk)
	if err != nil {
		return nil, fmt.Errorf("load risk settings: %w", err)
	}

	if d.journal, err = journal.Open(cfg.Journal.DSN); err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	bus := events.NewBus()
	d.hub = api.NewHub(bus, log)

	sinks := notify.Multi{notify.NewLogSink(log), d.hub}
	if len(cfg.Notify.KafkaBrokers) > 0 {
		d.kafka = notify.NewKafkaSink(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic, log.Named("notify.kafka"))
		sinks = append(sinks, d.kafka)
	}
	sinks = append(sinks, opts.sinks...)

	fills := opts.fills
	if fills == nil {
		fills = sim.NewRandomFill(cfg.Simulation.FillProbability, cfg.Simulation.Slippage, cfg.Simulation.Seed)
	}

	d.engine, err = sim.NewEngine(sim.Config{
		Settings:      settings,
		SettingsStore: d.store,
		StateStore:    d.store,
		Journal:       d.journal,
		Sink:          sinks,
		Bus:           bus,
		Logger:        log,
		Clock:         opts.clock,
		Location:      loc,
		Scheduler:     opts.scheduler,
		Fills:         fills,
		MinFillDelay:  minDelay,
		MaxFillDelay:  maxDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	if err := d.engine.RestoreDaily(ctx); err != nil {
		return nil, err
	}

	log.Info("desk ready",
		zap.String("store", cfg.Store.DSN),
		zap.String("journal", cfg.Journal.DSN),
		zap.Stringer("risk", settings))
	return d, nil
}

// source builds the configured market data feed; nil means none.
func (d *desk) source() (feed.Source, error) {
	f := d.cfg.Feed
	switch f.Source {
	case "", "none":
		return nil, nil
	case "random":
		interval, err := f.TickInterval()
		if err != nil {
			return nil, err
		}
		return feed.NewRandomWalk(f.Symbols, f.Volatility, interval, f.Seed, d.log), nil
	case "kafka":
		return feed.NewKafkaConsumer(f.KafkaBrokers, f.KafkaTopic, f.KafkaGroup, d.log), nil
	case "replay":
		return feed.NewReplay(f.ReplayFile, f.ReplaySpeed, d.log), nil
	}
	return nil, fmt.Errorf("unknown feed source %q", f.Source)
}

func (d *desk) Close() error {
	var errs []error
	if d.engine != nil {
		errs = append(errs, d.engine.Close())
		d.engine.Bus().Close()
	}
	if d.kafka != nil {
		errs = append(errs, d.kafka.Close())
	}
	if d.journal != nil {
		errs = append(errs, d.journal.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}
