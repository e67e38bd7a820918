package main

import (
	"context"
	"strconv"
	"time"

	spfcbr "github.com/spf13/cobra"

	libcfg "github.com/Megallm/ultrabalancer-sub000/config"
	libdur "github.com/Megallm/ultrabalancer-sub000/duration"
	liblog "github.com/Megallm/ultrabalancer-sub000/logger"
)

// appFlags carries the CLI flag values into the viper-backed config so a
// flag always overrides the equivalent file key.
type appFlags struct {
	Port        int
	Algorithm   string
	Backends    []string
	Workers     int
	ConfigFile  string
	CheckMS     int
	CheckFails  int
	NoCheck     bool
	StatsListen string
	ClusterJoin []string
}

// application bundles the component manager and the shared logger
// factory every component logs through.
type application struct {
	manager *libcfg.Manager
	logger  liblog.Logger
}

func (a *application) log() liblog.Logger { return a.logger }

// buildApp loads the configuration (file first, flags as overrides),
// builds the shared logger and registers every component.
func buildApp(cmd *spfcbr.Command, flags appFlags) (*application, error) {
	cfg := &libcfg.ProxyConfig{}

	app := &application{}

	mgr := libcfg.NewManager(context.Background(), func() liblog.Logger { return app.logger })
	if err := mgr.SetConfigFile(flags.ConfigFile); err != nil {
		return nil, err
	}
	if err := mgr.Unmarshal(cfg); err != nil {
		return nil, err
	}

	applyFlagOverrides(cmd, cfg, flags)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := liblog.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	app.logger = log
	app.manager = mgr

	px := &proxyComponent{cfg: cfg, log: app.log}
	mgr.Register("proxy", px)
	if !cfg.Health.Disabled {
		mgr.Register("health", &healthComponent{cfg: cfg, px: px, log: app.log})
	}
	if cfg.DBProxy.Enabled {
		mgr.Register("dbproxy", &dbProxyComponent{cfg: cfg, px: px, log: app.log})
	}
	if cfg.StatsAddr != "" {
		mgr.Register("stats", &statsComponent{cfg: cfg, px: px, log: app.log})
	}
	if cfg.Cluster.Enabled {
		mgr.Register("cluster", &clusterComponent{cfg: cfg, px: px, log: app.log})
	}

	return app, nil
}

// applyFlagOverrides copies explicitly-set flags over the file config.
func applyFlagOverrides(cmd *spfcbr.Command, cfg *libcfg.ProxyConfig, flags appFlags) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("port") || cfg.Listen == "" {
		cfg.Listen = ":" + strconv.Itoa(flags.Port)
	}
	if changed("algorithm") || cfg.Algorithm == "" {
		cfg.Algorithm = flags.Algorithm
	}
	if changed("workers") {
		cfg.Workers = flags.Workers
	}
	if changed("health-check-interval") {
		cfg.Health.Interval = libdur.ParseDuration(time.Duration(flags.CheckMS) * time.Millisecond)
	}
	if changed("health-check-fails") {
		cfg.Health.Fall = flags.CheckFails
	}
	if flags.NoCheck {
		cfg.Health.Disabled = true
	}
	if changed("stats-listen") {
		cfg.StatsAddr = flags.StatsListen
	}
	for _, b := range flags.Backends {
		bc, err := libcfg.ParseBackendFlag(b)
		if err != nil {
			continue
		}
		cfg.Backends = append(cfg.Backends, bc)
	}
	if len(flags.ClusterJoin) > 0 {
		cfg.Cluster.Enabled = true
		cfg.Cluster.Join = flags.ClusterJoin
	}
}

func setDefaults(cfg *libcfg.ProxyConfig) {
	if cfg.StickySize <= 0 {
		cfg.StickySize = 16384
	}
	if cfg.StickyTTL <= 0 {
		cfg.StickyTTL = libdur.Minutes(30)
	}
	if cfg.Health.Interval <= 0 {
		cfg.Health.Interval = libdur.Seconds(2)
	}
}
