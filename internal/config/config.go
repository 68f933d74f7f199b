// Package config loads the agent's configuration: a TOML file overlaid with
// command-line flags, built once at startup into an immutable Config.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Main holds process-wide paths and identity.
type Main struct {
	Name           string   `toml:"name"`
	Interface      string   `toml:"interface"`
	Whitelist      []string `toml:"whitelist"`
	HandshakesPath string   `toml:"handshakes_path"`
	MonStartCmd    string   `toml:"mon_start_cmd"`
	NoRestart      bool     `toml:"no_restart"`
	LogPath        string   `toml:"log_path"`
	DebugLogPath   string   `toml:"debug_log_path"`

	// RecoveryDBPath is the SQLite database backing RecoveryStore. Defaults
	// to "<handshakes_path>/../nightjar-recovery.db".
	RecoveryDBPath string `toml:"recovery_db"`
	// RecoveryMaxAgeSeconds bounds how old a persisted RecoveryRecord may be
	// before it is considered stale and ignored on startup.
	RecoveryMaxAgeSeconds int `toml:"recovery_max_age_seconds"`
	// ReportsPath is where ReportExporter writes session PDFs. Defaults to
	// "<handshakes_path>/../reports/".
	ReportsPath string `toml:"reports_path"`
}

// Bettercap holds radio-driver connection settings.
type Bettercap struct {
	Hostname   string   `toml:"hostname"`
	Port       int      `toml:"port"`
	Username   string   `toml:"username"`
	Password   string   `toml:"password"`
	Silence    []string `toml:"silence"`
	Handshakes string   `toml:"handshakes"`
}

// Personality holds the behavioral tuning knobs the Agent and Epoch read.
type Personality struct {
	Advertise               bool  `toml:"advertise"`
	Deauth                  bool  `toml:"deauth"`
	Associate               bool  `toml:"associate"`
	Channels                []int `toml:"channels"`
	MinRSSI                 int   `toml:"min_rssi"`
	APTTL                   int   `toml:"ap_ttl"`
	STATTL                  int   `toml:"sta_ttl"`
	ReconTime               int   `toml:"recon_time"`
	MaxInactiveScale        int   `toml:"max_inactive_scale"`
	ReconInactiveMultiplier int   `toml:"recon_inactive_multiplier"`
	HopReconTime            int   `toml:"hop_recon_time"`
	MinReconTime            int   `toml:"min_recon_time"`
	MaxInteractions         int   `toml:"max_interactions"`
	MaxMissesForRecon       int   `toml:"max_misses_for_recon"`
	ExcitedNumEpochs        int   `toml:"excited_num_epochs"`
	BoredNumEpochs          int   `toml:"bored_num_epochs"`
	SadNumEpochs            int   `toml:"sad_num_epochs"`
	BondEncountersFactor    int   `toml:"bond_encounters_factor"`
	ThrottleA               float64 `toml:"throttle_a"`
	ThrottleD               float64 `toml:"throttle_d"`
}

// Web holds the out-of-scope web UI's listen settings, carried through only
// so plugin config round-trips; this module never opens an HTTP server.
type Web struct {
	Enabled  bool   `toml:"enabled"`
	Address  string `toml:"address"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// UI holds out-of-scope display settings, carried through for config
// round-tripping only.
type UI struct {
	Inverted bool   `toml:"inverted"`
	FPS      int    `toml:"fps"`
	Web      Web    `toml:"web"`
	Display  string `toml:"display"`
}

// PluginConfig is one entry in the plugins table.
type PluginConfig struct {
	Enabled bool                   `toml:"enabled"`
	Config  map[string]interface{} `toml:"config"`
}

// Config is the fully assembled, immutable process configuration.
type Config struct {
	Main        Main                    `toml:"main"`
	Bettercap   Bettercap               `toml:"bettercap"`
	Personality Personality             `toml:"personality"`
	UI          UI                      `toml:"ui"`
	Plugins     map[string]PluginConfig `toml:"plugins"`

	// Flags, not part of the TOML file.
	Manual  bool
	Debug   bool
	Skip    bool
	Version bool
}

// defaultPersonality mirrors the original agent's stock thresholds.
func defaultPersonality() Personality {
	return Personality{
		Advertise:               true,
		Deauth:                  true,
		Associate:               true,
		Channels:                nil,
		MinRSSI:                 -200,
		APTTL:                   120,
		STATTL:                  300,
		ReconTime:               30,
		MaxInactiveScale:        2,
		ReconInactiveMultiplier: 2,
		HopReconTime:            10,
		MinReconTime:            5,
		MaxInteractions:         3,
		MaxMissesForRecon:       5,
		ExcitedNumEpochs:        10,
		BoredNumEpochs:          15,
		SadNumEpochs:            25,
		BondEncountersFactor:    20000,
		ThrottleA:               0.4,
		ThrottleD:               0.9,
	}
}

// Default returns a Config with every field at the original agent's stock
// defaults.
func Default() *Config {
	return &Config{
		Main: Main{
			Name:                  "nightjar",
			Interface:             "wlan0mon",
			HandshakesPath:        "/etc/nightjar/handshakes",
			LogPath:               "/var/log/nightjar.log",
			DebugLogPath:          "/var/log/nightjar-debug.log",
			RecoveryMaxAgeSeconds: 3600,
		},
		Bettercap: Bettercap{
			Hostname: "localhost",
			Port:     8081,
			Username: "nightjar",
			Handshakes: "/etc/nightjar/handshakes",
		},
		Personality: defaultPersonality(),
		Plugins:     map[string]PluginConfig{},
	}
}

// Load reads the TOML file at path (if it exists) over Default(), then
// overlays CLI flags, matching the teacher's flag-overlay idiom.
func Load(args []string) (*Config, string, error) {
	cfg := Default()

	fs := flag.NewFlagSet("nightjar", flag.ContinueOnError)
	configPath := fs.String("C", "/etc/nightjar/config.toml", "path to config file")
	fs.StringVar(configPath, "config", *configPath, "path to config file")
	device := fs.String("D", "", "device profile: dev|pi|portable")
	fs.StringVar(device, "device", *device, "device profile: dev|pi|portable")
	manual := fs.Bool("m", false, "start in manual mode")
	fs.BoolVar(manual, "manual", *manual, "start in manual mode")
	clear := fs.Bool("c", false, "print clear-screen escape and exit")
	fs.BoolVar(clear, "clear", *clear, "print clear-screen escape and exit")
	version := fs.Bool("version", false, "print version and exit")
	printConfig := fs.Bool("print-config", false, "print the resolved config and exit")
	debug := fs.Bool("debug", false, "enable debug logging")
	skip := fs.Bool("skip", false, "skip startup checks")

	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	if *clear {
		fmt.Print("\x1b[2J\x1b[H")
		os.Exit(0)
	}

	if _, err := os.Stat(*configPath); err == nil {
		if _, err := toml.DecodeFile(*configPath, cfg); err != nil {
			return nil, "", fmt.Errorf("parse config %s: %w", *configPath, err)
		}
	}

	cfg.Manual = *manual
	cfg.Debug = *debug
	cfg.Skip = *skip
	cfg.Version = *version

	if *printConfig {
		fmt.Printf("%+v\n", cfg)
		os.Exit(0)
	}

	return cfg, *configPath, nil
}
