package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"devicegateway/imaging"
	"devicegateway/models"
	"devicegateway/service"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	ADB        ADBConfig        `yaml:"adb"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Capture    CaptureConfig    `yaml:"capture"`
	Stream     StreamConfig     `yaml:"stream"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Debug      DebugConfig      `yaml:"debug"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type ADBConfig struct {
	ServerAddr       string            `yaml:"server_addr"`
	Candidates       []string          `yaml:"candidates"`
	Host             string            `yaml:"host"`
	Port             int               `yaml:"port"`
	HostAliases      map[string]string `yaml:"host_aliases"`
	Selection        []string          `yaml:"selection"`
	ConnectPolls     int               `yaml:"connect_polls"`
	ConnectPollDelay time.Duration     `yaml:"connect_poll_delay"`
	CommandTimeout   time.Duration     `yaml:"command_timeout"`
	DeviceWidth      int               `yaml:"device_width"`
	DeviceHeight     int               `yaml:"device_height"`
}

type SupervisorConfig struct {
	BootGrace         time.Duration     `yaml:"boot_grace"`
	ConnectAttempts   int               `yaml:"connect_attempts"`
	ConnectRetryDelay time.Duration     `yaml:"connect_retry_delay"`
	LivenessInterval  time.Duration     `yaml:"liveness_interval"`
	PrepSteps         []models.PrepStep `yaml:"prep_steps"`
}

type CaptureConfig struct {
	Strategy     string `yaml:"strategy"`
	ChannelOrder string `yaml:"channel_order"`
	Format       string `yaml:"format"`
	Quality      int    `yaml:"quality"`
}

type StreamConfig struct {
	FPS int `yaml:"fps"`
	// zero falls back to adb.command_timeout
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
}

type DatabaseConfig struct {
	Path         string `yaml:"path"` // empty disables the store
	PatternCache int    `yaml:"pattern_cache"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"` // empty disables file logging
}

type DebugConfig struct {
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// DefaultPrepSteps keep the device awake and on the home screen
var DefaultPrepSteps = []models.PrepStep{
	{Name: "screen timeout", Command: "settings put system screen_off_timeout 2147483647"},
	{Name: "stay awake", Command: "settings put global stay_on_while_plugged_in 7"},
	{Name: "setup complete", Command: "settings put secure user_setup_complete 1"},
	{Name: "provisioned", Command: "settings put global device_provisioned 1"},
	{Name: "disable setup wizard", Command: "pm disable-user --user 0 com.google.android.setupwizard"},
	{Name: "wake", Command: "input keyevent KEYCODE_WAKEUP"},
	{Name: "home", Command: "input keyevent KEYCODE_HOME"},
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		ADB: ADBConfig{
			ServerAddr:       "127.0.0.1:5037",
			Candidates:       []string{"adb", "/usr/bin/adb", "/usr/local/bin/adb"},
			Host:             "127.0.0.1",
			Port:             5555,
			HostAliases:      map[string]string{"redroid": "127.0.0.1"},
			Selection:        []string{"exact", "online", "any"},
			ConnectPolls:     10,
			ConnectPollDelay: 2 * time.Second,
			CommandTimeout:   10 * time.Second,
		},
		Supervisor: SupervisorConfig{
			BootGrace:         30 * time.Second,
			ConnectAttempts:   15,
			ConnectRetryDelay: 10 * time.Second,
			LivenessInterval:  30 * time.Second,
			PrepSteps:         DefaultPrepSteps,
		},
		Capture: CaptureConfig{
			Strategy:     "framebuffer",
			ChannelOrder: "rgba",
			Format:       "jpeg",
			Quality:      imaging.DefaultJPEGQuality,
		},
		Stream:   StreamConfig{FPS: service.DefaultFPS},
		Database: DatabaseConfig{Path: "./data/gateway.db", PatternCache: 256},
		Logging:  LoggingConfig{Level: "info", Dir: "log"},
		Debug:    DebugConfig{ScreenshotDir: "debug"},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables. Both the plain and
// the double-underscore spellings of the device endpoint are accepted.
func (c *Config) applyEnv(lookupEnv func(string) (string, bool)) error {
	lookup := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := lookupEnv(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	var errs []error
	setInt := func(dst *int, keys ...string) {
		v := lookup(keys...)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a number", keys[0], v))
			return
		}
		*dst = n
	}
	setString := func(dst *string, keys ...string) {
		if v := lookup(keys...); v != "" {
			*dst = v
		}
	}

	setString(&c.ADB.Host, "ADB_HOST", "Adb__Host")
	setInt(&c.ADB.Port, "ADB_PORT", "Adb__Port")
	setInt(&c.ADB.DeviceWidth, "ADB_DEVICE_WIDTH")
	setInt(&c.ADB.DeviceHeight, "ADB_DEVICE_HEIGHT")
	setString(&c.ADB.ServerAddr, "ADB_SERVER_ADDR")
	setString(&c.Server.Addr, "GATEWAY_ADDR")
	setInt(&c.Stream.FPS, "GATEWAY_FPS")
	setString(&c.Capture.Format, "GATEWAY_IMAGE_FORMAT")
	setString(&c.Capture.ChannelOrder, "GATEWAY_CHANNEL_ORDER")
	setString(&c.Capture.Strategy, "GATEWAY_CAPTURE_STRATEGY")
	setString(&c.Logging.Level, "GATEWAY_LOG_LEVEL")

	// set but empty disables the store
	if v, ok := lookupEnv("GATEWAY_DB_PATH"); ok {
		c.Database.Path = strings.TrimSpace(v)
	}

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.ADB.Host == "" {
		errs = append(errs, errors.New("adb.host is required"))
	}
	if c.ADB.Port <= 0 || c.ADB.Port > 65535 {
		errs = append(errs, fmt.Errorf("adb.port %d out of range", c.ADB.Port))
	}
	if c.ADB.DeviceWidth < 0 || c.ADB.DeviceHeight < 0 {
		errs = append(errs, errors.New("adb.device_width and adb.device_height must not be negative"))
	}
	if _, err := service.ParseSelection(c.ADB.Selection); err != nil {
		errs = append(errs, fmt.Errorf("adb.selection: %w", err))
	}
	if c.Supervisor.ConnectAttempts <= 0 {
		errs = append(errs, errors.New("supervisor.connect_attempts must be positive"))
	}
	if c.Stream.CaptureTimeout < 0 {
		errs = append(errs, errors.New("stream.capture_timeout must not be negative"))
	}
	if c.Stream.FPS <= 0 || c.Stream.FPS > 60 {
		errs = append(errs, fmt.Errorf("stream.fps %d out of range (1-60)", c.Stream.FPS))
	}
	switch service.CaptureStrategy(c.Capture.Strategy) {
	case service.CaptureFramebuffer, service.CaptureScreencap:
	default:
		errs = append(errs, fmt.Errorf("capture.strategy %q (want framebuffer or screencap)", c.Capture.Strategy))
	}
	if _, err := imaging.ParseChannelOrder(c.Capture.ChannelOrder); err != nil {
		errs = append(errs, fmt.Errorf("capture.channel_order: %w", err))
	}
	if _, err := imaging.NewEncoder(c.Capture.Format, c.Capture.Quality); err != nil {
		errs = append(errs, fmt.Errorf("capture: %w", err))
	}

	return errors.Join(errs...)
}

// SessionOptions converts the adb and capture sections for the session
func (c *Config) SessionOptions() service.SessionOptions {
	selection, _ := service.ParseSelection(c.ADB.Selection)
	order, _ := imaging.ParseChannelOrder(c.Capture.ChannelOrder)
	return service.SessionOptions{
		Host:             c.ADB.Host,
		Port:             c.ADB.Port,
		HostAliases:      c.ADB.HostAliases,
		Selection:        selection,
		ConnectPolls:     c.ADB.ConnectPolls,
		ConnectPollDelay: c.ADB.ConnectPollDelay,
		CommandTimeout:   c.ADB.CommandTimeout,
		Capture:          service.CaptureStrategy(c.Capture.Strategy),
		ChannelOrder:     order,
		DeclaredWidth:    c.ADB.DeviceWidth,
		DeclaredHeight:   c.ADB.DeviceHeight,
	}
}

func (c *Config) SupervisorOptions() service.SupervisorOptions {
	return service.SupervisorOptions{
		BootGrace:        c.Supervisor.BootGrace,
		ConnectAttempts:  c.Supervisor.ConnectAttempts,
		RetryDelay:       c.Supervisor.ConnectRetryDelay,
		LivenessInterval: c.Supervisor.LivenessInterval,
		PrepSteps:        c.Supervisor.PrepSteps,
	}
}

// CaptureTimeout is the per-frame capture bound for the broadcaster
func (c *Config) CaptureTimeout() time.Duration {
	if c.Stream.CaptureTimeout > 0 {
		return c.Stream.CaptureTimeout
	}
	if c.ADB.CommandTimeout > 0 {
		return c.ADB.CommandTimeout
	}
	return service.DefaultCaptureTimeout
}
