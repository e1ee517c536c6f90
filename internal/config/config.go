// Package config loads the application configuration of the tofcan
// commands from an optional file plus TOFCAN_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/notnil/tofcan"
	"github.com/notnil/tofcan/canbus"
	"github.com/notnil/tofcan/processing"
)

// EnvPrefix prefixes environment overrides: bus.driver is TOFCAN_BUS_DRIVER.
const EnvPrefix = "TOFCAN"

var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	Bus     Bus     `mapstructure:"bus"`
	Queue   Queue   `mapstructure:"queue"`
	Ring    Ring    `mapstructure:"ring"`
	Store   Store   `mapstructure:"store"`
	Log     Log     `mapstructure:"log"`
	Sensors Sensors `mapstructure:"sensors"`
	Node    Node    `mapstructure:"node"`
}

// Bus selects and parameterizes the CAN driver.
type Bus struct {
	Driver    string `mapstructure:"driver"`    // socketcan, brutella, einride, slcan, loopback
	Interface string `mapstructure:"interface"` // e.g. can0
	Device    string `mapstructure:"device"`    // serial device for slcan
	BaudRate  int    `mapstructure:"baud_rate"`
	Bitrate   int    `mapstructure:"bitrate"`
	LogFrames bool   `mapstructure:"log_frames"`
}

type Queue struct {
	Capacity     int           `mapstructure:"capacity"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type Ring struct {
	Size        int `mapstructure:"size"`
	Radius      int `mapstructure:"radius"` // mm from center to each sensor
	MaxAge      int `mapstructure:"max_age"`
	SensorCount int `mapstructure:"sensor_count"`
}

type Store struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// Sensors is the configuration the host sends to its sensors at startup.
type Sensors struct {
	IDs             []int         `mapstructure:"ids"`
	RequestInterval time.Duration `mapstructure:"request_interval"` // 0 disables polling
	Resolution      int           `mapstructure:"resolution"`
	Frequency       int           `mapstructure:"frequency"`
	Sharpener       int           `mapstructure:"sharpener"`
	Area            string        `mapstructure:"area"`     // matrix, column, row, point
	Selector        string        `mapstructure:"selector"` // min, max, average, all
	Index           int           `mapstructure:"index"`
	X               int           `mapstructure:"x"`
	Y               int           `mapstructure:"y"`
	Threshold       int           `mapstructure:"threshold"`
	ThresholdDelay  int           `mapstructure:"threshold_delay"`
	Timing          string        `mapstructure:"timing"`    // on-demand, continuous
	Condition       string        `mapstructure:"condition"` // always, below, above, event
}

// Node configures the simulated sensor node.
type Node struct {
	ID    int    `mapstructure:"id"`
	Scene string `mapstructure:"scene"` // wall, sweep
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.driver", canbus.DriverSocketCAN)
	v.SetDefault("bus.interface", "can0")
	v.SetDefault("bus.device", "/dev/ttyACM0")
	v.SetDefault("bus.baud_rate", 115200)
	v.SetDefault("bus.bitrate", 500000)
	v.SetDefault("bus.log_frames", false)

	v.SetDefault("queue.capacity", tofcan.DefaultQueueCapacity)
	v.SetDefault("queue.poll_interval", 10*time.Millisecond)

	v.SetDefault("ring.size", 360)
	v.SetDefault("ring.radius", 60)
	v.SetDefault("ring.max_age", 10)
	v.SetDefault("ring.sensor_count", 8)

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", "tofcan.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	def := tofcan.DefaultConfig()
	v.SetDefault("sensors.ids", []int{})
	v.SetDefault("sensors.request_interval", 100*time.Millisecond)
	v.SetDefault("sensors.resolution", int(def.Resolution))
	v.SetDefault("sensors.frequency", int(def.RangingFrequency))
	v.SetDefault("sensors.sharpener", int(def.Sharpener))
	v.SetDefault("sensors.area", "matrix")
	v.SetDefault("sensors.selector", "min")
	v.SetDefault("sensors.index", 0)
	v.SetDefault("sensors.x", 0)
	v.SetDefault("sensors.y", 0)
	v.SetDefault("sensors.threshold", int(def.Threshold))
	v.SetDefault("sensors.threshold_delay", int(def.ThresholdDelay))
	v.SetDefault("sensors.timing", "on-demand")
	v.SetDefault("sensors.condition", "always")

	v.SetDefault("node.id", 1)
	v.SetDefault("node.scene", "wall")
}

// Load reads path (YAML, JSON or TOML by extension; empty for none) and
// applies defaults and environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the commands depend on.
func (c Config) Validate() error {
	var errs []error
	switch c.Bus.Driver {
	case canbus.DriverSocketCAN, canbus.DriverBrutella, canbus.DriverEinride, canbus.DriverSLCAN, canbus.DriverLoopback:
	default:
		errs = append(errs, fmt.Errorf("bus.driver %q", c.Bus.Driver))
	}
	if c.Queue.Capacity < 1 {
		errs = append(errs, fmt.Errorf("queue.capacity %d", c.Queue.Capacity))
	}
	if c.Queue.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("queue.poll_interval %s", c.Queue.PollInterval))
	}
	if c.Ring.Size < 1 || c.Ring.MaxAge < 1 || c.Ring.SensorCount < 1 || c.Ring.Radius < 0 {
		errs = append(errs, fmt.Errorf("ring: size %d, radius %d, max_age %d, sensor_count %d",
			c.Ring.Size, c.Ring.Radius, c.Ring.MaxAge, c.Ring.SensorCount))
	}
	if c.Store.Enabled && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is empty"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q", c.Log.Format))
	}
	for _, id := range c.Sensors.IDs {
		if err := tofcan.ValidateSensor(id); err != nil {
			errs = append(errs, fmt.Errorf("sensors.ids: %w", err))
		}
	}
	if tc, err := c.Sensors.ToF(); err != nil {
		errs = append(errs, err)
	} else if err := tc.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Node.ID < 1 || c.Node.ID >= tofcan.MaxSensors {
		errs = append(errs, fmt.Errorf("node.id %d (want 1..31)", c.Node.ID))
	}
	if c.Node.Scene != "wall" && c.Node.Scene != "sweep" {
		errs = append(errs, fmt.Errorf("node.scene %q", c.Node.Scene))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// BusOptions converts the bus section for canbus.Open.
func (b Bus) BusOptions() canbus.Options {
	opts := canbus.Options{
		Driver:    b.Driver,
		Interface: b.Interface,
		Device:    b.Device,
		BaudRate:  b.BaudRate,
		Bitrate:   b.Bitrate,
	}
	if b.Driver == canbus.DriverSocketCAN {
		opts.Filters = KernelFilters()
	}
	return opts
}

// KernelFilters admits the three ToF identifier ranges.
func KernelFilters() []canbus.KernelFilter {
	const blockMask = canbus.MaxStdID &^ (tofcan.MaxSensors - 1)
	return []canbus.KernelFilter{
		{ID: tofcan.ConfigBaseID, Mask: blockMask},
		{ID: tofcan.SampleBaseID, Mask: blockMask},
		{ID: tofcan.DataPacketBaseID, Mask: blockMask},
	}
}

// ToF converts the sensors section into a config message.
func (s Sensors) ToF() (tofcan.Config, error) {
	var sel processing.Selector
	switch s.Selector {
	case "min":
		sel = processing.SelectMin
	case "max":
		sel = processing.SelectMax
	case "average", "avg":
		sel = processing.SelectAverage
	case "all":
		sel = processing.SelectAll
	default:
		return tofcan.Config{}, fmt.Errorf("sensors.selector %q", s.Selector)
	}

	var mode processing.Mode
	switch s.Area {
	case "matrix":
		mode = processing.MatrixMode(sel)
	case "column":
		mode = processing.ColumnMode(s.Index, sel)
	case "row":
		mode = processing.RowMode(s.Index, sel)
	case "point":
		mode = processing.PointMode(s.X, s.Y)
	default:
		return tofcan.Config{}, fmt.Errorf("sensors.area %q", s.Area)
	}

	var timing tofcan.TransmitTiming
	switch s.Timing {
	case "on-demand":
		timing = tofcan.OnDemand
	case "continuous":
		timing = tofcan.Continuous
	default:
		return tofcan.Config{}, fmt.Errorf("sensors.timing %q", s.Timing)
	}

	var cond tofcan.TransmitCondition
	switch s.Condition {
	case "always":
		cond = tofcan.Always
	case "below":
		cond = tofcan.BelowThreshold
	case "above":
		cond = tofcan.AboveThreshold
	case "event":
		cond = tofcan.ThresholdEvent
	default:
		return tofcan.Config{}, fmt.Errorf("sensors.condition %q", s.Condition)
	}

	if s.Resolution < 0 || s.Resolution > 255 || s.Frequency < 0 || s.Frequency > 255 ||
		s.Sharpener < 0 || s.Sharpener > 255 || s.ThresholdDelay < 0 || s.ThresholdDelay > 255 ||
		s.Threshold < 0 || s.Threshold > 65535 {
		return tofcan.Config{}, errors.New("sensors: value out of range")
	}
	return tofcan.Config{
		Resolution:       uint8(s.Resolution),
		RangingFrequency: uint8(s.Frequency),
		Sharpener:        uint8(s.Sharpener),
		Mode:             mode,
		Threshold:        uint16(s.Threshold),
		ThresholdDelay:   uint8(s.ThresholdDelay),
		Timing:           timing,
		Condition:        cond,
	}, nil
}

func (l Log) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// Logger builds the slog logger described by the log section.
func (l Log) Logger(w io.Writer) (*slog.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
