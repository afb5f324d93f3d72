// Package config loads the meal-sensor and collector configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/meal-sensor/internal/adc"
	"github.com/sweeney/meal-sensor/internal/control"
	"github.com/sweeney/meal-sensor/internal/haptic"
	"github.com/sweeney/meal-sensor/internal/logic"
	"github.com/sweeney/meal-sensor/internal/motor"
	"github.com/sweeney/meal-sensor/internal/notify"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration.
type Config struct {
	Meal      MealConfig      `yaml:"meal"`
	Wave      WaveConfig      `yaml:"wave"`
	Timing    TimingConfig    `yaml:"timing"`
	PWM       PWMConfig       `yaml:"pwm"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Notify    NotifyConfig    `yaml:"notify"`
	HTTP      HTTPConfig      `yaml:"http"`
	Collector CollectorConfig `yaml:"collector"`
}

// MealConfig contains the meal detection thresholds.
type MealConfig struct {
	LowThreshold  int `yaml:"low_threshold"`  // meal ends below this
	HighThreshold int `yaml:"high_threshold"` // meal starts at or above this
}

// WaveConfig contains the haptic burst parameters.
type WaveConfig struct {
	Amplitude    float64       `yaml:"amplitude"`
	Damping      []float64     `yaml:"damping"`   // 1/s, negative decays
	Frequency    []float64     `yaml:"frequency"` // Hz
	TriggerAbove int           `yaml:"trigger_above"`
	RearmBelow   int           `yaml:"rearm_below"`
	MinElapsed   time.Duration `yaml:"min_elapsed"`
}

// TimingConfig contains the loop timing.
type TimingConfig struct {
	TickPeriod        time.Duration `yaml:"tick_period"`
	DiagnosticEvery   int           `yaml:"diagnostic_every"` // ticks between diagnostic lines
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// PWMConfig contains the motor driver wiring and timer settings.
type PWMConfig struct {
	ResolutionHz uint32 `yaml:"resolution_hz"`
	FrequencyHz  uint32 `yaml:"frequency_hz"`
	GPIOChip     string `yaml:"gpio_chip"`
	PinDirA      int    `yaml:"pin_dir_a"`
	PinDirB      int    `yaml:"pin_dir_b"`
	Chip         int    `yaml:"chip"`
	Channel      int    `yaml:"channel"`
	SysfsRoot    string `yaml:"sysfs_root,omitempty"`
}

// SensorConfig contains the serial ADC settings.
type SensorConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// NotifyConfig contains the notification targets. Empty targets are disabled.
type NotifyConfig struct {
	HTTPEndpoint string        `yaml:"http_endpoint"` // "host:port" of the collector
	Timeout      time.Duration `yaml:"timeout"`
	QueueSize    int           `yaml:"queue_size"`
	MQTTBroker   string        `yaml:"mqtt_broker"`
	MQTTClientID string        `yaml:"mqtt_client_id"`
	KafkaBrokers []string      `yaml:"kafka_brokers"`
	KafkaTopic   string        `yaml:"kafka_topic"`
}

// HTTPConfig contains the device status server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// CollectorConfig contains the meal-collector settings.
type CollectorConfig struct {
	Addr         string        `yaml:"addr"`
	AlertAfter   time.Duration `yaml:"alert_after"` // 0 disables the overdue flag
	MQTTBroker   string        `yaml:"mqtt_broker"`
	KafkaBrokers []string      `yaml:"kafka_brokers"`
	KafkaTopic   string        `yaml:"kafka_topic"`
	KafkaGroup   string        `yaml:"kafka_group"`
}

// Default returns the factory configuration.
func Default() *Config {
	return &Config{
		Meal: MealConfig{
			LowThreshold:  logic.DefaultLowThreshold,
			HighThreshold: logic.DefaultHighThreshold,
		},
		Wave: WaveConfig{
			Amplitude:    2,
			Damping:      []float64{-2, -5, -10},
			Frequency:    []float64{10, 20, 50, 100, 200, 500},
			TriggerAbove: haptic.DefaultTriggerAbove,
			RearmBelow:   haptic.DefaultRearmBelow,
			MinElapsed:   haptic.DefaultMinElapsed,
		},
		Timing: TimingConfig{
			TickPeriod:        100 * time.Microsecond,
			DiagnosticEvery:   control.DefaultDiagnosticEvery,
			HeartbeatInterval: 15 * time.Minute,
		},
		PWM: PWMConfig{
			ResolutionHz: haptic.DefaultResolutionHz,
			FrequencyHz:  haptic.DefaultPWMHz,
			GPIOChip:     motor.DefaultGPIOChip,
			PinDirA:      motor.DefaultPinDirA,
			PinDirB:      motor.DefaultPinDirB,
			Chip:         motor.DefaultPWMChip,
			Channel:      motor.DefaultPWMChannel,
		},
		Sensor: SensorConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: adc.DefaultBaudRate,
		},
		Notify: NotifyConfig{
			Timeout:      notify.DefaultTimeout,
			QueueSize:    notify.DefaultQueueSize,
			MQTTClientID: "meal-sensor",
			KafkaTopic:   notify.DefaultKafkaTopic,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Collector: CollectorConfig{
			Addr:       ":5000",
			AlertAfter: 6 * time.Hour,
			KafkaTopic: notify.DefaultKafkaTopic,
			KafkaGroup: "meal-collector",
		},
	}
}

// Load reads filename over the defaults. A missing file yields the defaults.
// The result is not validated; call Validate once flags have been applied.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the settings the control loop depends on.
func (c *Config) Validate() error {
	if c.Meal.LowThreshold >= c.Meal.HighThreshold {
		return invalid("meal.low_threshold (%d) must be below meal.high_threshold (%d)",
			c.Meal.LowThreshold, c.Meal.HighThreshold)
	}
	if _, err := c.PresetTable(); err != nil {
		return fmt.Errorf("%w: wave: %w", ErrInvalid, err)
	}
	if c.Wave.RearmBelow > c.Wave.TriggerAbove {
		return invalid("wave.rearm_below (%d) must not exceed wave.trigger_above (%d)",
			c.Wave.RearmBelow, c.Wave.TriggerAbove)
	}
	if c.Wave.MinElapsed < 0 {
		return invalid("wave.min_elapsed must not be negative")
	}
	if c.Timing.TickPeriod <= 0 {
		return invalid("timing.tick_period must be positive, got %v", c.Timing.TickPeriod)
	}
	if c.Timing.DiagnosticEvery <= 0 {
		return invalid("timing.diagnostic_every must be positive")
	}
	if c.PWM.FrequencyHz == 0 || c.MaxDutyTicks() == 0 {
		return invalid("pwm.resolution_hz (%d) / pwm.frequency_hz (%d) gives zero duty ticks",
			c.PWM.ResolutionHz, c.PWM.FrequencyHz)
	}
	if c.Notify.Timeout <= 0 {
		return invalid("notify.timeout must be positive")
	}
	return nil
}

// Thresholds returns the meal hysteresis band.
func (c *Config) Thresholds() logic.Thresholds {
	return logic.Thresholds{Low: c.Meal.LowThreshold, High: c.Meal.HighThreshold}
}

// PresetTable builds the damping × frequency table.
func (c *Config) PresetTable() (haptic.PresetTable, error) {
	return haptic.NewPresetTable(c.Wave.Damping, c.Wave.Frequency)
}

// Selector returns the trigger logic for the configured table and bounds.
func (c *Config) Selector() (haptic.Selector, error) {
	table, err := c.PresetTable()
	if err != nil {
		return haptic.Selector{}, err
	}
	return haptic.Selector{
		Table:        table,
		TriggerAbove: c.Wave.TriggerAbove,
		RearmBelow:   c.Wave.RearmBelow,
		MinElapsed:   c.Wave.MinElapsed,
	}, nil
}

// MaxDutyTicks returns the timer ticks per PWM period.
func (c *Config) MaxDutyTicks() uint32 {
	return haptic.MaxDutyTicks(c.PWM.ResolutionHz, c.PWM.FrequencyHz)
}

// GPIO returns the motor driver wiring.
func (c *Config) GPIO() motor.GPIOConfig {
	return motor.GPIOConfig{
		Chip:         c.PWM.GPIOChip,
		PinDirA:      c.PWM.PinDirA,
		PinDirB:      c.PWM.PinDirB,
		PWMChip:      c.PWM.Chip,
		PWMChannel:   c.PWM.Channel,
		PWMHz:        c.PWM.FrequencyHz,
		MaxDutyTicks: c.MaxDutyTicks(),
		SysfsRoot:    c.PWM.SysfsRoot,
	}
}
