// v0
// config.go
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode selects how the pH control output maps onto the gas channels.
type Mode string

const (
	// ModeSplitRange drives CO2 above setpoint and AIR below it.
	ModeSplitRange Mode = "split"
	// ModeCO2Only pins AIR to its baseline and only modulates CO2.
	ModeCO2Only Mode = "co2only"
)

// Gas channel limits. CO2 always fails closed; AIR keeps a minimum sparge
// so the culture is never left without aeration.
const (
	CO2Min = 0.0
	CO2Max = 100.0
	AirMin = 20.0
	AirMax = 100.0
)

// MaxReactors is fixed: the rig has three vessels and no dynamic topology.
const MaxReactors = 3

// ChannelMap points a measurement at a transmitter index and channel label (e.g. 0:C1).
type ChannelMap struct {
	Transmitter int
	Channel     string
}

// Mapped reports whether a transmitter channel is assigned. The zero value
// means the reactor takes that measurement from the JSON readings topic
// instead; it must never match transmitter 0.
func (m ChannelMap) Mapped() bool { return m.Channel != "" }

// ReactorConfig holds one reactor's control parameters. Everything except
// Setpoint, AirBaseline and Enabled is immutable after load; those three are
// only changed through validated supervisor commands.
type ReactorConfig struct {
	Name    string
	Enabled bool
	Mode    Mode

	Setpoint    float64
	AirBaseline float64

	Kp float64
	Ki float64
	Kd float64

	IntegratorMin float64
	IntegratorMax float64
	OutputMin     float64
	OutputMax     float64
	Deadband      float64

	CO2SlewPerS float64
	AirSlewPerS float64

	Staleness time.Duration

	PHMap ChannelMap
	DOMap ChannelMap

	AirAddr int // Modbus unit id of the AIR MFC
	CO2Addr int // Modbus unit id of the CO2 MFC
}

// AppConfig holds process-level configuration plus the reactor table.
type AppConfig struct {
	HTTPBind        string
	MQTTBroker      string
	MQTTTopicPrefix string
	KafkaBrokers    []string
	TelemetryTopic  string

	MFCPort      string
	MFCBaud      int
	MFCTimeout   time.Duration
	WriteRetries int
	RetryBackoff time.Duration

	TickInterval  time.Duration
	CommFailLimit int

	SetpointMin float64
	SetpointMax float64

	PropertiesPath string

	Reactors []ReactorConfig
}

// LoadEnvAndFiles loads environment variables and the reactor properties file.
func LoadEnvAndFiles() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPBind:        getEnv("HTTP_BIND", ":8080"),
		MQTTBroker:      getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "phreg"),
		KafkaBrokers:    splitAndTrim(os.Getenv("KAFKA_BROKERS"), ","),
		TelemetryTopic:  getEnv("TELEMETRY_TOPIC", "phreg.telemetry"),
		MFCPort:         getEnv("MFC_PORT", "/dev/ttyUSB2"),
		MFCBaud:         getEnvInt("MFC_BAUD", 9600),
		MFCTimeout:      time.Duration(getEnvInt("MFC_TIMEOUT_MS", 600)) * time.Millisecond,
		WriteRetries:    getEnvInt("MFC_WRITE_RETRIES", 3),
		RetryBackoff:    time.Duration(getEnvInt("MFC_RETRY_BACKOFF_MS", 50)) * time.Millisecond,
		TickInterval:    time.Duration(getEnvInt("TICK_MS", 1000)) * time.Millisecond,
		CommFailLimit:   getEnvInt("COMM_FAIL_LIMIT", 3),
		SetpointMin:     getEnvFloat("SETPOINT_MIN", 4.0),
		SetpointMax:     getEnvFloat("SETPOINT_MAX", 10.0),
		PropertiesPath:  getEnv("PROPERTIES_PATH", "./configs/reactors.properties"),
	}

	if err := cfg.loadProperties(cfg.PropertiesPath); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency of the loaded configuration.
func (c *AppConfig) Validate() error {
	if len(c.Reactors) == 0 {
		return errors.New("properties must define reactors=<R1,R2,...>")
	}
	if len(c.Reactors) > MaxReactors {
		return fmt.Errorf("at most %d reactors supported, got %d", MaxReactors, len(c.Reactors))
	}
	if c.CommFailLimit < 1 {
		return errors.New("COMM_FAIL_LIMIT must be >= 1")
	}
	if c.WriteRetries < 1 {
		return errors.New("MFC_WRITE_RETRIES must be >= 1")
	}
	if c.TickInterval <= 0 {
		return errors.New("TICK_MS must be > 0")
	}
	seen := map[string]struct{}{}
	for _, r := range c.Reactors {
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate reactor %s", r.Name)
		}
		seen[r.Name] = struct{}{}
		if err := r.validate(c.SetpointMin, c.SetpointMax); err != nil {
			return fmt.Errorf("reactor %s: %w", r.Name, err)
		}
	}
	return nil
}

func (r *ReactorConfig) validate(spMin, spMax float64) error {
	if r.Setpoint < spMin || r.Setpoint > spMax {
		return fmt.Errorf("setpoint %.2f outside %.2f..%.2f", r.Setpoint, spMin, spMax)
	}
	if r.AirBaseline < AirMin || r.AirBaseline > AirMax {
		return fmt.Errorf("air baseline %.1f outside %.1f..%.1f", r.AirBaseline, AirMin, AirMax)
	}
	if r.Mode != ModeSplitRange && r.Mode != ModeCO2Only {
		return fmt.Errorf("unknown mode %q", r.Mode)
	}
	if r.IntegratorMin >= r.IntegratorMax {
		return errors.New("integrator bounds inverted")
	}
	if r.OutputMin >= r.OutputMax {
		return errors.New("output bounds inverted")
	}
	if r.Deadband < 0 {
		return errors.New("deadband must be >= 0")
	}
	if r.CO2SlewPerS <= 0 || r.AirSlewPerS <= 0 {
		return errors.New("slew limits must be > 0")
	}
	if r.Staleness <= 0 {
		return errors.New("staleness timeout must be > 0")
	}
	if r.AirAddr == r.CO2Addr {
		return fmt.Errorf("AIR and CO2 share Modbus unit %d", r.AirAddr)
	}
	return nil
}

// defaultReactor carries the field-tuned PHREG defaults; per-reactor keys override them.
func defaultReactor(name string) ReactorConfig {
	return ReactorConfig{
		Name:          name,
		Enabled:       true,
		Mode:          ModeSplitRange,
		Setpoint:      7.40,
		AirBaseline:   20.0,
		Kp:            25.0,
		Ki:            1.0,
		Kd:            0.0,
		IntegratorMin: -100.0,
		IntegratorMax: 100.0,
		OutputMin:     -100.0,
		OutputMax:     100.0,
		Deadband:      0.05,
		CO2SlewPerS:   10.0,
		AirSlewPerS:   10.0,
		Staleness:     3 * time.Second,
	}
}

func (c *AppConfig) loadProperties(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open properties file %s: %w", path, err)
	}
	defer file.Close()

	props := map[string]string{}
	s := bufio.NewScanner(file)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := s.Err(); err != nil {
		return err
	}

	names := splitAndTrim(props["reactors"], ",")
	if len(names) == 0 {
		return errors.New("properties must define reactors=<R1,R2,...>")
	}

	reactors := make([]ReactorConfig, 0, len(names))
	for _, name := range names {
		r := defaultReactor(name)
		get := func(key string) (string, bool) {
			if v, ok := props[key+"."+name]; ok {
				return v, true
			}
			v, ok := props[key]
			return v, ok
		}
		getF := func(key string, dst *float64) {
			if v, ok := get(key); ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					*dst = f
				}
			}
		}
		getF("setpoint", &r.Setpoint)
		getF("air.baseline", &r.AirBaseline)
		getF("kp", &r.Kp)
		getF("ki", &r.Ki)
		getF("kd", &r.Kd)
		getF("integrator.min", &r.IntegratorMin)
		getF("integrator.max", &r.IntegratorMax)
		getF("output.min", &r.OutputMin)
		getF("output.max", &r.OutputMax)
		getF("deadband", &r.Deadband)
		getF("slew.co2", &r.CO2SlewPerS)
		getF("slew.air", &r.AirSlewPerS)
		if v, ok := get("stale.seconds"); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				r.Staleness = time.Duration(f * float64(time.Second))
			}
		}
		if v, ok := get("mode"); ok {
			r.Mode = Mode(strings.ToLower(v))
		}
		if v, ok := get("enabled"); ok {
			r.Enabled = v == "true" || v == "1"
		}
		if v, ok := props["ph.map."+name]; ok {
			m, err := parseChannelMap(v)
			if err != nil {
				return fmt.Errorf("ph.map.%s: %w", name, err)
			}
			r.PHMap = m
		}
		if v, ok := props["do.map."+name]; ok {
			m, err := parseChannelMap(v)
			if err != nil {
				return fmt.Errorf("do.map.%s: %w", name, err)
			}
			r.DOMap = m
		}
		if v, ok := props["air.addr."+name]; ok {
			if i, err := strconv.Atoi(v); err == nil {
				r.AirAddr = i
			}
		}
		if v, ok := props["co2.addr."+name]; ok {
			if i, err := strconv.Atoi(v); err == nil {
				r.CO2Addr = i
			}
		}
		reactors = append(reactors, r)
	}
	c.Reactors = reactors
	return nil
}

// parseChannelMap parses "<transmitter>:<channel>", e.g. "0:C1".
func parseChannelMap(v string) (ChannelMap, error) {
	t, ch, ok := strings.Cut(v, ":")
	if !ok {
		return ChannelMap{}, fmt.Errorf("expected <transmitter>:<channel>, got %q", v)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(t))
	if err != nil {
		return ChannelMap{}, fmt.Errorf("bad transmitter index %q", t)
	}
	ch = strings.ToUpper(strings.TrimSpace(ch))
	if len(ch) != 2 || ch[0] != 'C' || ch[1] < '0' || ch[1] > '9' {
		return ChannelMap{}, fmt.Errorf("bad channel %q", ch)
	}
	return ChannelMap{Transmitter: idx, Channel: ch}, nil
}

// Reactor returns the config entry for the named reactor.
func (c *AppConfig) Reactor(name string) (ReactorConfig, bool) {
	for _, r := range c.Reactors {
		if r.Name == name {
			return r, true
		}
	}
	return ReactorConfig{}, false
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

func splitAndTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
