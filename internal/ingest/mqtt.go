// v0
// mqtt.go
package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/MaulikItaliya/phreg/internal/config"
	"github.com/MaulikItaliya/phreg/internal/observability"
	"github.com/MaulikItaliya/phreg/internal/sensor"
)

// Source subscribes to the transmitter gateway over MQTT and caches the
// latest reading per reactor. The supervisor snapshots the cache at each
// tick; a reactor with no fresh data simply goes stale downstream, the
// ingest path never blocks the control loop.
//
// Two payload forms are accepted:
//
//	<prefix>/mm44/<idx>        raw MM44 frame ("C1;PH;7.02;C2;DO;6.55")
//	<prefix>/readings/<name>   JSON {"ph":..,"do":..,"timestamp":..}
type Source struct {
	cfg *config.AppConfig
	lg  *slog.Logger
	met *observability.Metrics

	client mqtt.Client

	mu     sync.RWMutex
	latest map[string]sensor.Reading
}

// New builds the source; Start must be called before readings flow.
func New(cfg *config.AppConfig, lg *slog.Logger, met *observability.Metrics) *Source {
	return &Source{
		cfg:    cfg,
		lg:     lg.With("component", "ingest"),
		met:    met,
		latest: map[string]sensor.Reading{},
	}
}

// Start connects to the broker and subscribes both topic trees.
func (s *Source) Start() error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.MQTTBroker).
		SetClientID("phregd-ingest").
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	s.client = mqtt.NewClient(opts)

	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.cfg.MQTTBroker, token.Error())
	}

	mm44Topic := s.cfg.MQTTTopicPrefix + "/mm44/+"
	if token := s.client.Subscribe(mm44Topic, 0, s.handleMM44); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", mm44Topic, token.Error())
	}
	jsonTopic := s.cfg.MQTTTopicPrefix + "/readings/+"
	if token := s.client.Subscribe(jsonTopic, 0, s.handleJSON); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", jsonTopic, token.Error())
	}
	s.lg.Info("ingest subscribed", "broker", s.cfg.MQTTBroker, "topics", []string{mm44Topic, jsonTopic})
	return nil
}

// Stop disconnects from the broker.
func (s *Source) Stop() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
}

// Latest returns the most recent reading cached for a reactor. The boolean
// is false when nothing has arrived yet.
func (s *Source) Latest(reactor string) (sensor.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[reactor]
	return r, ok
}

func (s *Source) handleMM44(_ mqtt.Client, msg mqtt.Message) {
	idxStr := msg.Topic()[strings.LastIndex(msg.Topic(), "/")+1:]
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		s.lg.Warn("bad mm44 topic", "topic", msg.Topic())
		return
	}
	channels := sensor.ParseMM44Line(string(msg.Payload()))
	now := time.Now()

	for _, r := range s.cfg.Reactors {
		if r.PHMap.Mapped() && r.PHMap.Transmitter == idx {
			s.applyPH(r, channels, now)
		}
		if r.DOMap.Mapped() && r.DOMap.Transmitter == idx {
			s.applyDO(r, channels)
		}
	}
}

// applyPH maps the reactor's pH channel out of a parsed frame. A missing
// or mistyped channel counts as a mapping error and the reading is stored
// invalid so the kernel suppresses dosing instead of trusting garbage.
func (s *Source) applyPH(r config.ReactorConfig, channels map[string]sensor.ChannelValue, now time.Time) {
	cv, present := channels[r.PHMap.Channel]
	if !present || cv.Type != "pH" || !cv.OK {
		if present {
			s.met.MappingError(r.Name)
			s.lg.Warn("pH channel mapping problem", "reactor", r.Name, "channel", r.PHMap.Channel, "gotType", cv.Type)
		}
		s.store(r.Name, func(cur *sensor.Reading) {
			cur.Valid = false
			cur.Reason = sensor.ReasonParse
		})
		return
	}
	s.store(r.Name, func(cur *sensor.Reading) {
		cur.PH = cv.Value
		cur.Timestamp = now
		cur.Valid = true
		cur.Reason = sensor.ReasonNone
	})
}

func (s *Source) applyDO(r config.ReactorConfig, channels map[string]sensor.ChannelValue) {
	cv, present := channels[r.DOMap.Channel]
	if !present || cv.Type != "DO" || !cv.OK {
		if present {
			s.met.MappingError(r.Name)
			s.lg.Warn("DO channel mapping problem", "reactor", r.Name, "channel", r.DOMap.Channel, "gotType", cv.Type)
		}
		return
	}
	s.store(r.Name, func(cur *sensor.Reading) {
		cur.DO = cv.Value
	})
}

func (s *Source) handleJSON(_ mqtt.Client, msg mqtt.Message) {
	name := msg.Topic()[strings.LastIndex(msg.Topic(), "/")+1:]
	if _, known := s.cfg.Reactor(name); !known {
		s.lg.Warn("reading for unknown reactor", "reactor", name)
		return
	}
	var p struct {
		PH        float64   `json:"ph"`
		DO        float64   `json:"do"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		s.lg.Warn("bad reading json", "reactor", name, "error", err)
		s.store(name, func(cur *sensor.Reading) {
			cur.Valid = false
			cur.Reason = sensor.ReasonParse
		})
		return
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	s.store(name, func(cur *sensor.Reading) {
		cur.PH = p.PH
		cur.DO = p.DO
		cur.Timestamp = ts
		cur.Valid = true
		cur.Reason = sensor.ReasonNone
	})
}

func (s *Source) store(reactor string, mutate func(*sensor.Reading)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.latest[reactor]
	cur.Reactor = reactor
	mutate(&cur)
	s.latest[reactor] = cur
}
