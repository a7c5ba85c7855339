package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

// Config captures the broker connection and the subscription filter.
type Config struct {
	Enabled        bool          `yaml:"enabled"`
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Topic          string        `yaml:"topic"`
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.Topic == "" {
		c.Topic = "kiosks/+/climate"
	}
	if c.ClientID == "" {
		c.ClientID = "kioskclimate-" + uuid.NewString()[:8]
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return errors.New("broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos %d out of range", c.QoS)
	}
	return nil
}

// message is the JSON payload published by a kiosk's onboard sensor.
type message struct {
	KioskID     string   `json:"kiosk_id"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	SensorType  string   `json:"sensor_type"`
}

// Decode turns one MQTT message into a reading. The kiosk id falls back to
// the topic segment matched by the first '+' wildcard of filter.
func Decode(filter, topic string, payload []byte) (domain.Reading, error) {
	var m message
	if err := json.Unmarshal(payload, &m); err != nil {
		return domain.Reading{}, &domain.ValidationError{Field: "payload", Reason: err.Error()}
	}
	if m.Temperature == nil {
		return domain.Reading{}, &domain.ValidationError{Field: "temperature", Reason: "missing"}
	}
	if m.Humidity == nil {
		return domain.Reading{}, &domain.ValidationError{Field: "humidity", Reason: "missing"}
	}

	r := domain.Reading{
		KioskID:     m.KioskID,
		Temperature: int(math.Round(*m.Temperature)),
		Humidity:    int(math.Round(*m.Humidity)),
		SensorType:  domain.SensorOnboard,
	}
	if m.SensorType != "" {
		st, err := domain.ParseSensorType(m.SensorType)
		if err != nil {
			return domain.Reading{}, err
		}
		r.SensorType = st
	}
	if strings.TrimSpace(r.KioskID) == "" {
		r.KioskID = wildcardSegment(filter, topic)
	}
	return r, nil
}

func wildcardSegment(filter, topic string) string {
	fs, ts := strings.Split(filter, "/"), strings.Split(topic, "/")
	for i, f := range fs {
		if f == "+" && i < len(ts) {
			return ts[i]
		}
	}
	return ""
}

// Collector subscribes to kiosk climate topics and streams readings.
type Collector struct {
	cfg    Config
	logger *slog.Logger
	obs    ports.Observability

	mu      sync.Mutex
	client  paho.Client
	out     chan<- domain.Reading
	stopped chan struct{}
	started bool
}

func NewCollector(cfg Config, logger *slog.Logger, obs ports.Observability) (*Collector, error) {
	cfg.ApplyDefaults()
	cfg.Enabled = true
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Collector{cfg: cfg, logger: logger.With(slog.String("component", "mqtt-collector")), obs: obs}, nil
}

func (c *Collector) Start(out chan<- domain.Reading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("mqtt collector already started")
	}

	opts := paho.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetOnConnectHandler(c.subscribe).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Warn("mqtt_connection_lost", "error", err)
		})
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username).SetPassword(c.cfg.Password)
	}

	c.out = out
	c.stopped = make(chan struct{})
	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt connect %s: timed out after %s", c.cfg.Broker, c.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", c.cfg.Broker, err)
	}
	c.client = client
	c.started = true
	return nil
}

// subscribe runs on every (re)connect so the subscription survives broker restarts.
func (c *Collector) subscribe(client paho.Client) {
	token := client.Subscribe(c.cfg.Topic, c.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		c.handle(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		c.logger.Error("mqtt_subscribe_failed", "topic", c.cfg.Topic, "error", token.Error())
		return
	}
	c.logger.Info("mqtt_subscribed", "topic", c.cfg.Topic)
}

func (c *Collector) handle(topic string, payload []byte) {
	r, err := Decode(c.cfg.Topic, topic, payload)
	if err != nil {
		c.obs.IncCounter(ports.MetricSamplesRejected, 1)
		c.logger.Warn("mqtt_message_rejected", "topic", topic, "error", err)
		return
	}
	select {
	case c.out <- r:
	case <-c.stopped:
		c.obs.IncCounter(ports.MetricQueueDropped, 1)
	}
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	close(c.stopped)
	if token := c.client.Unsubscribe(c.cfg.Topic); token.WaitTimeout(time.Second) && token.Error() != nil {
		c.logger.Warn("mqtt_unsubscribe_failed", "error", token.Error())
	}
	c.client.Disconnect(250)
	c.started = false
	return nil
}

var _ ports.Collector = (*Collector)(nil)
