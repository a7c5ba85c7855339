package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

type Config struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.Topic == "" {
		c.Topic = "kiosk.daily-statistics"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return errors.New("at least one broker is required")
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes each daily statistic as JSON keyed by kiosk id, so one
// kiosk's statistics stay ordered within a partition.
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
}

func NewPublisher(cfg Config) *Publisher {
	cfg.ApplyDefaults()
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			Async:        false,
			WriteTimeout: cfg.WriteTimeout,
		},
		timeout: cfg.WriteTimeout,
	}
}

// rollupMessage is the wire form of a published statistic.
type rollupMessage struct {
	domain.DailyStatistic
	Date        string    `json:"date"`
	PublishedAt time.Time `json:"publishedAt"`
}

func encode(stat domain.DailyStatistic, now time.Time) (kafkago.Message, error) {
	body, err := json.Marshal(rollupMessage{
		DailyStatistic: stat,
		Date:           stat.Date.Format(time.DateOnly),
		PublishedAt:    now.UTC(),
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encode daily statistic: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(stat.KioskID),
		Value: body,
		Time:  now,
		Headers: []kafkago.Header{
			{Key: "sensor_type", Value: []byte(stat.SensorType.String())},
		},
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, stat domain.DailyStatistic) error {
	msg, err := encode(stat, time.Now())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish daily statistic for %s: %w", stat.KioskID, err)
	}
	return nil
}

func (p *Publisher) Close() error { return p.writer.Close() }

var _ ports.RollupPublisher = (*Publisher)(nil)
