// Package telemetry publishes stream controller status changes to MQTT.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"rtsp-kiosk/internal/kiosk"
	"rtsp-kiosk/internal/platform/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	queueSize      = 32
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

var (
	// ErrNotConnected is returned when publishing before Connect or after the
	// connection was lost.
	ErrNotConnected = errors.New("mqtt not connected")

	// ErrUnknownFormat is returned by Encode for formats other than json and msgpack.
	ErrUnknownFormat = errors.New("unknown payload format")
)

// publishClient is the subset of mqtt.Client the publisher uses.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher forwards status snapshots to a retained MQTT topic. Notify never
// blocks: snapshots are queued and published by a background goroutine, and
// dropped when the queue is full.
type Publisher struct {
	cfg config.MQTTConfig
	log *slog.Logger

	client mqtt.Client
	pub    publishClient

	queue chan kiosk.Status
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
	dropped   uint64
}

// Stats contains publisher statistics.
type Stats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
	Dropped   uint64 `json:"dropped"`
}

// NewPublisher creates a publisher for cfg. Call Connect before use.
func NewPublisher(cfg config.MQTTConfig, log *slog.Logger) *Publisher {
	return &Publisher{
		cfg:   cfg,
		log:   log,
		queue: make(chan kiosk.Status, queueSize),
		done:  make(chan struct{}),
	}
}

// Connect establishes the broker connection and starts publishing.
func (p *Publisher) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(p.cfg.Broker))
	opts.SetClientID(p.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		p.setConnected(true)
		p.log.Info("mqtt connection established",
			slog.String("broker", p.cfg.Broker),
			slog.String("client_id", p.cfg.ClientID))
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.setConnected(false)
		p.log.Warn("mqtt connection lost, will auto-reconnect",
			slog.String("broker", p.cfg.Broker),
			slog.String("error", err.Error()))
	}

	p.client = mqtt.NewClient(opts)
	p.log.Info("connecting to mqtt broker", slog.String("broker", p.cfg.Broker))

	token := p.client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	p.setConnected(true)
	p.start(p.client)
	return nil
}

func (p *Publisher) start(c publishClient) {
	p.pub = c
	p.wg.Add(1)
	go p.run()
}

// Notify implements kiosk.Notifier.
func (p *Publisher) Notify(st kiosk.Status) {
	select {
	case p.queue <- st:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.log.Debug("status dropped: telemetry queue full", slog.String("phase", string(st.Phase)))
	}
}

// Close stops publishing and disconnects. Queued snapshots are flushed first.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.done)
		p.wg.Wait()
		if p.client != nil && p.client.IsConnected() {
			p.client.Disconnect(250)
			p.log.Info("mqtt disconnected")
		}
		p.setConnected(false)
	})
}

// Stats returns publisher statistics.
func (p *Publisher) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		Connected: p.connected,
		Published: p.published,
		Errors:    p.errors,
		Dropped:   p.dropped,
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case st := <-p.queue:
			p.publishLogged(st)
		case <-p.done:
			for {
				select {
				case st := <-p.queue:
					p.publishLogged(st)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publishLogged(st kiosk.Status) {
	if err := p.publish(st); err != nil {
		p.mu.Lock()
		p.errors++
		p.mu.Unlock()
		p.log.Warn("status publish failed", slog.String("error", err.Error()))
	}
}

func (p *Publisher) publish(st kiosk.Status) error {
	if !p.isConnected() {
		return ErrNotConnected
	}
	payload, err := Encode(st, p.cfg.Format)
	if err != nil {
		return err
	}

	token := p.pub.Publish(p.cfg.Topic, 1, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	p.log.Debug("status published",
		slog.String("topic", p.cfg.Topic),
		slog.String("phase", string(st.Phase)),
		slog.Int("size", len(payload)))
	return nil
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = v
}

func (p *Publisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Encode renders st as json or msgpack. Both use the json field names.
func Encode(st kiosk.Status, format string) ([]byte, error) {
	switch format {
	case "", "json":
		return json.Marshal(st)
	case "msgpack":
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(st); err != nil {
			return nil, fmt.Errorf("encode msgpack: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
