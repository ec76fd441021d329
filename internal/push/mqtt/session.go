// Package mqtt is the MQTT transport for push ingestion.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultKeepAlive  = 60 * time.Second
	qosAtLeastOnce    = byte(1)
	disconnectQuiesce = 250
	subscribeTimeout  = 10 * time.Second
)

var ErrNotConnected = errors.New("push mqtt: not connected")

// Config holds connection settings. Broker is a URL such as
// tcp://host:1883 or ssl://host:8883.
type Config struct {
	Broker    string
	ClientID  string
	Username  string
	Password  string
	KeepAlive time.Duration
	// WillTopic and WillPayload form the last will, published by the broker
	// when the session dies without a clean disconnect.
	WillTopic   string
	WillPayload []byte
}

// Session is one MQTT client session. Auto-reconnect is disabled: the
// connectivity supervisor decides when to reconnect.
type Session struct {
	cfg    Config
	logger *log.Logger

	mu     sync.Mutex
	client paho.Client
}

// NewSession constructs a disconnected session.
func NewSession(cfg Config, logger *log.Logger) (*Session, error) {
	if cfg.Broker == "" {
		return nil, errors.New("push mqtt: empty broker")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("push mqtt: empty client id")
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Session{cfg: cfg, logger: logger}, nil
}

func (s *Session) clientOptions(connectTimeout time.Duration) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetKeepAlive(s.cfg.KeepAlive).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		// Commands must reach the mailbox in broker order; handlers never
		// publish inline.
		SetOrderMatters(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.logger.Printf("push mqtt connection lost: err=%v", err)
		})
	if connectTimeout > 0 {
		opts.SetConnectTimeout(connectTimeout)
	}
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	if s.cfg.WillTopic != "" {
		opts.SetBinaryWill(s.cfg.WillTopic, s.cfg.WillPayload, qosAtLeastOnce, false)
	}
	return opts
}

// Connect opens a fresh client session, replacing any previous one.
func (s *Session) Connect(ctx context.Context) error {
	if s == nil {
		return errors.New("push mqtt: nil session")
	}
	var timeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	client := paho.NewClient(s.clientOptions(timeout))
	if err := wait(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("push mqtt connect %s: %w", s.cfg.Broker, err)
	}
	s.mu.Lock()
	old := s.client
	s.client = client
	s.mu.Unlock()
	if old != nil {
		old.Disconnect(disconnectQuiesce)
	}
	return nil
}

// Connected reports whether the session is up.
func (s *Session) Connected() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.client.IsConnectionOpen()
}

// Subscribe registers handler on topic.
func (s *Session) Subscribe(topic string, handler func(payload []byte)) error {
	client, err := s.current()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()
	tok := client.Subscribe(topic, qosAtLeastOnce, func(_ paho.Client, msg paho.Message) {
		handler(msg.Payload())
	})
	return wait(ctx, tok)
}

// Publish sends payload on topic.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte) error {
	client, err := s.current()
	if err != nil {
		return err
	}
	return wait(ctx, client.Publish(topic, qosAtLeastOnce, false, payload))
}

// Close disconnects cleanly. The last will is not published.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(disconnectQuiesce)
	}
	return nil
}

func (s *Session) current() (paho.Client, error) {
	if s == nil {
		return nil, errors.New("push mqtt: nil session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || !s.client.IsConnectionOpen() {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

// wait blocks until tok completes or ctx ends.
func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
