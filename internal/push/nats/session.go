// Package nats is the NATS transport for push ingestion.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const flushTimeout = 5 * time.Second

var ErrNotConnected = errors.New("push nats: not connected")

// Config holds connection settings.
type Config struct {
	URL      string
	Name     string
	User     string
	Password string
	Token    string
	// PingInterval doubles as the keepalive.
	PingInterval time.Duration
}

// Session is a single NATS connection. Reconnects are left to the
// connectivity supervisor, so the client library never retries on its own.
type Session struct {
	cfg    Config
	logger *log.Logger

	mu   sync.Mutex
	conn *nats.Conn
}

// NewSession constructs a disconnected session.
func NewSession(cfg Config, logger *log.Logger) (*Session, error) {
	if cfg.URL == "" {
		return nil, errors.New("push nats: empty url")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Session{cfg: cfg, logger: logger}, nil
}

func (s *Session) options(ctx context.Context) []nats.Option {
	opts := []nats.Option{
		nats.Name(s.cfg.Name),
		nats.NoReconnect(),
		nats.MaxPingsOutstanding(2),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Printf("push nats disconnected: err=%v", err)
			}
		}),
	}
	if s.cfg.PingInterval > 0 {
		opts = append(opts, nats.PingInterval(s.cfg.PingInterval))
	}
	if deadline, ok := ctx.Deadline(); ok {
		if timeout := time.Until(deadline); timeout > 0 {
			opts = append(opts, nats.Timeout(timeout))
		}
	}
	if s.cfg.User != "" {
		opts = append(opts, nats.UserInfo(s.cfg.User, s.cfg.Password))
	}
	if s.cfg.Token != "" {
		opts = append(opts, nats.Token(s.cfg.Token))
	}
	return opts
}

// Connect dials the server, replacing any previous connection.
func (s *Session) Connect(ctx context.Context) error {
	if s == nil {
		return errors.New("push nats: nil session")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := nats.Connect(s.cfg.URL, s.options(ctx)...)
	if err != nil {
		return fmt.Errorf("push nats connect %s: %w", s.cfg.URL, err)
	}
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Connected reports whether the connection is up.
func (s *Session) Connected() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.conn.IsConnected()
}

// Subscribe registers handler on subject.
func (s *Session) Subscribe(subject string, handler func(payload []byte)) error {
	if s == nil {
		return errors.New("push nats: nil session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	if _, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	}); err != nil {
		return err
	}
	return s.conn.Flush()
}

// Publish sends payload on subject.
func (s *Session) Publish(ctx context.Context, subject string, payload []byte) error {
	if s == nil {
		return errors.New("push nats: nil session")
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	if err := conn.Publish(subject, payload); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	return conn.FlushWithContext(ctx)
}

// Close closes the connection.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return nil
}
