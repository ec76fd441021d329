package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	commands "lumina-bridge/internal/commands/domain"
	"lumina-bridge/internal/observability/metrics"
	"lumina-bridge/internal/typedvalue"
)

const publishTimeout = 5 * time.Second

var parseErrorMessage = []byte(`{"error":"JSON parse error"}`)

// Publisher sends a payload on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Source turns inbound push messages into commands aimed at one device.
type Source struct {
	mailbox   *Mailbox
	target    string
	publisher Publisher
	status    string
	logger    *log.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy

	// replies tracks parse-error publishes still in flight.
	replies sync.WaitGroup
}

// NewSource constructs a source. Malformed messages are answered on statusTopic.
func NewSource(mailbox *Mailbox, target string, publisher Publisher, statusTopic string, logger *log.Logger) (*Source, error) {
	if mailbox == nil {
		return nil, errors.New("push: nil mailbox")
	}
	if publisher == nil {
		return nil, errors.New("push: nil publisher")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Source{
		mailbox:   mailbox,
		target:    target,
		publisher: publisher,
		status:    statusTopic,
		logger:    logger,
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

type message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Deliver decodes one inbound message and enqueues it. It runs on the
// transport's delivery goroutine, so it never blocks on the device or on a
// publish.
func (s *Source) Deliver(payload []byte) {
	if s == nil {
		return
	}
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		metrics.IncPushMessage("malformed")
		s.logger.Printf("push message parse error: bytes=%d err=%v", len(payload), err)
		s.replies.Add(1)
		go s.replyParseError()
		return
	}

	cmd := commands.Command{
		ID:        s.nextID(),
		Intent:    commands.ParseIntent(msg.Action),
		Target:    s.target,
		Status:    commands.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if raw := bytes.TrimSpace(msg.Payload); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		value, err := typedvalue.FromPlainJSON(raw)
		if err != nil {
			s.logger.Printf("push payload decode error: id=%s err=%v", cmd.ID, err)
			cmd.Skipped = []string{"payload"}
		} else {
			cmd.Payload = value
		}
	}
	if s.mailbox.Offer(cmd) {
		metrics.IncPushMessage("accepted")
		return
	}
	metrics.IncPushMessage("dropped")
}

// Pending drains up to limit queued commands.
func (s *Source) Pending(_ context.Context, limit int) ([]commands.Command, error) {
	if s == nil {
		return nil, errors.New("push: nil source")
	}
	return s.mailbox.Drain(limit), nil
}

func (s *Source) replyParseError() {
	defer s.replies.Done()
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, s.status, parseErrorMessage); err != nil {
		s.logger.Printf("push status publish error: topic=%s err=%v", s.status, err)
	}
}

func (s *Source) nextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}
