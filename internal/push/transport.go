// Package push is the push-mode ingestion adapter. Commands arrive on a broker
// subscription, wait in a bounded mailbox and are drained by the bridge loop.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
)

const DefaultNamespace = "lumina"

// Transport is a broker session. Handlers run on the transport's own goroutine.
type Transport interface {
	Connect(ctx context.Context) error
	Connected() bool
	Close() error
	Subscribe(topic string, handler func(payload []byte)) error
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Topics names the inbound and outbound channels of one device.
type Topics struct {
	Command string
	Status  string
}

// SlashTopics builds MQTT-style topics: <namespace>/<deviceId>/command.
func SlashTopics(namespace, deviceID string) Topics {
	return buildTopics(namespace, deviceID, "/")
}

// DotTopics builds NATS-style subjects: <namespace>.<deviceId>.command.
func DotTopics(namespace, deviceID string) Topics {
	return buildTopics(namespace, deviceID, ".")
}

func buildTopics(namespace, deviceID, sep string) Topics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	prefix := strings.Join([]string{namespace, deviceID}, sep)
	return Topics{
		Command: prefix + sep + "command",
		Status:  prefix + sep + "status",
	}
}

type onlineMessage struct {
	Online bool   `json:"online"`
	Bridge string `json:"bridge"`
}

// OnlineMessage returns the presence payload published on connect (online)
// or registered as the last will (offline).
func OnlineMessage(bridge string, online bool) []byte {
	raw, _ := json.Marshal(onlineMessage{Online: online, Bridge: bridge})
	return raw
}

// Link adapts a Transport to the connectivity supervisor. Every successful
// connect resubscribes and announces presence.
type Link struct {
	transport Transport
	topics    Topics
	bridge    string
	inbox     *Source
	logger    *log.Logger
}

// NewLink constructs a link delivering inbound messages to inbox.
func NewLink(transport Transport, topics Topics, bridge string, inbox *Source, logger *log.Logger) (*Link, error) {
	if transport == nil {
		return nil, errors.New("push: nil transport")
	}
	if inbox == nil {
		return nil, errors.New("push: nil source")
	}
	if topics.Command == "" || topics.Status == "" {
		return nil, errors.New("push: empty topics")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Link{transport: transport, topics: topics, bridge: bridge, inbox: inbox, logger: logger}, nil
}

// Connect implements connectivity.Link.
func (l *Link) Connect(ctx context.Context) error {
	if l == nil {
		return errors.New("push: nil link")
	}
	if err := l.transport.Connect(ctx); err != nil {
		return err
	}
	if err := l.transport.Subscribe(l.topics.Command, l.inbox.Deliver); err != nil {
		_ = l.transport.Close()
		return err
	}
	if err := l.transport.Publish(ctx, l.topics.Status, OnlineMessage(l.bridge, true)); err != nil {
		l.logger.Printf("push online publish error: topic=%s err=%v", l.topics.Status, err)
	}
	l.logger.Printf("push subscribed: topic=%s", l.topics.Command)
	return nil
}

// Connected implements connectivity.Link.
func (l *Link) Connected() bool {
	if l == nil {
		return false
	}
	return l.transport.Connected()
}

// Close implements connectivity.Link.
func (l *Link) Close() error {
	if l == nil {
		return nil
	}
	return l.transport.Close()
}
