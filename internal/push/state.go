package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lumina-bridge/internal/commands/application"
	commands "lumina-bridge/internal/commands/domain"
	"lumina-bridge/internal/observability/metrics"
	"lumina-bridge/internal/typedvalue"
	"lumina-bridge/internal/wled"
)

const DefaultStateInterval = 30 * time.Second

// StatePublisher periodically publishes the device state enriched with the
// bridge's own counters.
type StatePublisher struct {
	device    application.Device
	publisher Publisher
	state     *application.BridgeState
	target    string
	topic     string
	bridge    string
	now       func() time.Time
}

// NewStatePublisher constructs a publisher for target.
func NewStatePublisher(device application.Device, publisher Publisher, state *application.BridgeState, target, topic, bridge string) (*StatePublisher, error) {
	if device == nil {
		return nil, errors.New("push: nil device")
	}
	if publisher == nil {
		return nil, errors.New("push: nil publisher")
	}
	return &StatePublisher{
		device:    device,
		publisher: publisher,
		state:     state,
		target:    target,
		topic:     topic,
		bridge:    bridge,
		now:       time.Now,
	}, nil
}

// Task wraps Publish for the bridge loop. A non-positive interval disables it.
func (p *StatePublisher) Task(interval time.Duration) application.Task {
	return application.Task{Name: "state_publish", Interval: interval, Run: p.Publish}
}

// Publish fetches the device state and publishes it.
func (p *StatePublisher) Publish(ctx context.Context) error {
	if p == nil {
		return errors.New("push: nil state publisher")
	}
	body, err := p.device.Do(ctx, p.target, wled.MapIntent(commands.IntentGetState, typedvalue.Null()))
	if err != nil {
		metrics.IncStatePublish(metrics.ResultError)
		return err
	}
	enriched, err := p.enrich(body)
	if err != nil {
		metrics.IncStatePublish(metrics.ResultError)
		return err
	}
	if err := p.publisher.Publish(ctx, p.topic, enriched); err != nil {
		metrics.IncStatePublish(metrics.ResultError)
		return err
	}
	metrics.IncStatePublish(metrics.ResultSuccess)
	return nil
}

func (p *StatePublisher) enrich(body []byte) ([]byte, error) {
	doc, err := typedvalue.FromPlainJSON(body)
	if err != nil {
		return nil, fmt.Errorf("push: device state: %w", err)
	}
	if doc.Kind() != typedvalue.KindMap {
		return nil, fmt.Errorf("push: device state is %s, want map", doc.Kind())
	}
	snap := p.state.Snapshot()
	doc = doc.
		With("_bridge", typedvalue.String(p.bridge)).
		With("_uptime", typedvalue.Int(int64(snap.Uptime(p.now()).Seconds()))).
		With("_commands", typedvalue.Int(int64(snap.Processed))).
		With("_errors", typedvalue.Int(int64(snap.Failed)))
	return typedvalue.ToPlainJSON(doc), nil
}
