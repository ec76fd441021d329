package push

import (
	"context"
	"encoding/json"
	"errors"

	commands "lumina-bridge/internal/commands/domain"
)

// Reporter publishes terminal outcomes on the status topic.
type Reporter struct {
	publisher Publisher
	topic     string
}

// NewReporter constructs a reporter publishing on topic.
func NewReporter(publisher Publisher, topic string) (*Reporter, error) {
	if publisher == nil {
		return nil, errors.New("push: nil publisher")
	}
	if topic == "" {
		return nil, errors.New("push: empty status topic")
	}
	return &Reporter{publisher: publisher, topic: topic}, nil
}

// MarkExecuting is a no-op: push consumers only see terminal outcomes.
func (r *Reporter) MarkExecuting(context.Context, commands.Command) error {
	return nil
}

type failureMessage struct {
	Error  string `json:"error"`
	Action string `json:"action"`
}

// Report publishes the raw device response on success and an error document
// otherwise.
func (r *Reporter) Report(ctx context.Context, cmd commands.Command) error {
	if r == nil {
		return errors.New("push: nil reporter")
	}
	return r.publisher.Publish(ctx, r.topic, StatusBody(cmd))
}

// StatusBody renders the status payload for a terminal command.
func StatusBody(cmd commands.Command) []byte {
	if cmd.Status == commands.StatusCompleted {
		if cmd.Result != nil && len(cmd.Result.Body) > 0 {
			return cmd.Result.Body
		}
		return []byte(`{}`)
	}
	raw, _ := json.Marshal(failureMessage{Error: cmd.Error, Action: cmd.Intent.String()})
	return raw
}
