package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path"
	"time"

	commands "lumina-bridge/internal/commands/domain"
	"lumina-bridge/internal/typedvalue"
)

const (
	CommandsCollection = "commands"

	fieldType      = "type"
	fieldTarget    = "controllerIp"
	fieldPayload   = "payload"
	fieldCreatedAt = "createdAt"
	fieldStatus    = "status"
)

// Source pulls pending commands for the signed-in user.
type Source struct {
	client *Client
	logger *log.Logger
}

// NewSource constructs a pull source on client.
func NewSource(client *Client, logger *log.Logger) (*Source, error) {
	if client == nil {
		return nil, errors.New("firestore: nil client")
	}
	if logger == nil {
		logger = client.logger
	}
	return &Source{client: client, logger: logger}, nil
}

type runQueryItem struct {
	Document *document `json:"document"`
	ReadTime string    `json:"readTime"`
}

type document struct {
	Name   string          `json:"name"`
	Fields json.RawMessage `json:"fields"`
}

// Pending runs the pending-commands query, oldest first, at most limit items.
func (s *Source) Pending(ctx context.Context, limit int) ([]commands.Command, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("firestore: nil source")
	}
	if limit <= 0 {
		return nil, nil
	}
	tok, err := s.client.session()
	if err != nil {
		return nil, err
	}
	url := s.client.baseURL + "/" + s.client.userDocument(tok.UID) + ":runQuery"

	var items []runQueryItem
	if err := s.client.doJSON(ctx, http.MethodPost, url, tok.Value, pendingQuery(limit), &items); err != nil {
		return nil, err
	}
	out := make([]commands.Command, 0, len(items))
	for _, item := range items {
		if item.Document == nil || item.Document.Name == "" {
			continue
		}
		out = append(out, s.toCommand(*item.Document))
	}
	return out, nil
}

func pendingQuery(limit int) map[string]any {
	return map[string]any{
		"structuredQuery": map[string]any{
			"from": []any{
				map[string]any{"collectionId": CommandsCollection},
			},
			"where": map[string]any{
				"fieldFilter": map[string]any{
					"field": map[string]any{"fieldPath": fieldStatus},
					"op":    "EQUAL",
					"value": map[string]any{"stringValue": string(commands.StatusPending)},
				},
			},
			"orderBy": []any{
				map[string]any{
					"field":     map[string]any{"fieldPath": fieldCreatedAt},
					"direction": "ASCENDING",
				},
			},
			"limit": limit,
		},
	}
}

// toCommand decodes the document fields in one pass. Fields that fail to
// decode are dropped and their paths travel with the command.
func (s *Source) toCommand(doc document) commands.Command {
	cmd := commands.Command{
		ID:     path.Base(doc.Name),
		Status: commands.StatusPending,
	}
	fields, skipped, err := typedvalue.DecodeFields(doc.Fields)
	if err != nil {
		s.logger.Printf("firestore fields decode error: id=%s err=%v", cmd.ID, err)
		fields, skipped = typedvalue.Map(), []string{"fields"}
	}
	cmd.Skipped = skipped
	cmd.Intent = commands.ParseIntent(fields.GetString(fieldType))
	cmd.Target = fields.GetString(fieldTarget)
	if payload, ok := fields.Get(fieldPayload); ok {
		cmd.Payload = payload
	}
	if ts := fields.GetString(fieldCreatedAt); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			cmd.CreatedAt = t.UTC()
		}
	}
	return cmd
}
