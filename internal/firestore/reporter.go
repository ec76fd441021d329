package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	commands "lumina-bridge/internal/commands/domain"
	"lumina-bridge/internal/typedvalue"
)

const (
	fieldCompletedAt = "completedAt"
	fieldError       = "error"
	fieldResult      = "result"
)

// Reporter patches command documents with their status.
type Reporter struct {
	client *Client
}

// NewReporter constructs a reporter on client.
func NewReporter(client *Client) (*Reporter, error) {
	if client == nil {
		return nil, errors.New("firestore: nil client")
	}
	return &Reporter{client: client}, nil
}

type patchField struct {
	name  string
	value json.RawMessage
}

// MarkExecuting writes status=executing.
func (r *Reporter) MarkExecuting(ctx context.Context, cmd commands.Command) error {
	if r == nil || r.client == nil {
		return errors.New("firestore: nil reporter")
	}
	return r.patch(ctx, cmd.ID, []patchField{
		{name: fieldStatus, value: typedvalue.Encode(typedvalue.String(cmd.RemoteStatus()))},
	})
}

// Report writes the terminal status with completedAt, error and result when set.
func (r *Reporter) Report(ctx context.Context, cmd commands.Command) error {
	if r == nil || r.client == nil {
		return errors.New("firestore: nil reporter")
	}
	fields := []patchField{
		{name: fieldStatus, value: typedvalue.Encode(typedvalue.String(cmd.RemoteStatus()))},
	}
	if !cmd.CompletedAt.IsZero() {
		fields = append(fields, patchField{name: fieldCompletedAt, value: timestampValue(cmd.CompletedAt)})
	}
	if cmd.Error != "" {
		fields = append(fields, patchField{name: fieldError, value: typedvalue.Encode(typedvalue.String(cmd.Error))})
	}
	if cmd.Result != nil {
		fields = append(fields, patchField{name: fieldResult, value: typedvalue.Encode(cmd.Result.Value)})
	}
	return r.patch(ctx, cmd.ID, fields)
}

func (r *Reporter) patch(ctx context.Context, id string, fields []patchField) error {
	if id == "" {
		return commands.ErrEmptyID
	}
	tok, err := r.client.session()
	if err != nil {
		return err
	}
	query := url.Values{}
	body := make(map[string]json.RawMessage, len(fields))
	for _, f := range fields {
		query.Add("updateMask.fieldPaths", f.name)
		body[f.name] = f.value
	}
	endpoint := r.client.baseURL + "/" + r.client.userDocument(tok.UID) + "/" + CommandsCollection + "/" +
		url.PathEscape(id) + "?" + query.Encode()
	return r.client.doJSON(ctx, http.MethodPatch, endpoint, tok.Value, map[string]any{"fields": body}, nil)
}

func timestampValue(t time.Time) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"timestampValue": t.UTC().Format(time.RFC3339)})
	return raw
}
