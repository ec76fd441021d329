package wled

import (
	"net/http"

	commands "lumina-bridge/internal/commands/domain"
	"lumina-bridge/internal/typedvalue"
)

const (
	PathState  = "/json/state"
	PathInfo   = "/json/info"
	PathConfig = "/json/cfg"
)

// Request is a device call produced by MapIntent.
type Request struct {
	Method string
	Path   string
	// Body is plain JSON for POST requests and nil for GET.
	Body []byte
}

// MapIntent translates an intent and its decoded payload into a device request.
// It never fails: unrecognized intents are applied to /json/state.
func MapIntent(intent commands.Intent, payload typedvalue.Value) Request {
	switch intent {
	case commands.IntentGetState:
		return Request{Method: http.MethodGet, Path: PathState}
	case commands.IntentGetInfo:
		return Request{Method: http.MethodGet, Path: PathInfo}
	case commands.IntentSetState, commands.IntentApplyJSON, commands.IntentRenameSegment, commands.IntentApplyToSegments:
		return post(PathState, payload)
	case commands.IntentApplyConfig, commands.IntentSetConfig, commands.IntentConfigureSyncReceiver, commands.IntentConfigureSyncSender:
		return post(PathConfig, payload)
	default:
		return post(PathState, payload)
	}
}

func post(path string, payload typedvalue.Value) Request {
	body := []byte("{}")
	if !payload.IsNull() {
		body = typedvalue.ToPlainJSON(payload)
	}
	return Request{Method: http.MethodPost, Path: path, Body: body}
}
