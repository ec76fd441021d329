package commands

// Intent is the declared command type. Unknown names are kept as-is and
// handled by the default dispatch arm.
type Intent string

const (
	IntentGetState              Intent = "getState"
	IntentGetInfo               Intent = "getInfo"
	IntentSetState              Intent = "setState"
	IntentApplyJSON             Intent = "applyJson"
	IntentRenameSegment         Intent = "renameSegment"
	IntentApplyToSegments       Intent = "applyToSegments"
	IntentApplyConfig           Intent = "applyConfig"
	IntentSetConfig             Intent = "setConfig"
	IntentConfigureSyncReceiver Intent = "configureSyncReceiver"
	IntentConfigureSyncSender   Intent = "configureSyncSender"
)

// DefaultIntent is used when a push message carries no action.
const DefaultIntent = IntentSetState

var knownIntents = map[Intent]struct{}{
	IntentGetState:              {},
	IntentGetInfo:               {},
	IntentSetState:              {},
	IntentApplyJSON:             {},
	IntentRenameSegment:         {},
	IntentApplyToSegments:       {},
	IntentApplyConfig:           {},
	IntentSetConfig:             {},
	IntentConfigureSyncReceiver: {},
	IntentConfigureSyncSender:   {},
}

// ParseIntent converts a wire name to an Intent. Empty names become DefaultIntent.
func ParseIntent(name string) Intent {
	if name == "" {
		return DefaultIntent
	}
	return Intent(name)
}

// Known reports whether i is one of the enumerated intents.
func (i Intent) Known() bool {
	_, ok := knownIntents[i]
	return ok
}

func (i Intent) String() string { return string(i) }
