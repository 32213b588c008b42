package shapely

import (
	"encoding/json"
	"fmt"
)

// Outcome is the normalized result of a capability execution in run mode.
type Outcome struct {
	// Result is the text fed back to the model (or returned, when Patch.Interrupt is set).
	Result string
	Patch  Patch
}

// Patch mutates the run loop. Each non-nil field replaces the corresponding loop variable
// wholesale; nothing is merged. A non-nil empty Capabilities slice clears the active set.
type Patch struct {
	Messages     []Message
	Capabilities []*Capability
	ForcedCall   *ForcedCall
	// Interrupt ends the run with Result as the final value.
	Interrupt bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Messages == nil && p.Capabilities == nil && p.ForcedCall == nil && !p.Interrupt
}

// normalizeOutcome turns whatever a capability returned into an Outcome.
func normalizeOutcome(v any) Outcome {
	switch x := v.(type) {
	case Outcome:
		return x
	case *Outcome:
		if x == nil {
			return Outcome{}
		}
		return *x
	}
	return Outcome{Result: stringifyResult(v)}
}

func stringifyResult(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
