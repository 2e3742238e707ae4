package allocation

import (
	"fmt"
	"strconv"
	"strings"
)

type Action int

const (
	ActionNone Action = iota
	ActionAdjust
	ActionMove
	ActionConfirm
	ActionCommit
	ActionUnlock
	ActionClearAll
	ActionEditDisposal
	ActionEditPrice
	ActionCancel
	ActionDelete
)

type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
	Next
	Prev
)

var directionNames = map[string]Direction{
	"up":    Up,
	"down":  Down,
	"left":  Left,
	"right": Right,
	"next":  Next,
	"prev":  Prev,
}

var actionNames = map[string]Action{
	"confirm":  ActionConfirm,
	"commit":   ActionCommit,
	"unlock":   ActionUnlock,
	"clear":    ActionClearAll,
	"disposal": ActionEditDisposal,
	"price":    ActionEditPrice,
	"cancel":   ActionCancel,
	"delete":   ActionDelete,
}

type Binding struct {
	Action    Action
	Delta     int
	Direction Direction
}

func (b Binding) String() string {
	switch b.Action {
	case ActionAdjust:
		return fmt.Sprintf("%+d", b.Delta)
	case ActionMove:
		for name, d := range directionNames {
			if d == b.Direction {
				return name
			}
		}
	}
	for name, a := range actionNames {
		if a == b.Action {
			return name
		}
	}
	return "none"
}

// ParseBinding reads an action name as used in the client config:
// "+100", "-10", a direction ("up", "next", ...) or a command ("commit", ...).
func ParseBinding(s string) (Binding, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return Binding{Action: ActionNone}, nil
	}
	if s[0] == '+' || s[0] == '-' {
		n, err := strconv.Atoi(s)
		if err != nil || n == 0 {
			return Binding{}, fmt.Errorf("invalid delta %q", s)
		}
		return Binding{Action: ActionAdjust, Delta: n}, nil
	}
	if d, ok := directionNames[s]; ok {
		return Binding{Action: ActionMove, Direction: d}, nil
	}
	if a, ok := actionNames[s]; ok {
		return Binding{Action: a}, nil
	}
	return Binding{}, fmt.Errorf("unknown action %q", s)
}

// Keymap maps key names (bubbletea notation) to grid actions.
type Keymap map[string]Binding

func DefaultKeymap() Keymap {
	return Keymap{
		"a": {Action: ActionAdjust, Delta: 100},
		"s": {Action: ActionAdjust, Delta: 10},
		"d": {Action: ActionAdjust, Delta: -10},
		"f": {Action: ActionAdjust, Delta: -100},

		"up":        {Action: ActionMove, Direction: Up},
		"down":      {Action: ActionMove, Direction: Down},
		"left":      {Action: ActionMove, Direction: Left},
		"right":     {Action: ActionMove, Direction: Right},
		"tab":       {Action: ActionMove, Direction: Next},
		"shift+tab": {Action: ActionMove, Direction: Prev},

		"enter":     {Action: ActionConfirm},
		"ctrl+s":    {Action: ActionCommit},
		"ctrl+u":    {Action: ActionUnlock},
		"ctrl+x":    {Action: ActionClearAll},
		"w":         {Action: ActionEditDisposal},
		"p":         {Action: ActionEditPrice},
		"esc":       {Action: ActionCancel},
		"backspace": {Action: ActionDelete},
	}
}

func (k Keymap) Lookup(key string) (Binding, bool) {
	b, ok := k[key]
	if !ok || b.Action == ActionNone {
		return Binding{}, false
	}
	return b, true
}

func (k Keymap) Clone() Keymap {
	out := make(Keymap, len(k))
	for key, b := range k {
		out[key] = b
	}
	return out
}

// Override applies key → action overrides; "none" unbinds a key.
func (k Keymap) Override(overrides map[string]string) error {
	for key, name := range overrides {
		b, err := ParseBinding(name)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		if b.Action == ActionNone {
			delete(k, key)
			continue
		}
		k[key] = b
	}
	return nil
}

// ReasonKeys choose a disposal reason while the reason gate is open.
var ReasonKeys = map[string]DisposalReason{
	"1": ReasonDamage,
	"2": ReasonLost,
	"3": ReasonOther,
}
