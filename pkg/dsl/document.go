package dsl

// Document kinds. The "kind" key of every definition document selects the
// decoder; unknown kinds are a load error.
const (
	KindWorkflow = "workflow"
	KindPolicy   = "policy"
)

// WorkflowDoc is the YAML form of one workflow definition.
type WorkflowDoc struct {
	Kind       string     `mapstructure:"kind"`
	ActionType string     `mapstructure:"action_type"`
	Version    int        `mapstructure:"version"`
	Phases     []PhaseDoc `mapstructure:"phases"`
}

// PhaseDoc is one ordered phase of a workflow document.
type PhaseDoc struct {
	Name    string      `mapstructure:"name"`
	Skip    *SkipDoc    `mapstructure:"skip"`
	Rolls   []RollDoc   `mapstructure:"rolls"`
	Effects []EffectDoc `mapstructure:"effects"`
	Notify  []NotifyDoc `mapstructure:"notify"`
}

// SkipDoc skips the phase when the named payload field equals the value.
type SkipDoc struct {
	Field  string `mapstructure:"field"`
	Equals any    `mapstructure:"equals"`
}

// RollDoc is one fan-out branch. Target is a participant reference, Dice a
// dice expression ("2d6+3"), Timeout a Go duration string.
type RollDoc struct {
	Target   string `mapstructure:"target"`
	Dice     string `mapstructure:"dice"`
	Purpose  string `mapstructure:"purpose"`
	Timeout  string `mapstructure:"timeout"`
	Fallback string `mapstructure:"fallback"`
}

// EffectDoc is one state change. Op "set" writes the resolved value; "add"
// and "sub" combine it with the current value read from the payload field
// named by ReadFrom. The value comes from FromRoll (the total of the roll
// with that purpose) when set, otherwise from Value.
type EffectDoc struct {
	Target   string `mapstructure:"target"`
	Field    string `mapstructure:"field"`
	Op       string `mapstructure:"op"`
	ReadFrom string `mapstructure:"read_from"`
	Value    any    `mapstructure:"value"`
	FromRoll string `mapstructure:"from_roll"`
}

// NotifyDoc addresses a message to one participant reference, or to the
// whole session when To is empty.
type NotifyDoc struct {
	To      string `mapstructure:"to"`
	Message string `mapstructure:"message"`
}

// PolicyDoc is the YAML form of an authority policy table.
type PolicyDoc struct {
	Kind  string            `mapstructure:"kind"`
	Table map[string]string `mapstructure:"table"`
}
