package voiceai

// AgentState is sourced entirely from the live session; the app reads it
// and maps it to a display style, never constructs or mutates it.
type AgentState string

const (
	AgentStateConnecting   AgentState = "connecting"
	AgentStateInitializing AgentState = "initializing"
	AgentStateListening    AgentState = "listening"
	AgentStateThinking     AgentState = "thinking"
	AgentStateSpeaking     AgentState = "speaking"
	AgentStateDisconnected AgentState = "disconnected"
)

// StateStyle is how a front end renders one agent state. Color is an ANSI
// escape for terminal rendering.
type StateStyle struct {
	Label string
	Color string
}

var stateStyles = map[AgentState]StateStyle{
	AgentStateConnecting:   {Label: "Connecting", Color: "\033[90m"},
	AgentStateInitializing: {Label: "Initializing", Color: "\033[33m"},
	AgentStateListening:    {Label: "Listening", Color: "\033[32m"},
	AgentStateThinking:     {Label: "Thinking", Color: "\033[34m"},
	AgentStateSpeaking:     {Label: "Speaking", Color: "\033[35m"},
	AgentStateDisconnected: {Label: "Disconnected", Color: "\033[31m"},
}

// Style returns the display style for s. The hosted agent may signal states
// beyond the known set; those pass through with the raw value and a neutral
// color.
func (s AgentState) Style() StateStyle {
	if style, ok := stateStyles[s]; ok {
		return style
	}
	return StateStyle{Label: string(s), Color: "\033[37m"}
}
