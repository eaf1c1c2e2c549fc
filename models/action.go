package models

import (
	"encoding/json"
	"time"
)

type ActionKind string

const (
	ActionTap   ActionKind = "tap"
	ActionSwipe ActionKind = "swipe"
	ActionText  ActionKind = "text"
	ActionKey   ActionKind = "key"
	ActionShell ActionKind = "shell"
)

// InputCommand is a single input request against the device.
// Only the fields relevant to Kind are meaningful.
type InputCommand struct {
	Kind       ActionKind `json:"kind"`
	X          int        `json:"x,omitempty"`
	Y          int        `json:"y,omitempty"`
	EndX       int        `json:"end_x,omitempty"`
	EndY       int        `json:"end_y,omitempty"`
	DurationMs int        `json:"duration_ms,omitempty"`
	Text       string     `json:"text,omitempty"`
	Keycode    string     `json:"keycode,omitempty"`
	Command    string     `json:"command,omitempty"`
}

func TapCommand(x, y int) InputCommand {
	return InputCommand{Kind: ActionTap, X: x, Y: y}
}

func SwipeCommand(x0, y0, x1, y1, durationMs int) InputCommand {
	return InputCommand{Kind: ActionSwipe, X: x0, Y: y0, EndX: x1, EndY: y1, DurationMs: durationMs}
}

func TextCommand(text string) InputCommand {
	return InputCommand{Kind: ActionText, Text: text}
}

func KeyCommand(keycode string) InputCommand {
	return InputCommand{Kind: ActionKey, Keycode: keycode}
}

func ShellCommand(command string) InputCommand {
	return InputCommand{Kind: ActionShell, Command: command}
}

// ActionLog is the recorded outcome of one input command
type ActionLog struct {
	ID          int64     `json:"id"`
	ActionType  string    `json:"action_type"`
	MethodUsed  string    `json:"method_used"`
	Success     bool      `json:"success"`
	DurationMs  int       `json:"duration_ms"`
	CostUSD     float64   `json:"cost_usd"`
	UISignature string    `json:"ui_signature,omitempty"`
	ErrorType   string    `json:"error_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Pattern is a learned UI pattern keyed by (ui_signature, action_type)
type Pattern struct {
	ID           int64           `json:"id"`
	ActionType   string          `json:"action_type"`
	Method       string          `json:"method"`
	PatternData  json.RawMessage `json:"pattern_data"`
	SuccessCount int             `json:"success_count"`
	FailureCount int             `json:"failure_count"`
	LastSuccess  *time.Time      `json:"last_success,omitempty"`
	UISignature  string          `json:"ui_signature"`
}
