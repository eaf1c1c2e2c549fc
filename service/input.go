package service

import (
	"fmt"
	"regexp"
	"strings"

	"devicegateway/models"
)

// DefaultSwipeDurationMs is used when a swipe does not specify a duration
const DefaultSwipeDurationMs = 300

var keycodePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// commandLine serializes an input command to the device shell line that
// performs it. Coordinates are passed through unchanged.
func commandLine(cmd models.InputCommand) (string, error) {
	switch cmd.Kind {
	case models.ActionTap:
		if cmd.X < 0 || cmd.Y < 0 {
			return "", fmt.Errorf("%w: negative tap coordinates (%d, %d)", ErrInvalidInput, cmd.X, cmd.Y)
		}
		return fmt.Sprintf("input tap %d %d", cmd.X, cmd.Y), nil

	case models.ActionSwipe:
		if cmd.X < 0 || cmd.Y < 0 || cmd.EndX < 0 || cmd.EndY < 0 {
			return "", fmt.Errorf("%w: negative swipe coordinates", ErrInvalidInput)
		}
		duration := cmd.DurationMs
		if duration <= 0 {
			duration = DefaultSwipeDurationMs
		}
		return fmt.Sprintf("input swipe %d %d %d %d %d", cmd.X, cmd.Y, cmd.EndX, cmd.EndY, duration), nil

	case models.ActionText:
		if cmd.Text == "" {
			return "", fmt.Errorf("%w: empty text", ErrInvalidInput)
		}
		return "input text " + escapeText(cmd.Text), nil

	case models.ActionKey:
		if !keycodePattern.MatchString(cmd.Keycode) {
			return "", fmt.Errorf("%w: bad keycode %q", ErrInvalidInput, cmd.Keycode)
		}
		return "input keyevent " + cmd.Keycode, nil

	case models.ActionShell:
		if strings.TrimSpace(cmd.Command) == "" {
			return "", fmt.Errorf("%w: empty shell command", ErrInvalidInput)
		}
		return cmd.Command, nil
	}

	return "", fmt.Errorf("%w: unknown input kind %q", ErrInvalidInput, cmd.Kind)
}

// escapeText prepares text for `input text`: spaces become %s (the input
// tool's own escape) and the result is single-quoted for the device shell.
func escapeText(text string) string {
	text = strings.ReplaceAll(text, " ", "%s")
	text = strings.ReplaceAll(text, "'", `'\''`)
	return "'" + text + "'"
}
