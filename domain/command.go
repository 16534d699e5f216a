package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

const (
	CmdCreateColumn  = "create-column"
	CmdDeleteColumn  = "delete-column"
	CmdUpdateColumn  = "update-column"
	CmdCreateTask    = "create-task"
	CmdDeleteTask    = "delete-task"
	CmdUpdateTask    = "update-task"
	CmdMoveColumn    = "move-column"
	CmdMoveTask      = "move-task"
	CmdEditStart     = "edit-start"
	CmdEditEnd       = "edit-end"
	CmdDragStart     = "drag-start"
	CmdDragOver      = "drag-over"
	CmdDragEnd       = "drag-end"
	CmdPointerDown   = "pointer-down"
	CmdPointerMove   = "pointer-move"
	CmdPointerUp     = "pointer-up"
	CmdPointerCancel = "pointer-cancel"
)

var (
	// ErrUnknownCommand is returned for a command type the engine does not handle.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidCommand is returned when a command payload cannot be used.
	ErrInvalidCommand = errors.New("invalid command")
)

// Command is a user intent or a drag lifecycle event addressed to a board.
type Command struct {
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data,omitempty"`
}

type idData struct {
	ID ID `json:"id"`
}

type columnTitleData struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
}

type taskContentData struct {
	ID      ID     `json:"id"`
	Content string `json:"content"`
}

type createTaskData struct {
	ColumnID ID `json:"columnId"`
}

type moveData struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type dragData struct {
	Active Target  `json:"active"`
	Over   *Target `json:"over,omitempty"`
}

type pointerData struct {
	Active *Target `json:"active,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Over   *Target `json:"over,omitempty"`
}

// NewCommand builds a command with a JSON encoded payload.
func NewCommand(typ string, data any) (Command, error) {
	cmd := Command{Type: typ}
	if data == nil {
		return cmd, nil
	}
	raw, err := sonic.Marshal(data)
	if err != nil {
		return Command{}, err
	}
	cmd.Data = raw
	return cmd, nil
}

func decodeData(cmd Command, v any) error {
	if len(cmd.Data) == 0 {
		return fmt.Errorf("%w: %s requires data", ErrInvalidCommand, cmd.Type)
	}
	if err := sonic.Unmarshal(cmd.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidCommand, cmd.Type, err)
	}
	return nil
}

func validTarget(t *Target) bool {
	return t != nil && (t.Kind == KindColumn || t.Kind == KindTask)
}

func validOver(t *Target) bool {
	return t == nil || validTarget(t)
}
