package domain

import "fmt"

// DragView is the drag state the presentation layer renders.
type DragView struct {
	State   DragState `json:"state"`
	Overlay *Entity   `json:"overlay,omitempty"`
}

// View is a snapshot plus the current drag state.
type View struct {
	Snapshot
	Drag DragView `json:"drag"`
}

// Engine bundles a board with its reconciler, pointer sensor and the set of
// entities in edit mode, and routes commands to them.
type Engine struct {
	board   *Board
	drag    *Reconciler
	sensor  *PointerSensor
	editing map[Target]struct{}
}

// NewEngine wires a reconciler and a pointer sensor to b. Entities in edit
// mode are always excluded from drag recognition.
func NewEngine(b *Board, opts ...SensorOption) *Engine {
	e := &Engine{
		board:   b,
		drag:    NewReconciler(b),
		editing: make(map[Target]struct{}),
	}
	opts = append(opts, WithEditing(e.Editing))
	e.sensor = NewPointerSensor(e.drag, opts...)
	return e
}

func (e *Engine) Board() *Board { return e.board }

func (e *Engine) Reconciler() *Reconciler { return e.drag }

func (e *Engine) Sensor() *PointerSensor { return e.sensor }

// BeginEdit puts an entity in edit mode.
func (e *Engine) BeginEdit(t Target) { e.editing[t] = struct{}{} }

// EndEdit leaves edit mode.
func (e *Engine) EndEdit(t Target) { delete(e.editing, t) }

// Editing reports whether the entity is in edit mode.
func (e *Engine) Editing(t Target) bool {
	_, ok := e.editing[t]
	return ok
}

// View returns the current snapshot and drag state.
func (e *Engine) View() View {
	v := View{Snapshot: e.board.Snapshot(), Drag: DragView{State: e.drag.State()}}
	if overlay, ok := e.drag.Overlay(); ok {
		v.Drag.Overlay = &overlay
	}
	return v
}

// Apply executes one command. Board operations never fail; errors only
// report commands that could not be decoded.
func (e *Engine) Apply(cmd Command) error {
	switch cmd.Type {
	case CmdCreateColumn:
		e.board.CreateColumn()
	case CmdDeleteColumn:
		var d idData
		if err := decodeData(cmd, &d); err != nil {
			return err
		}
		e.board.DeleteColumn(d.ID)
		e.EndEdit(ColumnTarget(d.ID))
	case CmdUpdateColumn:
		var d columnTitleData
		if err := decodeData(cmd, &d); err != nil {
			return err
		}
		e.board.UpdateColumnTitle(d.ID, d.Title)
	case CmdCreateTask:
		var d createTaskData
		if err := decodeData(cmd, &d); err != nil {
			return err
		}
		e.board.CreateTask(d.ColumnID)
	case CmdDeleteTask:
		var d idData
		if err := decodeData(cmd, &d); err != nil {
			return err
		}
		e.board.DeleteTask(d.ID)
		e.EndEdit(TaskTarget(d.ID))
	case CmdUpdateTask:
		var d taskContentData
		if err := decodeData(cmd, &d); err != nil {
			return err
		}
		e.board.UpdateTaskContent(d.ID, d.Content)
	case CmdMoveColumn, CmdMoveTask:
		var d moveData
		if err := decodeData(cmd, &d); err != nil {
			return err
		}
		if cmd.Type == CmdMoveColumn {
			e.board.MoveColumn(d.From, d.To)
		} else {
			e.board.MoveTask(d.From, d.To)
		}
	case CmdEditStart, CmdEditEnd:
		var t Target
		if err := decodeData(cmd, &t); err != nil {
			return err
		}
		if !validTarget(&t) {
			return fmt.Errorf("%w: %s needs a column or task target", ErrInvalidCommand, cmd.Type)
		}
		if cmd.Type == CmdEditStart {
			e.BeginEdit(t)
		} else {
			e.EndEdit(t)
		}
	case CmdDragStart, CmdDragOver, CmdDragEnd:
		return e.applyDrag(cmd)
	case CmdPointerDown, CmdPointerMove, CmdPointerUp:
		return e.applyPointer(cmd)
	case CmdPointerCancel:
		e.sensor.Cancel()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil
}

func (e *Engine) applyDrag(cmd Command) error {
	var d dragData
	if err := decodeData(cmd, &d); err != nil {
		return err
	}
	if !validTarget(&d.Active) || !validOver(d.Over) {
		return fmt.Errorf("%w: %s has an invalid target", ErrInvalidCommand, cmd.Type)
	}
	switch cmd.Type {
	case CmdDragStart:
		if e.Editing(d.Active) {
			return nil
		}
		e.drag.OnDragStart(DragStart{Active: d.Active})
	case CmdDragOver:
		e.drag.OnDragOver(DragOver{Active: d.Active, Over: d.Over})
	case CmdDragEnd:
		e.drag.OnDragEnd(DragEnd{Active: d.Active, Over: d.Over})
	}
	return nil
}

func (e *Engine) applyPointer(cmd Command) error {
	var d pointerData
	if err := decodeData(cmd, &d); err != nil {
		return err
	}
	if !validOver(d.Over) {
		return fmt.Errorf("%w: %s has an invalid target", ErrInvalidCommand, cmd.Type)
	}
	at := Point{X: d.X, Y: d.Y}
	switch cmd.Type {
	case CmdPointerDown:
		if !validTarget(d.Active) {
			return fmt.Errorf("%w: %s needs an active target", ErrInvalidCommand, cmd.Type)
		}
		e.sensor.PointerDown(*d.Active, at)
	case CmdPointerMove:
		e.sensor.PointerMove(at, d.Over)
	case CmdPointerUp:
		e.sensor.PointerUp(d.Over)
	}
	return nil
}
