package domain

// DragState is the phase of the current drag gesture.
type DragState int

const (
	DragIdle DragState = iota
	DragColumn
	DragTask
)

func (s DragState) String() string {
	switch s {
	case DragColumn:
		return "dragging-column"
	case DragTask:
		return "dragging-task"
	default:
		return "idle"
	}
}

func (s DragState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// DragStart begins a gesture on Active.
type DragStart struct {
	Active Target `json:"active"`
}

// DragOver reports that the pointer hovers Over while dragging Active.
// Over is nil when no target is under the pointer.
type DragOver struct {
	Active Target  `json:"active"`
	Over   *Target `json:"over,omitempty"`
}

// DragEnd finishes the gesture. A nil Over means the drop had no valid target.
type DragEnd struct {
	Active Target  `json:"active"`
	Over   *Target `json:"over,omitempty"`
}

// DragHandler consumes drag lifecycle events.
type DragHandler interface {
	OnDragStart(DragStart)
	OnDragOver(DragOver) bool
	OnDragEnd(DragEnd) bool
}

// Reconciler turns drag events into board mutations. Every lookup goes
// through the board's current sequences, never through state captured
// earlier in the gesture, because OnDragOver fires many times per drag and
// each call must build on the previous one.
type Reconciler struct {
	board   *Board
	state   DragState
	overlay Entity
}

var _ DragHandler = (*Reconciler)(nil)

// NewReconciler creates an idle reconciler driving b.
func NewReconciler(b *Board) *Reconciler {
	return &Reconciler{board: b}
}

// State returns the current gesture phase.
func (r *Reconciler) State() DragState { return r.state }

// Overlay returns the entity captured when the gesture started.
func (r *Reconciler) Overlay() (Entity, bool) { return r.overlay, !r.overlay.IsZero() }

// OnDragStart captures the active entity. Only one gesture runs at a time:
// a start received while dragging is ignored, as is an unknown entity.
func (r *Reconciler) OnDragStart(ev DragStart) {
	if r.state != DragIdle {
		return
	}
	switch ev.Active.Kind {
	case KindColumn:
		if c, ok := r.board.Column(ev.Active.ID); ok {
			r.state = DragColumn
			r.overlay = ColumnEntity(c)
		}
	case KindTask:
		if t, ok := r.board.Task(ev.Active.ID); ok {
			r.state = DragTask
			r.overlay = TaskEntity(t)
		}
	}
}

// dragging reports whether the running gesture is of state s and was started
// on active.
func (r *Reconciler) dragging(s DragState, active Target) bool {
	return r.state == s && r.overlay.Target() == active
}

// OnDragOver moves a dragged task live. Hovering a task puts the dragged task
// in that task's column at that task's index; hovering a column changes only
// the column and keeps the flat index. Column drags are committed at drag end.
// Events for any entity other than the task captured at drag start are ignored.
func (r *Reconciler) OnDragOver(ev DragOver) bool {
	if ev.Over == nil || ev.Active == *ev.Over {
		return false
	}
	if !r.dragging(DragTask, ev.Active) {
		return false
	}
	activeIndex, ok := r.board.TaskIndex(ev.Active.ID)
	if !ok {
		return false
	}
	switch ev.Over.Kind {
	case KindTask:
		overIndex, ok := r.board.TaskIndex(ev.Over.ID)
		if !ok {
			return false
		}
		over := r.board.Tasks()[overIndex]
		return r.board.relocateTask(ev.Active.ID, over.ColumnID, overIndex)
	case KindColumn:
		if _, ok := r.board.ColumnIndex(ev.Over.ID); !ok {
			return false
		}
		return r.board.relocateTask(ev.Active.ID, ev.Over.ID, activeIndex)
	}
	return false
}

// OnDragEnd closes the gesture. A column dropped on another column, or on a
// task of another column, is moved to that column's index. Task drags were
// already applied while hovering. An end that does not match the column
// captured at drag start only resets the state.
func (r *Reconciler) OnDragEnd(ev DragEnd) bool {
	columnDrag := r.dragging(DragColumn, ev.Active)
	r.state = DragIdle
	r.overlay = Entity{}

	if ev.Over == nil || ev.Active == *ev.Over || !columnDrag {
		return false
	}
	from, ok := r.board.ColumnIndex(ev.Active.ID)
	if !ok {
		return false
	}
	overColumn := ev.Over.ID
	if ev.Over.Kind == KindTask {
		t, ok := r.board.Task(ev.Over.ID)
		if !ok {
			return false
		}
		overColumn = t.ColumnID
	}
	to, ok := r.board.ColumnIndex(overColumn)
	if !ok || from == to {
		return false
	}
	r.board.MoveColumn(from, to)
	return true
}
