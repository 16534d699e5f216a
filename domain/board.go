package domain

import (
	"fmt"
	"slices"
)

// ID identifies a column or a task on a board.
type ID int

// Column is a named, orderable group of tasks.
type Column struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
}

// Task is a work item belonging to exactly one column.
type Task struct {
	ID       ID     `json:"id"`
	ColumnID ID     `json:"columnId"`
	Content  string `json:"content"`
}

// Lane is a column together with the tasks rendered under it.
type Lane struct {
	Column
	Tasks []Task `json:"tasks"`
}

// Snapshot is the board at a point in time.
type Snapshot struct {
	Version int64    `json:"version"`
	Columns []Column `json:"columns"`
	Tasks   []Task   `json:"tasks"`
	Lanes   []Lane   `json:"lanes"`
}

// Change describes a published board state.
type Change struct {
	Version  int64    `json:"version"`
	Event    string   `json:"event"`
	Snapshot Snapshot `json:"snapshot"`
}

// Publisher observes every state the board publishes.
type Publisher interface {
	Publish(Change)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Change)

func (f PublisherFunc) Publish(c Change) { f(c) }

// DefaultColumnTitles are the columns a new board starts with.
var DefaultColumnTitles = []string{"To Do", "In Progress", "In Review", "Done"}

// maxIDAttempts bounds how many generated ids are tried before falling back to max+1.
const maxIDAttempts = 16

// Board owns the ordered column and task sequences. Every mutation replaces
// the affected slice, so slices handed out by the board are never modified.
type Board struct {
	columns   []Column
	tasks     []Task
	version   int64
	ids       IDGenerator
	orphans   OrphanPolicy
	publisher Publisher
	seed      []string
}

// Option configures a Board.
type Option func(*Board)

// WithIDGenerator sets the generator used for new columns and tasks.
func WithIDGenerator(g IDGenerator) Option {
	return func(b *Board) { b.ids = g }
}

// WithOrphanPolicy sets what happens to tasks of a deleted column.
func WithOrphanPolicy(p OrphanPolicy) Option {
	return func(b *Board) { b.orphans = p }
}

// WithPublisher registers the observer of published states.
func WithPublisher(p Publisher) Option {
	return func(b *Board) { b.publisher = p }
}

// WithColumnTitles seeds the board with columns numbered from zero.
// An empty list yields an empty board.
func WithColumnTitles(titles ...string) Option {
	return func(b *Board) { b.seed = append([]string{}, titles...) }
}

// NewBoard creates a board seeded with DefaultColumnTitles unless
// WithColumnTitles says otherwise.
func NewBoard(opts ...Option) *Board {
	b := &Board{seed: DefaultColumnTitles}
	for _, opt := range opts {
		opt(b)
	}
	cols := make([]Column, 0, len(b.seed))
	for i, title := range b.seed {
		cols = append(cols, Column{ID: ID(i), Title: title})
	}
	b.columns = cols
	b.tasks = []Task{}
	b.seed = nil
	if b.ids == nil {
		b.ids = NewSequentialIDs(ID(len(cols)))
	}
	return b
}

// Version increases by one for every published state.
func (b *Board) Version() int64 { return b.version }

// Columns returns the current column sequence.
func (b *Board) Columns() []Column { return b.columns }

// Tasks returns the current flat task sequence.
func (b *Board) Tasks() []Task { return b.tasks }

// ColumnIndex reports the position of the column with the given id.
func (b *Board) ColumnIndex(id ID) (int, bool) {
	i := slices.IndexFunc(b.columns, func(c Column) bool { return c.ID == id })
	return i, i >= 0
}

// TaskIndex reports the position of the task with the given id in the flat sequence.
func (b *Board) TaskIndex(id ID) (int, bool) {
	i := slices.IndexFunc(b.tasks, func(t Task) bool { return t.ID == id })
	return i, i >= 0
}

// Column looks up a column by id.
func (b *Board) Column(id ID) (Column, bool) {
	if i, ok := b.ColumnIndex(id); ok {
		return b.columns[i], true
	}
	return Column{}, false
}

// Task looks up a task by id.
func (b *Board) Task(id ID) (Task, bool) {
	if i, ok := b.TaskIndex(id); ok {
		return b.tasks[i], true
	}
	return Task{}, false
}

// TasksByColumn returns the tasks of a column in sequence order.
func (b *Board) TasksByColumn(columnID ID) []Task {
	out := []Task{}
	for _, t := range b.tasks {
		if t.ColumnID == columnID {
			out = append(out, t)
		}
	}
	return out
}

// Orphans returns tasks whose column no longer exists.
func (b *Board) Orphans() []Task {
	out := []Task{}
	for _, t := range b.tasks {
		if _, ok := b.ColumnIndex(t.ColumnID); !ok {
			out = append(out, t)
		}
	}
	return out
}

// Snapshot captures the published state including the per-column view.
func (b *Board) Snapshot() Snapshot {
	lanes := make([]Lane, 0, len(b.columns))
	for _, c := range b.columns {
		lanes = append(lanes, Lane{Column: c, Tasks: b.TasksByColumn(c.ID)})
	}
	return Snapshot{
		Version: b.version,
		Columns: b.columns,
		Tasks:   b.tasks,
		Lanes:   lanes,
	}
}

// CreateColumn appends a column titled after the current column count.
func (b *Board) CreateColumn() []Column {
	col := Column{ID: b.nextID(), Title: fmt.Sprintf("Column %d", len(b.columns))}
	b.commit(EventColumnCreated, append(slices.Clip(b.columns), col), b.tasks)
	return b.columns
}

// DeleteColumn removes the column with the given id. Its tasks are kept or
// removed according to the board's orphan policy.
func (b *Board) DeleteColumn(id ID) []Column {
	i, ok := b.ColumnIndex(id)
	if !ok {
		return b.columns
	}
	cols := slices.Delete(slices.Clone(b.columns), i, i+1)
	tasks := b.tasks
	if b.orphans == OrphanCascade {
		tasks = slices.DeleteFunc(slices.Clone(b.tasks), func(t Task) bool { return t.ColumnID == id })
	}
	b.commit(EventColumnDeleted, cols, tasks)
	return b.columns
}

// UpdateColumnTitle renames the column with the given id.
func (b *Board) UpdateColumnTitle(id ID, title string) []Column {
	i, ok := b.ColumnIndex(id)
	if !ok {
		return b.columns
	}
	cols := slices.Clone(b.columns)
	cols[i].Title = title
	b.commit(EventColumnUpdated, cols, b.tasks)
	return b.columns
}

// CreateTask appends a task to the given column. The default content counts
// every task on the board, not only the column's.
func (b *Board) CreateTask(columnID ID) []Task {
	task := Task{ID: b.nextID(), ColumnID: columnID, Content: fmt.Sprintf("Task %d", len(b.tasks))}
	b.commit(EventTaskCreated, b.columns, append(slices.Clip(b.tasks), task))
	return b.tasks
}

// DeleteTask removes the task with the given id.
func (b *Board) DeleteTask(id ID) []Task {
	i, ok := b.TaskIndex(id)
	if !ok {
		return b.tasks
	}
	b.commit(EventTaskDeleted, b.columns, slices.Delete(slices.Clone(b.tasks), i, i+1))
	return b.tasks
}

// UpdateTaskContent replaces the content of the task with the given id.
func (b *Board) UpdateTaskContent(id ID, content string) []Task {
	i, ok := b.TaskIndex(id)
	if !ok {
		return b.tasks
	}
	tasks := slices.Clone(b.tasks)
	tasks[i].Content = content
	b.commit(EventTaskUpdated, b.columns, tasks)
	return b.tasks
}

// MoveColumn applies ArrayMove to the column sequence.
func (b *Board) MoveColumn(from, to int) []Column {
	if !movable(len(b.columns), from, to) {
		return b.columns
	}
	b.commit(EventColumnMoved, ArrayMove(b.columns, from, to), b.tasks)
	return b.columns
}

// MoveTask applies ArrayMove to the flat task sequence.
func (b *Board) MoveTask(from, to int) []Task {
	if !movable(len(b.tasks), from, to) {
		return b.tasks
	}
	b.commit(EventTaskMoved, b.columns, ArrayMove(b.tasks, from, to))
	return b.tasks
}

// relocateTask assigns the task to a column and moves it to the given index
// in one published step. It reports whether anything changed.
func (b *Board) relocateTask(id, columnID ID, to int) bool {
	i, ok := b.TaskIndex(id)
	if !ok || to < 0 || to >= len(b.tasks) {
		return false
	}
	if b.tasks[i].ColumnID == columnID && i == to {
		return false
	}
	tasks := slices.Clone(b.tasks)
	tasks[i].ColumnID = columnID
	b.commit(EventTaskMoved, b.columns, ArrayMove(tasks, i, to))
	return true
}

func (b *Board) commit(event string, cols []Column, tasks []Task) {
	b.columns = cols
	b.tasks = tasks
	b.version++
	if b.publisher != nil {
		b.publisher.Publish(Change{Version: b.version, Event: event, Snapshot: b.Snapshot()})
	}
}

// nextID draws ids until one is unused by both columns and tasks, so an id
// never names two entities at once.
func (b *Board) nextID() ID {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := b.ids.NextID()
		if !b.taken(id) {
			return id
		}
	}
	highest := ID(-1)
	for _, c := range b.columns {
		highest = max(highest, c.ID)
	}
	for _, t := range b.tasks {
		highest = max(highest, t.ID)
	}
	return highest + 1
}

func (b *Board) taken(id ID) bool {
	if _, ok := b.ColumnIndex(id); ok {
		return true
	}
	_, ok := b.TaskIndex(id)
	return ok
}

func movable(n, from, to int) bool {
	return from != to && from >= 0 && from < n && to >= 0 && to < n
}
