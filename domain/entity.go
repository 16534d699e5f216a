package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind tells columns and tasks apart in drag metadata.
type Kind int

const (
	KindColumn Kind = iota + 1
	KindTask
)

func (k Kind) String() string {
	switch k {
	case KindColumn:
		return "column"
	case KindTask:
		return "task"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if k != KindColumn && k != KindTask {
		return nil, fmt.Errorf("invalid kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "column":
		*k = KindColumn
	case "task":
		*k = KindTask
	default:
		return fmt.Errorf("invalid kind %q", text)
	}
	return nil
}

// Target references a draggable entity by kind and id.
type Target struct {
	Kind Kind `json:"kind"`
	ID   ID   `json:"id"`
}

// ColumnTarget references a column.
func ColumnTarget(id ID) Target { return Target{Kind: KindColumn, ID: id} }

// TaskTarget references a task.
func TaskTarget(id ID) Target { return Target{Kind: KindTask, ID: id} }

func (t Target) String() string { return fmt.Sprintf("%s:%d", t.Kind, t.ID) }

// Entity holds either a Column or a Task. The zero Entity holds neither.
type Entity struct {
	kind   Kind
	column Column
	task   Task
}

// ColumnEntity wraps a column.
func ColumnEntity(c Column) Entity { return Entity{kind: KindColumn, column: c} }

// TaskEntity wraps a task.
func TaskEntity(t Task) Entity { return Entity{kind: KindTask, task: t} }

func (e Entity) Kind() Kind { return e.kind }

// IsZero reports whether the entity holds nothing.
func (e Entity) IsZero() bool { return e.kind == 0 }

func (e Entity) ID() ID {
	if e.kind == KindTask {
		return e.task.ID
	}
	return e.column.ID
}

func (e Entity) Target() Target { return Target{Kind: e.kind, ID: e.ID()} }

func (e Entity) Column() (Column, bool) { return e.column, e.kind == KindColumn }

func (e Entity) Task() (Task, bool) { return e.task, e.kind == KindTask }

type entityJSON struct {
	Kind   Kind    `json:"kind"`
	Column *Column `json:"column,omitempty"`
	Task   *Task   `json:"task,omitempty"`
}

func (e Entity) MarshalJSON() ([]byte, error) {
	switch e.kind {
	case KindColumn:
		return json.Marshal(entityJSON{Kind: KindColumn, Column: &e.column})
	case KindTask:
		return json.Marshal(entityJSON{Kind: KindTask, Task: &e.task})
	default:
		return []byte("null"), nil
	}
}
