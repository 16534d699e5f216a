package domain

const (
	EventColumnCreated = "column-created"
	EventColumnDeleted = "column-deleted"
	EventColumnUpdated = "column-updated"
	EventColumnMoved   = "column-moved"
	EventTaskCreated   = "task-created"
	EventTaskDeleted   = "task-deleted"
	EventTaskUpdated   = "task-updated"
	EventTaskMoved     = "task-moved"
	// EventBoardOpened announces the initial state of a new board session.
	EventBoardOpened = "board-opened"
	// EventBoardClosed is published once when a board session ends.
	EventBoardClosed = "board-closed"
)
