package api

import "github.com/wynnblevins/kanban/domain"

const (
	postCommandMaxSize = 64 * 1024 // 64 KiB
	createBoardMaxSize = 4 * 1024

	// eventSnapshot marks the first frame of a stream, carrying the current state.
	eventSnapshot = "snapshot"

	streamBuffer = 16
)

// POST /api/boards request body
type createBoardRequest struct {
	Template string `json:"template,omitempty"`
}

// POST /api/boards response body
type createBoardResponse struct {
	ID       string      `json:"id"`
	Template string      `json:"template"`
	Board    domain.View `json:"board"`
}

// POST /api/boards/:id/commands response body
type postCommandResponse struct {
	IdempotencyKeys []string     `json:"idempotencyKeys,omitempty"`
	Duplicates      []string     `json:"duplicates,omitempty"`
	Error           string       `json:"error,omitempty"`
	FailedCommand   *int         `json:"failedCommand,omitempty"`
	Board           *domain.View `json:"board,omitempty"`
}

// wsReply is sent to a WebSocket client after each command batch.
type wsReply struct {
	Type          string `json:"type"`
	Error         string `json:"error,omitempty"`
	FailedCommand *int   `json:"failedCommand,omitempty"`
	Version       int64  `json:"version"`
}
