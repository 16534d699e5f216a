package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/wynnblevins/kanban/domain"
	"github.com/wynnblevins/kanban/session"
	"github.com/wynnblevins/kanban/storage"
)

var strictJSON = sonic.Config{DisallowUnknownFields: true}.Froze()

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Log == nil {
		d.Log = log.New()
	}
	e.GET("/healthz", healthz())

	g := e.Group("/api", AuthMiddleware(d.Auth))
	g.POST("/boards", createBoard(d))
	g.GET("/boards/:id", getBoard(d))
	g.DELETE("/boards/:id", deleteBoard(d))
	g.POST("/boards/:id/commands", postCommands(d), GzipRequestMiddleware())
	g.GET("/boards/:id/stream", streamBoard(d))
	g.GET("/boards/:id/ws", boardSocket(d))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func createBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, createBoardMaxSize+1))
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if len(body) > createBoardMaxSize {
			return c.String(http.StatusRequestEntityTooLarge, "body too large")
		}
		var req createBoardRequest
		if len(strings.TrimSpace(string(body))) > 0 {
			if err := strictJSON.Unmarshal(body, &req); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
		}

		name := strings.TrimSpace(req.Template)
		if name == "" {
			name = storage.DefaultTemplate
		}
		titles, used := resolveTemplate(c.Request().Context(), d, name)

		s, err := d.Boards.Create(userIDFrom(c), titles)
		if err != nil {
			d.Log.Errorf("create board: %v", err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, createBoardResponse{ID: s.ID(), Template: used, Board: s.View()})
	}
}

// resolveTemplate returns the column titles of the named template. Nil
// titles select the built-in defaults.
func resolveTemplate(ctx context.Context, d Deps, name string) ([]string, string) {
	if d.Templates == nil {
		if name != storage.DefaultTemplate {
			d.Log.Warnf("templates not configured, ignoring template %q", name)
		}
		return nil, storage.DefaultTemplate
	}
	titles, err := d.Templates.Columns(ctx, name)
	if err != nil {
		d.Log.Warnf("template %q unavailable, using default columns: %v", name, err)
		return nil, storage.DefaultTemplate
	}
	return titles, name
}

func getBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		view, status := boardView(c, d)
		if status != http.StatusOK {
			return c.String(status, http.StatusText(status))
		}
		return c.JSON(http.StatusOK, view)
	}
}

// boardView serves a local session to its owner, falling back to the
// snapshot cache for boards owned by another instance.
func boardView(c echo.Context, d Deps) (domain.View, int) {
	id := c.Param("id")
	s, err := d.Boards.Get(id)
	if err == nil {
		if s.Owner() != userIDFrom(c) {
			return domain.View{}, http.StatusForbidden
		}
		s.Touch()
		return s.View(), http.StatusOK
	}
	if d.Cache != nil {
		if snap, ok := d.Cache.LoadSnapshot(c.Request().Context(), id); ok {
			return domain.View{Snapshot: snap, Drag: domain.DragView{State: domain.DragIdle}}, http.StatusOK
		}
	}
	return domain.View{}, http.StatusNotFound
}

// ownedSession returns the local session named by the :id path parameter
// when the caller owns it.
func ownedSession(c echo.Context, boards Boards) (*session.Session, int) {
	s, err := boards.Get(c.Param("id"))
	if err != nil {
		return nil, http.StatusNotFound
	}
	if s.Owner() != userIDFrom(c) {
		return nil, http.StatusForbidden
	}
	return s, http.StatusOK
}

func deleteBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, status := ownedSession(c, d.Boards)
		if status != http.StatusOK {
			return c.String(status, http.StatusText(status))
		}
		if err := d.Boards.Delete(s.ID()); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				return c.String(http.StatusNotFound, err.Error())
			}
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postCommands(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, spanCtx := newCommandMetrics(c.Request().Context(), d.Log)
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx := spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		metrics.ObserveAuth(authDurationFrom(c))
		boardID := c.Param("id")
		metrics.SetBoard(boardID)
		s, status := ownedSession(c, d.Boards)
		if status != http.StatusOK {
			metrics.SetErrorStage("lookup")
			return c.String(status, http.StatusText(status))
		}

		lr := io.LimitReader(c.Request().Body, postCommandMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		cmds := make([]domain.Command, 0, 4)
		if decErr := dec.Decode(&cmds); decErr != nil {
			metrics.SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if len(cmds) == 0 {
			metrics.SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "empty command batch")
		}
		keys := assignKeys(cmds)
		if d.Metrics != nil {
			d.Metrics.ObserveBatch(cmds)
		}

		scope := dedupeScope(boardID, userIDFrom(c))
		batch := filterDuplicates(ctx, d, scope, cmds, keys)
		metrics.SetCommands(len(cmds), len(batch.duplicates))

		applyStart := time.Now()
		view, applyErr := s.Apply(batch.cmds)
		metrics.ObserveApply(time.Since(applyStart))
		metrics.SetVersion(view.Version)

		resp := postCommandResponse{IdempotencyKeys: keys, Duplicates: batch.duplicates, Board: &view}
		if applyErr == nil {
			return c.JSON(http.StatusOK, resp)
		}

		metrics.SetErrorStage("apply")
		resp.Error = applyErr.Error()
		var cmdErr *session.CommandError
		if errors.As(applyErr, &cmdErr) {
			failed := batch.index[cmdErr.Index]
			resp.FailedCommand = &failed
			metrics.SetFailedCommand(failed)
			batch.release(ctx, d, scope, cmdErr.Index)
		}
		return c.JSON(http.StatusBadRequest, resp)
	}
}

// assignKeys gives every command an idempotency key and returns them in
// batch order.
func assignKeys(cmds []domain.Command) []string {
	keys := make([]string, len(cmds))
	for i := range cmds {
		if cmds[i].IdempotencyKey == "" {
			cmds[i].IdempotencyKey = uuid.NewString()
		}
		keys[i] = cmds[i].IdempotencyKey
	}
	return keys
}

// dedupedBatch is the part of a request that still has to be applied.
type dedupedBatch struct {
	cmds       []domain.Command
	keys       []string // recorded keys, parallel to cmds; nil when nothing was recorded
	index      []int    // position of each command in the request
	duplicates []string
}

func filterDuplicates(ctx context.Context, d Deps, scope string, cmds []domain.Command, keys []string) dedupedBatch {
	all := dedupedBatch{cmds: cmds, index: make([]int, len(cmds))}
	for i := range all.index {
		all.index[i] = i
	}
	if d.Deduper == nil {
		return all
	}

	added, err := d.Deduper.AddMany(ctx, scope, keys)
	if err != nil {
		d.Log.Warnf("dedupe unavailable, applying batch without it: %v", err)
		var partial []string
		for i, ok := range added {
			if ok {
				partial = append(partial, keys[i])
			}
		}
		if rmErr := d.Deduper.Remove(ctx, scope, partial...); rmErr != nil {
			d.Log.Warnf("dedupe rollback failed: %v", rmErr)
		}
		return all
	}

	b := dedupedBatch{
		cmds:  make([]domain.Command, 0, len(cmds)),
		keys:  make([]string, 0, len(cmds)),
		index: make([]int, 0, len(cmds)),
	}
	for i, ok := range added {
		if !ok {
			b.duplicates = append(b.duplicates, keys[i])
			continue
		}
		b.cmds = append(b.cmds, cmds[i])
		b.keys = append(b.keys, keys[i])
		b.index = append(b.index, i)
	}
	return b
}

// release forgets the keys of commands from the failed one onwards so a
// corrected retry is not reported as a duplicate.
func (b dedupedBatch) release(ctx context.Context, d Deps, scope string, from int) {
	if d.Deduper == nil || from >= len(b.keys) {
		return
	}
	if err := d.Deduper.Remove(ctx, scope, b.keys[from:]...); err != nil {
		d.Log.Warnf("release idempotency keys: %v", err)
	}
}
