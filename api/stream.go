package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wynnblevins/kanban/domain"
	"github.com/wynnblevins/kanban/stream"
)

// streamBoard serves board updates as server-sent events. The first event is
// the current state; the stream ends when the board closes.
func streamBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID := c.Param("id")
		// Subscribe before reading the state so no update falls in between.
		// Clients drop updates whose version is not newer than the snapshot.
		ch := d.Updates.Subscribe(boardID, streamBuffer)
		defer d.Updates.Unsubscribe(boardID, ch)

		view, status := boardView(c, d)
		if status != http.StatusOK {
			return c.String(status, http.StatusText(status))
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		first, err := stream.EncodeUpdate(stream.Update{
			BoardID: boardID,
			Change:  domain.Change{Version: view.Version, Event: eventSnapshot, Snapshot: view.Snapshot},
		})
		if err != nil {
			d.Log.Errorf("encode snapshot: %v", err)
			return err
		}
		if err := writeEvent(c, flusher, first); err != nil {
			return err
		}

		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case data := <-ch:
				if err := writeEvent(c, flusher, data); err != nil {
					return err
				}
				if isBoardClosed(data) {
					return nil
				}
			}
		}
	}
}

func writeEvent(c echo.Context, flusher http.Flusher, data []byte) error {
	w := c.Response()
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func isBoardClosed(data []byte) bool {
	u, err := stream.DecodeUpdate(data)
	return err == nil && u.Change.Event == domain.EventBoardClosed
}
