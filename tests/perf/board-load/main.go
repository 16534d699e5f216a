package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/wynnblevins/kanban/domain"
)

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return i
}

type stats struct {
	boards   atomic.Uint64
	events   atomic.Uint64
	requests atomic.Uint64
	failures atomic.Uint64
}

func (s *stats) failureRate() float64 {
	req := s.requests.Load()
	if req == 0 {
		return 0
	}
	return float64(s.failures.Load()) / float64(req)
}

type loadClient struct {
	http    *http.Client
	baseURL string
	bearer  string
}

func (c *loadClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	return c.http.Do(req)
}

func (c *loadClient) createBoard(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/boards", map[string]string{})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create board: status %d", resp.StatusCode)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// stream counts update frames until the board closes or ctx ends.
func (c *loadClient) stream(ctx context.Context, boardID string, onEvent func()) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/boards/"+boardID+"/stream", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream: status %d", resp.StatusCode)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data:") {
			onEvent()
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

// round builds the batch sent on step i: a new task in the first column,
// then a drag of the newest task to the top of the board.
func round(i int) []domain.Command {
	create, _ := domain.NewCommand(domain.CmdCreateTask, map[string]any{"columnId": 0})
	move, _ := domain.NewCommand(domain.CmdMoveTask, map[string]any{"from": i, "to": 0})
	return []domain.Command{create, move}
}

func (c *loadClient) postCommands(ctx context.Context, boardID string, cmds []domain.Command) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/boards/"+boardID+"/commands", cmds)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("commands: status %d", resp.StatusCode)
	}
	return nil
}

// runBoard drives one board until ctx ends and then deletes it.
func runBoard(ctx context.Context, c *loadClient, interval time.Duration, st *stats) {
	st.requests.Add(1)
	id, err := c.createBoard(ctx)
	if err != nil {
		st.failures.Add(1)
		log.Debugf("create board: %v", err)
		return
	}
	st.boards.Add(1)

	var wg sync.WaitGroup
	wg.Add(1)
	streamCtx, stopStream := context.WithCancel(context.Background())
	go func() {
		defer wg.Done()
		if err := c.stream(streamCtx, id, func() { st.events.Add(1) }); err != nil && !errors.Is(err, context.Canceled) {
			st.failures.Add(1)
			log.Debugf("stream %s: %v", id, err)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			delCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if resp, err := c.do(delCtx, http.MethodDelete, "/api/boards/"+id, nil); err == nil {
				resp.Body.Close()
			}
			cancel()
			// the stream ends on its own once board-closed arrives
			timer := time.AfterFunc(5*time.Second, stopStream)
			wg.Wait()
			timer.Stop()
			stopStream()
			return
		case <-ticker.C:
		}
		st.requests.Add(1)
		if err := c.postCommands(ctx, id, round(i)); err != nil && ctx.Err() == nil {
			st.failures.Add(1)
			log.Debugf("commands %s: %v", id, err)
		}
	}
}

func main() {
	c := &loadClient{
		http:    &http.Client{},
		baseURL: strings.TrimRight(getenv("API_URL", "http://localhost:8080"), "/"),
		bearer:  os.Getenv("TEST_BEARER"),
	}
	boards := getenvInt("BOARDS", 50)
	duration := time.Duration(getenvInt("DURATION_SEC", 60)) * time.Second
	interval := time.Duration(getenvInt("INTERVAL_MS", 250)) * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	st := &stats{}
	var wg sync.WaitGroup
	wg.Add(boards)
	for range boards {
		go func() {
			defer wg.Done()
			runBoard(ctx, c, interval, st)
		}()
	}
	wg.Wait()

	fmt.Printf("boards=%d duration_sec=%d events_received=%d requests=%d failures=%d\n",
		st.boards.Load(), int(duration.Seconds()), st.events.Load(), st.requests.Load(), st.failures.Load())
	if st.events.Load() == 0 || st.failureRate() > 0.01 {
		os.Exit(1)
	}
}
