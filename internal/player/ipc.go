package player

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// ipcClient speaks mpv's JSON IPC protocol over a unix socket. Requests carry
// a request_id and block until the matching response arrives; asynchronous
// events are dispatched to the registered handler.
type ipcClient struct {
	conn net.Conn

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan ipcResponse
	onEvent func(ipcEvent)
	closed  bool
}

type ipcResponse struct {
	RequestID int64           `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
}

type ipcEvent struct {
	Event  string          `json:"event"`
	Reason string          `json:"reason"`
	Name   string          `json:"name"`
	Data   json.RawMessage `json:"data"`
}

// dialIPC connects to the player's IPC socket, retrying while the process
// creates it.
func dialIPC(socketPath string, timeout time.Duration) (*ipcClient, error) {
	deadline := time.Now().Add(timeout)
	var conn net.Conn
	var err error
	for {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("connecting to player ipc: %w", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	c := &ipcClient{
		conn:    conn,
		pending: make(map[int64]chan ipcResponse),
	}
	go c.readLoop()
	return c, nil
}

func (c *ipcClient) setEventHandler(fn func(ipcEvent)) {
	c.mu.Lock()
	c.onEvent = fn
	c.mu.Unlock()
}

func (c *ipcClient) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		line := scanner.Bytes()

		var resp ipcResponse
		if err := json.Unmarshal(line, &resp); err == nil && resp.RequestID != 0 {
			c.mu.Lock()
			ch, ok := c.pending[resp.RequestID]
			delete(c.pending, resp.RequestID)
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
			continue
		}

		var ev ipcEvent
		if err := json.Unmarshal(line, &ev); err == nil && ev.Event != "" {
			c.mu.Lock()
			handler := c.onEvent
			c.mu.Unlock()
			if handler != nil {
				handler(ev)
			}
		}
	}

	// Socket closed; fail any waiters so commands do not hang forever.
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- ipcResponse{Error: "connection closed"}
	}
	c.mu.Unlock()
}

// command sends a command and waits for its response.
func (c *ipcClient) command(args ...any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("player ipc closed")
	}
	c.nextID++
	id := c.nextID
	ch := make(chan ipcResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	payload, err := json.Marshal(map[string]any{
		"command":    args,
		"request_id": id,
	})
	if err != nil {
		return nil, err
	}
	payload = append(payload, '\n')

	if _, err := c.conn.Write(payload); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != "" && resp.Error != "success" {
			return nil, fmt.Errorf("player command failed: %s", resp.Error)
		}
		return resp.Data, nil
	case <-time.After(2 * time.Second):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("player command timed out")
	}
}

func (c *ipcClient) setProperty(name string, value any) error {
	_, err := c.command("set_property", name, value)
	return err
}

// observeProperty subscribes to property-change events for name. The player
// pushes an event with the given id whenever the value changes.
func (c *ipcClient) observeProperty(id int64, name string) error {
	_, err := c.command("observe_property", id, name)
	return err
}

func (c *ipcClient) getProperty(name string, out any) error {
	data, err := c.command("get_property", name)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (c *ipcClient) close() {
	c.conn.Close()
}
