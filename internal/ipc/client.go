package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Client is a small synchronous JSON-RPC client over a Unix domain socket,
// used by the CLI to issue one request per invocation.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
	nextID  atomic.Int64
}

// Dial connects to the daemon's control socket at socketPath.
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends method with params marshaled as the request payload, waits for
// the matching response, and unmarshals its result into out (which may be
// nil to discard it). Returns the RPCError as an error if the daemon
// reported one.
func (c *Client) Call(method string, params any, out any) error {
	id := c.nextID.Add(1)

	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		rawParams = data
	}

	req := Request{JSONRPC: "2.0", ID: json.RawMessage(fmt.Sprintf("%d", id)), Method: method, Params: rawParams}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	_, err = c.conn.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		respID, ok := resp.ID.(string)
		if !ok {
			if f, isFloat := resp.ID.(float64); isFloat {
				respID = fmt.Sprintf("%d", int64(f))
			}
		}
		if respID != fmt.Sprintf("%d", id) {
			// Response to a different pipelined request; not expected on a
			// single-request-per-connection client, but skip rather than
			// misreport.
			continue
		}

		if resp.Error != nil {
			return fmt.Errorf("%s", resp.Error.Message)
		}
		if out == nil || resp.Result == nil {
			return nil
		}
		data, err := json.Marshal(resp.Result)
		if err != nil {
			return fmt.Errorf("re-marshal result: %w", err)
		}
		return json.Unmarshal(data, out)
	}
}
