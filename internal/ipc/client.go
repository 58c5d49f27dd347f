package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
)

// Client reads a build's event stream and sends requests to its server.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	encoder *json.Encoder
}

// Dial connects to the event socket at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := dialSocket(socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial event socket: %w", err)
	}
	return &Client{
		conn:    conn,
		scanner: bufio.NewScanner(conn),
		encoder: json.NewEncoder(conn),
	}, nil
}

// Send writes one request line.
func (c *Client) Send(method string) error {
	return c.encoder.Encode(Request{Method: method})
}

// Next returns the next message. It returns io.EOF once the server closes
// the connection.
func (c *Client) Next() (Message, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Message{}, err
		}
		return Message{}, io.EOF
	}
	var msg Message
	if err := json.Unmarshal(c.scanner.Bytes(), &msg); err != nil {
		return Message{}, fmt.Errorf("decode event: %w", err)
	}
	return msg, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }
