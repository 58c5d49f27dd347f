package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/pypackstudio/pypack/internal/process"
)

type fakeController struct {
	state   string
	kills   atomic.Int32
	killErr error
}

func (f *fakeController) BuildState() string { return f.state }

func (f *fakeController) Kill() error {
	f.kills.Add(1)
	return f.killErr
}

// newTestServer creates a Server with no listener for direct handleRequest unit tests.
func newTestServer(ctrl Controller) *Server {
	return &Server{ctrl: ctrl, clients: make(map[*client]struct{}), logger: hclog.NewNullLogger()}
}

func TestHandleRequest_Status(t *testing.T) {
	srv := newTestServer(&fakeController{state: "running"})
	resp := srv.handleRequest(Request{Method: "status"})

	if resp.Type != TypeResponse || resp.Status != "ok" {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	if resp.State != "running" {
		t.Errorf("state: expected running, got %q", resp.State)
	}
}

func TestHandleRequest_Kill(t *testing.T) {
	ctrl := &fakeController{state: "running"}
	srv := newTestServer(ctrl)

	if resp := srv.handleRequest(Request{Method: "kill"}); resp.Status != "ok" {
		t.Fatalf("expected status ok, got %+v", resp)
	}
	if n := ctrl.kills.Load(); n != 1 {
		t.Errorf("expected 1 kill, got %d", n)
	}

	ctrl.killErr = errors.New("boom")
	resp := srv.handleRequest(Request{Method: "kill"})
	if resp.Status != "error" || resp.Error != "boom" {
		t.Errorf("expected error response, got %+v", resp)
	}
}

func TestHandleRequest_NoController(t *testing.T) {
	srv := newTestServer(nil)
	if resp := srv.handleRequest(Request{Method: "status"}); resp.State != "idle" {
		t.Errorf("expected idle state, got %+v", resp)
	}
	if resp := srv.handleRequest(Request{Method: "kill"}); resp.Status != "error" {
		t.Errorf("expected kill to fail without a build, got %+v", resp)
	}
}

func TestHandleRequest_UnknownMethod(t *testing.T) {
	srv := newTestServer(nil)
	resp := srv.handleRequest(Request{Method: "nonexistent_method"})

	if resp.Status != "error" {
		t.Fatalf("expected status error, got %q", resp.Status)
	}
	if !strings.Contains(resp.Error, "unknown method") {
		t.Errorf("expected 'unknown method' in error, got: %s", resp.Error)
	}
}

func TestPublishTrimsHistory(t *testing.T) {
	srv := newTestServer(nil)
	for i := 0; i < ReplayLimit+10; i++ {
		srv.Publish(Message{Type: TypeLine, Text: fmt.Sprint(i)})
	}
	if len(srv.history) != ReplayLimit {
		t.Fatalf("history length: expected %d, got %d", ReplayLimit, len(srv.history))
	}
	if srv.history[0].Text != "10" {
		t.Errorf("oldest kept event: expected 10, got %s", srv.history[0].Text)
	}
}

func TestFromEvent(t *testing.T) {
	started := FromEvent("b1", process.Event{Kind: process.EventStarted, Command: []string{"py", "-m"}})
	if started.Type != TypeStarted || started.BuildID != "b1" || len(started.Command) != 2 {
		t.Errorf("started: %+v", started)
	}
	line := FromEvent("b1", process.Event{Kind: process.EventLine, Text: "hello"})
	if line.Type != TypeLine || line.Text != "hello" {
		t.Errorf("line: %+v", line)
	}
	finished := FromEvent("b1", process.Event{Kind: process.EventFinished, ExitCode: 0})
	if finished.Type != TypeFinished || finished.ExitCode == nil || *finished.ExitCode != 0 {
		t.Errorf("finished: %+v", finished)
	}
}

// next reads one message, failing the test after a timeout.
func next(t *testing.T, c *Client) Message {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msg, err := c.Next()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestServerServe(t *testing.T) {
	ctrl := &fakeController{state: "running"}
	srv, err := NewServer(SocketPath(uuid.NewString()), ctrl, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	// Published before anyone connects: must be replayed.
	srv.Publish(FromEvent("b1", process.Event{Kind: process.EventStarted, Command: []string{"python"}}))
	srv.Publish(FromEvent("b1", process.Event{Kind: process.EventLine, Text: "early"}))

	c, err := Dial(srv.Path())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if msg := next(t, c); msg.Type != TypeStarted || msg.BuildID != "b1" {
		t.Fatalf("replay[0]: expected started, got %+v", msg)
	}
	if msg := next(t, c); msg.Type != TypeLine || msg.Text != "early" {
		t.Fatalf("replay[1]: expected early line, got %+v", msg)
	}

	tests := []struct {
		method     string
		wantStatus string
	}{
		{"health", "ok"},
		{"status", "ok"},
		{"kill", "ok"},
		{"bad_method", "error"},
	}
	for _, tc := range tests {
		if err := c.Send(tc.method); err != nil {
			t.Fatalf("send request %q: %v", tc.method, err)
		}
		resp := next(t, c)
		if resp.Type != TypeResponse || resp.Status != tc.wantStatus {
			t.Errorf("%q: expected %s response, got %+v", tc.method, tc.wantStatus, resp)
		}
	}
	if n := ctrl.kills.Load(); n != 1 {
		t.Errorf("expected kill to reach the controller once, got %d", n)
	}

	srv.Publish(FromEvent("b1", process.Event{Kind: process.EventFinished, ExitCode: 3}))
	msg := next(t, c)
	if msg.Type != TypeFinished || msg.ExitCode == nil || *msg.ExitCode != 3 {
		t.Fatalf("expected finished(3), got %+v", msg)
	}

	srv.Close()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.Next(); err != io.EOF {
		t.Errorf("expected EOF after server close, got %v", err)
	}

	select {
	case err := <-serverDone:
		if err != nil {
			t.Errorf("Serve returned unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Serve did not return after Close")
	}
}

func TestServerCloseDeliversQueuedEvents(t *testing.T) {
	srv, err := NewServer(SocketPath(uuid.NewString()), nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	srv.Publish(FromEvent("b1", process.Event{Kind: process.EventStarted, Command: []string{"python"}}))

	c, err := Dial(srv.Path())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	// The replayed started event means the client is registered.
	if msg := next(t, c); msg.Type != TypeStarted {
		t.Fatalf("expected started, got %+v", msg)
	}

	for i := 0; i < 50; i++ {
		srv.Publish(FromEvent("b1", process.Event{Kind: process.EventLine, Text: fmt.Sprintf("line %d", i)}))
	}
	srv.Publish(FromEvent("b1", process.Event{Kind: process.EventFinished, ExitCode: 7}))
	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []Message
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		msg, err := c.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read message: %v", err)
		}
		got = append(got, msg)
	}

	if len(got) != 51 {
		t.Fatalf("expected 50 lines and finished, got %d messages", len(got))
	}
	last := got[len(got)-1]
	if last.Type != TypeFinished || last.ExitCode == nil || *last.ExitCode != 7 {
		t.Errorf("expected finished(7) last, got %+v", last)
	}
}
