package handler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/brianly1003/aidesk/internal/rpc/message"
)

func echoHandler(_ context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p map[string]interface{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, message.ErrInvalidParams(err.Error())
		}
	}
	return p, nil
}

func failingHandler(_ context.Context, _ json.RawMessage) (interface{}, *message.Error) {
	return nil, message.ErrInternalError("boom")
}

func newTestDispatcher() *Dispatcher {
	r := NewRegistry()
	r.Register("echo", echoHandler)
	r.Register("fail", failingHandler)
	return NewDispatcher(r)
}

func TestDispatchSuccess(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"echo","params":{"x":"y"}}`))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	parsed, err := message.ParseResponse(resp)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if parsed.IsError() {
		t.Fatalf("unexpected error: %v", parsed.Error)
	}
	var result map[string]string
	if err := json.Unmarshal(parsed.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result["x"] != "y" {
		t.Errorf("result = %v", result)
	}
}

func TestDispatchMethodNotFound(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"nope"}`))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	parsed, _ := message.ParseResponse(resp)
	if !parsed.IsError() || parsed.Error.Code != message.MethodNotFound {
		t.Errorf("expected method not found, got %v", parsed.Error)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":3,"method":"fail"}`))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	parsed, _ := message.ParseResponse(resp)
	if !parsed.IsError() || parsed.Error.Code != message.InternalError {
		t.Errorf("expected internal error, got %v", parsed.Error)
	}
}

func TestDispatchNotificationProducesNoResponse(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"echo","params":{}}`))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp != nil {
		t.Errorf("notification produced a response: %s", resp)
	}
}

func TestDispatchParseError(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.HandleMessage(context.Background(), []byte(`{not json`))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	parsed, _ := message.ParseResponse(resp)
	if !parsed.IsError() || parsed.Error.Code != message.ParseError {
		t.Errorf("expected parse error, got %v", parsed.Error)
	}
}

func TestDispatchBatch(t *testing.T) {
	d := newTestDispatcher()
	batch := `[
		{"jsonrpc":"2.0","id":1,"method":"echo","params":{"a":"1"}},
		{"jsonrpc":"2.0","method":"echo"},
		{"jsonrpc":"2.0","id":2,"method":"fail"}
	]`
	resp, err := d.HandleMessage(context.Background(), []byte(batch))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	var responses []message.Response
	if err := json.Unmarshal(resp, &responses); err != nil {
		t.Fatalf("unmarshal batch: %v", err)
	}
	// Notification never gets a response.
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(responses))
	}
	if responses[0].IsError() {
		t.Errorf("first response errored: %v", responses[0].Error)
	}
	if !responses[1].IsError() {
		t.Error("second response should be an error")
	}
}

func TestMiddlewareWrapsHandlers(t *testing.T) {
	r := NewRegistry()
	var calls []string
	r.Use(func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
			calls = append(calls, "before")
			result, err := next(ctx, params)
			calls = append(calls, "after")
			return result, err
		}
	})
	r.Register("echo", echoHandler)

	d := NewDispatcher(r)
	if _, err := d.HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"echo"}`)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(calls) != 2 || calls[0] != "before" || calls[1] != "after" {
		t.Errorf("middleware calls = %v", calls)
	}
}
