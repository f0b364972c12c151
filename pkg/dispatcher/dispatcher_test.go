package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/morezero/device-facades/pkg/platform"
	"github.com/morezero/device-facades/pkg/registry"
	"github.com/morezero/device-facades/pkg/rpc"
	"github.com/morezero/device-facades/pkg/session"
)

// calc is a test receiver. touches counts platform-style side effects.
type calc struct {
	touches *atomic.Int32
	own     int
}

func (c *calc) Shutdown() error { return nil }

type harness struct {
	dispatcher   *Dispatcher
	manager      *session.Manager
	constructed  atomic.Int32
	touches      atomic.Int32
	lastGreeting atomic.Value
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{}

	rt := rpc.NewReceiverType("Calc", "test receiver", func(platform.Host) (rpc.Receiver, error) {
		h.constructed.Add(1)
		return &calc{touches: &h.touches}, nil
	},
		rpc.NewProcedure("add", "Adds two integers.").
			Params(rpc.Param("a", rpc.Integer, ""), rpc.DefaultParam("b", rpc.Integer, 1, "")).
			Returns(rpc.Integer, "").
			Invoke(rpc.Method(func(c *calc, _ context.Context, args *rpc.Args) (interface{}, error) {
				c.touches.Add(1)
				return args.Int("a") + args.Int("b"), nil
			})),
		rpc.NewProcedure("scale", "").
			Params(rpc.Param("x", rpc.Double, "")).
			Returns(rpc.Double, "").
			Invoke(rpc.Method(func(_ *calc, _ context.Context, args *rpc.Args) (interface{}, error) {
				return args.Float("x") * 2, nil
			})),
		rpc.NewProcedure("greet", "").
			Params(rpc.Param("name", rpc.String, ""), rpc.NullableParam("greeting", rpc.String, "")).
			Returns(rpc.String, "").
			Invoke(rpc.Method(func(_ *calc, _ context.Context, args *rpc.Args) (interface{}, error) {
				greeting, ok := args.OptString("greeting")
				if !ok {
					greeting = "hello"
				}
				h.lastGreeting.Store(greeting)
				return greeting + " " + args.String("name"), nil
			})),
		rpc.NewProcedure("echoObject", "").
			Params(rpc.Param("value", rpc.Object, "")).
			Returns(rpc.Object, "").
			Invoke(rpc.Method(func(_ *calc, _ context.Context, args *rpc.Args) (interface{}, error) {
				return args.Object("value"), nil
			})),
		rpc.NewProcedure("flag", "").
			Params(rpc.DefaultParam("enabled", rpc.Boolean, true, "")).
			Returns(rpc.Boolean, "").
			Invoke(rpc.Method(func(_ *calc, _ context.Context, args *rpc.Args) (interface{}, error) {
				return args.Bool("enabled"), nil
			})),
		rpc.NewProcedure("touch", "").
			Invoke(rpc.VoidMethod(func(c *calc, _ context.Context, _ *rpc.Args) error {
				c.touches.Add(1)
				c.own++
				return nil
			})),
		rpc.NewProcedure("count", "").
			Returns(rpc.Integer, "").
			Invoke(rpc.Method(func(c *calc, _ context.Context, _ *rpc.Args) (interface{}, error) {
				return c.own, nil
			})),
		rpc.NewProcedure("boom", "").
			Invoke(rpc.VoidMethod(func(*calc, context.Context, *rpc.Args) error {
				return errors.New("hardware fault")
			})),
		rpc.NewProcedure("crash", "").
			Invoke(rpc.VoidMethod(func(*calc, context.Context, *rpc.Args) error {
				var m map[string]int
				m["x"] = 1
				return nil
			})),
		rpc.NewProcedure("badResult", "").
			Returns(rpc.Object, "").
			Invoke(rpc.Method(func(*calc, context.Context, *rpc.Args) (interface{}, error) {
				return func() {}, nil
			})),
		rpc.NewProcedure("modern", "").
			Version("2.1.0").
			Returns(rpc.String, "").
			Invoke(rpc.Method(func(*calc, context.Context, *rpc.Args) (interface{}, error) {
				return "v2", nil
			})),
	)

	reg, err := registry.Build(rt)
	if err != nil {
		t.Fatalf("dispatcher:dispatcher_test - registry.Build: %v", err)
	}
	h.manager = session.NewManager(session.NewManagerParams{
		Types: reg,
		HostFactory: func(id string) (platform.Host, error) {
			return platform.NewHost(platform.HostParams{SessionID: id}), nil
		},
	})
	h.dispatcher = NewDispatcher(NewDispatcherParams{Procedures: reg, Sessions: h.manager})
	return h
}

func (h *harness) call(t *testing.T, method, params string) *Response {
	t.Helper()
	req := &Request{ID: "req-1", Method: method}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	return h.dispatcher.Dispatch(context.Background(), req)
}

func expectOk(t *testing.T, resp *Response, want string) {
	t.Helper()
	if !resp.Ok || resp.Error != nil {
		t.Fatalf("dispatcher:dispatcher_test - expected ok, got error %+v", resp.Error)
	}
	if string(resp.Result) != want {
		t.Errorf("dispatcher:dispatcher_test - result = %s, want %s", resp.Result, want)
	}
}

func expectCode(t *testing.T, resp *Response, code string) {
	t.Helper()
	if resp.Ok || resp.Error == nil {
		t.Fatalf("dispatcher:dispatcher_test - expected %s, got ok result %s", code, resp.Result)
	}
	if resp.Error.Code != code {
		t.Errorf("dispatcher:dispatcher_test - code = %s (%s), want %s", resp.Error.Code, resp.Error.Message, code)
	}
	if resp.Result != nil {
		t.Errorf("dispatcher:dispatcher_test - error response must not carry a result")
	}
}

func TestDispatch_Binding(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		method string
		params string
		named  map[string]string
		want   string
		code   string
	}{
		{name: "positional", method: "add", params: `[2, 3]`, want: `5`},
		{name: "named object", method: "add", params: `{"a": 2, "b": 3}`, want: `5`},
		{name: "named overrides positional", method: "add", params: `[2, 3]`, named: map[string]string{"b": `10`}, want: `12`},
		{name: "named only via named member", method: "add", named: map[string]string{"a": `4`}, want: `5`},
		{name: "named null overrides positional required", method: "add", params: `[30]`, named: map[string]string{"a": `null`}, code: rpc.CodeMissingArgument},
		{name: "named null overrides positional default", method: "add", params: `[2, 9]`, named: map[string]string{"b": `null`}, want: `3`},
		{name: "default omitted", method: "add", params: `[2]`, want: `3`},
		{name: "default explicit", method: "add", params: `[2, 1]`, want: `3`},
		{name: "explicit null takes default", method: "add", params: `[2, null]`, want: `3`},
		{name: "integral double accepted", method: "add", params: `[30.0, 0]`, want: `30`},
		{name: "exponent integer accepted", method: "add", params: `[1e2, 0]`, want: `100`},
		{name: "fraction rejected", method: "add", params: `[30.5]`, code: rpc.CodeTypeMismatch},
		{name: "string for integer", method: "add", params: `["30"]`, code: rpc.CodeTypeMismatch},
		{name: "bool for integer", method: "add", params: `[true]`, code: rpc.CodeTypeMismatch},
		{name: "huge integer", method: "add", params: `[1e300]`, code: rpc.CodeTypeMismatch},
		{name: "required missing", method: "add", params: `[]`, code: rpc.CodeMissingArgument},
		{name: "required null", method: "add", params: `[null, 1]`, code: rpc.CodeMissingArgument},
		{name: "no params at all", method: "add", code: rpc.CodeMissingArgument},
		{name: "too many positional", method: "add", params: `[1, 2, 3]`, code: rpc.CodeInvalidArgument},
		{name: "unknown named", method: "add", params: `{"a": 1, "c": 2}`, code: rpc.CodeInvalidArgument},
		{name: "params scalar", method: "add", params: `5`, code: rpc.CodeInvalidArgument},
		{name: "params malformed", method: "add", params: `[1,`, code: rpc.CodeInvalidArgument},
		{name: "double from integer", method: "scale", params: `[2]`, want: `4`},
		{name: "double from fraction", method: "scale", params: `[1.25]`, want: `2.5`},
		{name: "string for double", method: "scale", params: `["1.5"]`, code: rpc.CodeTypeMismatch},
		{name: "nullable omitted", method: "greet", params: `["ada"]`, want: `"hello ada"`},
		{name: "nullable explicit null", method: "greet", params: `["ada", null]`, want: `"hello ada"`},
		{name: "nullable supplied", method: "greet", params: `{"name": "ada", "greeting": "hi"}`, want: `"hi ada"`},
		{name: "number for string", method: "greet", params: `[7]`, code: rpc.CodeTypeMismatch},
		{name: "object passthrough", method: "echoObject", params: `[{"k": [1, 2.5]}]`, want: `{"k":[1,2.5]}`},
		{name: "array as object", method: "echoObject", params: `[[1, 2]]`, want: `[1,2]`},
		{name: "string for object", method: "echoObject", params: `["{}"]`, code: rpc.CodeTypeMismatch},
		{name: "boolean default true", method: "flag", want: `true`},
		{name: "boolean supplied", method: "flag", params: `[false]`, want: `false`},
		{name: "number for boolean", method: "flag", params: `[1]`, code: rpc.CodeTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &Request{ID: tt.name, Method: tt.method}
			if tt.params != "" {
				req.Params = json.RawMessage(tt.params)
			}
			if tt.named != nil {
				req.Named = make(map[string]json.RawMessage, len(tt.named))
				for k, v := range tt.named {
					req.Named[k] = json.RawMessage(v)
				}
			}
			resp := h.dispatcher.Dispatch(context.Background(), req)
			if resp.ID != tt.name {
				t.Errorf("dispatcher:dispatcher_test - response id = %q", resp.ID)
			}
			if tt.code != "" {
				expectCode(t, resp, tt.code)
				return
			}
			expectOk(t, resp, tt.want)
		})
	}
}

func TestDispatch_TypeMismatchDetails(t *testing.T) {
	h := newHarness(t)
	resp := h.call(t, "add", `["30"]`)
	expectCode(t, resp, rpc.CodeTypeMismatch)
	details := resp.Error.Details.(map[string]interface{})
	if details["parameter"] != "a" || details["expected"] != "integer" || details["actual"] != "string" {
		t.Errorf("dispatcher:dispatcher_test - details = %v", details)
	}
	if resp.Error.Retryable {
		t.Error("dispatcher:dispatcher_test - TYPE_MISMATCH must not be retryable")
	}
}

func TestDispatch_UnknownProcedureTouchesNothing(t *testing.T) {
	h := newHarness(t)
	expectCode(t, h.call(t, "frobnicate", `[1]`), rpc.CodeUnknownProcedure)
	if h.constructed.Load() != 0 || h.touches.Load() != 0 {
		t.Errorf("dispatcher:dispatcher_test - receiver touched: constructed=%d touches=%d", h.constructed.Load(), h.touches.Load())
	}
	if len(h.manager.Sessions()) != 0 {
		t.Errorf("dispatcher:dispatcher_test - session created for unknown procedure")
	}
}

func TestDispatch_BindErrorsTouchNothing(t *testing.T) {
	h := newHarness(t)
	expectCode(t, h.call(t, "add", `["x"]`), rpc.CodeTypeMismatch)
	if h.constructed.Load() != 0 {
		t.Error("dispatcher:dispatcher_test - receiver constructed for a rejected call")
	}
}

func TestDispatch_VoidResultIsNull(t *testing.T) {
	h := newHarness(t)
	resp := h.call(t, "touch", "")
	expectOk(t, resp, `null`)

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("dispatcher:dispatcher_test - marshal: %v", err)
	}
	if !strings.Contains(string(data), `"result":null`) {
		t.Errorf("dispatcher:dispatcher_test - void response must carry an explicit null result: %s", data)
	}
	if strings.Contains(string(data), `"error"`) {
		t.Errorf("dispatcher:dispatcher_test - ok response must not carry an error: %s", data)
	}
}

func TestDispatch_InvocationFailures(t *testing.T) {
	h := newHarness(t)

	resp := h.call(t, "boom", "")
	expectCode(t, resp, rpc.CodeInvocationFailure)
	if !strings.Contains(resp.Error.Message, "hardware fault") || !resp.Error.Retryable {
		t.Errorf("dispatcher:dispatcher_test - boom error = %+v", resp.Error)
	}

	expectCode(t, h.call(t, "crash", ""), rpc.CodeInvocationFailure)
	expectCode(t, h.call(t, "badResult", ""), rpc.CodeInvocationFailure)

	// The receiver survives a panicking call.
	expectOk(t, h.call(t, "add", `[1, 1]`), `2`)
}

func TestDispatch_VersionGate(t *testing.T) {
	h := newHarness(t)

	expectOk(t, h.call(t, "add@1", `[1]`), `2`)
	expectOk(t, h.call(t, "add@^1.0.0", `[1]`), `2`)
	expectOk(t, h.call(t, "modern@2", ""), `"v2"`)
	expectOk(t, h.call(t, "modern@>=2.1.0", ""), `"v2"`)

	resp := h.call(t, "add@^2.0.0", `[1]`)
	expectCode(t, resp, rpc.CodeIncompatibleVersion)
	details := resp.Error.Details.(map[string]interface{})
	if details["version"] != "1.0.0" || details["range"] != "^2.0.0" {
		t.Errorf("dispatcher:dispatcher_test - details = %v", details)
	}

	expectCode(t, h.call(t, "add@!!", `[1]`), rpc.CodeInvalidRequest)
	expectCode(t, h.call(t, "nope@1", ""), rpc.CodeUnknownProcedure)
}

func TestDispatch_InvalidRequests(t *testing.T) {
	h := newHarness(t)

	resp := h.dispatcher.Dispatch(context.Background(), nil)
	expectCode(t, resp, rpc.CodeInvalidRequest)

	expectCode(t, h.call(t, "", ""), rpc.CodeInvalidRequest)
	expectCode(t, h.call(t, "@1", ""), rpc.CodeInvalidRequest)
}

func TestDispatch_ClosedReceiverTwice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	expectOk(t, h.call(t, "touch", ""), `null`)
	sess, err := h.manager.Acquire("")
	if err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Acquire: %v", err)
	}
	if err := sess.Shutdown("Calc"); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Shutdown: %v", err)
	}
	touches := h.touches.Load()

	for i := 0; i < 2; i++ {
		resp := h.dispatcher.Dispatch(ctx, &Request{ID: "x", Method: "add", Params: json.RawMessage(`[1]`)})
		expectCode(t, resp, rpc.CodeReceiverClosed)
	}
	if h.touches.Load() != touches {
		t.Errorf("dispatcher:dispatcher_test - receiver invoked after shutdown")
	}
}

func TestDispatch_SessionsAreIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, _ := h.manager.Open()
	b, _ := h.manager.Open()

	for i := 0; i < 3; i++ {
		expectOk(t, h.dispatcher.Dispatch(ctx, &Request{Session: a, Method: "touch"}), `null`)
	}
	expectOk(t, h.dispatcher.Dispatch(ctx, &Request{Session: b, Method: "touch"}), `null`)

	expectOk(t, h.dispatcher.Dispatch(ctx, &Request{Session: a, Method: "count"}), `3`)
	expectOk(t, h.dispatcher.Dispatch(ctx, &Request{Session: b, Method: "count"}), `1`)

	if _, err := h.manager.Close(a); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Close: %v", err)
	}
	expectCode(t, h.dispatcher.Dispatch(ctx, &Request{Session: a, Method: "count"}), rpc.CodeReceiverClosed)
	expectOk(t, h.dispatcher.Dispatch(ctx, &Request{Session: b, Method: "count"}), `1`)
}

func TestRpcErrorToResponse_ForeignError(t *testing.T) {
	resp := rpcErrorToResponse("id-1", errors.New("database is down"))
	if resp.Ok || resp.Error.Code != rpc.CodeInternal || !resp.Error.Retryable {
		t.Errorf("dispatcher:dispatcher_test - unexpected response %+v", resp.Error)
	}
}
