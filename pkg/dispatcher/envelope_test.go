package dispatcher

import (
	"encoding/json"
	"testing"
)

func TestRequest_Unmarshal(t *testing.T) {
	raw := `{
		"id": "req-1",
		"session": "5b1f",
		"method": "setScreenTimeout@1",
		"params": [30],
		"named": {"value": 45},
		"ctx": {"requestId": "r-9", "caller": "script.py", "timeoutMs": 500}
	}`

	var req Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("dispatcher:envelope_test - failed to unmarshal: %v", err)
	}

	if req.ID != "req-1" || req.Session != "5b1f" {
		t.Errorf("dispatcher:envelope_test - id/session = %s/%s", req.ID, req.Session)
	}
	if req.Method != "setScreenTimeout@1" {
		t.Errorf("dispatcher:envelope_test - method = %s", req.Method)
	}
	if string(req.Params) != `[30]` {
		t.Errorf("dispatcher:envelope_test - params = %s", req.Params)
	}
	if string(req.Named["value"]) != `45` {
		t.Errorf("dispatcher:envelope_test - named = %v", req.Named)
	}
	if req.Ctx == nil || req.Ctx.Caller != "script.py" || req.Ctx.TimeoutMs != 500 {
		t.Errorf("dispatcher:envelope_test - ctx = %+v", req.Ctx)
	}
}

func TestResponse_MarshalError(t *testing.T) {
	resp := errorResponse("req-2", "UNKNOWN_PROCEDURE", "Unknown procedure: x", false)

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("dispatcher:envelope_test - failed to marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("dispatcher:envelope_test - failed to unmarshal: %v", err)
	}
	if decoded["ok"] != false {
		t.Errorf("dispatcher:envelope_test - ok = %v", decoded["ok"])
	}
	if _, present := decoded["result"]; present {
		t.Error("dispatcher:envelope_test - error response must omit result")
	}
	errObj, ok := decoded["error"].(map[string]interface{})
	if !ok {
		t.Fatal("dispatcher:envelope_test - expected error object")
	}
	if errObj["code"] != "UNKNOWN_PROCEDURE" || errObj["retryable"] != false {
		t.Errorf("dispatcher:envelope_test - error = %v", errObj)
	}
}

func TestSessionEnvelopes(t *testing.T) {
	data, _ := json.Marshal(&SessionOpenResponse{Ok: true, Session: "abc"})
	if string(data) != `{"ok":true,"session":"abc"}` {
		t.Errorf("dispatcher:envelope_test - open = %s", data)
	}
	data, _ = json.Marshal(&SessionCloseResponse{Ok: true, Closed: false})
	if string(data) != `{"ok":true,"closed":false}` {
		t.Errorf("dispatcher:envelope_test - close = %s", data)
	}
}
