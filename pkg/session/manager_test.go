package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/morezero/device-facades/pkg/platform"
	"github.com/morezero/device-facades/pkg/rpc"
)

func newTestManager(t *testing.T, f *fixture) (*Manager, *atomic.Int32) {
	t.Helper()
	return newLimitedManager(t, f, 0)
}

func newLimitedManager(t *testing.T, f *fixture, retiredLimit int) (*Manager, *atomic.Int32) {
	t.Helper()
	var hosts atomic.Int32
	m := NewManager(NewManagerParams{
		Types:        f.types,
		RetiredLimit: retiredLimit,
		HostFactory: func(sessionID string) (platform.Host, error) {
			hosts.Add(1)
			return platform.NewHost(platform.HostParams{
				SessionID: sessionID,
				Settings:  f.device,
				Audio:     f.device,
				Wifi:      f.device,
			}), nil
		},
	})
	return m, &hosts
}

func TestManager_OpenIssuesDistinctIDs(t *testing.T) {
	f := newFixture(t, false, nil)
	m, hosts := newTestManager(t, f)

	a, err := m.Open()
	if err != nil {
		t.Fatalf("session:manager_test - Open: %v", err)
	}
	b, _ := m.Open()
	if a == "" || a == b {
		t.Errorf("session:manager_test - ids %q and %q should be distinct and non-empty", a, b)
	}
	if hosts.Load() != 2 {
		t.Errorf("session:manager_test - built %d hosts, want 2", hosts.Load())
	}
	if got := m.Sessions(); len(got) != 2 {
		t.Errorf("session:manager_test - Sessions = %v", got)
	}
}

func TestManager_AcquireDefaultAndReuse(t *testing.T) {
	f := newFixture(t, false, nil)
	m, hosts := newTestManager(t, f)

	s1, err := m.Acquire("")
	if err != nil {
		t.Fatalf("session:manager_test - Acquire: %v", err)
	}
	s2, _ := m.Acquire(DefaultSessionID)
	if s1 != s2 || s1.ID() != DefaultSessionID {
		t.Errorf("session:manager_test - empty id should map to the default session")
	}
	if hosts.Load() != 1 {
		t.Errorf("session:manager_test - built %d hosts, want 1", hosts.Load())
	}
}

func TestManager_CloseRetiresSession(t *testing.T) {
	f := newFixture(t, false, nil)
	m, _ := newTestManager(t, f)

	id, _ := m.Open()
	s, _ := m.Acquire(id)
	if _, err := s.Invoke(context.Background(), f.read, rpc.NewArgs(f.read, nil)); err != nil {
		t.Fatalf("session:manager_test - Invoke: %v", err)
	}

	closed, err := m.Close(id)
	if !closed || err != nil {
		t.Fatalf("session:manager_test - Close = %v, %v", closed, err)
	}
	if f.shutdowns.Load() != 1 {
		t.Errorf("session:manager_test - receivers shut down %d times", f.shutdowns.Load())
	}
	if _, err := m.Acquire(id); !rpc.IsCode(err, rpc.CodeReceiverClosed) {
		t.Errorf("session:manager_test - expected RECEIVER_CLOSED for a closed session, got %v", err)
	}
	if closed, _ := m.Close(id); closed {
		t.Error("session:manager_test - second Close should report false")
	}
}

func TestManager_CloseDefaultResets(t *testing.T) {
	f := newFixture(t, false, nil)
	m, _ := newTestManager(t, f)

	first, _ := m.Acquire("")
	if closed, _ := m.Close(""); !closed {
		t.Fatal("session:manager_test - default session should close")
	}
	second, err := m.Acquire("")
	if err != nil || second == first {
		t.Errorf("session:manager_test - default session should be recreated, got %v", err)
	}
}

func TestManager_CloseAll(t *testing.T) {
	f := newFixture(t, false, errors.New("handle leak"))
	m, _ := newTestManager(t, f)

	for i := 0; i < 2; i++ {
		id, err := m.Open()
		if err != nil {
			t.Fatalf("session:manager_test - Open: %v", err)
		}
		s, _ := m.Acquire(id)
		if _, err := s.GetOrCreate("Gauge"); err != nil {
			t.Fatalf("session:manager_test - GetOrCreate: %v", err)
		}
	}

	err := m.CloseAll()
	if err == nil || strings.Count(err.Error(), "handle leak") != 2 {
		t.Errorf("session:manager_test - expected two aggregated failures, got %v", err)
	}
	if f.shutdowns.Load() != 2 {
		t.Errorf("session:manager_test - shutdowns = %d, want 2", f.shutdowns.Load())
	}
	if _, err := m.Acquire(""); !rpc.IsCode(err, rpc.CodeReceiverClosed) {
		t.Errorf("session:manager_test - expected RECEIVER_CLOSED after CloseAll, got %v", err)
	}
	if _, err := m.Open(); !rpc.IsCode(err, rpc.CodeReceiverClosed) {
		t.Errorf("session:manager_test - Open after CloseAll = %v, want RECEIVER_CLOSED", err)
	}
}

func TestManager_AcquireRejectsUnissuedIDs(t *testing.T) {
	f := newFixture(t, false, nil)
	m, hosts := newTestManager(t, f)

	for _, id := range []string{"typo", "0d6c3a1e-0000-0000-0000-000000000000"} {
		if _, err := m.Acquire(id); !rpc.IsCode(err, rpc.CodeInvalidRequest) {
			t.Errorf("session:manager_test - Acquire(%q) = %v, want INVALID_REQUEST", id, err)
		}
	}
	if hosts.Load() != 0 || len(m.Sessions()) != 0 {
		t.Errorf("session:manager_test - unissued ids must not create sessions (hosts=%d)", hosts.Load())
	}
}

func TestManager_RetiredIDsAreBounded(t *testing.T) {
	f := newFixture(t, false, nil)
	m, _ := newLimitedManager(t, f, 2)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := m.Open()
		if err != nil {
			t.Fatalf("session:manager_test - Open: %v", err)
		}
		if _, err := m.Close(id); err != nil {
			t.Fatalf("session:manager_test - Close: %v", err)
		}
		ids = append(ids, id)
	}

	if m.retired.Len() != 2 {
		t.Errorf("session:manager_test - remembered %d retired ids, want 2", m.retired.Len())
	}
	if _, err := m.Acquire(ids[2]); !rpc.IsCode(err, rpc.CodeReceiverClosed) {
		t.Errorf("session:manager_test - recent retired id = %v, want RECEIVER_CLOSED", err)
	}
	// Forgotten ids are still refused, never recreated.
	if _, err := m.Acquire(ids[0]); !rpc.IsCode(err, rpc.CodeInvalidRequest) {
		t.Errorf("session:manager_test - evicted retired id = %v, want INVALID_REQUEST", err)
	}
	if len(m.Sessions()) != 0 {
		t.Errorf("session:manager_test - Sessions = %v, want none", m.Sessions())
	}
}

func TestManager_HostFactoryError(t *testing.T) {
	m := NewManager(NewManagerParams{
		Types:       typeTable{},
		HostFactory: func(string) (platform.Host, error) { return nil, errors.New("no device") },
	})
	if _, err := m.Open(); err == nil {
		t.Error("session:manager_test - expected host factory error")
	}
}
