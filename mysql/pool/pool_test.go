package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeConn is a minimal Conn for exercising Pool without a real server.
type fakeConn struct {
	mu       sync.Mutex
	closed   bool
	poisoned bool
	pingErr  error
}

func (f *fakeConn) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeConn) Poisoned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poisoned
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testConfig() Config {
	return Config{
		MinConnections:      0,
		MaxConnections:      4,
		ConnectionTimeout:   500 * time.Millisecond,
		IdleTimeout:         10 * time.Second,
		MaxLifetime:         40 * time.Second,
		KeepaliveTime:       30 * time.Second,
		ValidationTimeout:   250 * time.Millisecond,
		MaintenanceInterval: 1 * time.Second,
	}
}

func newTestPool(t *testing.T, cfg Config) (*Pool, *int32) {
	t.Helper()
	var created int32
	dial := func(ctx context.Context) (Conn, error) {
		atomic.AddInt32(&created, 1)
		return &fakeConn{}, nil
	}
	p, err := New("test", dial, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Close)
	return p, &created
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p, _ := newTestPool(t, testConfig())

	e, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if s := p.Status(); s.Active != 1 || s.Idle != 0 {
		t.Errorf("status after acquire = %+v", s)
	}
	p.Release(e)
	if s := p.Status(); s.Active != 0 || s.Idle != 1 {
		t.Errorf("status after release = %+v", s)
	}
}

func TestConfigValidateRejectsBelowFloors(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectionTimeout = 10 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for connectionTimeout below floor")
	}
}

// TestPoolSaturation is the concrete scenario from the module's testable
// properties: min=2, max=4, connectionTimeout=500ms. Four concurrent
// acquires succeed; a fifth fails with AcquireTimeoutError within
// [450ms, 700ms]; after one release the fifth (retried) succeeds.
func TestPoolSaturation(t *testing.T) {
	cfg := testConfig()
	cfg.MinConnections = 2
	cfg.MaxConnections = 4
	cfg.ConnectionTimeout = 500 * time.Millisecond
	p, _ := newTestPool(t, cfg)

	var entries []*Entry
	for i := 0; i < 4; i++ {
		e, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		entries = append(entries, e)
	}

	start := time.Now()
	_, err := p.Acquire(context.Background())
	elapsed := time.Since(start)
	if err == nil {
		t.Fatal("expected fifth acquire to time out")
	}
	var timeoutErr *AcquireTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error type = %T, want *AcquireTimeoutError", err)
	}
	if elapsed < 450*time.Millisecond || elapsed > 700*time.Millisecond {
		t.Errorf("fifth acquire took %s, want within [450ms, 700ms]", elapsed)
	}

	// release one, then a retried acquire should succeed promptly
	p.Release(entries[0])
	e, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("retried acquire after release: %v", err)
	}
	p.Release(e)
	for _, e := range entries[1:] {
		p.Release(e)
	}
}

func TestAcquireFIFOOrdering(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	cfg.ConnectionTimeout = 2 * time.Second
	p, _ := newTestPool(t, cfg)

	first, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	const n = 3
	order := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// stagger enqueue order deterministically
			time.Sleep(time.Duration(i) * 20 * time.Millisecond)
			e, err := p.Acquire(context.Background())
			if err != nil {
				t.Errorf("waiter %d: acquire failed: %v", i, err)
				return
			}
			order <- i
			p.Release(e)
		}(i)
	}

	time.Sleep(100 * time.Millisecond) // let all three enqueue
	p.Release(first)
	wg.Wait()
	close(order)

	var got []int
	for v := range order {
		got = append(got, v)
	}
	if len(got) != n {
		t.Fatalf("got %d completions, want %d", len(got), n)
	}
	for i, v := range got {
		if v != i {
			t.Errorf("completion order = %v, want FIFO 0,1,2", got)
			break
		}
	}
}

func TestReleasePoisonedConnectionIsDestroyed(t *testing.T) {
	p, created := newTestPool(t, testConfig())

	e, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	fc := e.Conn().(*fakeConn)
	fc.mu.Lock()
	fc.poisoned = true
	fc.mu.Unlock()

	p.Release(e)

	if s := p.Status(); s.Idle != 0 || s.Total != 0 {
		t.Errorf("status after releasing poisoned entry = %+v, want idle=0 total=0", s)
	}
	if !fc.closed {
		t.Error("poisoned connection was not closed")
	}
	if atomic.LoadInt32(created) != 1 {
		t.Errorf("created = %d, want 1 (no eager top-up without MinConnections)", *created)
	}
}

func TestClosedPoolRejectsAcquire(t *testing.T) {
	p, _ := newTestPool(t, testConfig())
	p.Close()

	_, err := p.Acquire(context.Background())
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("error = %v, want ErrPoolClosed", err)
	}
}

// TestCloseWakesParkedWaiters exercises Close racing a goroutine parked
// in Acquire's waiter select: the waiter must come back with
// ErrPoolClosed, not a nil *Entry panic.
func TestCloseWakesParkedWaiters(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	cfg.ConnectionTimeout = 5 * time.Second
	p, _ := newTestPool(t, cfg)

	e, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_ = e // held for the lifetime of the test; never released

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		errCh <- err
	}()

	time.Sleep(100 * time.Millisecond) // let the waiter enqueue
	p.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrPoolClosed) {
			t.Errorf("parked waiter error = %v, want ErrPoolClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("parked waiter never woke up after Close")
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	cfg.ConnectionTimeout = 5 * time.Second
	p, _ := newTestPool(t, cfg)

	e, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer p.Release(e)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = p.Acquire(ctx)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
	if time.Since(start) > 300*time.Millisecond {
		t.Errorf("cancellation took too long: %s", time.Since(start))
	}
}
