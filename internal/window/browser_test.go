package window

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nugget/kioskbridge/internal/hardware"
)

type fakeProcess struct {
	pid     int
	done    chan struct{}
	once    sync.Once
	stopped bool
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) Stop() {
	p.once.Do(func() {
		p.stopped = true
		close(p.done)
	})
}

type fakeLauncher struct {
	mu       sync.Mutex
	launches []hardware.Command
	procs    []*fakeProcess
}

func (l *fakeLauncher) launch(_ context.Context, cmd hardware.Command) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := &fakeProcess{pid: 100 + len(l.procs), done: make(chan struct{})}
	l.launches = append(l.launches, cmd)
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) last() hardware.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches[len(l.launches)-1]
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	out   map[string]hardware.Result
}

func (r *fakeRunner) Run(_ context.Context, cmd hardware.Command) hardware.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd.String())
	if res, ok := r.out[cmd.String()]; ok {
		return res
	}
	return hardware.Result{Err: errors.New("not found")}
}

func (r *fakeRunner) Start(ctx context.Context, cmd hardware.Command) <-chan hardware.Result {
	ch := make(chan hardware.Result, 1)
	ch <- r.Run(ctx, cmd)
	close(ch)
	return ch
}

func newTestBrowser(t *testing.T, runner *fakeRunner) (*Browser, *fakeLauncher, *atomic.Int32) {
	t.Helper()
	l := &fakeLauncher{}
	exits := &atomic.Int32{}
	b := NewBrowser(BrowserConfig{
		Command: "chromium-browser",
		URL:     "http://ha.local:8123",
		Theme:   "dark",
		Zoom:    1.25,
		Runner:  runner,
		Launch:  l.launch,
		OnExit:  func() { exits.Add(1) },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return b, l, exits
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes {
		got, err := ParseMode(string(m))
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %q, %v", m, got, err)
		}
	}
	for _, bad := range []string{"", "fullscreen", "Closed"} {
		if _, err := ParseMode(bad); !errors.Is(err, ErrInvalidMode) {
			t.Errorf("ParseMode(%q) error = %v, want ErrInvalidMode", bad, err)
		}
	}
}

func TestBrowserArgs(t *testing.T) {
	b, l, _ := newTestBrowser(t, &fakeRunner{})
	args := l.last().Args

	for _, want := range []string{"--kiosk", "--force-dark-mode", "--force-device-scale-factor=1.25"} {
		if !slices.Contains(args, want) {
			t.Errorf("fullscreen args %v missing %s", args, want)
		}
	}
	if args[len(args)-1] != "http://ha.local:8123" {
		t.Errorf("URL not last: %v", args)
	}
	if framed := b.Args(Framed); slices.Contains(framed, "--kiosk") || slices.Contains(framed, "--start-maximized") {
		t.Errorf("framed args %v should carry no window flag", framed)
	}
}

func TestSetMode_Relaunches(t *testing.T) {
	b, l, exits := newTestBrowser(t, &fakeRunner{})
	ctx := context.Background()

	if err := b.SetMode(ctx, Maximized); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if b.Mode() != Maximized {
		t.Errorf("Mode = %q", b.Mode())
	}
	if l.count() != 2 || !slices.Contains(l.last().Args, "--start-maximized") {
		t.Errorf("launches = %d, last %v", l.count(), l.last().Args)
	}
	if !l.procs[0].stopped {
		t.Error("previous browser not stopped")
	}

	// Same mode again is a no-op.
	if err := b.SetMode(ctx, Maximized); err != nil || l.count() != 2 {
		t.Errorf("repeat SetMode relaunched: count %d err %v", l.count(), err)
	}

	// Give the old process watcher a moment; a relaunch is not an exit.
	time.Sleep(10 * time.Millisecond)
	if exits.Load() != 0 {
		t.Errorf("OnExit called %d times during relaunch", exits.Load())
	}
}

func TestSetMode_Minimized(t *testing.T) {
	runner := &fakeRunner{out: map[string]hardware.Result{
		"xdotool search --pid 100 windowminimize": {},
	}}
	b, l, _ := newTestBrowser(t, runner)

	if err := b.SetMode(context.Background(), Minimized); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if b.Mode() != Minimized || l.count() != 1 {
		t.Errorf("Mode = %q, launches = %d", b.Mode(), l.count())
	}
}

func TestTerminate_Once(t *testing.T) {
	b, l, exits := newTestBrowser(t, &fakeRunner{})

	if err := b.SetMode(context.Background(), Terminated); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	b.Terminate()

	if b.Mode() != Terminated {
		t.Errorf("Mode = %q", b.Mode())
	}
	if !l.procs[0].stopped {
		t.Error("browser not stopped")
	}
	time.Sleep(10 * time.Millisecond)
	if exits.Load() != 1 {
		t.Errorf("OnExit called %d times, want 1", exits.Load())
	}
	if err := b.Reload(context.Background()); err == nil {
		t.Error("Reload after terminate should fail")
	}
}

func TestBrowserExitTerminates(t *testing.T) {
	b, l, exits := newTestBrowser(t, &fakeRunner{})
	l.procs[0].Stop()

	deadline := time.Now().Add(time.Second)
	for b.Mode() != Terminated && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if b.Mode() != Terminated {
		t.Fatalf("Mode = %q after browser exit", b.Mode())
	}
	for exits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if exits.Load() != 1 {
		t.Errorf("OnExit called %d times", exits.Load())
	}
}

func TestLastInput(t *testing.T) {
	runner := &fakeRunner{out: map[string]hardware.Result{"xprintidle": {Output: "60000"}}}
	b, _, _ := newTestBrowser(t, runner)

	got := b.LastInput(context.Background())
	if ago := time.Since(got); ago < 59*time.Second || ago > 61*time.Second {
		t.Errorf("LastInput %v ago, want about 60s", ago)
	}

	runner.out = nil
	if err := b.SetMode(context.Background(), Framed); err != nil {
		t.Fatal(err)
	}
	if ago := time.Since(b.LastInput(context.Background())); ago > time.Second {
		t.Errorf("fallback LastInput %v ago, want recent", ago)
	}
}
