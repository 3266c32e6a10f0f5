package hardware

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// fakeRunner answers commands from a table keyed by Command.String().
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]Result
	calls   []Command
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{results: make(map[string]Result)}
}

func (f *fakeRunner) on(cmdline string, r Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[cmdline] = r
}

func (f *fakeRunner) Run(_ context.Context, cmd Command) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	if r, ok := f.results[cmd.String()]; ok {
		return r
	}
	return Result{Err: os.ErrNotExist}
}

func (f *fakeRunner) Start(ctx context.Context, cmd Command) <-chan Result {
	return resultOf(f.Run(ctx, cmd))
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeFile creates root/rel with content, making parent directories.
func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
