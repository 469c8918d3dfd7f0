package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/tempo/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
discord:
  token: bot-token
nodes:
  default:
    - name: local
      address: localhost:2333
      password: youshallnotpass
playback:
  idle_timeout: 10s
`

const watcherUpdatedYAML = `
server:
  log_level: debug
discord:
  token: bot-token
nodes:
  default:
    - name: local
      address: localhost:2333
      password: youshallnotpass
playback:
  idle_timeout: 2m
store:
  postgres_dsn: "postgres://localhost/tempo"
`

// Same config as watcherValidYAML with a comment and reordered sections.
const watcherReformattedYAML = `
# tempo
playback:
  idle_timeout: 10s
discord:
  token: bot-token
server:
  log_level: info
nodes:
  default:
    - name: local
      address: "localhost:2333"
      password: youshallnotpass
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

type diffRecorder struct {
	mu    sync.Mutex
	diffs []config.ConfigDiff
	fired chan struct{}
}

func newDiffRecorder() *diffRecorder {
	return &diffRecorder{fired: make(chan struct{}, 8)}
}

func (r *diffRecorder) onChange(_, _ *config.Config, d config.ConfigDiff) {
	r.mu.Lock()
	r.diffs = append(r.diffs, d)
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *diffRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.diffs)
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Playback.IdleTimeout != 10*time.Second {
		t.Errorf("idle_timeout: got %s, want 10s", cfg.Playback.IdleTimeout)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	rec := newDiffRecorder()
	w, err := config.NewWatcher(cfgPath, rec.onChange, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, cfgPath, watcherUpdatedYAML)

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}

	rec.mu.Lock()
	got := rec.diffs[0]
	rec.mu.Unlock()
	want := config.ConfigDiff{
		LogLevelChanged:    true,
		NewLogLevel:        config.LogDebug,
		IdleTimeoutChanged: true,
		NewIdleTimeout:     2 * time.Minute,
		RestartRequired:    []string{"store"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diff mismatch (-want +got):\n%s", diff)
	}

	if cur := w.Current(); cur.Server.LogLevel != config.LogDebug {
		t.Errorf("Current() log_level: got %q, want %q", cur.Server.LogLevel, config.LogDebug)
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	rec := newDiffRecorder()
	w, err := config.NewWatcher(cfgPath, rec.onChange, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	writeFile(t, cfgPath, watcherUpdatedYAML)
	w.Reload()

	if got := rec.count(); got != 1 {
		t.Fatalf("callbacks after Reload: got %d, want 1", got)
	}
	if cur := w.Current(); cur.Store.PostgresDSN != "postgres://localhost/tempo" {
		t.Errorf("Current() postgres_dsn: got %q", cur.Store.PostgresDSN)
	}

	// Nothing changed since.
	w.Reload()
	if got := rec.count(); got != 1 {
		t.Errorf("callbacks after second Reload: got %d, want 1", got)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	rec := newDiffRecorder()
	w, err := config.NewWatcher(cfgPath, rec.onChange, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	writeFile(t, cfgPath, watcherInvalidYAML)
	w.Reload()

	if got := rec.count(); got != 0 {
		t.Errorf("callback should not be called for invalid config, got %d calls", got)
	}
	if cur := w.Current(); cur.Server.LogLevel != config.LogInfo {
		t.Errorf("Current() should still have old config, got log_level=%q", cur.Server.LogLevel)
	}
}

func TestWatcher_ReformatWithoutSemanticChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	rec := newDiffRecorder()
	w, err := config.NewWatcher(cfgPath, rec.onChange, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	writeFile(t, cfgPath, watcherReformattedYAML)
	w.Reload()

	if got := rec.count(); got != 0 {
		t.Errorf("callback should not fire for a reformatted file, got %d calls", got)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	_, err := config.NewWatcher("/nonexistent/path.yaml", nil)
	if err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w.Stop()
	w.Stop()
	w.Stop()
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	rec := newDiffRecorder()
	w, err := config.NewWatcher(cfgPath, rec.onChange, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(cfgPath, now, now); err != nil {
		t.Fatalf("failed to touch file: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	if got := rec.count(); got != 0 {
		t.Errorf("callback should not fire for touch-only, got %d calls", got)
	}
}

func TestWatcher_ConcurrentReloadsReportOnce(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	rec := newDiffRecorder()
	w, err := config.NewWatcher(cfgPath, rec.onChange, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	writeFile(t, cfgPath, watcherUpdatedYAML)
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Reload()
		}()
	}
	wg.Wait()

	if got := rec.count(); got != 1 {
		t.Errorf("callback calls = %d, want 1", got)
	}
}
