package services

import (
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gabofunebre/backuper/migrations"
	"github.com/gabofunebre/backuper/repositories"
	"github.com/gabofunebre/backuper/transfer"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeTool is a scripted in-memory transfer tool shared by the service
// tests. Objects written through it land in listings keyed by route so the
// pipeline and the retention sweep can be exercised together.
type fakeTool struct {
	mu       sync.Mutex
	calls    []string
	configs  map[string]map[string]string
	listings map[string][]transfer.Object
	dirs     map[string][]string
	written  map[string][]byte
	fail     map[string]error
}

var _ transfer.Tool = (*fakeTool)(nil)

func newFakeTool() *fakeTool {
	return &fakeTool{
		configs:  map[string]map[string]string{},
		listings: map[string][]transfer.Object{},
		dirs:     map[string][]string{},
		written:  map[string][]byte{},
		fail:     map[string]error{},
	}
}

func (f *fakeTool) record(op string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, strings.TrimSpace(op+" "+strings.Join(args, " ")))
	return f.fail[op]
}

func (f *fakeTool) called(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if call == op || strings.HasPrefix(call, op+" ") {
			return true
		}
	}
	return false
}

func (f *fakeTool) WriteStream(ctx context.Context, target string, data io.Reader) (int64, error) {
	payload, readErr := io.ReadAll(data)
	if err := f.record("rcat", target); err != nil {
		return int64(len(payload)), err
	}
	if readErr != nil {
		return int64(len(payload)), readErr
	}
	f.mu.Lock()
	f.written[target] = payload
	f.mu.Unlock()
	return int64(len(payload)), nil
}

func (f *fakeTool) List(ctx context.Context, route string) ([]transfer.Object, error) {
	if err := f.record("lsl", route); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transfer.Object(nil), f.listings[route]...), nil
}

func (f *fakeTool) Delete(ctx context.Context, route, name string) error {
	if err := f.record("delete", transfer.JoinTarget(route, name)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.listings[route][:0]
	for _, object := range f.listings[route] {
		if object.Name != name {
			kept = append(kept, object)
		}
	}
	f.listings[route] = kept
	delete(f.written, transfer.JoinTarget(route, name))
	return nil
}

func (f *fakeTool) ListRemotes(ctx context.Context) ([]string, error) {
	if err := f.record("listremotes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.configs))
	for name := range f.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeTool) DumpConfig(ctx context.Context) (map[string]map[string]string, error) {
	if err := f.record("config dump"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dump := make(map[string]map[string]string, len(f.configs))
	for name, entry := range f.configs {
		copied := make(map[string]string, len(entry))
		for key, value := range entry {
			copied[key] = value
		}
		dump[name] = copied
	}
	return dump, nil
}

func (f *fakeTool) CreateConfig(ctx context.Context, name, remoteType string, params map[string]string) error {
	if err := f.record("config create", name, remoteType); err != nil {
		return err
	}
	entry := map[string]string{"type": remoteType}
	for key, value := range params {
		entry[key] = value
	}
	f.mu.Lock()
	f.configs[name] = entry
	f.mu.Unlock()
	return nil
}

func (f *fakeTool) DeleteConfig(ctx context.Context, name string) error {
	if err := f.record("config delete", name); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.configs, name)
	f.mu.Unlock()
	return nil
}

func (f *fakeTool) EnsureDir(ctx context.Context, ref string) error {
	return f.record("mkdir", ref)
}

func (f *fakeTool) CheckDir(ctx context.Context, ref string) error {
	return f.record("lsd", ref)
}

// ListDirs resolves seeded listings by the path part of ref, so tests do
// not need to predict randomized probe entry names.
func (f *fakeTool) ListDirs(ctx context.Context, ref string) ([]string, error) {
	if err := f.record("lsjson", ref); err != nil {
		return nil, err
	}
	key := ref
	if i := strings.Index(ref, ":"); i >= 0 {
		key = ref[i+1:]
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirs[key], nil
}

func (f *fakeTool) Purge(ctx context.Context, ref string) error {
	return f.record("purge", ref)
}

func (f *fakeTool) Move(ctx context.Context, source, target string) error {
	if err := f.record("moveto", source, target); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings[target] = append(f.listings[target], f.listings[source]...)
	delete(f.listings, source)
	return nil
}

func (f *fakeTool) Link(ctx context.Context, ref string) (string, error) {
	if err := f.record("link", ref); err != nil {
		return "", err
	}
	return "https://example.com/share/" + ref, nil
}

func (f *fakeTool) Obscure(ctx context.Context, secret string) (string, error) {
	if err := f.record("obscure"); err != nil {
		return "", err
	}
	return "obscured:" + secret, nil
}

type testRepos struct {
	apps       repositories.AppRepository
	remotes    repositories.RemoteRepository
	executions repositories.ExecutionRepository
}

func newTestRepos(t *testing.T) testRepos {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "backuper.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrations.RunMigrations(db))
	return testRepos{
		apps:       repositories.NewAppRepository(db),
		remotes:    repositories.NewRemoteRepository(db),
		executions: repositories.NewExecutionRepository(db),
	}
}
