// Package transfer wraps the external tool that moves bytes between the
// orchestrator and the storage backends. The rest of the service depends on
// the Tool interface only, never on the tool's command line.
package transfer

import (
	"context"
	"io"
	"strings"
	"time"
)

// Object is one stored artifact as reported by the tool's listing.
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Tool is the capability surface the service consumes. Targets and refs use
// the tool's addressing: an absolute directory for local backends or a
// "<entry>:<path>" reference for configured ones.
type Tool interface {
	// WriteStream pipes data into a new object at target and returns the
	// number of bytes handed to the tool.
	WriteStream(ctx context.Context, target string, data io.Reader) (int64, error)
	// List returns the objects stored directly under route.
	List(ctx context.Context, route string) ([]Object, error)
	// Delete removes the named object under route.
	Delete(ctx context.Context, route, name string) error

	ListRemotes(ctx context.Context) ([]string, error)
	DumpConfig(ctx context.Context) (map[string]map[string]string, error)
	CreateConfig(ctx context.Context, name, remoteType string, params map[string]string) error
	DeleteConfig(ctx context.Context, name string) error

	EnsureDir(ctx context.Context, ref string) error
	CheckDir(ctx context.Context, ref string) error
	ListDirs(ctx context.Context, ref string) ([]string, error)
	Purge(ctx context.Context, ref string) error
	Move(ctx context.Context, source, target string) error
	Link(ctx context.Context, ref string) (string, error)
	Obscure(ctx context.Context, secret string) (string, error)
}

// JoinTarget appends an object name to a route, respecting config-reference
// roots ("entry:") that must not gain an extra separator.
func JoinTarget(route, name string) string {
	if name == "" {
		return route
	}
	if route == "" {
		return name
	}
	if strings.HasSuffix(route, ":") || strings.HasSuffix(route, "/") {
		return route + name
	}
	return route + "/" + name
}
