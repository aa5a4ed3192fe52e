package transfer

import (
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gabofunebre/backuper/models"

	"github.com/sirupsen/logrus"
)

// Rclone drives the rclone binary against a dedicated configuration file.
// The exec functions are injectable so tests can script the tool.
type Rclone struct {
	binary      string
	configPath  string
	execCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
	execPiped   func(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)
	lookPath    func(string) (string, error)
}

// NewRclone creates a Tool implementation backed by the rclone binary and
// the given configuration file.
func NewRclone(configPath string) *Rclone {
	return &Rclone{
		binary:      "rclone",
		configPath:  configPath,
		execCommand: defaultExecCommand,
		execPiped:   defaultExecPiped,
		lookPath:    exec.LookPath,
	}
}

func defaultExecCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

func defaultExecPiped(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	return cmd.CombinedOutput()
}

func (t *Rclone) run(ctx context.Context, args ...string) ([]byte, error) {
	if _, err := t.lookPath(t.binary); err != nil {
		return nil, models.WrapError(models.ErrBackendUnavailable, "rclone is not installed", err)
	}
	full := append([]string{"--config", t.configPath}, args...)
	logrus.WithField("op", args[0]).Debug("Running transfer tool command")
	output, err := t.execCommand(ctx, t.binary, full...)
	if err != nil {
		return output, wrapToolError(args[0], output, err)
	}
	return output, nil
}

func wrapToolError(op string, output []byte, err error) error {
	message := firstLine(output)
	if message == "" {
		message = err.Error()
	}
	return models.WrapError(models.ErrBackendUnavailable, "rclone "+op+" failed: "+message, err)
}

func firstLine(output []byte) string {
	for _, line := range strings.Split(string(output), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// WriteStream pipes data into rcat, creating one object at target.
func (t *Rclone) WriteStream(ctx context.Context, target string, data io.Reader) (int64, error) {
	if _, err := t.lookPath(t.binary); err != nil {
		return 0, models.WrapError(models.ErrBackendUnavailable, "rclone is not installed", err)
	}
	counter := &countingReader{reader: data}
	args := []string{"--config", t.configPath, "rcat", target}
	output, err := t.execPiped(ctx, counter, t.binary, args...)
	if err != nil {
		return counter.count, wrapToolError("rcat", output, err)
	}
	return counter.count, nil
}

// List parses the tool's long listing of route into objects.
func (t *Rclone) List(ctx context.Context, route string) ([]Object, error) {
	output, err := t.run(ctx, "lsl", route)
	if err != nil {
		return nil, err
	}
	var objects []Object
	for _, line := range strings.Split(string(output), "\n") {
		if object, ok := parseListingLine(line); ok {
			objects = append(objects, object)
		}
	}
	return objects, nil
}

// Delete removes a single object under route.
func (t *Rclone) Delete(ctx context.Context, route, name string) error {
	_, err := t.run(ctx, "delete", JoinTarget(route, name))
	return err
}

// ListRemotes returns the names of the configured entries.
func (t *Rclone) ListRemotes(ctx context.Context) ([]string, error) {
	output, err := t.run(ctx, "listremotes")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(string(output), "\n") {
		name := strings.TrimSuffix(strings.TrimSpace(line), ":")
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// DumpConfig returns every configured entry with its key/value pairs.
func (t *Rclone) DumpConfig(ctx context.Context) (map[string]map[string]string, error) {
	output, err := t.run(ctx, "config", "dump")
	if err != nil {
		return nil, err
	}
	entries := make(map[string]map[string]string)
	if len(strings.TrimSpace(string(output))) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(output, &entries); err != nil {
		return nil, models.WrapError(models.ErrBackendUnavailable, "rclone config dump returned invalid JSON", err)
	}
	return entries, nil
}

// CreateConfig adds a configuration entry. Drive entries are created with
// --no-auto-auth so the tool never opens an interactive flow; older
// binaries without the flag get a retry without it.
func (t *Rclone) CreateConfig(ctx context.Context, name, remoteType string, params map[string]string) error {
	args := []string{"config", "create", "--non-interactive", name, remoteType}
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, key, params[key])
	}
	if remoteType == models.RemoteTypeDrive {
		withFlag := append(append([]string{}, args...), "--no-auto-auth")
		output, err := t.run(ctx, withFlag...)
		if err == nil {
			return nil
		}
		if !strings.Contains(string(output), "unknown flag") {
			return err
		}
	}
	_, err := t.run(ctx, args...)
	return err
}

// DeleteConfig removes a configuration entry.
func (t *Rclone) DeleteConfig(ctx context.Context, name string) error {
	_, err := t.run(ctx, "config", "delete", name)
	return err
}

// EnsureDir creates the directory ref points at, parents included.
func (t *Rclone) EnsureDir(ctx context.Context, ref string) error {
	_, err := t.run(ctx, "mkdir", ref)
	return err
}

// CheckDir verifies ref is listable with the configured credentials.
func (t *Rclone) CheckDir(ctx context.Context, ref string) error {
	_, err := t.run(ctx, "lsd", ref)
	return err
}

// ListDirs returns the names of the directories directly under ref.
func (t *Rclone) ListDirs(ctx context.Context, ref string) ([]string, error) {
	output, err := t.run(ctx, "lsjson", ref, "--dirs-only")
	if err != nil {
		return nil, err
	}
	var entries []struct {
		Name string `json:"Name"`
	}
	if err := json.Unmarshal(output, &entries); err != nil {
		return nil, models.WrapError(models.ErrBackendUnavailable, "rclone lsjson returned invalid JSON", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Name != "" {
			names = append(names, entry.Name)
		}
	}
	return names, nil
}

// Purge removes ref and everything below it.
func (t *Rclone) Purge(ctx context.Context, ref string) error {
	_, err := t.run(ctx, "purge", ref)
	return err
}

// Move relocates source to target, including contents.
func (t *Rclone) Move(ctx context.Context, source, target string) error {
	_, err := t.run(ctx, "moveto", source, target)
	return err
}

// Link returns a public link for ref.
func (t *Rclone) Link(ctx context.Context, ref string) (string, error) {
	output, err := t.run(ctx, "link", "--create-link", ref)
	if err != nil {
		return "", err
	}
	url := firstLine(output)
	if url == "" {
		return "", models.NewError(models.ErrBackendUnavailable, "rclone link returned no URL")
	}
	return url, nil
}

// Obscure converts a plain secret into the tool's obscured form.
func (t *Rclone) Obscure(ctx context.Context, secret string) (string, error) {
	output, err := t.run(ctx, "obscure", secret)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// parseListingLine handles the "<size> <date> <time> <name>" lines of lsl.
func parseListingLine(line string) (Object, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Object{}, false
	}
	fields := strings.Fields(trimmed)
	if len(fields) < 4 {
		return Object{}, false
	}
	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Object{}, false
	}
	clockEnd := strings.Index(trimmed, fields[2]) + len(fields[2])
	name := strings.TrimSpace(trimmed[clockEnd:])
	if name == "" {
		return Object{}, false
	}
	clock := fields[2]
	if dot := strings.Index(clock, "."); dot >= 0 {
		clock = clock[:dot]
	}
	modTime, err := time.Parse("2006-01-02 15:04:05", fields[1]+" "+clock)
	if err != nil {
		modTime = time.Time{}
	}
	return Object{Name: name, Size: size, ModTime: modTime}, true
}

type countingReader struct {
	reader io.Reader
	count  int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.count += int64(n)
	return n, err
}
