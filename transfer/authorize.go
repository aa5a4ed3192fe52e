package transfer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gabofunebre/backuper/models"

	"github.com/google/uuid"
)

const (
	authURLTimeout   = 30 * time.Second
	authTokenTimeout = 60 * time.Second
)

var authURLPattern = regexp.MustCompile(`https?://\S+`)

// errUnknownFlag marks a binary too old for --auth-no-open-browser; the
// flow is retried without the flag.
var errUnknownFlag = errors.New("unknown authorize flag")

// AuthSession is a pending interactive authorization. The caller shows URL
// to the user and later submits the verification code under ID.
type AuthSession struct {
	ID  string `json:"auth_id"`
	URL string `json:"auth_url"`
}

type authorizeProcess struct {
	lines  <-chan string
	stdin  io.Writer
	stopFn func()
	once   sync.Once
}

func (p *authorizeProcess) stop() {
	p.once.Do(func() {
		if p.stopFn != nil {
			p.stopFn()
		}
	})
}

// Authorizer runs the tool's interactive authorization flow and keeps the
// processes of pending sessions alive until a code arrives.
type Authorizer struct {
	mu       sync.Mutex
	sessions map[string]*authorizeProcess
	launch   func(compat bool) (*authorizeProcess, error)
}

// NewAuthorizer creates an Authorizer that spawns the rclone binary.
func NewAuthorizer() *Authorizer {
	return &Authorizer{
		sessions: make(map[string]*authorizeProcess),
		launch:   launchAuthorizeProcess,
	}
}

// launchAuthorizeProcess starts the interactive flow. compat drops the
// --auth-no-open-browser flag for binaries that predate it.
func launchAuthorizeProcess(compat bool) (*authorizeProcess, error) {
	args := []string{"authorize", "drive"}
	if !compat {
		args = append(args, "--auth-no-open-browser")
	}
	args = append(args, "--manual")
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "rclone", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, models.WrapError(models.ErrBackendUnavailable, "could not open authorization stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, models.WrapError(models.ErrBackendUnavailable, "could not open authorization stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, models.WrapError(models.ErrBackendUnavailable, "could not open authorization stderr", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, models.WrapError(models.ErrBackendUnavailable, "could not start rclone authorize", err)
	}
	lines := make(chan string, 64)
	var pumps sync.WaitGroup
	pumps.Add(2)
	go pumpLines(stdout, lines, &pumps)
	go pumpLines(stderr, lines, &pumps)
	go func() {
		pumps.Wait()
		close(lines)
	}()
	return &authorizeProcess{
		lines: lines,
		stdin: stdin,
		stopFn: func() {
			cancel()
			cmd.Wait()
		},
	}, nil
}

func pumpLines(r io.Reader, lines chan<- string, pumps *sync.WaitGroup) {
	defer pumps.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// Begin starts an authorization process and returns once it printed the
// URL the user must visit. Binaries that reject --auth-no-open-browser get
// one retry without it.
func (a *Authorizer) Begin(ctx context.Context) (AuthSession, error) {
	process, err := a.launch(false)
	if err != nil {
		return AuthSession{}, err
	}
	url, err := awaitURL(ctx, process.lines)
	if errors.Is(err, errUnknownFlag) {
		process.stop()
		if process, err = a.launch(true); err != nil {
			return AuthSession{}, err
		}
		url, err = awaitURL(ctx, process.lines)
	}
	if err != nil {
		process.stop()
		return AuthSession{}, err
	}
	session := AuthSession{ID: uuid.NewString(), URL: url}
	a.mu.Lock()
	a.sessions[session.ID] = process
	a.mu.Unlock()
	return session, nil
}

// Complete submits the user's verification code and returns the token JSON
// the tool prints in response.
func (a *Authorizer) Complete(ctx context.Context, sessionID, code string) (string, error) {
	a.mu.Lock()
	process, ok := a.sessions[sessionID]
	delete(a.sessions, sessionID)
	a.mu.Unlock()
	if !ok {
		return "", models.NewError(models.ErrNotFound, "authorization session not found")
	}
	defer process.stop()
	if _, err := io.WriteString(process.stdin, strings.TrimRight(code, "\n")+"\n"); err != nil {
		return "", models.WrapError(models.ErrBackendUnavailable, "could not submit authorization code", err)
	}
	return awaitToken(ctx, process.lines)
}

// Pending reports whether a session is still waiting for its code.
func (a *Authorizer) Pending(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.sessions[sessionID]
	return ok
}

// Cancel discards a pending session and stops its process.
func (a *Authorizer) Cancel(sessionID string) {
	a.mu.Lock()
	process, ok := a.sessions[sessionID]
	delete(a.sessions, sessionID)
	a.mu.Unlock()
	if ok {
		process.stop()
	}
}

func awaitURL(ctx context.Context, lines <-chan string) (string, error) {
	timer := time.NewTimer(authURLTimeout)
	defer timer.Stop()
	for {
		select {
		case line, open := <-lines:
			if !open {
				return "", models.NewError(models.ErrBackendUnavailable, "authorization process exited before printing a URL")
			}
			if strings.Contains(line, "unknown flag") {
				return "", models.WrapError(models.ErrBackendUnavailable, "authorize flag not supported by this binary", errUnknownFlag)
			}
			if url := authURLPattern.FindString(line); url != "" {
				return url, nil
			}
		case <-timer.C:
			return "", models.NewError(models.ErrBackendUnavailable, "timed out waiting for the authorization URL")
		case <-ctx.Done():
			return "", models.WrapError(models.ErrBackendUnavailable, "authorization interrupted", ctx.Err())
		}
	}
}

// awaitToken collects the brace balanced JSON blob the tool prints after a
// valid code was submitted.
func awaitToken(ctx context.Context, lines <-chan string) (string, error) {
	timer := time.NewTimer(authTokenTimeout)
	defer timer.Stop()
	var collected []string
	depth := 0
	for {
		select {
		case line, open := <-lines:
			if !open {
				return "", models.NewError(models.ErrBackendUnavailable, "authorization process exited before printing a token")
			}
			if depth == 0 && !strings.Contains(line, "{") {
				continue
			}
			collected = append(collected, line)
			depth += strings.Count(line, "{") - strings.Count(line, "}")
			if depth <= 0 {
				token := strings.TrimSpace(strings.Join(collected, "\n"))
				if start := strings.Index(token, "{"); start > 0 {
					token = token[start:]
				}
				return token, nil
			}
		case <-timer.C:
			return "", models.NewError(models.ErrBackendUnavailable, "timed out waiting for the authorization token")
		case <-ctx.Done():
			return "", models.WrapError(models.ErrBackendUnavailable, "authorization interrupted", ctx.Err())
		}
	}
}
