package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/pyxis-run/pyxis/internal/procbox"
	"github.com/pyxis-run/pyxis/internal/sensitivity"
	"github.com/pyxis-run/pyxis/internal/sessionctx"
	"github.com/pyxis-run/pyxis/internal/workspace"
)

// Persistent environments get a deterministic name so that a later process
// can find and reattach to them instead of leaking a container per run.
const managedLabel = "run.pyxis.managed"

// containerName derives the session's container name from its key. Docker
// names only allow [a-zA-Z0-9_.-], so everything else becomes a dash.
func containerName(key string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '.', r == '-':
			return r
		default:
			return '-'
		}
	}, key)
	return "pyxis-" + mapped
}

// SandboxSession is the record for one persistent isolated environment.
type SandboxSession struct {
	ContainerID  string
	NetworkMode  sensitivity.NetworkMode
	Config       Config
	DataDir      string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// ExecResult is the outcome of one command. A timeout is reported here,
// never as an error.
type ExecResult struct {
	ExitCode int
	Output   string
	TimedOut bool
}

// Manager owns SandboxSession records and their underlying environments.
//
// Calls for different sessions proceed fully in parallel. Calls for the
// same session are serialized on a per-session mutex, which is also what
// makes a network-posture recreation atomic with respect to concurrent
// executes on that session.
type Manager struct {
	cli     engineClient
	tracker *sensitivity.Tracker
	ws      *workspace.Manager
	base    Config

	mu       sync.Mutex
	sessions map[string]*SandboxSession
	locks    map[string]*sync.Mutex
}

// NewManager connects to the local container runtime.
func NewManager(tracker *sensitivity.Tracker, ws *workspace.Manager, cfg Config) (*Manager, error) {
	cli, err := newEngineClient()
	if err != nil {
		return nil, infraErr("connect", err)
	}
	return NewManagerWithClient(cli, tracker, ws, cfg), nil
}

// NewManagerWithClient builds a manager over an existing engine client.
func NewManagerWithClient(cli engineClient, tracker *sensitivity.Tracker, ws *workspace.Manager, cfg Config) *Manager {
	cfg.normalize()
	return &Manager{
		cli:      cli,
		tracker:  tracker,
		ws:       ws,
		base:     cfg,
		sessions: make(map[string]*SandboxSession),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Ping checks that the container runtime is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return infraErr("ping", err)
	}
	return nil
}

// ExecuteCommand runs a command for the session. In ephemeral mode the
// environment is created for this one command and destroyed afterwards;
// only writes to the bind-mounted workspace survive. In persistent mode
// the session's environment is reused, after aligning its network posture
// with the sensitivity tracker.
func (m *Manager) ExecuteCommand(ctx context.Context, id sessionctx.Identity, command []string, persistent bool) (ExecResult, error) {
	if len(command) == 0 {
		return ExecResult{}, fmt.Errorf("container: empty command")
	}
	if reason := procbox.GuardCommand(strings.Join(command, " ")); reason != "" {
		return ExecResult{}, procbox.ErrBlockedCommand{Command: command[0], Reason: reason}
	}

	lock := m.sessionLock(id.Key())
	lock.Lock()
	defer lock.Unlock()

	if persistent {
		return m.executePersistent(ctx, id, command)
	}
	return m.executeEphemeral(ctx, id, command)
}

func (m *Manager) executeEphemeral(ctx context.Context, id sessionctx.Identity, command []string) (ExecResult, error) {
	dataDir, err := m.ws.Dir(id)
	if err != nil {
		return ExecResult{}, err
	}

	cfg := m.base
	cfg.NetworkMode = m.tracker.RequiredNetworkMode(id.Key())

	containerID, err := m.createEnvironment(ctx, cfg, dataDir, "")
	if err != nil {
		return ExecResult{}, err
	}
	defer m.destroyEnvironment(context.WithoutCancel(ctx), containerID)

	return m.execInContainer(ctx, containerID, cfg, command)
}

func (m *Manager) executePersistent(ctx context.Context, id sessionctx.Identity, command []string) (ExecResult, error) {
	sess, err := m.ensureSession(ctx, id)
	if err != nil {
		return ExecResult{}, err
	}
	sess.LastActiveAt = time.Now().UTC()

	res, err := m.execInContainer(ctx, sess.ContainerID, sess.Config, command)
	if err == nil && res.TimedOut {
		// The exec API cannot kill the runaway process, so the whole
		// environment goes down with it. The workspace is host-backed;
		// the next command gets a fresh container over the same files.
		m.mu.Lock()
		delete(m.sessions, id.Key())
		m.mu.Unlock()
		_ = m.destroyEnvironment(context.WithoutCancel(ctx), sess.ContainerID)
	}
	return res, err
}

// ensureSession returns the session's environment, creating it on first
// use and recreating it when the required network posture has changed
// since the environment was built. The workspace directory survives the
// destroy/recreate because it is host-backed, never part of the
// environment's own writable layer.
func (m *Manager) ensureSession(ctx context.Context, id sessionctx.Identity) (*SandboxSession, error) {
	key := id.Key()
	required := m.tracker.RequiredNetworkMode(key)

	m.mu.Lock()
	sess := m.sessions[key]
	m.mu.Unlock()

	if sess != nil && sess.NetworkMode == required {
		return sess, nil
	}

	dataDir, err := m.ws.Dir(id)
	if err != nil {
		return nil, err
	}

	if sess == nil {
		// An earlier process may have left this session's environment
		// running under its deterministic name; reattach instead of
		// stacking a second container next to it.
		sess = m.adoptEnvironment(ctx, key, dataDir)
		if sess != nil && sess.NetworkMode == required {
			m.mu.Lock()
			m.sessions[key] = sess
			m.mu.Unlock()
			return sess, nil
		}
	}

	if sess != nil {
		// Posture changed: tear down before anything else can run in
		// the old environment.
		if err := m.destroyEnvironment(ctx, sess.ContainerID); err != nil {
			return nil, err
		}
	}

	cfg := m.base
	cfg.NetworkMode = required

	containerID, err := m.createEnvironment(ctx, cfg, dataDir, containerName(key))
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, key)
		m.mu.Unlock()
		return nil, err
	}

	now := time.Now().UTC()
	created := now
	if sess != nil {
		created = sess.CreatedAt
	}
	next := &SandboxSession{
		ContainerID:  containerID,
		NetworkMode:  required,
		Config:       cfg,
		DataDir:      dataDir,
		CreatedAt:    created,
		LastActiveAt: now,
	}

	m.mu.Lock()
	m.sessions[key] = next
	m.mu.Unlock()
	return next, nil
}

// CloseSession destroys the session's environment and forgets its record.
func (m *Manager) CloseSession(ctx context.Context, id sessionctx.Identity) error {
	lock := m.sessionLock(id.Key())
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	sess := m.sessions[id.Key()]
	delete(m.sessions, id.Key())
	m.mu.Unlock()

	if sess != nil {
		return m.destroyEnvironment(ctx, sess.ContainerID)
	}
	// A fresh process has no in-memory record; the environment may still
	// exist under its deterministic name.
	inspect, err := m.cli.ContainerInspect(ctx, containerName(id.Key()))
	if err != nil {
		return nil
	}
	return m.destroyEnvironment(ctx, inspect.ID)
}

// Session returns a copy of the session record, if one exists.
func (m *Manager) Session(id sessionctx.Identity) (SandboxSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess := m.sessions[id.Key()]; sess != nil {
		return *sess, true
	}
	return SandboxSession{}, false
}

// adoptEnvironment looks up a running environment left under the session's
// deterministic name by an earlier process. Stopped leftovers are removed
// rather than revived: their workspace mount is the only state worth
// keeping, and that lives on the host.
func (m *Manager) adoptEnvironment(ctx context.Context, key, dataDir string) *SandboxSession {
	inspect, err := m.cli.ContainerInspect(ctx, containerName(key))
	if err != nil {
		return nil
	}
	if inspect.State == nil || !inspect.State.Running {
		_ = m.destroyEnvironment(ctx, inspect.ID)
		return nil
	}

	cfg := m.base
	cfg.NetworkMode = sensitivity.NetworkFull
	if inspect.HostConfig != nil && inspect.HostConfig.NetworkMode.IsNone() {
		cfg.NetworkMode = sensitivity.NetworkNone
	}

	now := time.Now().UTC()
	created := now
	if t, err := time.Parse(time.RFC3339Nano, inspect.Created); err == nil {
		created = t
	}
	return &SandboxSession{
		ContainerID:  inspect.ID,
		NetworkMode:  cfg.NetworkMode,
		Config:       cfg,
		DataDir:      dataDir,
		CreatedAt:    created,
		LastActiveAt: now,
	}
}

// createEnvironment creates and starts a hardened container with the
// session workspace bind-mounted read-write and the configured script
// library read-only. name is empty for ephemeral environments, which get
// a runtime-generated one.
func (m *Manager) createEnvironment(ctx context.Context, cfg Config, dataDir, name string) (string, error) {
	if err := m.ensureImage(ctx, cfg.Image); err != nil {
		return "", err
	}

	containerCfg := &containertypes.Config{
		Image:      cfg.Image,
		WorkingDir: cfg.WorkingDir,
		User:       cfg.User,
		Labels:     map[string]string{managedLabel: "true"},
		// The environment idles until commands are execed into it.
		Cmd: []string{"sleep", "infinity"},
	}

	hostCfg := &containertypes.HostConfig{
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges:true"},
		Resources: containertypes.Resources{
			Memory:     cfg.MemoryMB * 1024 * 1024,
			MemorySwap: cfg.MemoryMB * 1024 * 1024,
			CPUQuota:   int64(cfg.CPUPercent * 100000),
			CPUPeriod:  100000,
			PidsLimit:  &cfg.PidsLimit,
		},
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=64m",
		},
	}

	if cfg.NetworkMode == sensitivity.NetworkNone {
		hostCfg.NetworkMode = "none"
	}

	hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
		Type:   mount.TypeBind,
		Source: dataDir,
		Target: cfg.WorkingDir,
	})
	for _, host := range sortedKeys(cfg.ReadOnlyMounts) {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   host,
			Target:   cfg.ReadOnlyMounts[host],
			ReadOnly: true,
		})
	}

	resp, err := m.cli.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return "", infraErr("create", err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, containertypes.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, resp.ID, containertypes.RemoveOptions{Force: true})
		return "", infraErr("start", err)
	}
	return resp.ID, nil
}

func (m *Manager) destroyEnvironment(ctx context.Context, containerID string) error {
	stopTimeout := 10
	if err := m.cli.ContainerStop(ctx, containerID, containertypes.StopOptions{Timeout: &stopTimeout}); err != nil {
		// Fall through to a forced remove either way.
		_ = err
	}
	if err := m.cli.ContainerRemove(ctx, containerID, containertypes.RemoveOptions{Force: true}); err != nil {
		return infraErr("remove", err)
	}
	return nil
}

// ensureImage pulls the image when it is not present locally.
func (m *Manager) ensureImage(ctx context.Context, ref string) error {
	if _, _, err := m.cli.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	}

	reader, err := m.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return infraErr("pull "+ref, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return infraErr("pull "+ref, err)
	}
	return nil
}

// execInContainer runs one command in a running environment and demuxes
// its output. Expiry of the exec timeout yields ExecResult.TimedOut, not
// an error; the command's own exit code passes through uninterpreted.
func (m *Manager) execInContainer(ctx context.Context, containerID string, cfg Config, command []string) (ExecResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, cfg.ExecTimeout)
	defer cancel()

	execResp, err := m.cli.ContainerExecCreate(execCtx, containerID, containertypes.ExecOptions{
		Cmd:          command,
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   cfg.WorkingDir,
		User:         cfg.User,
	})
	if err != nil {
		return ExecResult{}, infraErr("exec create", err)
	}

	attach, err := m.cli.ContainerExecAttach(execCtx, execResp.ID, containertypes.ExecStartOptions{})
	if err != nil {
		return ExecResult{}, infraErr("exec attach", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		done <- copyErr
	}()

	select {
	case copyErr := <-done:
		// The deadline may fire while the demux goroutine is draining
		// the connection teardown; the outcome is still a timeout.
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return ExecResult{
				ExitCode: -1,
				Output:   combineOutput(stdout.String(), stderr.String()),
				TimedOut: true,
			}, nil
		}
		if copyErr != nil && !errors.Is(copyErr, io.EOF) {
			return ExecResult{}, infraErr("exec read", copyErr)
		}
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return ExecResult{
				ExitCode: -1,
				Output:   combineOutput(stdout.String(), stderr.String()),
				TimedOut: true,
			}, nil
		}
		return ExecResult{}, execCtx.Err()
	}

	inspect, err := m.cli.ContainerExecInspect(execCtx, execResp.ID)
	if err != nil {
		return ExecResult{}, infraErr("exec inspect", err)
	}

	return ExecResult{
		ExitCode: inspect.ExitCode,
		Output:   combineOutput(stdout.String(), stderr.String()),
	}, nil
}

// sessionLock returns the mutex serializing all calls for one session.
func (m *Manager) sessionLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lock, ok := m.locks[key]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	m.locks[key] = lock
	return lock
}

func combineOutput(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout == "" {
		return stderr
	}
	return stdout + stderr
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
