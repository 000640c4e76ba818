package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/RevCBH/siren/internal/config"
	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/store"
	apiv1 "github.com/RevCBH/siren/pkg/api/v1"
)

func testConfig(tmpDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Home = tmpDir
	cfg.Daemon.Socket = filepath.Join(tmpDir, "d.sock")
	cfg.Daemon.PIDFile = filepath.Join(tmpDir, "d.pid")
	cfg.Daemon.DBPath = filepath.Join(tmpDir, "siren.db")
	cfg.Daemon.WebAddr = ""
	return cfg
}

// startDaemon runs d in the background and returns its exit channel
func startDaemon(t *testing.T, d *Daemon, sockPath string) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(sockPath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "daemon socket never appeared")
	return cancel, errCh
}

func waitExit(t *testing.T, errCh <-chan error) {
	t.Helper()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
}

func dialDaemon(t *testing.T, sockPath string) apiv1.SirenClient {
	t.Helper()
	conn, err := grpc.NewClient("unix://"+sockPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(apiv1.CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return apiv1.NewSirenClient(conn)
}

func TestDaemon_New(t *testing.T) {
	tmpDir := t.TempDir()

	d, err := New(testConfig(tmpDir), "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, d)
	defer d.closeCore()

	assert.NotNil(t, d.Service())
	assert.Equal(t, "1.0.0", d.cfg.Version)
	assert.FileExists(t, filepath.Join(tmpDir, "siren.db"))
}

func TestDaemon_New_InvalidConfig(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Daemon.EventBuffer = 0

	d, err := New(cfg, "")
	assert.Error(t, err)
	assert.Nil(t, d)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestDaemon_New_BadNotifier(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Notify.Backends = []string{"pigeon"}

	_, err := New(cfg, "")
	assert.Error(t, err)
}

func TestDaemon_StartServesAndShutsDown(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := testConfig(tmpDir)

	d, err := New(cfg, "test")
	require.NoError(t, err)
	cancel, errCh := startDaemon(t, d, cfg.Daemon.Socket)
	defer cancel()

	assert.FileExists(t, cfg.Daemon.PIDFile)

	info, err := os.Stat(cfg.Daemon.Socket)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	client := dialDaemon(t, cfg.Daemon.Socket)
	ctx, cancelCall := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCall()

	health, err := client.Health(ctx, &apiv1.HealthRequest{})
	require.NoError(t, err)
	assert.True(t, health.Healthy)
	assert.Equal(t, "test", health.Version)

	created, err := client.CreateSession(ctx, &apiv1.CreateSessionRequest{Mode: "checkin"})
	require.NoError(t, err)

	resp, err := client.Shutdown(ctx, &apiv1.ShutdownRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ActiveSessions)

	waitExit(t, errCh)

	assert.NoFileExists(t, cfg.Daemon.PIDFile)
	assert.NoFileExists(t, cfg.Daemon.Socket)

	// The session was cancelled and persisted before the store closed
	st, err := store.Open(cfg.Daemon.DBPath)
	require.NoError(t, err)
	defer st.Close()
	rec, err := st.GetSession(created.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, escalation.TierCancelled, rec.Tier)
}

func TestDaemon_Start_AlreadyRunning(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := testConfig(tmpDir)

	d1, err := New(cfg, "")
	require.NoError(t, err)
	cancel1, errCh1 := startDaemon(t, d1, cfg.Daemon.Socket)
	defer cancel1()

	d2, err := New(cfg, "")
	require.NoError(t, err)

	err = d2.Start(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	cancel1()
	waitExit(t, errCh1)
}

func TestDaemon_Start_MarksInterruptedSessions(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := testConfig(tmpDir)

	// A session left armed by a previous process
	st, err := store.Open(cfg.Daemon.DBPath)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, st.CreateSession(escalation.Snapshot{
		ID:        "left-over",
		Config:    escalation.SessionConfig{Mode: escalation.ModeCheckIn, Interval: time.Minute},
		Tier:      escalation.TierArmed,
		CreatedAt: now,
		UpdatedAt: now,
	}))
	require.NoError(t, st.Close())

	d, err := New(cfg, "")
	require.NoError(t, err)
	cancel, errCh := startDaemon(t, d, cfg.Daemon.Socket)

	snap, err := d.Service().Session("left-over")
	require.NoError(t, err)
	assert.Equal(t, escalation.TierCancelled, snap.Tier)

	cancel()
	waitExit(t, errCh)
}

func TestDaemon_ReloadSwapsConfig(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := testConfig(tmpDir)

	d, err := New(cfg, "")
	require.NoError(t, err)
	defer d.closeCore()

	next := testConfig(tmpDir)
	next.CheckIn.Interval = "2m"
	next.Contacts = []escalation.Contact{{ID: "c1", Phone: "+15550100"}}
	d.reload(next)

	assert.Same(t, next, d.Service().Config())

	snap, warnings, err := d.Service().CreateSession(context.Background(), escalation.SessionConfig{Mode: escalation.ModeCheckIn})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 2*time.Minute, snap.Config.Interval)

	// An unusable notifier keeps the previous config
	bad := testConfig(tmpDir)
	bad.Notify.Backends = []string{"pigeon"}
	d.reload(bad)
	assert.Same(t, next, d.Service().Config())
}

func TestDaemon_Shutdown_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := testConfig(tmpDir)

	d, err := New(cfg, "")
	require.NoError(t, err)
	_, errCh := startDaemon(t, d, cfg.Daemon.Socket)

	d.Shutdown()
	d.Shutdown()
	waitExit(t, errCh)
}
