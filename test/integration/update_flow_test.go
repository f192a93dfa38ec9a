//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/libkeeper/libkeeper/internal/config"
	"github.com/libkeeper/libkeeper/internal/installer"
	"github.com/libkeeper/libkeeper/internal/record"
	"github.com/libkeeper/libkeeper/internal/updater"
)

// newUpdater builds an updater from the ambient environment the way the CLI
// does, with download progress silenced.
func newUpdater(t *testing.T, extra ...updater.Option) (*updater.Updater, *config.Config) {
	t.Helper()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	opts := append([]updater.Option{
		updater.WithInstaller(installer.New(installer.WithProgress(io.Discard))),
	}, extra...)
	u, err := updater.New(cfg, opts...)
	if err != nil {
		t.Fatalf("updater.New: %v", err)
	}
	return u, cfg
}

// dayLater is a clock one check interval past the default throttle.
func dayLater() time.Time {
	return time.Now().Add(25 * time.Hour)
}

// TestFullFlowInstallThrottleRecheck drives the complete lifecycle: a fresh
// install, a throttled second run, and a forced re-check answered with a 304.
func TestFullFlowInstallThrottleRecheck(t *testing.T) {
	setupTestEnv(t)
	up := newUpstream(t, "v1.8.0")
	t.Setenv("LIBKEEPER_ENDPOINT", up.EndpointURL())

	u, cfg := newUpdater(t)

	// Step 1: Fresh install.
	outcome, err := u.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run (fresh): %v", err)
	}
	if outcome != updater.OutcomeUpdated {
		t.Fatalf("expected %s, got %s", updater.OutcomeUpdated, outcome)
	}

	libPath := cfg.LibraryPath(u.Filename())
	assertFileExists(t, libPath)
	assertFileContains(t, libPath, "v1.8.0")
	assertFileExists(t, filepath.Join(cfg.LibDir, record.FileName))

	rec := record.NewStore(cfg.LibDir).Read()
	if rec == nil {
		t.Fatal("expected a version record after install")
	}
	if rec.Version != "v1.8.0" {
		t.Errorf("record version = %q, want v1.8.0", rec.Version)
	}
	if rec.ETag == "" {
		t.Error("expected the record to keep the feed ETag")
	}

	// Step 2: A second run inside the check interval stays local.
	outcome, err = u.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run (throttled): %v", err)
	}
	if outcome != updater.OutcomeThrottled {
		t.Fatalf("expected %s, got %s", updater.OutcomeThrottled, outcome)
	}
	if got := up.ReleaseHits.Load(); got != 1 {
		t.Errorf("feed hits = %d, want 1", got)
	}

	// Step 3: Forcing bypasses the throttle; the stored ETag turns the check
	// into a 304 and nothing is downloaded again.
	outcome, err = u.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run (forced): %v", err)
	}
	if outcome != updater.OutcomeNotModified {
		t.Fatalf("expected %s, got %s", updater.OutcomeNotModified, outcome)
	}
	if got := up.ReleaseHits.Load(); got != 2 {
		t.Errorf("feed hits = %d, want 2", got)
	}
	if got := up.DownloadHits.Load(); got != 1 {
		t.Errorf("download hits = %d, want 1", got)
	}
}

// TestFullFlowUpgrade replaces an installed build when the feed moves on.
func TestFullFlowUpgrade(t *testing.T) {
	setupTestEnv(t)
	up := newUpstream(t, "v1.8.0")
	t.Setenv("LIBKEEPER_ENDPOINT", up.EndpointURL())

	seed, cfg := newUpdater(t)
	if _, err := seed.Run(context.Background(), false); err != nil {
		t.Fatalf("Run (seed): %v", err)
	}

	up.SetRelease("v1.9.0")

	// A day later the throttle has lapsed and the new build lands.
	u, _ := newUpdater(t, updater.WithClock(dayLater))
	outcome, err := u.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run (upgrade): %v", err)
	}
	if outcome != updater.OutcomeUpdated {
		t.Fatalf("expected %s, got %s", updater.OutcomeUpdated, outcome)
	}

	libPath := cfg.LibraryPath(u.Filename())
	assertFileContains(t, libPath, "v1.9.0")

	rec := record.NewStore(cfg.LibDir).Read()
	if rec == nil || rec.Version != "v1.9.0" {
		t.Fatalf("record = %+v, want version v1.9.0", rec)
	}

	// A clean install leaves no working files behind.
	assertFileNotExists(t, libPath+installer.BackupSuffix)
	assertFileNotExists(t, libPath+installer.TmpSuffix)
}

// TestFullFlowFailedDownloadKeepsLibrary verifies a failed artifact download
// leaves the previous build and its record untouched.
func TestFullFlowFailedDownloadKeepsLibrary(t *testing.T) {
	setupTestEnv(t)
	up := newUpstream(t, "v1.8.0")
	t.Setenv("LIBKEEPER_ENDPOINT", up.EndpointURL())

	seed, cfg := newUpdater(t)
	if _, err := seed.Run(context.Background(), false); err != nil {
		t.Fatalf("Run (seed): %v", err)
	}

	up.SetRelease("v1.9.0")
	up.FailDownloads = true

	u, _ := newUpdater(t, updater.WithClock(dayLater))
	outcome, err := u.Run(context.Background(), false)
	if err == nil {
		t.Fatal("expected an error when the download fails")
	}
	if outcome != updater.OutcomeDownloadFailed {
		t.Fatalf("expected %s, got %s", updater.OutcomeDownloadFailed, outcome)
	}

	libPath := cfg.LibraryPath(u.Filename())
	assertFileContains(t, libPath, "v1.8.0")

	rec := record.NewStore(cfg.LibDir).Read()
	if rec == nil || rec.Version != "v1.8.0" {
		t.Fatalf("record = %+v, want version v1.8.0", rec)
	}
	assertFileNotExists(t, libPath+installer.TmpSuffix)
	assertFileNotExists(t, libPath+installer.BackupSuffix)
}

// TestFullFlowConfigFile runs the updater off an on-disk config file instead
// of environment overrides.
func TestFullFlowConfigFile(t *testing.T) {
	env := setupTestEnv(t)
	up := newUpstream(t, "v2.0.0")

	// Hand lib dir control to the file.
	t.Setenv("LIBKEEPER_LIB_DIR", "")
	libDir := filepath.Join(env.HomeDir, "custom-lib")

	if err := os.MkdirAll(config.Dir(), 0755); err != nil {
		t.Fatalf("creating config dir: %v", err)
	}
	content := fmt.Sprintf("lib_dir: %s\nendpoint: %s\ncheck_interval: 1h\n", libDir, up.EndpointURL())
	if err := os.WriteFile(config.FilePath(), []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	u, cfg := newUpdater(t)
	if cfg.LibDir != libDir {
		t.Fatalf("cfg.LibDir = %q, want %q", cfg.LibDir, libDir)
	}
	if cfg.CheckInterval != time.Hour {
		t.Fatalf("cfg.CheckInterval = %s, want 1h", cfg.CheckInterval)
	}

	outcome, err := u.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != updater.OutcomeUpdated {
		t.Fatalf("expected %s, got %s", updater.OutcomeUpdated, outcome)
	}
	assertFileExists(t, filepath.Join(libDir, u.Filename()))
}

// TestFullFlowConfigSetGet exercises the settings round trip the config
// command performs.
func TestFullFlowConfigSetGet(t *testing.T) {
	setupTestEnv(t)

	if err := config.Set("check_interval", "12h"); err != nil {
		t.Fatalf("Set check_interval: %v", err)
	}
	if err := config.Set("log_level", "debug"); err != nil {
		t.Fatalf("Set log_level: %v", err)
	}

	got, err := config.Get("check_interval")
	if err != nil {
		t.Fatalf("Get check_interval: %v", err)
	}
	if got != "12h0m0s" {
		t.Errorf("Get check_interval = %q, want 12h0m0s", got)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if cfg.CheckInterval != 12*time.Hour {
		t.Errorf("cfg.CheckInterval = %s, want 12h", cfg.CheckInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("cfg.LogLevel = %q, want debug", cfg.LogLevel)
	}

	// Invalid values never reach the file.
	if err := config.Set("log_level", "verbose"); err == nil {
		t.Fatal("expected Set to reject an invalid log level")
	}
	if cfg, err := config.Load(); err != nil || cfg.LogLevel != "debug" {
		t.Errorf("config after rejected Set: level=%q err=%v, want debug/nil", cfg.LogLevel, err)
	}
}
