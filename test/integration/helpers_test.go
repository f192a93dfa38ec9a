//go:build integration

package integration_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/libkeeper/libkeeper/internal/platform"
)

// testEnv holds paths to isolated test directories.
type testEnv struct {
	HomeDir string // becomes HOME, holds the config file and default lib dir
	LibDir  string // becomes LIBKEEPER_LIB_DIR, where the library gets installed
}

// setupTestEnv creates isolated temp directories and scrubs every environment
// variable the updater reads, so tests never touch the real home directory or
// send authenticated requests.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		HomeDir: t.TempDir(),
		LibDir:  t.TempDir(),
	}

	t.Setenv("HOME", env.HomeDir)
	t.Setenv("USERPROFILE", env.HomeDir)
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("LIBKEEPER_LIB_DIR", env.LibDir)
	for _, suffix := range []string{"ENDPOINT", "CHECK_INTERVAL", "FETCH_TIMEOUT", "DOWNLOAD_TIMEOUT", "LOG_LEVEL"} {
		t.Setenv("LIBKEEPER_"+suffix, "")
	}

	return env
}

// upstream fakes the release feed and the asset host behind it. SetRelease
// moves the feed to a new version; FailDownloads makes every asset request
// return a server error.
type upstream struct {
	Server        *httptest.Server
	Tag           string
	ETag          string
	AssetData     []byte
	FailDownloads bool

	ReleaseHits  atomic.Int32
	DownloadHits atomic.Int32
}

// newUpstream starts a fake feed publishing one release whose single asset
// matches the host platform. Tests on platforms without a published build are
// skipped.
func newUpstream(t *testing.T, tag string) *upstream {
	t.Helper()

	filename, err := platform.LibraryFilename()
	if err != nil {
		t.Skipf("unsupported host platform: %v", err)
	}

	u := &upstream{}
	u.SetRelease(tag)

	mux := http.NewServeMux()
	mux.HandleFunc("/release", func(w http.ResponseWriter, r *http.Request) {
		u.ReleaseHits.Add(1)
		if r.Header.Get("If-None-Match") == u.ETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", u.ETag)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
  "tag_name": %q,
  "published_at": "2024-03-01T12:00:00Z",
  "assets": [{"name": %q, "browser_download_url": %q}]
}`, u.Tag, filename, u.Server.URL+"/asset/"+filename)
	})
	mux.HandleFunc("/asset/", func(w http.ResponseWriter, r *http.Request) {
		u.DownloadHits.Add(1)
		if u.FailDownloads {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(u.AssetData)))
		w.Write(u.AssetData)
	})

	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Server.Close)
	return u
}

// SetRelease points the feed at a new version with fresh asset bytes and a
// fresh ETag.
func (u *upstream) SetRelease(tag string) {
	u.Tag = tag
	u.ETag = `W/"` + tag + `"`
	u.AssetData = []byte("shared library " + tag)
}

// EndpointURL returns the latest-release URL of the fake feed.
func (u *upstream) EndpointURL() string {
	return u.Server.URL + "/release"
}

// assertFileExists fails the test if the file does not exist.
func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %s (error: %v)", path, err)
	}
}

// assertFileNotExists fails the test if the file exists.
func assertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("expected file NOT to exist: %s", path)
	}
}

// assertFileContains fails if the file doesn't exist or doesn't contain substr.
func assertFileContains(t *testing.T, path, substr string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("reading %s: %v", path, err)
		return
	}
	if !strings.Contains(string(data), substr) {
		t.Errorf("file %s does not contain %q.\nContents:\n%s", path, substr, string(data))
	}
}
