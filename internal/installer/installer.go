// Package installer downloads a library artifact and swaps it into place.
// The destination is never left missing or truncated: a failed install
// restores the previous file from its backup.
package installer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/libkeeper/libkeeper/internal/branding"
	"github.com/libkeeper/libkeeper/internal/platform"
)

const (
	defaultTimeout = 60 * time.Second

	// BackupSuffix and TmpSuffix name the install-time siblings of the
	// destination file. Both are cleaned up on success; either may linger
	// after a crash mid-install.
	BackupSuffix = ".backup"
	TmpSuffix    = ".tmp"

	libraryPerm = 0755
)

// Installer performs single-artifact install operations.
type Installer struct {
	httpClient *http.Client
	progress   io.Writer
	userAgent  string
}

// Option configures an Installer.
type Option func(*Installer)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(i *Installer) { i.httpClient = hc }
}

// WithTimeout adjusts the download timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(i *Installer) { i.httpClient.Timeout = d }
}

// WithProgress redirects download progress output, which goes to stderr by
// default.
func WithProgress(w io.Writer) Option {
	return func(i *Installer) { i.progress = w }
}

// New returns an Installer.
func New(opts ...Option) *Installer {
	i := &Installer{
		httpClient: &http.Client{Timeout: defaultTimeout},
		progress:   os.Stderr,
		userAgent:  branding.UserAgent(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install downloads srcURL and replaces destPath with it. An existing
// destination is first copied to a backup sibling, the download streams to a
// temporary sibling, and only a completed download is renamed onto destPath.
// Any failure restores the backup, so destPath ends up holding either the
// old file or the new one.
func (i *Installer) Install(ctx context.Context, srcURL, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating library directory: %w", err)
	}

	backupPath := destPath + BackupSuffix
	hasBackup := false
	if _, err := os.Stat(destPath); err == nil {
		if err := copyFile(destPath, backupPath); err != nil {
			return fmt.Errorf("creating backup: %w", err)
		}
		hasBackup = true
	}

	tmpPath := destPath + TmpSuffix
	if err := i.download(ctx, srcURL, tmpPath); err != nil {
		os.Remove(tmpPath)
		restore(backupPath, destPath, hasBackup)
		return err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		// Rename may fail across filesystems; try copy.
		if copyErr := copyFile(tmpPath, destPath); copyErr != nil {
			os.Remove(tmpPath)
			restore(backupPath, destPath, hasBackup)
			return fmt.Errorf("installing %s: %w", filepath.Base(destPath), copyErr)
		}
		os.Remove(tmpPath)
	}

	if err := platform.Chmod(destPath, libraryPerm); err != nil {
		log.Warnf("setting permissions on %s: %v", destPath, err)
	}

	if hasBackup {
		if err := os.Remove(backupPath); err != nil {
			log.Warnf("removing backup %s: %v", backupPath, err)
		}
	}
	return nil
}

func (i *Installer) download(ctx context.Context, srcURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return fmt.Errorf("creating download request: %w", err)
	}
	req.Header.Set("User-Agent", i.userAgent)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", filepath.Base(destPath), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating download file: %w", err)
	}

	total := resp.ContentLength
	var downloaded int64
	lastPercent := -1

	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				f.Close()
				return fmt.Errorf("writing download: %w", writeErr)
			}
			downloaded += int64(n)
			if total > 0 {
				percent := int(downloaded * 100 / total)
				if percent != lastPercent {
					fmt.Fprintf(i.progress, "\rDownloading... %d%%", percent)
					lastPercent = percent
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			return fmt.Errorf("reading download stream: %w", readErr)
		}
	}
	if total > 0 {
		fmt.Fprintln(i.progress)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing download file: %w", err)
	}
	return nil
}

// restore puts the backed-up file back onto destPath after a failed install.
func restore(backupPath, destPath string, hasBackup bool) {
	if !hasBackup {
		return
	}
	if err := os.Rename(backupPath, destPath); err != nil {
		if copyErr := copyFile(backupPath, destPath); copyErr != nil {
			log.Errorf("restoring backup to %s: %v", destPath, copyErr)
			return
		}
		os.Remove(backupPath)
	}
	log.Infof("restored previous library at %s", destPath)
}

// copyFile copies src to dst, preserving the file mode and modification
// time.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := platform.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
