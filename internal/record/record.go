// Package record persists what the updater knows about the installed
// library: its version tag, the upstream last-modified timestamp, when the
// feed was last checked, and the cache validation token from that check.
package record

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// FileName is the record file kept next to the managed library.
const FileName = "version.txt"

// Record is the parsed contents of the version file. Version and
// LastModified describe the installed artifact; LastCheck is the UTC
// timestamp of the last completed feed check; ETag is the cache validation
// token the feed returned, empty when none was provided.
type Record struct {
	Version      string
	LastModified string
	LastCheck    string
	ETag         string
}

// Store reads and writes the record file. It is the only component that
// touches the file.
type Store struct {
	path string
}

// NewStore returns a Store for the record file inside dir.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

// Path returns the record file location.
func (s *Store) Path() string { return s.path }

// Read returns the stored record, or nil when the file is absent or
// unreadable. A malformed file is logged and treated as no prior record.
func (s *Store) Read() *Record {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("reading version record %s: %v", s.path, err)
		}
		return nil
	}

	rec := parse(data)
	if rec == nil {
		log.Warnf("version record %s is malformed, treating as absent", s.path)
	}
	return rec
}

// Write overwrites the record file with version and lastModified, stamping
// the current UTC time as the last-check timestamp. The cache token line is
// written only when etag is non-empty. The containing directory is created
// if needed.
func (s *Store) Write(version, lastModified, etag string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating record directory: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	content := version + "\n" + lastModified + "\n" + now + "\n"
	if etag != "" {
		content += etag + "\n"
	}

	if err := os.WriteFile(s.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing version record: %w", err)
	}
	return nil
}

// Touch rewrites the record with a fresh last-check timestamp, keeping the
// version, last-modified, and cache token values.
func (s *Store) Touch(rec *Record) error {
	return s.Write(rec.Version, rec.LastModified, rec.ETag)
}

// ShouldCheck reports whether a feed check is due at now: true when no
// usable record exists, when the recorded last-check cannot be parsed, or
// when more than interval has passed since it.
func (s *Store) ShouldCheck(now time.Time, interval time.Duration) bool {
	rec := s.Read()
	if rec == nil {
		return true
	}
	last, err := time.Parse(time.RFC3339, rec.LastCheck)
	if err != nil {
		log.Debugf("unparsable last-check timestamp %q, forcing check", rec.LastCheck)
		return true
	}
	return now.Sub(last) > interval
}

func parse(data []byte) *Record {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return nil
	}

	rec := &Record{
		Version:      strings.TrimSpace(lines[0]),
		LastModified: strings.TrimSpace(lines[1]),
		LastCheck:    strings.TrimSpace(lines[2]),
	}
	if len(lines) >= 4 {
		rec.ETag = strings.TrimSpace(lines[3])
	}

	if rec.Version == "" || rec.LastModified == "" || rec.LastCheck == "" {
		return nil
	}
	return rec
}
