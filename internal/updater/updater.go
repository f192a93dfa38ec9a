package updater

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	log "github.com/sirupsen/logrus"

	"github.com/libkeeper/libkeeper/internal/config"
	"github.com/libkeeper/libkeeper/internal/installer"
	"github.com/libkeeper/libkeeper/internal/platform"
	"github.com/libkeeper/libkeeper/internal/record"
	"github.com/libkeeper/libkeeper/internal/release"
)

// Updater drives update cycles for the managed library.
type Updater struct {
	cfg       *config.Config
	store     *record.Store
	client    *release.Client
	installer *installer.Installer
	filename  string
	now       func() time.Time
}

// Option configures an Updater.
type Option func(*Updater)

// WithClient sets a custom release client (useful for testing).
func WithClient(c *release.Client) Option {
	return func(u *Updater) { u.client = c }
}

// WithInstaller sets a custom artifact installer.
func WithInstaller(i *installer.Installer) Option {
	return func(u *Updater) { u.installer = i }
}

// WithClock sets the time source used for throttle decisions.
func WithClock(now func() time.Time) Option {
	return func(u *Updater) { u.now = now }
}

// New wires an Updater from cfg. It fails when the host platform has no
// published library artifact.
func New(cfg *config.Config, opts ...Option) (*Updater, error) {
	filename, err := platform.LibraryFilename()
	if err != nil {
		return nil, err
	}

	u := &Updater{
		cfg:      cfg,
		store:    record.NewStore(cfg.LibDir),
		filename: filename,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.client == nil {
		u.client = release.NewClient(cfg.Endpoint, release.WithTimeout(cfg.FetchTimeout))
	}
	if u.installer == nil {
		u.installer = installer.New(installer.WithTimeout(cfg.DownloadTimeout))
	}
	return u, nil
}

// Filename returns the artifact filename resolved for the host platform.
func (u *Updater) Filename() string { return u.filename }

// LibraryPath returns where the managed library lives on disk.
func (u *Updater) LibraryPath() string { return u.cfg.LibraryPath(u.filename) }

// Run performs one update cycle and reports how it ended. force skips the
// check-interval throttle and reinstalls even when the installed version
// matches the feed. Only OutcomeAssetNotFound and OutcomeDownloadFailed
// return an error; the quieter endings are normal operation.
func (u *Updater) Run(ctx context.Context, force bool) (Outcome, error) {
	if !force && !u.store.ShouldCheck(u.now(), u.cfg.CheckInterval) {
		log.Debugf("checked within the last %s, skipping", u.cfg.CheckInterval)
		return OutcomeThrottled, nil
	}

	rec := u.store.Read()
	etag := ""
	if rec != nil {
		etag = rec.ETag
	}

	res, err := u.client.FetchLatest(ctx, etag)
	if err != nil {
		// Already logged by the client. State stays untouched so the next
		// scheduled run retries.
		return OutcomeNoRelease, nil
	}

	if res.NotModified {
		if rec != nil {
			if err := u.store.Touch(rec); err != nil {
				log.Warnf("refreshing check timestamp: %v", err)
			}
		}
		log.Debugf("feed unchanged since last check")
		return OutcomeNotModified, nil
	}

	meta := res.Metadata
	published := meta.PublishedAt
	if published == "" {
		published = u.now().UTC().Format(time.RFC3339)
	}

	if !force && rec != nil && rec.Version == meta.Tag {
		if err := u.store.Write(meta.Tag, published, res.ETag); err != nil {
			log.Warnf("refreshing version record: %v", err)
		}
		log.Debugf("installed version %s is current", meta.Tag)
		return OutcomeSameVersion, nil
	}

	logVersionChange(rec, meta.Tag)

	asset := matchAsset(meta.Assets, u.filename)
	if asset == nil {
		log.Errorf("no asset matches %s in release %s; available: %s",
			u.filename, meta.Tag, strings.Join(assetNames(meta.Assets), ", "))
		return OutcomeAssetNotFound, fmt.Errorf("no asset for %s in release %s", u.filename, meta.Tag)
	}

	destPath := u.cfg.LibraryPath(u.filename)
	log.Infof("downloading %s %s", u.filename, meta.Tag)
	if err := u.installer.Install(ctx, asset.DownloadURL, destPath); err != nil {
		return OutcomeDownloadFailed, fmt.Errorf("installing %s: %w", u.filename, err)
	}

	if err := u.store.Write(meta.Tag, published, res.ETag); err != nil {
		log.Warnf("writing version record: %v", err)
	}
	log.Infof("updated %s to %s", u.filename, meta.Tag)
	return OutcomeUpdated, nil
}

// matchAsset returns the first asset whose name starts with the target
// filename's extension-stripped stem, in feed order. Extra matches are
// reported and skipped.
func matchAsset(assets []release.Asset, filename string) *release.Asset {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))

	var matches []*release.Asset
	for i := range assets {
		if strings.HasPrefix(assets[i].Name, stem) {
			matches = append(matches, &assets[i])
		}
	}
	if len(matches) == 0 {
		return nil
	}
	if len(matches) > 1 {
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		log.Warnf("%d assets match %s, using %s (candidates: %s)",
			len(matches), stem, matches[0].Name, strings.Join(names, ", "))
	}
	return matches[0]
}

// logVersionChange reports what the cycle is about to do to the installed
// version. Tags that do not parse as semantic versions still update; the
// comparison only affects what gets logged.
func logVersionChange(rec *record.Record, remoteTag string) {
	if rec == nil || rec.Version == "" {
		log.Infof("new version available: %s", remoteTag)
		return
	}
	if rec.Version == remoteTag {
		log.Infof("reinstalling %s", remoteTag)
		return
	}

	local, lerr := parseSemver(rec.Version)
	remote, rerr := parseSemver(remoteTag)
	if lerr != nil || rerr != nil {
		log.Infof("new version available: %s (installed %s)", remoteTag, rec.Version)
		return
	}
	if remote.LessThan(local) {
		log.Warnf("feed offers %s, older than installed %s; replacing anyway", remoteTag, rec.Version)
		return
	}
	log.Infof("new version available: %s (installed %s)", remoteTag, rec.Version)
}

// parseSemver strips a leading "v" and parses the version string.
func parseSemver(version string) (*semver.Version, error) {
	return semver.NewVersion(strings.TrimPrefix(version, "v"))
}

func assetNames(assets []release.Asset) []string {
	names := make([]string, len(assets))
	for i, a := range assets {
		names[i] = a.Name
	}
	return names
}
