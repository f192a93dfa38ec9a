package updater

// Outcome identifies how an update cycle ended.
type Outcome int

const (
	// OutcomeThrottled means the check interval has not elapsed yet, so
	// nothing was fetched.
	OutcomeThrottled Outcome = iota
	// OutcomeNotModified means the feed answered 304; only the check
	// timestamp was refreshed.
	OutcomeNotModified
	// OutcomeNoRelease means no usable release metadata came back this
	// cycle; local state is untouched and the next scheduled run retries.
	OutcomeNoRelease
	// OutcomeSameVersion means the feed's latest tag matches the installed
	// version.
	OutcomeSameVersion
	// OutcomeUpdated means a new artifact was downloaded and swapped into
	// place.
	OutcomeUpdated
	// OutcomeAssetNotFound means the release lists assets but none matches
	// this platform.
	OutcomeAssetNotFound
	// OutcomeDownloadFailed means the download or swap failed; the previous
	// library was restored.
	OutcomeDownloadFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeThrottled:
		return "throttled"
	case OutcomeNotModified:
		return "not-modified"
	case OutcomeNoRelease:
		return "no-release"
	case OutcomeSameVersion:
		return "same-version"
	case OutcomeUpdated:
		return "updated"
	case OutcomeAssetNotFound:
		return "asset-not-found"
	case OutcomeDownloadFailed:
		return "download-failed"
	default:
		return "unknown"
	}
}
