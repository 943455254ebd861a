package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Release mirrors a GitHub-releases-shaped entry, extended with the
// prerelease flag channel filtering needs.
type Release struct {
	TagName    string         `json:"tag_name"`
	HTMLURL    string         `json:"html_url"`
	Prerelease bool           `json:"prerelease"`
	Assets     []ReleaseAsset `json:"assets"`
}

// ReleaseAsset is one downloadable artifact attached to a release.
type ReleaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// FetchReleases retrieves the release index. Unlike a GitHub
// releases/latest endpoint, this must return the full listing so channel
// filtering can see pre-release entries that /latest always hides.
func FetchReleases(ctx context.Context, client *http.Client, url, userAgent string) ([]Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release index returned status %d", resp.StatusCode)
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("decode release index: %w", err)
	}
	return releases, nil
}

// SelectUpdate picks the highest release newer than current that channel
// accepts: stable excludes anything flagged or tagged as a pre-release,
// beta accepts both. ok is false if nothing qualifies.
func SelectUpdate(releases []Release, current string, channel Channel) (best Release, ok bool, err error) {
	currentVer, err := baselineVersion(current)
	if err != nil {
		return Release{}, false, fmt.Errorf("parse current version %q: %w", current, err)
	}

	var bestVer *semver.Version
	for _, r := range releases {
		v, perr := parseVersion(r.TagName)
		if perr != nil {
			continue
		}
		if channel == ChannelStable && (r.Prerelease || v.Prerelease() != "") {
			continue
		}
		if !v.GreaterThan(currentVer) {
			continue
		}
		if bestVer == nil || v.GreaterThan(bestVer) {
			bestVer = v
			best = r
			ok = true
		}
	}
	return best, ok, nil
}

// baselineVersion treats an empty or "dev" current version as lower than
// any real release, so unversioned development builds always see an
// update available.
func baselineVersion(current string) (*semver.Version, error) {
	if current == "" || current == "dev" || current == "unknown" {
		return semver.MustParse("0.0.0"), nil
	}
	return parseVersion(current)
}

func parseVersion(tag string) (*semver.Version, error) {
	return semver.NewVersion(strings.TrimPrefix(tag, "v"))
}
