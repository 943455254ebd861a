package update

import "testing"

func TestSelectUpdate_StableExcludesPrerelease(t *testing.T) {
	releases := []Release{
		{TagName: "v1.1.0"},
		{TagName: "v1.2.0-rc1", Prerelease: true},
		{TagName: "v1.0.0"},
	}

	best, ok, err := SelectUpdate(releases, "v1.0.0", ChannelStable)
	if err != nil {
		t.Fatalf("SelectUpdate() error = %v", err)
	}
	if !ok {
		t.Fatal("SelectUpdate() ok = false, want true")
	}
	if best.TagName != "v1.1.0" {
		t.Errorf("SelectUpdate() = %q, want v1.1.0", best.TagName)
	}
}

func TestSelectUpdate_BetaAcceptsPrerelease(t *testing.T) {
	releases := []Release{
		{TagName: "v1.1.0"},
		{TagName: "v1.2.0-rc1", Prerelease: true},
	}

	best, ok, err := SelectUpdate(releases, "v1.0.0", ChannelBeta)
	if err != nil {
		t.Fatalf("SelectUpdate() error = %v", err)
	}
	if !ok {
		t.Fatal("SelectUpdate() ok = false, want true")
	}
	if best.TagName != "v1.2.0-rc1" {
		t.Errorf("SelectUpdate() = %q, want v1.2.0-rc1", best.TagName)
	}
}

func TestSelectUpdate_NothingNewer(t *testing.T) {
	releases := []Release{{TagName: "v1.0.0"}}

	_, ok, err := SelectUpdate(releases, "v1.0.0", ChannelStable)
	if err != nil {
		t.Fatalf("SelectUpdate() error = %v", err)
	}
	if ok {
		t.Error("SelectUpdate() ok = true, want false when nothing is newer")
	}
}

func TestSelectUpdate_DevCurrentAcceptsAnyRelease(t *testing.T) {
	releases := []Release{{TagName: "v0.1.0"}}

	best, ok, err := SelectUpdate(releases, "dev", ChannelStable)
	if err != nil {
		t.Fatalf("SelectUpdate() error = %v", err)
	}
	if !ok || best.TagName != "v0.1.0" {
		t.Errorf("SelectUpdate() = (%q, %v), want (v0.1.0, true)", best.TagName, ok)
	}
}

func TestSelectUpdate_UnparseableTagsSkipped(t *testing.T) {
	releases := []Release{
		{TagName: "not-a-version"},
		{TagName: "v1.1.0"},
	}

	best, ok, err := SelectUpdate(releases, "v1.0.0", ChannelStable)
	if err != nil {
		t.Fatalf("SelectUpdate() error = %v", err)
	}
	if !ok || best.TagName != "v1.1.0" {
		t.Errorf("SelectUpdate() = (%q, %v), want (v1.1.0, true)", best.TagName, ok)
	}
}
