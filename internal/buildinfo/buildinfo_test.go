package buildinfo

import (
	"runtime/debug"
	"testing"
)

func TestFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		version, commit, date string
		want                  string
	}{
		{"", "", "", "dev"},
		{"v1.2.0", "", "", "v1.2.0"},
		{"v1.2.0", "abc123", "", "v1.2.0 (abc123)"},
		{"v1.2.0", "abc123", "2026-01-02", "v1.2.0 (abc123 2026-01-02)"},
		{"v1.2.0", "", "2026-01-02", "v1.2.0 (2026-01-02)"},
	}
	for _, tt := range tests {
		if got := format(tt.version, tt.commit, tt.date); got != tt.want {
			t.Fatalf("format(%q, %q, %q) = %q, want %q", tt.version, tt.commit, tt.date, got, tt.want)
		}
	}
}

func TestFromBuildInfo(t *testing.T) {
	t.Parallel()
	info := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T10:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	version, commit, date := fromBuildInfo(info, "dev")
	if version != "v0.3.1" || commit != "0123456789ab-dirty" || date != "2026-10-01T10:00:00Z" {
		t.Fatalf("unexpected %q %q %q", version, commit, date)
	}

	version, _, _ = fromBuildInfo(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, "dev")
	if version != "dev" {
		t.Fatalf("expected devel builds to keep dev, got %q", version)
	}
}
