// Package buildinfo provides build version and metadata information.
package buildinfo

import "runtime/debug"

// Version metadata is injected at build time via ldflags. When it is not, Summary falls back
// to the module version and VCS stamp recorded by the Go toolchain.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Summary returns a human-readable version summary string.
func Summary() string {
	version, commit, date := Version, Commit, Date
	if commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			version, commit, date = fromBuildInfo(info, version)
		}
	}
	return format(version, commit, date)
}

func fromBuildInfo(info *debug.BuildInfo, version string) (string, string, string) {
	if (version == "" || version == "dev") && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	var commit, date string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
			if len(commit) > 12 {
				commit = commit[:12]
			}
		case "vcs.time":
			date = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && commit != "" {
		commit += "-dirty"
	}
	return version, commit, date
}

func format(version, commit, date string) string {
	if version == "" {
		version = "dev"
	}
	parts := version
	if commit != "" {
		parts += " (" + commit
		if date != "" {
			parts += " " + date
		}
		parts += ")"
	} else if date != "" {
		parts += " (" + date + ")"
	}
	return parts
}
