// Package version reports the build of the server binary.
package version

import "runtime/debug"

const devVersion = "dev"

var version = devVersion

// Set records the version passed via -ldflags. Empty values are ignored.
func Set(v string) {
	if v != "" {
		version = v
	}
}

// Version returns the linked version, else the module version from the build
// info, else "dev".
func Version() string {
	if version != devVersion {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

// Revision returns the short VCS revision stamped by the go tool, or "".
func Revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
