// Package buildinfo carries version metadata set with -ldflags -X.
package buildinfo

import "runtime/debug"

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// Info reports the build for /healthz and /debug/info. Without ldflags the
// commit falls back to the VCS stamp the toolchain embeds.
func Info() map[string]string {
    commit := Commit
    goVersion := ""
    if bi, ok := debug.ReadBuildInfo(); ok {
        goVersion = bi.GoVersion
        for _, s := range bi.Settings {
            if commit == "" && s.Key == "vcs.revision" { commit = s.Value }
        }
    }
    return map[string]string{
        "version": Version,
        "commit":  commit,
        "builtAt": BuiltAt,
        "go":      goVersion,
    }
}
