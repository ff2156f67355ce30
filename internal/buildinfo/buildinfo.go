// Package buildinfo carries version data populated at build time via -ldflags.
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "HEAD"
	BuiltAt = "now"
)

func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}

// String formats the build for --version output.
func String() string {
	short := Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s (%s) %s", Version, short, BuiltAt)
}
