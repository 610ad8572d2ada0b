// Package scanning owns scan sessions: it validates requests, assembles the
// scan tool command line, runs each session through the worker pool, and
// turns raw process output into progress events.
package scanning

import (
	"strconv"
	"strings"

	"github.com/scanhub/scanhub/internal/errors"
)

// PresetCustom selects the caller-supplied flag string instead of a named
// flag bundle.
const PresetCustom = "custom"

// presetFlags maps named scan profiles to their canonical flags.
var presetFlags = map[string]string{
	"basic":   "",
	"intense": "-T4 -A -v",
	"quick":   "-T4 -F",
	"ping":    "-sn",
}

// ResolveFlags returns the flag string for a preset. For the custom preset
// the caller-supplied flags are used verbatim; for any named preset the
// custom flags are ignored, never merged.
func ResolveFlags(preset, customFlags string) (string, error) {
	if preset == PresetCustom {
		return customFlags, nil
	}
	flags, ok := presetFlags[preset]
	if !ok {
		return "", errors.NewScanError(errors.CodeValidation, "unknown scan preset: "+preset)
	}
	return flags, nil
}

// BuildArgs assembles the scan tool argument list. The target goes last;
// -Pn is always set; verbose output is forced unless the flags already ask
// for verbose or debug output, since progress parsing depends on it.
func BuildArgs(target, ports, flags string, threads int) []string {
	args := []string{"-Pn"}
	if ports != "" {
		args = append(args, "-p", ports)
	}
	if flags != "" {
		args = append(args, strings.Fields(flags)...)
	}
	if threads > 0 {
		args = append(args, "--min-parallelism", strconv.Itoa(threads))
	}
	if !strings.Contains(flags, "-v") && !strings.Contains(flags, "-d") {
		args = append(args, "-v")
	}
	return append(args, target)
}
