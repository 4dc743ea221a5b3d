package main

import "github.com/grove-tools/grove/internal/version"

// versionFromSpec parses a spec string into an UnresolvedSpec pointer, for
// commands that read a pinned spec back out of merged config.
func versionFromSpec(specText string) (*version.UnresolvedSpec, error) {
	parsed, err := version.ParseUnresolved(specText)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
