// Package buildreq models the build_instructions plugin call and checks the
// requirements it declares (spec.md §4.4's build_instructions entry, kept
// explicitly out of scope to *execute*). SPEC_FULL.md's supplement #5 still
// wants the shape modeled and the requirement probes run, surfaced through
// `grove diagnose`, so a user can see why a tool without prebuilt binaries
// for their platform would fail to build from source before grove ever
// attempts it.
//
// Grounded on _examples/original_source/crates/core/src/flow/build.rs's
// BuildInstructionsOutput/BuildRequirement shapes and its check_requirements
// step (command_exists/find_command_on_path/git config/version probes);
// install_system_dependencies, download_sources, and execute_instructions are
// intentionally not ported here since actually building from source is out
// of scope.
package buildreq

import (
	"context"
	"encoding/json"
)

// ArchiveSource and GitSource mirror BuildInstructionsOutput.source's two
// variants; only one is ever non-nil.
type ArchiveSource struct {
	URL    string `json:"url"`
	Prefix string `json:"prefix,omitempty"`
}

type GitSource struct {
	URL        string `json:"url"`
	Reference  string `json:"reference,omitempty"`
	Submodules bool   `json:"submodules,omitempty"`
}

// SourceLocation is BuildInstructionsOutput.source: where the source to
// build lives, if the plugin declares one at all (instructions-only builds
// have neither).
type SourceLocation struct {
	Archive *ArchiveSource `json:"archive,omitempty"`
	Git     *GitSource     `json:"git,omitempty"`
}

// RequirementKind is one of the original's BuildRequirement enum variants,
// sent over the wire as a tagged string.
type RequirementKind string

const (
	RequirementCommandExistsOnPath  RequirementKind = "command_exists_on_path"
	RequirementCommandVersion       RequirementKind = "command_version"
	RequirementManualIntercept      RequirementKind = "manual_intercept"
	RequirementGitConfigSetting     RequirementKind = "git_config_setting"
	RequirementGitVersion           RequirementKind = "git_version"
	RequirementXcodeCommandLineTools RequirementKind = "xcode_command_line_tools"
	RequirementWindowsDeveloperMode RequirementKind = "windows_developer_mode"
)

// Requirement is one entry of BuildInstructionsOutput.requirements. Not every
// field applies to every Kind; see the original's BuildRequirement variants
// for which fields each kind reads.
type Requirement struct {
	Kind          RequirementKind `json:"type"`
	Command       string          `json:"command,omitempty"`
	VersionReq    string          `json:"version_req,omitempty"`
	VersionArg    string          `json:"version_arg,omitempty"`
	URL           string          `json:"url,omitempty"`
	ConfigKey     string          `json:"config_key,omitempty"`
	ExpectedValue string          `json:"expected_value,omitempty"`
}

// BuildInstructionsOutput is build_instructions({context})'s full wire
// result. Instructions is kept as opaque JSON: grove models the shape for
// `grove diagnose` but never executes a build, so the instruction variants
// (install_builder, run_command, set_env_var, ...) have no reason to be
// individually typed here.
type BuildInstructionsOutput struct {
	Source             *SourceLocation   `json:"source,omitempty"`
	Requirements       []Requirement     `json:"requirements,omitempty"`
	Instructions       []json.RawMessage `json:"instructions,omitempty"`
	SystemDependencies []string          `json:"system_dependencies,omitempty"`
	HelpURL            string            `json:"help_url,omitempty"`
}

// buildInstructionsInput mirrors the small context object build_instructions
// takes, matching the context shape every other plugin-facing call uses.
type buildInstructionsInput struct {
	Context struct {
		ToolID string `json:"tool_id"`
	} `json:"context"`
}

// PluginCaller is the subset of *plugin.Container this package needs.
type PluginCaller interface {
	HasFunc(ctx context.Context, name string) (bool, error)
	CallFunc(ctx context.Context, name string, input, output any) error
}

// Load calls build_instructions if the plugin declares it, returning nil,
// nil when it doesn't (a binary-only tool with no build-from-source path).
func Load(ctx context.Context, plugin PluginCaller, toolID string) (*BuildInstructionsOutput, error) {
	has, err := plugin.HasFunc(ctx, "build_instructions")
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}

	input := buildInstructionsInput{}
	input.Context.ToolID = toolID

	var out BuildInstructionsOutput
	if err := plugin.CallFunc(ctx, "build_instructions", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
