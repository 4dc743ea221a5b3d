package session

// installHookInput is the wire shape passed to the pre_install/post_install
// fire-and-forget hooks (spec.md §4.4/§4.10).
type installHookInput struct {
	ToolID     string `json:"tool_id"`
	Version    string `json:"version"`
	InstallDir string `json:"install_dir,omitempty"`
}

// pluginContext mirrors the small context object every plugin-facing input
// carries, per §4.4's wire protocol.
type pluginContext struct {
	ToolID  string `json:"tool_id"`
	Version string `json:"version,omitempty"`
}

// syncShellProfileInput/syncShellProfileOutput are sync_shell_profile's wire
// shapes: the plugin names an env var grove should treat as the "already
// synced" marker, and optionally contributes exports/PATH entries to append
// to the user's shell profile the first time that var is unset.
type syncShellProfileInput struct {
	Context         pluginContext `json:"context"`
	PassthroughArgs []string      `json:"passthrough_args,omitempty"`
}

type syncShellProfileOutput struct {
	CheckVar   string            `json:"check_var"`
	ExportVars map[string]string `json:"export_vars,omitempty"`
	ExtendPath []string          `json:"extend_path,omitempty"`
	SkipSync   bool              `json:"skip_sync"`
}
