package execflow

// PluginContext mirrors the small context object every plugin-facing input
// carries (tool id plus version, per §4.4's wire protocol) so the WASM side
// can key its behaviour off which tool/version it is being asked about.
type PluginContext struct {
	ToolID  string `json:"tool_id"`
	Version string `json:"version,omitempty"`
}

// activateEnvironmentInput/activateEnvironmentOutput are the `activate_environment`
// plugin function's wire shapes: no request fields beyond context, and a
// response contributing extra env vars and PATH entries for the activated
// shell (spec.md §4.14 step 3).
type activateEnvironmentInput struct {
	Context PluginContext `json:"context"`
}

type activateEnvironmentOutput struct {
	Env   map[string]string `json:"env"`
	Paths []string          `json:"paths"`
}

// runHookInput/runHookOutput are the `pre_run` hook's wire shapes. The
// plugin receives where globals would live and the passthrough args the
// user typed after `--`, and may contribute its own args/env/paths back.
type runHookInput struct {
	Context         PluginContext `json:"context"`
	GlobalsDir      string        `json:"globals_dir,omitempty"`
	GlobalsPrefix   string        `json:"globals_prefix,omitempty"`
	PassthroughArgs []string      `json:"passthrough_args,omitempty"`
}

type runHookOutput struct {
	Args  []string          `json:"args,omitempty"`
	Env   map[string]string `json:"env,omitempty"`
	Paths []string          `json:"paths,omitempty"`
}
