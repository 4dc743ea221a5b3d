package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// registerToolInput mirrors register_tool(id)'s wire input.
type registerToolInput struct {
	ID string `json:"id"`
}

// RegisterToolOutput mirrors register_tool's {name, type, default_version?,
// inventory, self_upgrade_commands[], minimum_proto_version?, config_schema?}
// contract (spec.md §4.4). Only the fields this module consumes are typed;
// the rest round-trip through json.RawMessage-free plain fields since no
// caller needs them yet.
type RegisterToolOutput struct {
	Name                string          `json:"name"`
	Type                string          `json:"type"`
	DefaultVersion      string          `json:"default_version,omitempty"`
	SelfUpgradeCommands []string        `json:"self_upgrade_commands,omitempty"`
	MinimumProtoVersion string          `json:"minimum_proto_version,omitempty"`
	ConfigSchema        json.RawMessage `json:"config_schema,omitempty"`

	// GitURL/GitTagPattern name a git-tags catalog fallback for plugins
	// that back onto a tagged git repository instead of a JSON release
	// feed, mirroring the original's ResolveSchema.git_url/git_tag_pattern
	// (see internal/resolve.GitTagCatalog). Empty GitURL means the plugin
	// exposes a normal load_versions call instead.
	GitURL        string `json:"git_url,omitempty"`
	GitTagPattern string `json:"git_tag_pattern,omitempty"`
}

// RegisterTool calls register_tool, cached like the other pure/idempotent
// guest calls (spec.md §4.4 tags it "cached").
func (c *Container) RegisterTool(ctx context.Context) (RegisterToolOutput, error) {
	var out RegisterToolOutput
	if err := c.CacheFunc(ctx, "register_tool", registerToolInput{ID: c.name}, &out); err != nil {
		return RegisterToolOutput{}, err
	}
	return out, nil
}

// ValidateConfig fetches this plugin's register_tool-declared config_schema
// (if any) and validates config against it, per SPEC_FULL.md's domain-stack
// commitment to validate `tools.<id>.config` before the plugin ever sees it.
// A plugin with no config_schema is not validated and nil is returned.
func (c *Container) ValidateConfig(ctx context.Context, config map[string]any) error {
	info, err := c.RegisterTool(ctx)
	if err != nil {
		return fmt.Errorf("register_tool for %s: %w", c.name, err)
	}
	return validateAgainstSchema(c.name, info.ConfigSchema, config)
}

// validateAgainstSchema compiles schemaJSON (if non-empty) and validates
// config against it, split out from ValidateConfig so the compile/validate
// path can be unit tested without a live WASM container.
func validateAgainstSchema(toolID string, schemaJSON json.RawMessage, config map[string]any) error {
	if len(schemaJSON) == 0 {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	resource := toolID + "-config-schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("add config_schema resource for %s: %w", toolID, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("compile config_schema for %s: %w", toolID, err)
	}

	if err := schema.Validate(config); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return formatSchemaValidationError(toolID, verr)
		}
		return fmt.Errorf("validate config for %s: %w", toolID, err)
	}
	return nil
}

func formatSchemaValidationError(toolID string, err *jsonschema.ValidationError) error {
	var messages []string
	var collect func(*jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if e.Message != "" {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "(root)"
			}
			messages = append(messages, loc+": "+e.Message)
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(err)
	if len(messages) == 0 {
		return fmt.Errorf("config validation failed for %s", toolID)
	}
	return fmt.Errorf("config validation failed for %s:\n  - %s", toolID, strings.Join(messages, "\n  - "))
}
