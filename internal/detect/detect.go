// Package detect implements the version detector (component C9): locating
// an applicable version for a tool by checking, in priority order, an
// environment variable override, each config layer's `.prototools` pin,
// and the plugin's own ecosystem detection files (package.json,
// .nvmrc, etc.).
//
// Grounded on spec.md §4.9's three named strategies and the teacher's own
// layered-lookup style in internal/config (walk-then-first-match), applied
// here to version pins instead of YAML settings.
package detect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grove-tools/grove/internal/groveconfig"
	"github.com/grove-tools/grove/internal/groveerrors"
	"github.com/grove-tools/grove/internal/version"
)

// PluginCaller is the subset of *plugin.Container detection needs.
type PluginCaller interface {
	CallFunc(ctx context.Context, name string, input, output any) error
}

// Result is one successful detection.
type Result struct {
	Spec   version.UnresolvedSpec
	Source string // the env var name or file path the version was read from
}

type detectVersionFilesOutput struct {
	Files  []string `json:"files"`
	Ignore []string `json:"ignore"`
}

type parseVersionFileInput struct {
	Content string `json:"content"`
	File    string `json:"file"`
	Path    string `json:"path"`
}

type parseVersionFileOutput struct {
	Version string `json:"version"`
}

// EnvVarName returns the PROTO_<ID>_VERSION override name for toolID
// (uppercased, dashes replaced with underscores).
func EnvVarName(toolID string) string {
	return "PROTO_" + normalizeID(toolID) + "_VERSION"
}

// DetectedFromEnvName returns the PROTO_<ID>_DETECTED_FROM export name.
func DetectedFromEnvName(toolID string) string {
	return "PROTO_" + normalizeID(toolID) + "_DETECTED_FROM"
}

func normalizeID(toolID string) string {
	return strings.ToUpper(strings.ReplaceAll(toolID, "-", "_"))
}

// Detect runs the C9 algorithm. layers must be ordered deepest-first (CWD
// first, global last), matching groveconfig.LoadLayers's contract. On
// success it exports PROTO_<ID>_DETECTED_FROM into the process environment
// (spec.md §4.9), so a shell or child process inspecting its own env can
// see what drove the version it's running.
func Detect(ctx context.Context, plugin PluginCaller, toolID string, layers []groveconfig.Layer, strategy groveconfig.DetectStrategy, lookupEnv func(string) (string, bool)) (*Result, error) {
	result, err := detect(ctx, plugin, toolID, layers, strategy, lookupEnv)
	if err != nil {
		return nil, err
	}
	_ = os.Setenv(DetectedFromEnvName(toolID), result.Source)
	return result, nil
}

func detect(ctx context.Context, plugin PluginCaller, toolID string, layers []groveconfig.Layer, strategy groveconfig.DetectStrategy, lookupEnv func(string) (string, bool)) (*Result, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	if raw, ok := lookupEnv(EnvVarName(toolID)); ok && raw != "" {
		spec, err := version.ParseUnresolved(raw)
		if err != nil {
			return nil, groveerrors.Wrap(groveerrors.KindVersionParse, toolID, err)
		}
		return &Result{Spec: spec, Source: EnvVarName(toolID)}, nil
	}

	switch strategy {
	case groveconfig.DetectOnlyPrototools:
		for _, layer := range layers {
			if res, ok, err := checkPinLayer(layer, toolID); err != nil {
				return nil, err
			} else if ok {
				return res, nil
			}
		}

	case groveconfig.DetectPreferPrototools:
		for _, layer := range layers {
			if res, ok, err := checkPinLayer(layer, toolID); err != nil {
				return nil, err
			} else if ok {
				return res, nil
			}
		}
		for _, layer := range layers {
			if res, ok, err := checkEcosystemLayer(ctx, plugin, layer, toolID); err != nil {
				return nil, err
			} else if ok {
				return res, nil
			}
		}

	default: // DetectFirstAvailable
		for _, layer := range layers {
			if res, ok, err := checkPinLayer(layer, toolID); err != nil {
				return nil, err
			} else if ok {
				return res, nil
			}
			if res, ok, err := checkEcosystemLayer(ctx, plugin, layer, toolID); err != nil {
				return nil, err
			} else if ok {
				return res, nil
			}
		}
	}

	return nil, groveerrors.New(groveerrors.KindFailedVersionDetect, fmt.Sprintf("no version detected for %s", toolID)).WithTool(toolID)
}

func checkPinLayer(layer groveconfig.Layer, toolID string) (*Result, bool, error) {
	if !layer.Exists || layer.Content == nil {
		return nil, false, nil
	}
	spec, ok := layer.Content.Versions[toolID]
	if !ok {
		return nil, false, nil
	}
	parsed, err := version.ParseUnresolved(spec.Req)
	if err != nil {
		return nil, false, groveerrors.Wrap(groveerrors.KindVersionParse, toolID, err)
	}
	return &Result{Spec: parsed, Source: layer.Path}, true, nil
}

func checkEcosystemLayer(ctx context.Context, plugin PluginCaller, layer groveconfig.Layer, toolID string) (*Result, bool, error) {
	if plugin == nil {
		return nil, false, nil
	}
	var filesOut detectVersionFilesOutput
	if err := plugin.CallFunc(ctx, "detect_version_files", struct{}{}, &filesOut); err != nil {
		return nil, false, nil // plugin may not implement detection at all
	}

	for _, name := range filesOut.Files {
		path := filepath.Join(layer.Dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var parsed parseVersionFileOutput
		in := parseVersionFileInput{Content: string(data), File: name, Path: path}
		if err := plugin.CallFunc(ctx, "parse_version_file", in, &parsed); err != nil {
			continue
		}
		if parsed.Version == "" {
			continue
		}

		spec, err := version.ParseUnresolved(parsed.Version)
		if err != nil {
			return nil, false, groveerrors.Wrap(groveerrors.KindVersionParse, toolID, err)
		}
		return &Result{Spec: spec, Source: path}, true, nil
	}

	return nil, false, nil
}
