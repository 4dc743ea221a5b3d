package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grove-tools/grove/internal/groveconfig"
	"github.com/grove-tools/grove/internal/lockfile"
	"github.com/grove-tools/grove/internal/session"
	"github.com/grove-tools/grove/internal/version"
	"github.com/spf13/cobra"
)

var (
	installPin    string
	installForce  bool
	installCanary bool
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [id [spec]] [-- args...]",
		Short: "Install a pinned tool, or every tool pinned in the merged config",
		Long: `Installs a tool at a resolved version. With no id, installs every tool
currently pinned across the merged .prototools layers, one at a time,
stopping at the first failure.`,
		Example: "  grove install\n  grove install node\n  grove install node 20.1.0 --pin local",
		Args:    cobra.MaximumNArgs(2),
		RunE: withSession(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return installAll(ctx)
			}
			toolID := args[0]
			var spec *version.UnresolvedSpec
			if installCanary {
				spec = &version.UnresolvedSpec{Kind: version.SpecCanary}
			} else if len(args) == 2 {
				parsed, err := version.ParseUnresolved(args[1])
				if err != nil {
					return newUsageError("invalid version spec %q: %v", args[1], err)
				}
				spec = &parsed
			}
			return installOne(ctx, toolID, spec)
		}),
	}

	cmd.Flags().StringVar(&installPin, "pin", "", "pin the resolved version (global|local)")
	cmd.Flags().BoolVar(&installForce, "force", false, "reinstall even if already set up")
	cmd.Flags().BoolVar(&installCanary, "canary", false, "install the canary channel")

	return cmd
}

func init() {
	rootCmd.AddCommand(newInstallCmd())
}

func installAll(ctx *CommandContext) error {
	merged := ctx.Session.Merged
	if len(merged.Versions) == 0 {
		fmt.Println("No tools pinned in the merged config.")
		return nil
	}
	for id, spec := range merged.Versions {
		parsed, err := version.ParseUnresolved(spec.Req)
		if err != nil {
			return fmt.Errorf("parsing pinned spec for %q: %w", id, err)
		}
		if err := installOne(ctx, id, &parsed); err != nil {
			return err
		}
	}
	return nil
}

func installOne(ctx *CommandContext, toolID string, spec *version.UnresolvedSpec) error {
	tool, err := ctx.Session.Tool(ctx.Context, toolID)
	if err != nil {
		return fmt.Errorf("load plugin for %q: %w", toolID, err)
	}

	// Checked before resolution, which writes the version cache into the
	// tool directory.
	_, statErr := os.Stat(ctx.Session.Store.ToolDir(toolID))
	firstInstall := os.IsNotExist(statErr)

	backend := ctx.Session.Merged.Tools[toolID].Backend
	specText := ""
	if spec != nil {
		specText = spec.String()
	}

	lockedVersion, err := enforceLockfile(ctx.Session, toolID, specText, backend, "")
	if err != nil {
		return fmt.Errorf("enforce lockfile for %s: %w", toolID, err)
	}

	var resolvedVersion string
	if lockedVersion != "" {
		resolvedVersion = lockedVersion
	} else {
		resolvedVersion, err = tool.ResolveVersion(ctx.Context, spec, true)
		if err != nil {
			return fmt.Errorf("resolve version for %q: %w", toolID, err)
		}
	}

	alreadySetUp := tool.IsSetup(resolvedVersion) && !installForce
	if installForce {
		installDir := ctx.Session.Store.InstallDir(toolID, resolvedVersion)
		if err := os.RemoveAll(installDir); err != nil {
			return fmt.Errorf("remove existing install for %s@%s: %w", toolID, resolvedVersion, err)
		}
	}
	if !alreadySetUp {
		if err := tool.Install(ctx.Context, resolvedVersion); err != nil {
			return fmt.Errorf("install %s@%s: %w", toolID, resolvedVersion, err)
		}

		if _, err := enforceLockfile(ctx.Session, toolID, specText, backend, tool.ChecksumValue()); err != nil {
			// spec.md §8 scenario 4: a checksum-mismatch enforcement failure
			// must not leave a half-verified install on disk.
			_ = os.RemoveAll(ctx.Session.Store.InstallDir(toolID, resolvedVersion))
			return fmt.Errorf("verify lockfile checksum for %s: %w", toolID, err)
		}

		fmt.Printf("Installed %s@%s\n", toolID, resolvedVersion)
	} else {
		fmt.Printf("%s@%s is already installed\n", toolID, resolvedVersion)
	}

	if err := updateLockfile(ctx.Session, toolID, resolvedVersion, spec, backend, tool.ChecksumValue()); err != nil {
		return fmt.Errorf("update lockfile for %s: %w", toolID, err)
	}

	return maybePin(ctx.Session, toolID, resolvedVersion, spec, firstInstall)
}

// enforceLockfile implements spec.md §4.11's "on install (enforcement)"
// rule at the two points it applies: called once before resolution with an
// empty checksum, a matching lockfile record's version (if any) bypasses
// catalog resolution entirely; called again after install.Install computes
// a real checksum, a mismatch against the record's recorded checksum fails
// the install before the lockfile is updated. Returns "" when no record
// matches, leaving the caller's own resolution/checksum untouched.
func enforceLockfile(sess *session.Session, toolID, specText, backend, verifiedChecksum string) (string, error) {
	if !sess.Merged.Settings.Lockfile {
		return "", nil
	}
	path := filepath.Join(lockfileDir(sess), ".protolock")
	f, err := lockfile.Load(path)
	if err != nil {
		return "", err
	}
	resolvedVersion, _, err := lockfile.Enforce(f, toolID, specText, backend, verifiedChecksum)
	if err != nil {
		return "", err
	}
	return resolvedVersion, nil
}

// maybePin implements spec.md §4.10a: pin when requested explicitly, or
// when this is the tool's first-ever install, or when the spec was
// "latest" and settings.pin_latest names a location.
func maybePin(sess *session.Session, toolID, resolvedVersion string, spec *version.UnresolvedSpec, firstInstall bool) error {
	location := installPin
	if location == "" && firstInstall {
		location = "local"
	}
	if location == "" && spec != nil && spec.Kind == version.SpecAlias && spec.Alias == "latest" {
		location = sess.Merged.Settings.PinLatest
	}
	if location == "" {
		return nil
	}

	path := pinTargetPath(sess, location)
	if path == "" {
		return nil
	}
	return groveconfig.PinVersion(path, toolID, "", resolvedVersion)
}

func pinTargetPath(sess *session.Session, location string) string {
	switch location {
	case "global":
		return sess.Store.GlobalConfig()
	case "user":
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, ".prototools")
	case "local":
		if len(sess.Layers) == 0 {
			return ""
		}
		return filepath.Join(sess.Layers[0].Dir, ".prototools")
	default:
		return ""
	}
}

func updateLockfile(sess *session.Session, toolID, resolvedVersion string, spec *version.UnresolvedSpec, backend, checksum string) error {
	if !sess.Merged.Settings.Lockfile {
		return nil
	}
	dir := lockfileDir(sess)
	path := filepath.Join(dir, ".protolock")

	f, err := lockfile.Load(path)
	if err != nil {
		return err
	}
	specText := ""
	if spec != nil {
		specText = spec.String()
	}
	if err := lockfile.ApplyInstall(f, toolID, lockfile.Record{Spec: specText, Version: resolvedVersion, Checksum: checksum, Backend: backend}, false); err != nil {
		return err
	}
	return lockfile.Save(path, f)
}

func lockfileDir(sess *session.Session) string {
	for _, l := range sess.Layers {
		if l.Location == groveconfig.LocationLocal {
			return l.Dir
		}
	}
	return "."
}
