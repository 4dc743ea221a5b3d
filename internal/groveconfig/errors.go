package groveconfig

import "fmt"

// UnknownFieldError is raised for a top-level scalar key that is neither a
// known setting nor valid as a kebab-case version pin, or for an unknown
// table.
type UnknownFieldError struct {
	File  string
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s: unknown field %q", e.File, e.Field)
}

// MissingEnvFileError is raised when an `env.file` entry names a path that
// does not exist at load time.
type MissingEnvFileError struct {
	File string
	Path string
}

func (e *MissingEnvFileError) Error() string {
	return fmt.Sprintf("%s: env file %q does not exist", e.File, e.Path)
}

// ReservedPluginIDError is raised when `plugins` declares an entry named
// "proto".
type ReservedPluginIDError struct {
	File string
}

func (e *ReservedPluginIDError) Error() string {
	return fmt.Sprintf("%s: %q is a reserved plugin id", e.File, reservedPluginID)
}

// AlreadyLockedError is raised when more than one layer in the effective
// stack sets settings.lockfile = true.
type AlreadyLockedError struct {
	First  string
	Second string
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("lockfile is already enabled by %s; %s cannot enable it again", e.First, e.Second)
}
