package utility

import (
	"os"
	"path/filepath"
)

// DefaultObjectName is the compiled probe looked up next to the executable.
const DefaultObjectName = "probe.o"

// GetProjectRoot returns the directory holding the running executable.
func GetProjectRoot() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// ResolveObject returns path unchanged when set, otherwise the default
// probe object next to the executable.
func ResolveObject(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	root, err := GetProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, DefaultObjectName), nil
}
