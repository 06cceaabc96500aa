// Package host finds, starts and watches the decompiler engine process.
package host

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/loupe-re/loupe/internal/constants"
)

// EnginePathEnv overrides engine discovery with an explicit path.
const EnginePathEnv = "LOUPE_ENGINE_PATH"

// Locate returns the path of the engine executable. The search order is:
// explicit, $LOUPE_ENGINE_PATH, next to the running executable,
// ../libexec/loupe relative to it, then $PATH.
func Locate(explicit string) (string, error) {
	exeDir := ""
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		exeDir = filepath.Dir(exe)
	}
	return locate(explicit, os.Getenv(EnginePathEnv), exeDir, exec.LookPath)
}

func locate(explicit, fromEnv, exeDir string, lookPath func(string) (string, error)) (string, error) {
	if explicit != "" {
		if err := checkExecutable(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	if fromEnv != "" {
		if err := checkExecutable(fromEnv); err == nil {
			return fromEnv, nil
		}
	}

	name := binaryName()
	var candidates []string
	if exeDir != "" {
		candidates = append(candidates,
			filepath.Join(exeDir, name),
			filepath.Join(exeDir, filepath.FromSlash(constants.EngineLibexecDir), name),
		)
	}
	for _, c := range candidates {
		if checkExecutable(c) == nil {
			return c, nil
		}
	}

	if path, err := lookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%s not found: install it next to loupe, in %s, or in PATH, or set %s",
		name, constants.EngineLibexecDir, EnginePathEnv)
}

func binaryName() string {
	if runtime.GOOS == "windows" {
		return constants.EngineBinaryName + ".exe"
	}
	return constants.EngineBinaryName
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("engine binary %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("engine binary %q is a directory", path)
	}
	return nil
}
