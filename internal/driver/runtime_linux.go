//go:build linux

package driver

import (
	"errors"
	"fmt"
	"os/exec"
)

// FindRuntime locates a helper binary (e.g. rtl_sdr) in PATH
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", NewRuntimeError(fmt.Sprintf("`%s` not found in PATH: %s", runtime, err.Error()))
		}
		return "", NewRuntimeError(fmt.Sprintf("failed to locate `%s`: %s", runtime, err.Error()))
	}

	return binPath, nil
}
