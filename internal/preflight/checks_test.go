package preflight_test

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/preflight"
)

func TestWimMountCheckFailureIsBlocking(t *testing.T) {
	restore := preflight.MockExecCommand(func(name string, arg ...string) *exec.Cmd {
		assert.Equal(t, "dism.exe", name)
		return exec.Command("/nonexistent-dism")
	})
	defer restore()

	result := preflight.WimMountCheck{}.Run(context.Background())

	assert.Equal(t, preflight.StatusFailed, result.Status)
	assert.Contains(t, result.Remediation, "blocking")
	assert.Contains(t, result.Remediation, "sc.exe start wimmount")
}

func TestWimMountCheckPasses(t *testing.T) {
	var call []string
	restore := preflight.MockExecCommand(func(name string, arg ...string) *exec.Cmd {
		call = append([]string{name}, arg...)
		// return a real exec.Command() result so that output reading
		// doesn't fail
		return exec.Command("true")
	})
	defer restore()

	result := preflight.WimMountCheck{}.Run(context.Background())

	assert.Equal(t, preflight.StatusPassed, result.Status)
	assert.Equal(t, []string{"dism.exe", "/English", "/Get-MountedImageInfo"}, call)
}

func TestVMwareToolkitAbsenceIsWarningWithFallback(t *testing.T) {
	restore := preflight.MockLookPath(func(file string) (string, error) {
		return "", errors.New("not found")
	})
	defer restore()

	result := preflight.VMwareToolkitCheck{}.Run(context.Background())

	assert.Equal(t, preflight.StatusWarning, result.Status)
	assert.Equal(t, "true", result.Details["fallback_available"])
	assert.Equal(t, "false", result.Details["vmrun_present"])
	assert.Contains(t, result.Remediation, "optional")
	assert.Contains(t, result.Remediation, "degraded mode")
}

func TestVMwareToolkitConfiguredPasses(t *testing.T) {
	restore := preflight.MockLookPath(func(file string) (string, error) {
		return "/usr/bin/" + file, nil
	})
	defer restore()

	result := preflight.VMwareToolkitCheck{GovcURL: "https://vcenter.example.com/sdk"}.Run(context.Background())

	assert.Equal(t, preflight.StatusPassed, result.Status)
	assert.Equal(t, "true", result.Details["vmrun_present"])
}

func TestADKToolsCheckReportsMissingTools(t *testing.T) {
	restore := preflight.MockLookPath(func(file string) (string, error) {
		if file == "dism.exe" {
			return `C:\Windows\System32\dism.exe`, nil
		}
		return "", exec.ErrNotFound
	})
	defer restore()

	result := preflight.ADKToolsCheck{}.Run(context.Background())

	assert.Equal(t, preflight.StatusFailed, result.Status)
	assert.Equal(t, "oscdimg.exe", result.Details["missing_tools"])
	assert.Contains(t, result.Remediation, "blocking")
}

func TestDiskSpaceCheck(t *testing.T) {
	tests := []struct {
		name     string
		free     uint64
		freeErr  error
		required uint64
		status   preflight.CheckStatus
	}{
		{
			name:     "enough space",
			free:     500 * 1024 * 1024 * 1024,
			required: 100 * 1024 * 1024 * 1024,
			status:   preflight.StatusPassed,
		},
		{
			name:     "not enough space",
			free:     20 * 1024 * 1024 * 1024,
			required: 100 * 1024 * 1024 * 1024,
			status:   preflight.StatusFailed,
		},
		{
			name:    "probe error",
			freeErr: errors.New("no such drive"),
			status:  preflight.StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := preflight.DiskSpaceCheck{
				Path:          `C:\FFUDevelopment`,
				RequiredBytes: tt.required,
				FreeBytes: func(path string) (uint64, error) {
					return tt.free, tt.freeErr
				},
			}
			result := check.Run(context.Background())
			require.Equal(t, tt.status, result.Status)
			if tt.status == preflight.StatusFailed {
				assert.Contains(t, result.Remediation, "blocking")
			}
		})
	}
}
