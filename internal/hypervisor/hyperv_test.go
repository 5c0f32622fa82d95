package hypervisor

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeOutputCommand returns an exec.Cmd that prints the given payload on
// stdout and exits 0.
func fakeOutputCommand(t *testing.T, payload string) *exec.Cmd {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0644))
	return exec.Command("cat", path)
}

func TestParsePSVMs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []VMDescriptor
	}{
		{
			name:  "empty output",
			input: "",
			want:  nil,
		},
		{
			name:  "single object with numeric state",
			input: `{"Name": "_FFU-Build", "State": 2, "Path": "C:\\VMs\\_FFU-Build"}`,
			want: []VMDescriptor{
				{Name: "_FFU-Build", Backend: HyperV, DefinitionPath: `C:\VMs\_FFU-Build`, PowerState: PowerStateRunning},
			},
		},
		{
			name:  "single object with string state",
			input: `{"Name": "_FFU-Build", "State": "Off", "Path": "C:\\VMs\\_FFU-Build"}`,
			want: []VMDescriptor{
				{Name: "_FFU-Build", Backend: HyperV, DefinitionPath: `C:\VMs\_FFU-Build`, PowerState: PowerStateOff},
			},
		},
		{
			name: "array",
			input: `[{"Name": "a", "State": 2, "Path": "C:\\VMs\\a"},
				{"Name": "b", "State": 3, "Path": "C:\\VMs\\b"},
				{"Name": "c", "State": 9, "Path": "C:\\VMs\\c"}]`,
			want: []VMDescriptor{
				{Name: "a", Backend: HyperV, DefinitionPath: `C:\VMs\a`, PowerState: PowerStateRunning},
				{Name: "b", Backend: HyperV, DefinitionPath: `C:\VMs\b`, PowerState: PowerStateOff},
				{Name: "c", Backend: HyperV, DefinitionPath: `C:\VMs\c`, PowerState: PowerStateUnknown},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vms, err := parsePSVMs([]byte(tt.input))
			require.NoError(t, err)

			var descriptors []VMDescriptor
			for _, vm := range vms {
				descriptors = append(descriptors, vm.descriptor())
			}
			assert.Equal(t, tt.want, descriptors)
		})
	}
}

func TestHyperVGetVMNotFound(t *testing.T) {
	restore := MockExecCommand(func(name string, arg ...string) *exec.Cmd {
		assert.Equal(t, "powershell.exe", name)
		// Get-VM with -ErrorAction SilentlyContinue prints nothing for a
		// missing VM
		return exec.Command("true")
	})
	defer restore()

	provider := &HyperVProvider{Logger: testLogger()}
	vm, err := provider.GetVM(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, vm)
}

func TestHyperVGetVM(t *testing.T) {
	var call []string
	restore := MockExecCommand(func(name string, arg ...string) *exec.Cmd {
		call = append([]string{name}, arg...)
		return fakeOutputCommand(t, `{"Name": "_FFU-Build", "State": 2, "Path": "C:\\VMs\\_FFU-Build"}`)
	})
	defer restore()

	provider := &HyperVProvider{Logger: testLogger()}
	vm, err := provider.GetVM(context.Background(), "_FFU-Build")
	require.NoError(t, err)
	require.NotNil(t, vm)

	assert.Equal(t, "_FFU-Build", vm.Name)
	assert.Equal(t, HyperV, vm.Backend)
	assert.Equal(t, PowerStateRunning, vm.PowerState)

	require.Len(t, call, 5)
	assert.Equal(t, []string{"powershell.exe", "-NoProfile", "-NonInteractive", "-Command"}, call[:4])
	assert.Contains(t, call[4], "Get-VM -Name '_FFU-Build'")
}

func TestHyperVStopVMPropagatesStderr(t *testing.T) {
	restore := MockExecCommand(func(name string, arg ...string) *exec.Cmd {
		return exec.Command("sh", "-c", "echo 'Stop-VM : access denied' >&2; exit 1")
	})
	defer restore()

	provider := &HyperVProvider{Logger: testLogger()}
	err := provider.StopVM(context.Background(), "_FFU-Build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
