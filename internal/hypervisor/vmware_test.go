package hypervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeVMX creates dir/name/name.vmx and returns its path.
func writeVMX(t *testing.T, dir, name string) string {
	t.Helper()
	vmDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(vmDir, 0755))
	path := filepath.Join(vmDir, name+".vmx")
	require.NoError(t, os.WriteFile(path, []byte("config.version = \"8\"\n"), 0644))
	return path
}

// mockVmrunList makes `vmrun list` report the given definition paths as
// running; every other command fails.
func mockVmrunList(t *testing.T, paths ...string) (restore func()) {
	t.Helper()
	return MockExecCommand(func(name string, arg ...string) *exec.Cmd {
		if name == "vmrun" && len(arg) == 1 && arg[0] == "list" {
			output := fmt.Sprintf("Total running VMs: %d\n", len(paths))
			for _, p := range paths {
				output += p + "\n"
			}
			return exec.Command("printf", "%s", output)
		}
		return exec.Command("false")
	})
}

func TestPreferencesCustomVMPathDiscovery(t *testing.T) {
	// Scenario: the preferences file names a custom default VM directory
	// and a definition exists inside it.
	customDir := filepath.Join(t.TempDir(), "MyVMs")
	vmxPath := writeVMX(t, customDir, "TestVM")

	prefsPath := filepath.Join(t.TempDir(), "preferences.ini")
	prefs := fmt.Sprintf(".encoding = \"UTF-8\"\nprefvmx.defaultVMPath = \"%s\"\n", customDir)
	require.NoError(t, os.WriteFile(prefsPath, []byte(prefs), 0644))

	restore := mockVmrunList(t)
	defer restore()

	provider := &VMwareProvider{
		PreferencesPath: prefsPath,
		Logger:          testLogger(),
	}

	descriptors, err := provider.discoverDefinitions("")
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, filepath.Clean(vmxPath), descriptors[0].DefinitionPath)
	assert.Equal(t, "TestVM", descriptors[0].Name)
	assert.Equal(t, PowerStateUnknown, descriptors[0].PowerState)
}

func TestDiscoverDefinitionsNameFilter(t *testing.T) {
	dir := t.TempDir()
	writeVMX(t, dir, "TestVM")
	writeVMX(t, dir, "OtherVM")

	provider := &VMwareProvider{
		VMDirs: []string{dir},
		Logger: testLogger(),
	}

	descriptors, err := provider.discoverDefinitions("TestVM")
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "TestVM", descriptors[0].Name)

	// glob patterns are accepted as filters
	descriptors, err = provider.discoverDefinitions("*VM")
	require.NoError(t, err)
	assert.Len(t, descriptors, 2)
}

func TestDiscoverDefinitionsMissingDirsTolerated(t *testing.T) {
	provider := &VMwareProvider{
		VMDirs:          []string{filepath.Join(t.TempDir(), "does-not-exist")},
		PreferencesPath: filepath.Join(t.TempDir(), "no-preferences.ini"),
		Logger:          testLogger(),
	}

	descriptors, err := provider.discoverDefinitions("")
	require.NoError(t, err)
	assert.Empty(t, descriptors)
}

func TestGetAllVMsDeduplicatesByDefinitionPath(t *testing.T) {
	dir := t.TempDir()
	vmxPath := writeVMX(t, dir, "TestVM")
	otherPath := writeVMX(t, dir, "StoppedVM")

	// TestVM is discoverable both via the running list and on disk
	restore := mockVmrunList(t, vmxPath)
	defer restore()

	provider := &VMwareProvider{
		VMDirs: []string{dir},
		Logger: testLogger(),
	}

	vms, err := provider.GetAllVMs(context.Background())
	require.NoError(t, err)
	require.Len(t, vms, 2)

	byPath := map[string]VMDescriptor{}
	for _, vm := range vms {
		byPath[vm.DefinitionPath] = vm
	}
	require.Contains(t, byPath, filepath.Clean(vmxPath))
	require.Contains(t, byPath, filepath.Clean(otherPath))

	// the running entry wins, it carries the observed power state
	assert.Equal(t, PowerStateRunning, byPath[filepath.Clean(vmxPath)].PowerState)
	assert.Equal(t, PowerStateUnknown, byPath[filepath.Clean(otherPath)].PowerState)
}

func TestGetVMFallsBackToFilesystem(t *testing.T) {
	dir := t.TempDir()
	writeVMX(t, dir, "TestVM")

	// nothing is running
	restore := mockVmrunList(t)
	defer restore()

	provider := &VMwareProvider{
		VMDirs: []string{dir},
		Logger: testLogger(),
	}

	vm, err := provider.GetVM(context.Background(), "TestVM")
	require.NoError(t, err)
	require.NotNil(t, vm)
	assert.Equal(t, "TestVM", vm.Name)
}

func TestGetVMNoMatchReturnsNil(t *testing.T) {
	restore := mockVmrunList(t)
	defer restore()

	provider := &VMwareProvider{
		VMDirs: []string{t.TempDir()},
		Logger: testLogger(),
	}

	vm, err := provider.GetVM(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, vm)
}

func TestGetVMPrefersRunningList(t *testing.T) {
	dir := t.TempDir()
	vmxPath := writeVMX(t, dir, "TestVM")

	restore := mockVmrunList(t, vmxPath)
	defer restore()

	provider := &VMwareProvider{
		VMDirs: []string{dir},
		Logger: testLogger(),
	}

	vm, err := provider.GetVM(context.Background(), "TestVM")
	require.NoError(t, err)
	require.NotNil(t, vm)
	assert.Equal(t, PowerStateRunning, vm.PowerState)
}

func TestParsePreferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.ini")
	contents := `.encoding = "UTF-8"
# comment line
pref.vmplayer.exit.vmAction = "poweroff"
prefvmx.defaultVMPath = "D:\MyVMs"

malformed line without equals
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	prefs, err := ParsePreferences(path)
	require.NoError(t, err)

	expected := map[string]string{
		".encoding":                   "UTF-8",
		"pref.vmplayer.exit.vmAction": "poweroff",
		"prefvmx.defaultVMPath":       `D:\MyVMs`,
	}
	if diff := cmp.Diff(expected, prefs); diff != "" {
		t.Errorf("unexpected preferences:\n%s", diff)
	}
}

func TestParsePreferencesMissingFile(t *testing.T) {
	_, err := ParsePreferences(filepath.Join(t.TempDir(), "absent.ini"))
	assert.Error(t, err)

	// the provider treats an absent file as "no custom directory"
	assert.Empty(t, defaultVMPathFromPreferences(filepath.Join(t.TempDir(), "absent.ini")))
}
