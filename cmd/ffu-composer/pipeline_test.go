package main

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/config"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/hypervisor"
)

func defaultConfig(t *testing.T) *config.BuildConfig {
	t.Helper()
	cfg, err := config.Parse(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	return cfg
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewPhasesOrder(t *testing.T) {
	cfg := defaultConfig(t)
	provider := &hypervisor.HyperVProvider{Logger: testLogger()}

	var names []string
	for _, body := range newPhases(cfg, provider, testLogger()) {
		names = append(names, body.Name())
	}
	assert.Equal(t, []string{
		"driver download",
		"vhdx creation",
		"vm setup",
		"vm start",
		"ffu capture",
		"deployment media",
		"usb drive creation",
	}, names)
}

func TestNewChecksPerBackend(t *testing.T) {
	cfg := defaultConfig(t)

	var names []string
	for _, check := range newChecks(cfg) {
		names = append(names, check.Name())
	}
	assert.Contains(t, names, "hyperv-management-service")
	assert.NotContains(t, names, "vmware-toolkit")

	cfg.Backend = "vmware"
	names = names[:0]
	for _, check := range newChecks(cfg) {
		names = append(names, check.Name())
	}
	assert.Contains(t, names, "vmware-toolkit")
	assert.NotContains(t, names, "hyperv-management-service")
}

func TestNewProvider(t *testing.T) {
	cfg := defaultConfig(t)

	provider, err := newProvider(cfg, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &hypervisor.HyperVProvider{}, provider)

	cfg.Backend = "vmware"
	cfg.VMware = nil
	provider, err = newProvider(cfg, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &hypervisor.VMwareProvider{}, provider)

	cfg.Backend = "xen"
	_, err = newProvider(cfg, testLogger())
	require.Error(t, err)
}
