// Package config loads the build configuration from a TOML file,
// filling in defaults for everything the file leaves out.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

type vmConfig struct {
	Name       string `toml:"name"`
	MemoryMB   int64  `toml:"memory_mb"`
	Processors int    `toml:"processors"`
	SwitchName string `toml:"switch_name"`
	Generation int    `toml:"generation"`
}

type vmwareConfig struct {
	URL      string `toml:"url"`
	Insecure bool   `toml:"insecure"`
	// extra directories scanned for vmx definitions, on top of the
	// per-user defaults
	VMDirs          []string `toml:"vm_dirs"`
	PreferencesPath string   `toml:"preferences_path"`
}

type retryConfig struct {
	MaxAttempts  int `toml:"max_attempts"`
	DelaySeconds int `toml:"delay_seconds"`
}

// Delay returns the base backoff between retry attempts.
func (r *retryConfig) Delay() time.Duration {
	return time.Duration(r.DelaySeconds) * time.Second
}

type driversConfig struct {
	URLs     []string `toml:"urls"`
	RetryMax int      `toml:"retry_max"`
}

type mediaConfig struct {
	Skip      bool   `toml:"skip"`
	MediaDir  string `toml:"media_dir"`
	OutputISO string `toml:"output_iso"`
}

type usbConfig struct {
	Skip       bool `toml:"skip"`
	DiskNumber int  `toml:"disk_number"`
}

type BuildConfig struct {
	// Backend selects the hypervisor provider, "hyperv" or "vmware".
	Backend string `toml:"backend"`

	WorkDir      string `toml:"work_dir"`
	VHDXPath     string `toml:"vhdx_path"`
	VHDXSizeGB   int    `toml:"vhdx_size_gb"`
	ImageFile    string `toml:"image_file"`
	ImageName    string `toml:"image_name"`
	CaptureDrive string `toml:"capture_drive"`

	// LogFile receives the build report. Empty disables the file sink.
	LogFile string `toml:"log_file"`

	// RequiredFreeGB is the minimum free space on WorkDir's volume.
	RequiredFreeGB int `toml:"required_free_gb"`

	VM      *vmConfig      `toml:"vm"`
	VMware  *vmwareConfig  `toml:"vmware"`
	Retry   *retryConfig   `toml:"retry"`
	Drivers *driversConfig `toml:"drivers"`
	Media   *mediaConfig   `toml:"media"`
	USB     *usbConfig     `toml:"usb"`
}

// Parse reads the configuration from file. A missing file is not an
// error, the defaults apply.
func Parse(file string) (*BuildConfig, error) {
	config := BuildConfig{
		Backend:        "hyperv",
		WorkDir:        `C:\FFU`,
		VHDXPath:       `C:\FFU\scratch.vhdx`,
		VHDXSizeGB:     30,
		ImageFile:      `C:\FFU\capture.ffu`,
		ImageName:      "FFU Image",
		CaptureDrive:   `C:\`,
		LogFile:        `C:\FFU\build.log`,
		RequiredFreeGB: 50,
		VM: &vmConfig{
			Name:       "ffu-build",
			MemoryMB:   4096,
			Processors: 4,
			SwitchName: "Default Switch",
			Generation: 2,
		},
		Retry: &retryConfig{
			MaxAttempts:  3,
			DelaySeconds: 5,
		},
		Drivers: &driversConfig{
			RetryMax: 4,
		},
		Media: &mediaConfig{
			MediaDir:  `C:\FFU\media`,
			OutputISO: `C:\FFU\deploy.iso`,
		},
		USB: &usbConfig{
			DiskNumber: -1,
		},
	}

	_, err := toml.DecodeFile(file, &config)
	if err != nil {
		// Return error only when we failed to decode the file.
		// A non-existing config isn't an error, use defaults in this case.
		if !os.IsNotExist(err) {
			return nil, err
		}

		logrus.Info("Configuration file not found, using defaults")
	}

	switch config.Backend {
	case "hyperv", "vmware":
		// good and supported
	default:
		return nil, fmt.Errorf("backend needs to be hyperv or vmware. Got: %s.", config.Backend)
	}

	if config.VHDXSizeGB <= 0 {
		return nil, fmt.Errorf("invalid VHDX size: %d GB", config.VHDXSizeGB)
	}
	if config.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("invalid retry attempt count: %d", config.Retry.MaxAttempts)
	}
	if !config.USB.Skip && config.USB.DiskNumber < 0 {
		// without an explicit target disk the phase is too dangerous to run
		config.USB.Skip = true
	}

	return &config, nil
}

// Dump writes the effective configuration as TOML.
func Dump(c *BuildConfig, w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
