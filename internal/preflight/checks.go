package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// var aliases for exec functions that can be mocked for testing
var (
	execCommand = exec.Command
	lookPath    = exec.LookPath
)

// WimMountCheck probes the Windows imaging mount subsystem. Every imaging
// path the pipeline can take, full DISM servicing as well as the
// lightweight apply-only path, mounts WIM images through this subsystem,
// so an unhealthy subsystem is a blocking failure, never a warning.
type WimMountCheck struct{}

func (WimMountCheck) Name() string {
	return "wim-mount-subsystem"
}

func (WimMountCheck) Run(ctx context.Context) CheckResult {
	cmd := execCommand("dism.exe", "/English", "/Get-MountedImageInfo")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return CheckResult{
			Status:  StatusFailed,
			Message: "the Windows imaging mount subsystem (wimmount) is not responding",
			Details: map[string]string{
				"probe_output": strings.TrimSpace(string(output)),
			},
			Remediation: "This failure is blocking: every imaging path requires the WIM mount " +
				"subsystem. Run 'sc.exe start wimmount' from an elevated prompt, then re-run " +
				"preflight. If the service is missing, repair the Windows ADK installation.",
		}
	}

	return CheckResult{
		Status:  StatusPassed,
		Message: "WIM mount subsystem is healthy",
	}
}

// Remediate attempts to start the wimmount filter driver service.
func (WimMountCheck) Remediate(ctx context.Context) error {
	cmd := execCommand("sc.exe", "start", "wimmount")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("starting wimmount: %v: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// HyperVServiceCheck verifies that the Hyper-V virtual machine management
// service is present and running.
type HyperVServiceCheck struct{}

func (HyperVServiceCheck) Name() string {
	return "hyperv-management-service"
}

func (HyperVServiceCheck) Run(ctx context.Context) CheckResult {
	cmd := execCommand("powershell.exe", "-NoProfile", "-NonInteractive", "-Command",
		"(Get-Service -Name vmms -ErrorAction SilentlyContinue).Status")
	output, err := cmd.Output()
	status := strings.TrimSpace(string(output))
	if err != nil || status == "" {
		return CheckResult{
			Status:  StatusFailed,
			Message: "the Hyper-V management service (vmms) is not installed",
			Remediation: "This failure is blocking: the build VM runs on Hyper-V. Enable the " +
				"Hyper-V feature: 'Enable-WindowsOptionalFeature -Online -FeatureName " +
				"Microsoft-Hyper-V -All' and reboot.",
		}
	}
	if status != "Running" {
		return CheckResult{
			Status:  StatusFailed,
			Message: fmt.Sprintf("the Hyper-V management service (vmms) is %s", status),
			Details: map[string]string{
				"service_status": status,
			},
			Remediation: "This failure is blocking: start the service with " +
				"'Start-Service vmms' from an elevated prompt.",
		}
	}

	return CheckResult{
		Status:  StatusPassed,
		Message: "Hyper-V management service is running",
	}
}

// VMwareToolkitCheck probes for the optional VMware management toolkit.
// The toolkit is strictly optional: without it the VMware backend degrades
// to the vmrun CLI and filesystem discovery, so its absence is a warning.
type VMwareToolkitCheck struct {
	// GovcURL is the configured vSphere endpoint, empty when not set up.
	GovcURL string
}

func (VMwareToolkitCheck) Name() string {
	return "vmware-toolkit"
}

func (c VMwareToolkitCheck) Run(ctx context.Context) CheckResult {
	details := map[string]string{
		"fallback_available": "true",
	}
	if _, err := lookPath("vmrun"); err == nil {
		details["vmrun_present"] = "true"
	} else {
		details["vmrun_present"] = "false"
	}

	if c.GovcURL == "" {
		return CheckResult{
			Status:  StatusWarning,
			Message: "VMware management toolkit is not configured",
			Details: details,
			Remediation: "The toolkit is optional. Without it the VMware backend operates in " +
				"degraded mode, discovering VMs through 'vmrun list' and the default VM " +
				"directories. Set the vmware endpoint in the build configuration to enable " +
				"full management.",
		}
	}

	return CheckResult{
		Status:  StatusPassed,
		Message: "VMware management toolkit is configured",
		Details: details,
	}
}

// ADKToolsCheck verifies the Windows ADK deployment tools the media phases
// invoke are reachable.
type ADKToolsCheck struct{}

func (ADKToolsCheck) Name() string {
	return "adk-deployment-tools"
}

func (ADKToolsCheck) Run(ctx context.Context) CheckResult {
	missing := []string{}
	for _, tool := range []string{"oscdimg.exe", "dism.exe"} {
		if _, err := lookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusFailed,
			Message: fmt.Sprintf("ADK deployment tools not found: %s", strings.Join(missing, ", ")),
			Details: map[string]string{
				"missing_tools": strings.Join(missing, ","),
			},
			Remediation: "This failure is blocking: deployment media cannot be produced without " +
				"the ADK deployment tools. Install the Windows ADK and the WinPE add-on, or add " +
				"the Deployment Tools directory to PATH.",
		}
	}

	return CheckResult{
		Status:  StatusPassed,
		Message: "ADK deployment tools are available",
	}
}

// DiskSpaceCheck verifies the target volume has room for the intermediate
// VHDX plus the captured FFU.
type DiskSpaceCheck struct {
	Path          string
	RequiredBytes uint64

	// FreeBytes reports free space for a path. Defaults to a PowerShell
	// probe of the volume backing Path.
	FreeBytes func(path string) (uint64, error)
}

func (DiskSpaceCheck) Name() string {
	return "disk-space"
}

func (c DiskSpaceCheck) Run(ctx context.Context) CheckResult {
	freeBytes := c.FreeBytes
	if freeBytes == nil {
		freeBytes = queryFreeBytes
	}

	free, err := freeBytes(c.Path)
	if err != nil {
		return CheckResult{
			Status:  StatusFailed,
			Message: fmt.Sprintf("cannot determine free space for %s: %v", c.Path, err),
			Remediation: "This failure is blocking: the build needs a writable target volume. " +
				"Verify the configured build path exists and is accessible.",
		}
	}

	details := map[string]string{
		"free_bytes":     strconv.FormatUint(free, 10),
		"required_bytes": strconv.FormatUint(c.RequiredBytes, 10),
	}
	if free < c.RequiredBytes {
		return CheckResult{
			Status:  StatusFailed,
			Message: fmt.Sprintf("insufficient disk space on %s: %d bytes free, %d required", c.Path, free, c.RequiredBytes),
			Details: details,
			Remediation: "This failure is blocking: free up space on the target volume or point " +
				"the build path at a larger one. A build needs room for the scratch VHDX plus " +
				"the captured FFU.",
		}
	}

	return CheckResult{
		Status:  StatusPassed,
		Message: fmt.Sprintf("%d bytes free on %s", free, c.Path),
		Details: details,
	}
}

func queryFreeBytes(path string) (uint64, error) {
	drive := path
	if vol := strings.SplitN(path, string(os.PathSeparator), 2); len(vol) > 0 && vol[0] != "" {
		drive = vol[0]
	}
	cmd := execCommand("powershell.exe", "-NoProfile", "-NonInteractive", "-Command",
		fmt.Sprintf("(Get-PSDrive -Name %s).Free", strings.TrimSuffix(drive, ":")))
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("querying free space: %w", err)
	}
	free, err := strconv.ParseUint(strings.TrimSpace(string(output)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing free space %q: %w", strings.TrimSpace(string(output)), err)
	}
	return free, nil
}
