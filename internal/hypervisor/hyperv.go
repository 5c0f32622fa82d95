package hypervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// HyperVProvider manages VMs through the host's native virtualization
// management surface, the Hyper-V PowerShell module. Hyper-V is always
// authoritative for its own VMs, so this backend has no fallback strategy.
type HyperVProvider struct {
	Logger *logrus.Logger
}

func (p *HyperVProvider) logger() *logrus.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return logrus.StandardLogger()
}

// psVM is the JSON shape of Get-VM | Select-Object Name,State,Path.
// ConvertTo-Json serializes the State enum as a number, but older module
// versions emit the enum name, so both are accepted.
type psVM struct {
	Name  string          `json:"Name"`
	State json.RawMessage `json:"State"`
	Path  string          `json:"Path"`
}

// Hyper-V VMState enum values, per Msvm_ComputerSystem.
const (
	hypervStateRunning = 2
	hypervStateOff     = 3
)

func (v psVM) powerState() PowerState {
	var numeric int
	if err := json.Unmarshal(v.State, &numeric); err == nil {
		switch numeric {
		case hypervStateRunning:
			return PowerStateRunning
		case hypervStateOff:
			return PowerStateOff
		default:
			return PowerStateUnknown
		}
	}

	var name string
	if err := json.Unmarshal(v.State, &name); err == nil {
		switch name {
		case "Running":
			return PowerStateRunning
		case "Off":
			return PowerStateOff
		}
	}
	return PowerStateUnknown
}

func (v psVM) descriptor() VMDescriptor {
	return VMDescriptor{
		Name:           v.Name,
		Backend:        HyperV,
		DefinitionPath: v.Path,
		PowerState:     v.powerState(),
	}
}

// runPowerShell invokes a command through powershell.exe and returns its
// stdout. Stderr is captured and included in the error.
func (p *HyperVProvider) runPowerShell(ctx context.Context, command string) ([]byte, error) {
	cmd := execCommand("powershell.exe", "-NoProfile", "-NonInteractive", "-Command", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("powershell: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// parsePSVMs decodes ConvertTo-Json output, which is a bare object for a
// single VM and an array for several.
func parsePSVMs(data []byte) ([]psVM, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var vms []psVM
	if err := json.Unmarshal(trimmed, &vms); err == nil {
		return vms, nil
	}

	var single psVM
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("cannot decode Get-VM output: %w", err)
	}
	return []psVM{single}, nil
}

func (p *HyperVProvider) GetVM(ctx context.Context, name string) (*VMDescriptor, error) {
	command := fmt.Sprintf(
		"Get-VM -Name '%s' -ErrorAction SilentlyContinue | Select-Object Name,State,Path | ConvertTo-Json", name)
	output, err := p.runPowerShell(ctx, command)
	if err != nil {
		return nil, fmt.Errorf("looking up VM %s: %w", name, err)
	}

	vms, err := parsePSVMs(output)
	if err != nil {
		return nil, err
	}
	if len(vms) == 0 {
		return nil, nil
	}

	descriptor := vms[0].descriptor()
	return &descriptor, nil
}

func (p *HyperVProvider) GetAllVMs(ctx context.Context) ([]VMDescriptor, error) {
	output, err := p.runPowerShell(ctx, "Get-VM | Select-Object Name,State,Path | ConvertTo-Json")
	if err != nil {
		return nil, fmt.Errorf("listing VMs: %w", err)
	}

	vms, err := parsePSVMs(output)
	if err != nil {
		return nil, err
	}

	descriptors := make([]VMDescriptor, 0, len(vms))
	for _, vm := range vms {
		descriptors = append(descriptors, vm.descriptor())
	}
	return descriptors, nil
}

func (p *HyperVProvider) CreateVM(ctx context.Context, spec Spec) (*VMDescriptor, error) {
	generation := spec.Generation
	if generation == 0 {
		generation = 2
	}

	command := fmt.Sprintf(
		"New-VM -Name '%s' -MemoryStartupBytes %dMB -Generation %d -VHDPath '%s'",
		spec.Name, spec.MemoryMB, generation, spec.VHDXPath)
	if spec.SwitchName != "" {
		command += fmt.Sprintf(" -SwitchName '%s'", spec.SwitchName)
	}
	command += " | Out-Null"

	if _, err := p.runPowerShell(ctx, command); err != nil {
		return nil, fmt.Errorf("creating VM %s: %w", spec.Name, err)
	}

	if spec.Processors > 0 {
		command = fmt.Sprintf("Set-VMProcessor -VMName '%s' -Count %d", spec.Name, spec.Processors)
		if _, err := p.runPowerShell(ctx, command); err != nil {
			return nil, fmt.Errorf("configuring processors for VM %s: %w", spec.Name, err)
		}
	}

	p.logger().WithField("vm", spec.Name).Info("Created Hyper-V VM")
	return p.GetVM(ctx, spec.Name)
}

func (p *HyperVProvider) StartVM(ctx context.Context, name string) error {
	if _, err := p.runPowerShell(ctx, fmt.Sprintf("Start-VM -Name '%s'", name)); err != nil {
		return fmt.Errorf("starting VM %s: %w", name, err)
	}
	return nil
}

func (p *HyperVProvider) StopVM(ctx context.Context, name string) error {
	if _, err := p.runPowerShell(ctx, fmt.Sprintf("Stop-VM -Name '%s' -Force", name)); err != nil {
		return fmt.Errorf("stopping VM %s: %w", name, err)
	}
	return nil
}

func (p *HyperVProvider) RemoveVM(ctx context.Context, name string) error {
	if _, err := p.runPowerShell(ctx, fmt.Sprintf("Remove-VM -Name '%s' -Force", name)); err != nil {
		return fmt.Errorf("removing VM %s: %w", name, err)
	}
	return nil
}
