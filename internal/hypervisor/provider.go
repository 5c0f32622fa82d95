// Package hypervisor abstracts the virtualization backends the build VM can
// run on. The orchestrator only ever sees the Provider interface; each
// backend implements its own discovery and fallback strategy behind it.
package hypervisor

import (
	"context"
	"os/exec"
)

// var alias for exec.Command() that can be mocked for testing
var execCommand = exec.Command

func backendMapping() []string {
	return []string{"hyperv", "vmware"}
}

// Backend identifies a virtualization backend.
type Backend int

const (
	HyperV Backend = iota
	VMware
)

// ToString converts Backend into a human readable string
func (b Backend) ToString() string {
	return backendMapping()[int(b)]
}

// PowerState is the coarse power state of a VM. Unknown is reported when a
// discovery strategy cannot observe the state, e.g. a VM found only on the
// filesystem.
type PowerState int

const (
	PowerStateUnknown PowerState = iota
	PowerStateRunning
	PowerStateOff
)

func (ps PowerState) ToString() string {
	return []string{"unknown", "running", "off"}[int(ps)]
}

// VMDescriptor is the backend-agnostic identity of a VM. Providers are
// stateless: descriptors reference VMs by name and definition path, and
// every operation looks the VM up on demand.
type VMDescriptor struct {
	Name           string
	Backend        Backend
	DefinitionPath string
	PowerState     PowerState
}

// Spec describes the VM a provider should create.
type Spec struct {
	Name       string
	MemoryMB   int64
	Processors int
	VHDXPath   string
	SwitchName string
	Generation int
}

// Provider is the capability set every backend offers. GetVM returns
// (nil, nil) when the VM does not exist; absence is not an error.
type Provider interface {
	GetVM(ctx context.Context, name string) (*VMDescriptor, error)
	GetAllVMs(ctx context.Context) ([]VMDescriptor, error)
	CreateVM(ctx context.Context, spec Spec) (*VMDescriptor, error)
	StartVM(ctx context.Context, name string) error
	StopVM(ctx context.Context, name string) error
	RemoveVM(ctx context.Context, name string) error
}
