package hypervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/cli"
	_ "github.com/vmware/govmomi/cli/vm"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
)

// VMwareProvider manages VMs on VMware Workstation or vSphere. The primary
// strategy drives the VMware management toolkit (govmomi). When no toolkit
// endpoint is configured the provider operates in degraded mode, combining
// two fallback strategies: the vmrun CLI for running VMs and filesystem
// discovery of .vmx definitions. Toolkit absence downgrades capability,
// never availability.
type VMwareProvider struct {
	// URL is the toolkit endpoint in govc form (user:pass@host). Empty
	// means degraded mode.
	URL      string
	Insecure bool

	// VMDirs are the well-known default VM directories scanned during
	// filesystem discovery.
	VMDirs []string

	// PreferencesPath points at the VMware preferences file, which may
	// name a custom default VM directory.
	PreferencesPath string

	Logger *logrus.Logger
}

// NewVMwareProvider returns a provider with the default discovery locations
// for the current user.
func NewVMwareProvider(url string, insecure bool, logger *logrus.Logger) *VMwareProvider {
	provider := &VMwareProvider{
		URL:      url,
		Insecure: insecure,
		Logger:   logger,
	}

	home, err := os.UserHomeDir()
	if err == nil {
		provider.VMDirs = []string{
			filepath.Join(home, "Virtual Machines"),
			filepath.Join(home, "Documents", "Virtual Machines"),
		}
		provider.PreferencesPath = filepath.Join(home, "AppData", "Roaming", "VMware", "preferences.ini")
	}

	return provider
}

func (p *VMwareProvider) logger() *logrus.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return logrus.StandardLogger()
}

func (p *VMwareProvider) toolkitConfigured() bool {
	return p.URL != ""
}

// --- primary strategy: the govmomi toolkit ---

func (p *VMwareProvider) connect(ctx context.Context) (*govmomi.Client, error) {
	parsed, err := soap.ParseURL(p.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing toolkit endpoint: %w", err)
	}
	client, err := govmomi.NewClient(ctx, parsed, p.Insecure)
	if err != nil {
		return nil, fmt.Errorf("connecting to toolkit endpoint: %w", err)
	}
	return client, nil
}

func toolkitPowerState(state types.VirtualMachinePowerState) PowerState {
	switch state {
	case types.VirtualMachinePowerStatePoweredOn:
		return PowerStateRunning
	case types.VirtualMachinePowerStatePoweredOff:
		return PowerStateOff
	default:
		return PowerStateUnknown
	}
}

func (p *VMwareProvider) toolkitList(ctx context.Context, pattern string) ([]VMDescriptor, error) {
	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Logout(ctx); err != nil {
			p.logger().Warnf("Failed to log out of toolkit session: %v", err)
		}
	}()

	finder := find.NewFinder(client.Client)
	datacenter, err := finder.DefaultDatacenter(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving datacenter: %w", err)
	}
	finder.SetDatacenter(datacenter)

	vms, err := finder.VirtualMachineList(ctx, pattern)
	if err != nil {
		var notFound *find.NotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing VMs: %w", err)
	}

	descriptors := make([]VMDescriptor, 0, len(vms))
	for _, vm := range vms {
		var properties mo.VirtualMachine
		err := vm.Properties(ctx, vm.Reference(), []string{"name", "runtime.powerState", "config.files.vmPathName"}, &properties)
		if err != nil {
			return nil, fmt.Errorf("reading VM properties: %w", err)
		}

		descriptor := VMDescriptor{
			Name:       properties.Name,
			Backend:    VMware,
			PowerState: toolkitPowerState(properties.Runtime.PowerState),
		}
		if properties.Config != nil {
			descriptor.DefinitionPath = properties.Config.Files.VmPathName
		}
		descriptors = append(descriptors, descriptor)
	}
	return descriptors, nil
}

// govcArgs prepends the endpoint flags the govc CLI entry point expects.
func (p *VMwareProvider) govcArgs(command string, args ...string) []string {
	full := []string{
		command,
		fmt.Sprintf("-u=%s", p.URL),
	}
	if p.Insecure {
		full = append(full, "-k=true")
	}
	return append(full, args...)
}

// --- fallback strategy 1: the vmrun CLI ---

// vmrunList returns the definitions of currently running VMs as reported
// by `vmrun list`. The first output line is a count header, the rest are
// .vmx paths.
func (p *VMwareProvider) vmrunList() ([]VMDescriptor, error) {
	cmd := execCommand("vmrun", "list")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("vmrun list: %w", err)
	}

	var descriptors []VMDescriptor
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Total running VMs") {
			continue
		}
		descriptors = append(descriptors, VMDescriptor{
			Name:           vmxBaseName(line),
			Backend:        VMware,
			DefinitionPath: filepath.Clean(line),
			PowerState:     PowerStateRunning,
		})
	}
	return descriptors, nil
}

// --- fallback strategy 2: filesystem discovery ---

func vmxBaseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// discoveryDirs returns the directories to scan: the well-known defaults
// plus a custom default VM directory from the preferences file, if any.
func (p *VMwareProvider) discoveryDirs() []string {
	dirs := append([]string{}, p.VMDirs...)
	if custom := defaultVMPathFromPreferences(p.PreferencesPath); custom != "" {
		dirs = append(dirs, custom)
	}
	return dirs
}

// discoverDefinitions scans the discovery directories for .vmx definition
// files. When nameFilter is non-empty, only definitions whose base name
// matches it are returned; the filter may be a glob pattern.
func (p *VMwareProvider) discoverDefinitions(nameFilter string) ([]VMDescriptor, error) {
	var matcher glob.Glob
	if nameFilter != "" {
		var err error
		matcher, err = glob.Compile(nameFilter)
		if err != nil {
			return nil, fmt.Errorf("invalid VM name filter %q: %w", nameFilter, err)
		}
	}

	var descriptors []VMDescriptor
	for _, dir := range p.discoveryDirs() {
		err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(path), ".vmx") {
				return nil
			}
			name := vmxBaseName(path)
			if matcher != nil && !matcher.Match(name) {
				return nil
			}
			descriptors = append(descriptors, VMDescriptor{
				Name:           name,
				Backend:        VMware,
				DefinitionPath: filepath.Clean(path),
				PowerState:     PowerStateUnknown,
			})
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("scanning VM directory %s: %w", dir, err)
		}
	}
	return descriptors, nil
}

// --- the Provider capability set ---

// GetVM resolves a VM by name: the toolkit when configured, then the
// running-VM list, then filesystem discovery. (nil, nil) when no strategy
// finds a match.
func (p *VMwareProvider) GetVM(ctx context.Context, name string) (*VMDescriptor, error) {
	if p.toolkitConfigured() {
		vms, err := p.toolkitList(ctx, name)
		if err != nil {
			p.logger().Warnf("Toolkit lookup failed, falling back to degraded discovery: %v", err)
		} else if len(vms) > 0 {
			return &vms[0], nil
		}
	}

	running, err := p.vmrunList()
	if err != nil {
		p.logger().Debugf("Running-VM list unavailable: %v", err)
	}
	for _, vm := range running {
		if strings.EqualFold(vm.Name, name) {
			return &vm, nil
		}
	}

	discovered, err := p.discoverDefinitions(name)
	if err != nil {
		return nil, err
	}
	if len(discovered) == 0 {
		return nil, nil
	}
	return &discovered[0], nil
}

// GetAllVMs unions every available strategy, deduplicating by definition
// path. A VM found both running and on disk appears exactly once, with the
// running entry winning because it carries a known power state.
func (p *VMwareProvider) GetAllVMs(ctx context.Context) ([]VMDescriptor, error) {
	var all []VMDescriptor

	if p.toolkitConfigured() {
		vms, err := p.toolkitList(ctx, "*")
		if err != nil {
			p.logger().Warnf("Toolkit listing failed, falling back to degraded discovery: %v", err)
		} else {
			all = append(all, vms...)
		}
	}

	running, err := p.vmrunList()
	if err != nil {
		p.logger().Debugf("Running-VM list unavailable: %v", err)
	}
	all = append(all, running...)

	discovered, err := p.discoverDefinitions("")
	if err != nil {
		return nil, err
	}
	all = append(all, discovered...)

	seen := make(map[string]bool)
	unique := make([]VMDescriptor, 0, len(all))
	for _, vm := range all {
		key := vm.DefinitionPath
		if key == "" {
			key = vm.Name
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, vm)
	}
	return unique, nil
}

// CreateVM provisions a VM through the govc CLI entry point when the
// toolkit is configured, or writes a .vmx definition into the first
// discovery directory in degraded mode.
func (p *VMwareProvider) CreateVM(ctx context.Context, spec Spec) (*VMDescriptor, error) {
	if p.toolkitConfigured() {
		args := p.govcArgs("vm.create",
			"-on=false",
			fmt.Sprintf("-m=%d", spec.MemoryMB),
			fmt.Sprintf("-c=%d", spec.Processors),
			spec.Name,
		)
		if retcode := cli.Run(args); retcode != 0 {
			return nil, fmt.Errorf("creating VM %s through toolkit failed", spec.Name)
		}
		return p.GetVM(ctx, spec.Name)
	}

	dirs := p.discoveryDirs()
	if len(dirs) == 0 {
		return nil, errors.New("no VM directory available for degraded-mode creation")
	}
	vmDir := filepath.Join(dirs[0], spec.Name)
	if err := os.MkdirAll(vmDir, 0755); err != nil {
		return nil, fmt.Errorf("creating VM directory: %w", err)
	}

	definitionPath := filepath.Join(vmDir, spec.Name+".vmx")
	definition := fmt.Sprintf(
		".encoding = \"UTF-8\"\n"+
			"config.version = \"8\"\n"+
			"virtualHW.version = \"21\"\n"+
			"displayName = \"%s\"\n"+
			"memsize = \"%d\"\n"+
			"numvcpus = \"%d\"\n"+
			"nvme0.present = \"TRUE\"\n"+
			"nvme0:0.present = \"TRUE\"\n"+
			"nvme0:0.fileName = \"%s\"\n",
		spec.Name, spec.MemoryMB, spec.Processors, spec.VHDXPath)
	if err := os.WriteFile(definitionPath, []byte(definition), 0644); err != nil {
		return nil, fmt.Errorf("writing VM definition: %w", err)
	}

	p.logger().WithField("definition", definitionPath).Info("Created VMware VM definition")
	return &VMDescriptor{
		Name:           spec.Name,
		Backend:        VMware,
		DefinitionPath: definitionPath,
		PowerState:     PowerStateOff,
	}, nil
}

// vmrunPower runs a vmrun power operation against a VM's definition path.
func (p *VMwareProvider) vmrunPower(ctx context.Context, operation, name string, extra ...string) error {
	vm, err := p.GetVM(ctx, name)
	if err != nil {
		return err
	}
	if vm == nil {
		return fmt.Errorf("VM %s not found", name)
	}

	args := append([]string{operation, vm.DefinitionPath}, extra...)
	cmd := execCommand("vmrun", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("vmrun %s %s: %w: %s", operation, name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (p *VMwareProvider) StartVM(ctx context.Context, name string) error {
	if p.toolkitConfigured() {
		if retcode := cli.Run(p.govcArgs("vm.power", "-on", name)); retcode != 0 {
			return fmt.Errorf("powering on VM %s through toolkit failed", name)
		}
		return nil
	}
	return p.vmrunPower(ctx, "start", name, "nogui")
}

func (p *VMwareProvider) StopVM(ctx context.Context, name string) error {
	if p.toolkitConfigured() {
		if retcode := cli.Run(p.govcArgs("vm.power", "-off", name)); retcode != 0 {
			return fmt.Errorf("powering off VM %s through toolkit failed", name)
		}
		return nil
	}
	return p.vmrunPower(ctx, "stop", name, "hard")
}

func (p *VMwareProvider) RemoveVM(ctx context.Context, name string) error {
	if p.toolkitConfigured() {
		if retcode := cli.Run(p.govcArgs("vm.destroy", name)); retcode != 0 {
			return fmt.Errorf("destroying VM %s through toolkit failed", name)
		}
		return nil
	}
	return p.vmrunPower(ctx, "deleteVM", name)
}
