package phase

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/cleanup"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/session"
)

// VHDXCreate provisions the scratch virtual disk the OS image is applied
// to, mounts it and lays out the standard partition scheme. The disk and
// its mount are intermediate resources: both are registered for cleanup,
// mount after disk, so a drain dismounts before deleting.
type VHDXCreate struct {
	Path    string
	SizeGB  int
	Timeout time.Duration
	Logger  *logrus.Logger
}

func (v *VHDXCreate) Name() string {
	return "vhdx creation"
}

func (v *VHDXCreate) Run(ctx context.Context, sess *session.BuildSession) error {
	script := fmt.Sprintf("New-VHD -Path '%s' -SizeBytes %dGB -Dynamic | Out-Null", v.Path, v.SizeGB)
	if err := runPowerShell(ctx, v.Timeout, script); err != nil {
		return fmt.Errorf("creating VHDX: %w", err)
	}
	sess.Registry.Register(cleanup.VirtualDisk, v.Path, v.releaseDisk)

	script = fmt.Sprintf("Mount-VHD -Path '%s' | Out-Null", v.Path)
	if err := runPowerShell(ctx, v.Timeout, script); err != nil {
		return fmt.Errorf("mounting VHDX: %w", err)
	}
	sess.Registry.Register(cleanup.MountedImage, v.Path, v.releaseMount)

	script = fmt.Sprintf(
		"$disk = Get-VHD -Path '%s' | Get-Disk; "+
			"Initialize-Disk -Number $disk.Number -PartitionStyle GPT; "+
			"New-Partition -DiskNumber $disk.Number -UseMaximumSize -AssignDriveLetter | "+
			"Format-Volume -FileSystem NTFS -Confirm:$false | Out-Null", v.Path)
	if err := runPowerShell(ctx, v.Timeout, script); err != nil {
		return fmt.Errorf("partitioning VHDX: %w", err)
	}

	if v.Logger != nil {
		v.Logger.WithFields(logrus.Fields{
			"path":    v.Path,
			"size_gb": v.SizeGB,
		}).Info("Created scratch VHDX")
	}
	return nil
}

// releaseMount dismounts the VHDX. SilentlyContinue keeps the release
// idempotent: dismounting an already-dismounted disk is not a failure.
func (v *VHDXCreate) releaseMount() error {
	return DismountVHDX(context.Background(), v.Timeout, v.Path)
}

// DismountVHDX detaches a mounted VHDX. Detaching a disk that is not
// mounted is not a failure.
func DismountVHDX(ctx context.Context, timeout time.Duration, path string) error {
	script := fmt.Sprintf("Dismount-VHD -Path '%s' -ErrorAction SilentlyContinue", path)
	return runPowerShell(ctx, timeout, script)
}

// releaseDisk deletes the VHDX file. A missing file means the disk was
// already released.
func (v *VHDXCreate) releaseDisk() error {
	if err := os.Remove(v.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
