package phase

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/session"
)

// USBCreate writes the deployment media tree onto a physical USB drive.
// Destructive to the target disk, so the disk number must be configured
// explicitly; the phase can be disabled by configuration like deployment
// media.
type USBCreate struct {
	DiskNumber int
	MediaDir   string
	Skip       bool
	Timeout    time.Duration
	Logger     *logrus.Logger
}

func (u *USBCreate) Name() string {
	return "usb drive creation"
}

func (u *USBCreate) Run(ctx context.Context, sess *session.BuildSession) error {
	if u.Skip {
		sess.Sink.PhaseSkipped(u.Name(), "disabled by configuration")
		return nil
	}

	script := fmt.Sprintf(
		"Clear-Disk -Number %d -RemoveData -Confirm:$false; "+
			"New-Partition -DiskNumber %d -UseMaximumSize -IsActive -AssignDriveLetter | "+
			"Format-Volume -FileSystem FAT32 -NewFileSystemLabel 'FFU-DEPLOY' -Confirm:$false | Out-Null",
		u.DiskNumber, u.DiskNumber)
	if err := runPowerShell(ctx, u.Timeout, script); err != nil {
		return fmt.Errorf("preparing USB drive: %w", err)
	}

	script = fmt.Sprintf(
		"$drive = (Get-Partition -DiskNumber %d | Get-Volume).DriveLetter; "+
			"robocopy '%s' \"${drive}:\\\" /MIR /NJH /NJS | Out-Null",
		u.DiskNumber, u.MediaDir)
	if err := runPowerShell(ctx, u.Timeout, script); err != nil {
		return fmt.Errorf("copying media to USB drive: %w", err)
	}

	if u.Logger != nil {
		u.Logger.WithField("disk", u.DiskNumber).Info("USB install media created")
	}
	return nil
}
