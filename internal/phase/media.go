package phase

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/session"
)

// DeploymentMedia assembles the WinPE deployment media tree around the
// captured FFU and packs it into a bootable ISO. The phase can be disabled
// by configuration; skipping is an explicit, logged decision, not a
// cancellation.
type DeploymentMedia struct {
	MediaDir  string
	ImageFile string
	OutputISO string
	Skip      bool
	Timeout   time.Duration
	Logger    *logrus.Logger
}

func (m *DeploymentMedia) Name() string {
	return "deployment media"
}

func (m *DeploymentMedia) Run(ctx context.Context, sess *session.BuildSession) error {
	if m.Skip {
		sess.Sink.PhaseSkipped(m.Name(), "disabled by configuration")
		return nil
	}

	script := fmt.Sprintf(
		"New-Item -ItemType Directory -Force -Path '%s\\sources' | Out-Null; "+
			"Copy-Item -Path '%s' -Destination '%s\\sources\\' -Force", m.MediaDir, m.ImageFile, m.MediaDir)
	if err := runPowerShell(ctx, m.Timeout, script); err != nil {
		return fmt.Errorf("staging deployment media tree: %w", err)
	}

	err := runTool(ctx, m.Timeout, "oscdimg.exe",
		"-m", "-o", "-u2", "-udfver102",
		fmt.Sprintf("-bootdata:2#p0,e,b%s\\boot\\etfsboot.com#pEF,e,b%s\\efi\\microsoft\\boot\\efisys.bin", m.MediaDir, m.MediaDir),
		m.MediaDir,
		m.OutputISO,
	)
	if err != nil {
		return fmt.Errorf("building deployment ISO: %w", err)
	}

	if m.Logger != nil {
		m.Logger.WithField("iso", m.OutputISO).Info("Deployment media created")
	}
	return nil
}
