package phase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/cleanup"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/session"
)

// DriverDownload fetches driver packages into a staging directory. The
// directory is intermediate state, registered for cleanup; the drivers are
// injected into the image in a later phase.
type DriverDownload struct {
	// URLs are the driver package locations.
	URLs []string

	// WorkDir is where the staging directory is created.
	WorkDir string

	Logger *logrus.Logger

	client *retryablehttp.Client

	// StagingDir is set after a successful run.
	StagingDir string
}

// NewDriverDownload builds the phase with a retrying HTTP client.
// retryMax bounds the per-request retry count.
func NewDriverDownload(urls []string, workDir string, retryMax int, logger *logrus.Logger) *DriverDownload {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.Logger = NewRHLeveledLogger(logger)

	return &DriverDownload{
		URLs:    urls,
		WorkDir: workDir,
		Logger:  logger,
		client:  client,
	}
}

func (d *DriverDownload) Name() string {
	return "driver download"
}

func (d *DriverDownload) Run(ctx context.Context, sess *session.BuildSession) error {
	if len(d.URLs) == 0 {
		sess.Sink.PhaseSkipped(d.Name(), "no driver packages configured")
		return nil
	}

	stagingDir, err := os.MkdirTemp(d.WorkDir, "drivers-")
	if err != nil {
		return fmt.Errorf("creating driver staging directory: %w", err)
	}
	sess.Registry.Register(cleanup.TemporaryDirectory, stagingDir, func() error {
		return os.RemoveAll(stagingDir)
	})

	for _, url := range d.URLs {
		if err := d.fetch(ctx, url, stagingDir); err != nil {
			return fmt.Errorf("downloading driver package %s: %w", url, err)
		}
	}

	d.StagingDir = stagingDir
	return nil
}

func (d *DriverDownload) fetch(ctx context.Context, url, destDir string) error {
	request, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	response, err := d.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", response.Status)
	}

	name := path.Base(request.URL.Path)
	if name == "." || name == "/" {
		name = "package.cab"
	}

	destination, err := os.Create(filepath.Join(destDir, name))
	if err != nil {
		return err
	}

	written, err := io.Copy(destination, response.Body)
	if err != nil {
		destination.Close()
		return err
	}

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"url":   url,
			"bytes": written,
		}).Info("Downloaded driver package")
	}
	return destination.Close()
}
