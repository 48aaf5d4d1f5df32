package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/browser/session"
	"github.com/xkilldash9x/uiharness/internal/config"
)

// screenshotTimeout bounds the failure screenshot, which runs even when the
// scenario's own context has been cancelled.
const screenshotTimeout = 10 * time.Second

// Hooks bracket a scenario: Before acquires the unit's context, After
// captures evidence of a failure and releases it.
type Hooks struct {
	registry  *session.Registry
	artifacts config.ArtifactsConfig
	logger    *zap.Logger
}

// NewHooks returns hooks over registry that write failure screenshots
// according to artifacts.
func NewHooks(registry *session.Registry, artifacts config.ArtifactsConfig, logger *zap.Logger) *Hooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hooks{registry: registry, artifacts: artifacts, logger: logger.Named("hooks")}
}

// Before acquires unit's context and returns its page.
func (h *Hooks) Before(ctx context.Context, unit string) (browser.Page, error) {
	h.logger.Debug("Starting scenario unit.", zap.String("unit", unit))
	return h.registry.GetPage(ctx, unit)
}

// After releases unit's context. When the scenario failed and screenshots
// are enabled, a full-page PNG is written first and its path returned.
// Screenshot failures are logged and yield an empty path.
func (h *Hooks) After(ctx context.Context, unit string, failed bool) string {
	defer h.registry.Release(unit)

	if !failed || !h.artifacts.ScreenshotOnFailure {
		return ""
	}
	c, ok := h.registry.Lookup(unit)
	if !ok {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()

	path, err := h.screenshot(ctx, c.Page(), unit)
	if err != nil {
		h.logger.Warn("Could not capture failure screenshot.", zap.String("unit", unit), zap.Error(err))
		return ""
	}
	h.logger.Info("Captured failure screenshot.", zap.String("unit", unit), zap.String("path", path))
	return path
}

func (h *Hooks) screenshot(ctx context.Context, page browser.Page, unit string) (string, error) {
	png, err := page.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(h.artifacts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifacts dir: %w", err)
	}
	path := filepath.Join(h.artifacts.Dir, unit+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}
