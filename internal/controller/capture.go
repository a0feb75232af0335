package controller

import (
	"context"

	"github.com/google/uuid"

	"github.com/micro-nova/ov5640-go/internal/models"
)

// Capture refreshes the preview baseline and programs the still-capture
// exposure. The result is recorded as the last capture and published.
func (c *Controller) Capture(ctx context.Context) (models.Capture, *models.AppError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.dev.Capture(ctx)
	if err != nil {
		return models.Capture{}, models.FromError(err)
	}
	capt := models.Capture{ID: uuid.NewString(), Time: c.now(), Timing: t}
	c.last = &capt
	c.publish(models.EventCapture)
	return capt, nil
}

// RestorePreview writes the stored preview gain and exposure back once a
// capture is done.
func (c *Controller) RestorePreview(ctx context.Context) (models.Snapshot, *models.AppError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dev.RestorePreviewMetering(ctx); err != nil {
		return models.Snapshot{}, models.FromError(err)
	}
	return c.publish(models.EventPreview), nil
}

// LastCapture returns the most recent capture, if any.
func (c *Controller) LastCapture() (models.Capture, *models.AppError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return models.Capture{}, models.ErrNotFound("no capture has been taken")
	}
	return *c.last, nil
}
