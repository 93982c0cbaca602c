package models_test

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestParsePortRef(t *testing.T) {
	ref, err := models.ParsePortRef("ndvi.raster")
	assert.NoError(t, err)
	assert.Equal(t, models.PortRef{Task: "ndvi", Port: "raster"}, ref)

	// qualified aliases split on the last dot
	ref, err = models.ParsePortRef("parent.child.out")
	assert.NoError(t, err)
	assert.Equal(t, models.PortRef{Task: "parent.child", Port: "out"}, ref)

	for _, s := range []string{"nodot", ".port", "task.", "", "."} {
		_, err := models.ParsePortRef(s)
		assert.Error(t, err, "%q should not parse", s)
	}
}

func TestPortRefString(t *testing.T) {
	assert.Equal(t, "ndvi.raster", models.PortRef{Task: "ndvi", Port: "raster"}.String())
}

func TestErrorFormatting(t *testing.T) {
	err := models.NewError(models.ErrMalformedSpec, "bad %s", "yaml")
	assert.Equal(t, "MALFORMED_SPEC: bad yaml", err.Error())

	err = models.NewTaskError(models.ErrTransientTaskFailure, "ingest", "timed out")
	assert.Equal(t, `TRANSIENT_TASK_FAILURE: task "ingest": timed out`, err.Error())
}

func TestKindOfUnwraps(t *testing.T) {
	inner := models.NewError(models.ErrUnboundParameter, "missing")
	wrapped := errors.Wrap(inner, "while building")
	assert.Equal(t, models.ErrUnboundParameter, models.KindOf(wrapped))
	assert.True(t, models.IsKind(wrapped, models.ErrUnboundParameter))
	assert.False(t, models.IsKind(wrapped, models.ErrCyclicGraph))

	assert.Equal(t, models.ErrorKind(""), models.KindOf(fmt.Errorf("plain")))
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []models.TaskStatus{models.DoneTaskStatus, models.FailedTaskStatus, models.CancelledTaskStatus} {
		assert.True(t, s.Terminal())
	}
	for _, s := range []models.TaskStatus{models.PendingTaskStatus, models.ReadyTaskStatus, models.DispatchedTaskStatus, models.RunningTaskStatus} {
		assert.False(t, s.Terminal())
	}

	for _, s := range []models.RunStatus{models.DoneRunStatus, models.FailedRunStatus, models.CancelledRunStatus} {
		assert.True(t, s.Terminal())
	}
	for _, s := range []models.RunStatus{models.PendingRunStatus, models.RunningRunStatus} {
		assert.False(t, s.Terminal())
	}
}
