package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func withFlags(t *testing.T, config string, frames int, snapshot string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "device.hujson")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o600))

	driverFlag, configFlag, framesFlag, snapshotFlag = "fake", path, frames, snapshot
	t.Cleanup(func() {
		driverFlag, configFlag, framesFlag, snapshotFlag = "fake", "", 0, ""
	})
}

func TestRun(t *testing.T) {
	snapshot := filepath.Join(t.TempDir(), "depth.png")
	withFlags(t, `{
		"depth": {"width": 16, "height": 8},
		"scene": true,
		"user": true,
		"horizontal_fov": 1, "vertical_fov": 1,
		"synthetic": true,
		"auto_calibrate": true,
		"users": [{"id": 1}],
	}`, 5, snapshot)

	require.NoError(t, run(context.Background(), zaptest.NewLogger(t).Sugar()))

	info, err := os.Stat(snapshot)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestRunReturnsSetupErrors(t *testing.T) {
	withFlags(t, `{"image": {"width": 4, "height": 2}}`, 1, "")

	err := run(context.Background(), zaptest.NewLogger(t).Sugar())
	assert.ErrorContains(t, err, "could not enable depth")
}
