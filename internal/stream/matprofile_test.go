//go:build matprofile

package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"spatial-object-locator/internal/device"
)

func TestNextReleasesMatsOnSkippedFrame(t *testing.T) {
	src, dev := newTestSource(t)
	ctx := context.Background()

	before := gocv.MatProfile.Count()
	require.NoError(t, dev.outputs["depth"].Send(ctx, &device.ImgFrame{Sequence: 1, Mat: depthFrame(100, 100, 0)}))

	pkt, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, pkt)
	assert.Equal(t, before, gocv.MatProfile.Count())
}

func TestNextReleasesMatsOnEmittedPacket(t *testing.T) {
	src, dev := newTestSource(t)
	ctx := context.Background()

	before := gocv.MatProfile.Count()
	require.NoError(t, dev.outputs["depth"].Send(ctx, &device.ImgFrame{Sequence: 2, Mat: depthFrame(400, 640, 1500)}))
	require.NoError(t, dev.outputs["spatialData"].Send(ctx, &device.SpatialLocations{Sequence: 2}))
	require.NoError(t, dev.outputs["video"].Send(ctx, &device.ImgFrame{Sequence: 2, Mat: gocv.NewMatWithSize(1080, 1920, gocv.MatTypeCV8UC3)}))

	pkt, err := src.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, pkt)
	require.NoError(t, pkt.Close())
	assert.Equal(t, before, gocv.MatProfile.Count())
}

func TestColorizeDepthReleasesMatsOnEveryPath(t *testing.T) {
	zero := depthFrame(40, 40, 0)
	defer zero.Close()
	valid := depthFrame(40, 40, 1200)
	defer valid.Close()

	for _, depth := range []gocv.Mat{zero, valid} {
		before := gocv.MatProfile.Count()
		_, colored, _, err := ColorizeDepth(depth)
		require.NoError(t, err)
		require.NoError(t, colored.Close())
		assert.Equal(t, before, gocv.MatProfile.Count())
	}
}
