package gpu

import (
	"fmt"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// mapTimeout bounds how long a readback waits for the device.
const mapTimeout = 2 * time.Second

// softmaxUniform mirrors the shader's Params struct.
type softmaxUniform struct {
	Rows     uint32
	Cols     uint32
	TempBits uint32
	GroupsX  uint32
}

// uploadScores copies scores into a storage buffer the shader rewrites in
// place and the readback copies from.
func (c *Context) uploadScores(scores []float32) (*wgpu.Buffer, error) {
	buf, err := c.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "RowSoftmax_Scores",
		Contents: wgpu.ToBytes(scores),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %d scores: %w", len(scores), err)
	}
	return buf, nil
}

func (c *Context) uploadUniform(u softmaxUniform) (*wgpu.Buffer, error) {
	buf, err := c.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "RowSoftmax_Params",
		Contents: wgpu.ToBytes([]softmaxUniform{u}),
		Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("upload softmax params: %w", err)
	}
	return buf, nil
}

// readScores copies len(dst) values from src back into dst through a
// mappable staging buffer.
func (c *Context) readScores(src *wgpu.Buffer, dst []float32) error {
	size := uint64(len(dst) * 4)
	staging, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "RowSoftmax_Staging",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	defer staging.Destroy()

	enc, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	enc.CopyBufferToBuffer(src, 0, staging, 0, size)
	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish copy: %w", err)
	}
	c.Queue.Submit(cmd)

	status := make(chan wgpu.BufferMapAsyncStatus, 1)
	if err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status <- s
	}); err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	if err := c.waitMapped(status); err != nil {
		return err
	}
	defer staging.Unmap()

	mapped := staging.GetMappedRange(0, uint(size))
	if mapped == nil {
		return fmt.Errorf("staging buffer has no mapped range")
	}
	copy(dst, wgpu.FromBytes[float32](mapped))
	return nil
}

// waitMapped polls the device without blocking until a map callback reports
// or mapTimeout passes, so a lost device cannot hang the caller.
func (c *Context) waitMapped(status <-chan wgpu.BufferMapAsyncStatus) error {
	deadline := time.After(mapTimeout)
	for {
		c.Device.Poll(false, nil)
		select {
		case s := <-status:
			if s != wgpu.BufferMapAsyncStatusSuccess {
				return fmt.Errorf("map staging buffer: status %v", s)
			}
			return nil
		case <-deadline:
			return fmt.Errorf("readback timed out after %s", mapTimeout)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
