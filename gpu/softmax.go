package gpu

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

// maxWorkgroupsPerDim is the WebGPU default limit on each dispatch dimension.
const maxWorkgroupsPerDim = 65535

// softmaxShader runs one workgroup per row: a max reduction, a sum
// reduction, then the normalised write back in place. Dimensions and the
// temperature arrive through a uniform so one pipeline serves every shape.
const softmaxShader = `
struct Params {
	rows: u32,
	cols: u32,
	temp_bits: u32,
	groups_x: u32,
};

@group(0) @binding(0) var<storage, read_write> scores : array<f32>;
@group(0) @binding(1) var<uniform> params : Params;

var<workgroup> shared_val: array<f32, 256>;
var<workgroup> wg_max: f32;
var<workgroup> wg_sum: f32;

@compute @workgroup_size(256)
fn main(
	@builtin(workgroup_id) wg_id: vec3<u32>,
	@builtin(local_invocation_id) local_id: vec3<u32>
) {
	let row = wg_id.y * params.groups_x + wg_id.x;
	if (row >= params.rows) {
		return;
	}
	let tid = local_id.x;
	let n = params.cols;
	let temp = bitcast<f32>(params.temp_bits);
	let offset = row * n;

	var local_max: f32 = -3.4e38;
	for (var idx: u32 = tid; idx < n; idx += 256u) {
		local_max = max(local_max, scores[offset + idx] / temp);
	}
	shared_val[tid] = local_max;
	workgroupBarrier();

	for (var s: u32 = 128u; s > 0u; s = s >> 1u) {
		if (tid < s) {
			shared_val[tid] = max(shared_val[tid], shared_val[tid + s]);
		}
		workgroupBarrier();
	}
	if (tid == 0u) { wg_max = shared_val[0]; }
	workgroupBarrier();
	let max_val = wg_max;

	var local_sum: f32 = 0.0;
	for (var idx: u32 = tid; idx < n; idx += 256u) {
		local_sum += exp(scores[offset + idx] / temp - max_val);
	}
	shared_val[tid] = local_sum;
	workgroupBarrier();

	for (var s: u32 = 128u; s > 0u; s = s >> 1u) {
		if (tid < s) {
			shared_val[tid] = shared_val[tid] + shared_val[tid + s];
		}
		workgroupBarrier();
	}
	if (tid == 0u) { wg_sum = shared_val[0]; }
	workgroupBarrier();
	let sum_exp = wg_sum;

	for (var idx: u32 = tid; idx < n; idx += 256u) {
		scores[offset + idx] = exp(scores[offset + idx] / temp - max_val) / sum_exp;
	}
}
`

// SoftmaxKernel is a row softmax backend for the coupling engine. Results
// agree with the CPU backend to within float32 rounding but are not
// bit-identical. Calls are serialised on the shared queue.
type SoftmaxKernel struct {
	mu       sync.Mutex
	ctx      *Context
	pipeline *wgpu.ComputePipeline
	logger   *slog.Logger
}

// NewSoftmaxKernel compiles the softmax pipeline on the shared context.
// logger receives the kernel's messages; nil means slog.Default.
func NewSoftmaxKernel(logger *slog.Logger) (*SoftmaxKernel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := GetContext(logger)
	if err != nil {
		return nil, err
	}
	mod, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "RowSoftmax_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: softmaxShader},
	})
	if err != nil {
		return nil, err
	}
	pipeline, err := c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "RowSoftmax_Pipe",
		Compute: wgpu.ProgrammableStageDescriptor{Module: mod, EntryPoint: "main"},
	})
	if err != nil {
		return nil, err
	}
	return &SoftmaxKernel{ctx: c, pipeline: pipeline, logger: logger}, nil
}

// SoftmaxRows divides scores by temperature and replaces each row of width
// cols with its softmax.
func (k *SoftmaxKernel) SoftmaxRows(scores []float32, rows, cols int, temperature float32) error {
	if rows == 0 || cols == 0 {
		return nil
	}
	if len(scores) < rows*cols {
		return fmt.Errorf("softmax: %d scores cannot hold %d rows of %d", len(scores), rows, cols)
	}
	if temperature == 0 {
		temperature = 1
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.pipeline == nil {
		return fmt.Errorf("softmax: kernel released")
	}

	c := k.ctx
	groupsX := min(rows, maxWorkgroupsPerDim)
	groupsY := (rows + groupsX - 1) / groupsX
	if groupsY > maxWorkgroupsPerDim {
		return fmt.Errorf("softmax: %d rows exceed a single dispatch", rows)
	}
	k.logger.Debug("gpu softmax", "rows", rows, "cols", cols, "groups", []int{groupsX, groupsY})

	data, err := c.uploadScores(scores[:rows*cols])
	if err != nil {
		return err
	}
	defer data.Destroy()

	params, err := c.uploadUniform(softmaxUniform{
		Rows:     uint32(rows),
		Cols:     uint32(cols),
		TempBits: math.Float32bits(temperature),
		GroupsX:  uint32(groupsX),
	})
	if err != nil {
		return err
	}
	defer params.Destroy()

	bindGroup, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "RowSoftmax_Bind",
		Layout: k.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: data, Size: data.GetSize()},
			{Binding: 1, Buffer: params, Size: params.GetSize()},
		},
	})
	if err != nil {
		return err
	}
	defer bindGroup.Release()

	enc, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %v", err)
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(uint32(groupsX), uint32(groupsY), 1)
	pass.End()
	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("failed to finish command: %v", err)
	}
	c.Queue.Submit(cmd)

	return c.readScores(data, scores[:rows*cols])
}

// Release frees the pipeline.
func (k *SoftmaxKernel) Release() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
}
