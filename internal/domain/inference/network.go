package inference

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
)

// Layer types accepted in a network export.
const (
	layerConv1D        = "conv1d"
	layerMaxPool1D     = "max_pool1d"
	layerBatchNorm     = "batch_norm"
	layerGlobalAvgPool = "global_avg_pool1d"
	layerFlatten       = "flatten"
	layerDense         = "dense"
	layerDropout       = "dropout"

	defaultBatchNormEpsilon = 1e-3
)

// Network is a feed-forward 1D convolutional classifier decoded from a
// layer-by-layer JSON export. Inputs have shape (width, channels) in
// channels-last order.
type Network struct {
	width    int
	channels int
	layers   []layer
	classes  int
}

type layerSpec struct {
	Type       string          `json:"type"`
	Filters    int             `json:"filters"`
	KernelSize int             `json:"kernel_size"`
	Strides    int             `json:"strides"`
	Padding    string          `json:"padding"`
	PoolSize   int             `json:"pool_size"`
	Units      int             `json:"units"`
	Activation string          `json:"activation"`
	Kernel     json.RawMessage `json:"kernel"`
	Bias       []float64       `json:"bias"`
	Gamma      []float64       `json:"gamma"`
	Beta       []float64       `json:"beta"`
	MovingMean []float64       `json:"moving_mean"`
	MovingVar  []float64       `json:"moving_variance"`
	Epsilon    float64         `json:"epsilon"`
}

type networkSpec struct {
	InputWidth    int         `json:"input_width"`
	InputChannels int         `json:"input_channels"`
	Layers        []layerSpec `json:"layers"`
}

// tensor holds a (steps, channels) activation in row-major order.
type tensor struct {
	steps    int
	channels int
	data     []float64
}

func (t tensor) at(step, ch int) float64 { return t.data[step*t.channels+ch] }

type layer interface {
	forward(in tensor) tensor
}

// DecodeNetwork reads a network export and checks that every layer's
// weights agree with the shape flowing into it.
func DecodeNetwork(r io.Reader) (*Network, error) {
	var spec networkSpec
	if err := json.NewDecoder(r).Decode(&spec); err != nil {
		return nil, fmt.Errorf("%w: network: %w", ErrDecode, err)
	}
	if spec.InputWidth <= 0 {
		return nil, fmt.Errorf("%w: network input_width must be positive", ErrInconsistent)
	}
	if spec.InputChannels == 0 {
		spec.InputChannels = 1
	}
	if len(spec.Layers) == 0 {
		return nil, fmt.Errorf("%w: network has no layers", ErrInconsistent)
	}

	n := &Network{width: spec.InputWidth, channels: spec.InputChannels}
	steps, channels := spec.InputWidth, spec.InputChannels
	var last layerSpec
	for i, ls := range spec.Layers {
		ls.Type = strings.ToLower(ls.Type)
		ls.Activation = strings.ToLower(ls.Activation)
		l, s, c, err := buildLayer(ls, steps, channels)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, ls.Type, err)
		}
		if l != nil {
			n.layers = append(n.layers, l)
		}
		steps, channels = s, c
		if ls.Type != layerDropout {
			last = ls
		}
	}
	if last.Type != layerDense || steps != 1 {
		return nil, fmt.Errorf("%w: network must end in a dense layer", ErrInconsistent)
	}
	switch {
	case channels == 1 && last.Activation == "sigmoid":
		n.classes = 2
	case channels > 1 && last.Activation == "softmax":
		n.classes = channels
	default:
		return nil, fmt.Errorf("%w: output of %d units with %q activation is not a distribution", ErrInconsistent, channels, last.Activation)
	}
	return n, nil
}

// PredictProba implements SequenceClassifier. A single sigmoid output p is
// expanded to [1-p, p].
func (n *Network) PredictProba(series []float64) ([]float64, error) {
	if len(series) != n.width*n.channels {
		return nil, fmt.Errorf("%w: got %d values, network expects %d", ErrInputShape, len(series), n.width*n.channels)
	}
	t := tensor{steps: n.width, channels: n.channels, data: append([]float64(nil), series...)}
	for _, l := range n.layers {
		t = l.forward(t)
	}
	for _, v := range t.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite network output", ErrInconsistent)
		}
	}
	if n.classes == 2 && len(t.data) == 1 {
		p := t.data[0]
		return []float64{1 - p, p}, nil
	}
	return t.data, nil
}

// InputWidth implements SequenceClassifier.
func (n *Network) InputWidth() int { return n.width }

// NumClasses is the width of PredictProba's output.
func (n *Network) NumClasses() int { return n.classes }

func buildLayer(ls layerSpec, steps, channels int) (layer, int, int, error) {
	act, err := activationFor(ls.Activation)
	if err != nil {
		return nil, 0, 0, err
	}
	switch ls.Type {
	case layerConv1D:
		return buildConv(ls, act, steps, channels)
	case layerMaxPool1D:
		if ls.PoolSize <= 0 {
			return nil, 0, 0, fmt.Errorf("%w: pool_size must be positive", ErrInconsistent)
		}
		stride := ls.Strides
		if stride <= 0 {
			stride = ls.PoolSize
		}
		p := &maxPool{size: ls.PoolSize, stride: stride}
		switch strings.ToLower(ls.Padding) {
		case "", "valid":
			if steps < ls.PoolSize {
				return nil, 0, 0, fmt.Errorf("%w: pool of %d over %d steps", ErrInconsistent, ls.PoolSize, steps)
			}
			p.out = (steps-ls.PoolSize)/stride + 1
		case "same":
			p.out = (steps + stride - 1) / stride
			if pad := (p.out-1)*stride + ls.PoolSize - steps; pad > 0 {
				p.padLeft = pad / 2
			}
		default:
			return nil, 0, 0, fmt.Errorf("%w: padding %q", ErrUnsupported, ls.Padding)
		}
		return p, p.out, channels, nil
	case layerBatchNorm:
		for _, v := range [][]float64{ls.Gamma, ls.Beta, ls.MovingMean, ls.MovingVar} {
			if len(v) != channels {
				return nil, 0, 0, fmt.Errorf("%w: batch norm parameters for %d channels, input has %d", ErrInconsistent, len(v), channels)
			}
		}
		eps := ls.Epsilon
		if eps <= 0 {
			eps = defaultBatchNormEpsilon
		}
		bn := &batchNorm{scale: make([]float64, channels), shift: make([]float64, channels)}
		for c := 0; c < channels; c++ {
			bn.scale[c] = ls.Gamma[c] / math.Sqrt(ls.MovingVar[c]+eps)
			bn.shift[c] = ls.Beta[c] - ls.MovingMean[c]*bn.scale[c]
		}
		return bn, steps, channels, nil
	case layerGlobalAvgPool:
		return globalAvgPool{}, 1, channels, nil
	case layerFlatten:
		return flatten{}, 1, steps * channels, nil
	case layerDense:
		return buildDense(ls, act, steps, channels)
	case layerDropout:
		return nil, steps, channels, nil
	}
	return nil, 0, 0, fmt.Errorf("%w: layer type %q", ErrUnsupported, ls.Type)
}

func buildConv(ls layerSpec, act func([]float64), steps, channels int) (layer, int, int, error) {
	if ls.Filters <= 0 || ls.KernelSize <= 0 {
		return nil, 0, 0, fmt.Errorf("%w: filters and kernel_size must be positive", ErrInconsistent)
	}
	var kernel [][][]float64
	if err := json.Unmarshal(ls.Kernel, &kernel); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: conv kernel: %w", ErrDecode, err)
	}
	if len(kernel) != ls.KernelSize {
		return nil, 0, 0, fmt.Errorf("%w: kernel has %d taps, kernel_size is %d", ErrInconsistent, len(kernel), ls.KernelSize)
	}
	flat := make([]float64, 0, ls.KernelSize*channels*ls.Filters)
	for _, tap := range kernel {
		if len(tap) != channels {
			return nil, 0, 0, fmt.Errorf("%w: kernel expects %d input channels, input has %d", ErrInconsistent, len(tap), channels)
		}
		for _, in := range tap {
			if len(in) != ls.Filters {
				return nil, 0, 0, fmt.Errorf("%w: kernel has %d filters, layer declares %d", ErrInconsistent, len(in), ls.Filters)
			}
			flat = append(flat, in...)
		}
	}
	bias := ls.Bias
	if bias == nil {
		bias = make([]float64, ls.Filters)
	}
	if len(bias) != ls.Filters {
		return nil, 0, 0, fmt.Errorf("%w: %d biases for %d filters", ErrInconsistent, len(bias), ls.Filters)
	}
	stride := ls.Strides
	if stride <= 0 {
		stride = 1
	}
	c := &conv1D{kernel: flat, bias: bias, size: ls.KernelSize, in: channels, filters: ls.Filters, stride: stride, act: act}
	switch strings.ToLower(ls.Padding) {
	case "", "valid":
		if steps < ls.KernelSize {
			return nil, 0, 0, fmt.Errorf("%w: kernel of %d over %d steps", ErrInconsistent, ls.KernelSize, steps)
		}
		c.out = (steps-ls.KernelSize)/stride + 1
	case "same":
		c.out = (steps + stride - 1) / stride
		pad := (c.out-1)*stride + ls.KernelSize - steps
		if pad > 0 {
			c.padLeft = pad / 2
		}
	default:
		return nil, 0, 0, fmt.Errorf("%w: padding %q", ErrUnsupported, ls.Padding)
	}
	return c, c.out, ls.Filters, nil
}

func buildDense(ls layerSpec, act func([]float64), steps, channels int) (layer, int, int, error) {
	if steps != 1 {
		return nil, 0, 0, fmt.Errorf("%w: dense layer needs a flattened input, got %d steps", ErrInconsistent, steps)
	}
	var kernel [][]float64
	if err := json.Unmarshal(ls.Kernel, &kernel); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: dense kernel: %w", ErrDecode, err)
	}
	if len(kernel) != channels {
		return nil, 0, 0, fmt.Errorf("%w: kernel has %d inputs, layer receives %d", ErrInconsistent, len(kernel), channels)
	}
	units := ls.Units
	if units == 0 && len(kernel) > 0 {
		units = len(kernel[0])
	}
	flat := make([]float64, 0, channels*units)
	for _, row := range kernel {
		if len(row) != units {
			return nil, 0, 0, fmt.Errorf("%w: kernel row of %d for %d units", ErrInconsistent, len(row), units)
		}
		flat = append(flat, row...)
	}
	bias := ls.Bias
	if bias == nil {
		bias = make([]float64, units)
	}
	if len(bias) != units {
		return nil, 0, 0, fmt.Errorf("%w: %d biases for %d units", ErrInconsistent, len(bias), units)
	}
	return &dense{kernel: flat, bias: bias, in: channels, units: units, act: act}, 1, units, nil
}

type conv1D struct {
	kernel  []float64 // [tap][in][filter]
	bias    []float64
	size    int
	in      int
	filters int
	stride  int
	padLeft int
	out     int
	act     func([]float64)
}

func (c *conv1D) forward(t tensor) tensor {
	out := tensor{steps: c.out, channels: c.filters, data: make([]float64, c.out*c.filters)}
	for o := 0; o < c.out; o++ {
		row := out.data[o*c.filters : (o+1)*c.filters]
		copy(row, c.bias)
		start := o*c.stride - c.padLeft
		for k := 0; k < c.size; k++ {
			s := start + k
			if s < 0 || s >= t.steps {
				continue
			}
			for i := 0; i < c.in; i++ {
				x := t.at(s, i)
				if x == 0 {
					continue
				}
				w := c.kernel[(k*c.in+i)*c.filters : (k*c.in+i+1)*c.filters]
				for f := range row {
					row[f] += x * w[f]
				}
			}
		}
		c.act(row)
	}
	return out
}

// maxPool skips padded positions, so an edge window takes the max of the
// steps it actually covers.
type maxPool struct {
	size    int
	stride  int
	out     int
	padLeft int
}

func (p *maxPool) forward(t tensor) tensor {
	out := tensor{steps: p.out, channels: t.channels, data: make([]float64, p.out*t.channels)}
	for o := 0; o < p.out; o++ {
		start := o*p.stride - p.padLeft
		for c := 0; c < t.channels; c++ {
			m := math.Inf(-1)
			for k := 0; k < p.size; k++ {
				s := start + k
				if s < 0 || s >= t.steps {
					continue
				}
				if v := t.at(s, c); v > m {
					m = v
				}
			}
			out.data[o*t.channels+c] = m
		}
	}
	return out
}

type batchNorm struct {
	scale []float64
	shift []float64
}

func (b *batchNorm) forward(t tensor) tensor {
	for i := range t.data {
		c := i % t.channels
		t.data[i] = t.data[i]*b.scale[c] + b.shift[c]
	}
	return t
}

type globalAvgPool struct{}

func (globalAvgPool) forward(t tensor) tensor {
	out := tensor{steps: 1, channels: t.channels, data: make([]float64, t.channels)}
	for s := 0; s < t.steps; s++ {
		for c := 0; c < t.channels; c++ {
			out.data[c] += t.at(s, c)
		}
	}
	for c := range out.data {
		out.data[c] /= float64(t.steps)
	}
	return out
}

type flatten struct{}

func (flatten) forward(t tensor) tensor {
	return tensor{steps: 1, channels: t.steps * t.channels, data: t.data}
}

type dense struct {
	kernel []float64 // [in][unit]
	bias   []float64
	in     int
	units  int
	act    func([]float64)
}

func (d *dense) forward(t tensor) tensor {
	out := append([]float64(nil), d.bias...)
	for i := 0; i < d.in; i++ {
		x := t.data[i]
		if x == 0 {
			continue
		}
		w := d.kernel[i*d.units : (i+1)*d.units]
		for u := range out {
			out[u] += x * w[u]
		}
	}
	d.act(out)
	return tensor{steps: 1, channels: d.units, data: out}
}

func activationFor(name string) (func([]float64), error) {
	switch strings.ToLower(name) {
	case "", "linear":
		return func([]float64) {}, nil
	case "relu":
		return func(v []float64) {
			for i := range v {
				if v[i] < 0 {
					v[i] = 0
				}
			}
		}, nil
	case "sigmoid":
		return func(v []float64) {
			for i := range v {
				v[i] = sigmoid(v[i])
			}
		}, nil
	case "tanh":
		return func(v []float64) {
			for i := range v {
				v[i] = math.Tanh(v[i])
			}
		}, nil
	case "softmax":
		return softmax, nil
	}
	return nil, fmt.Errorf("%w: activation %q", ErrUnsupported, name)
}
