package model

import (
	"fmt"
	"math"
)

// Layer types understood by the network.
const (
	LayerDense     = "dense"
	LayerBatchNorm = "batch_normalization"
	LayerDropout   = "dropout"
)

// Activation functions for dense layers.
const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationSigmoid = "sigmoid"
	ActivationTanh    = "tanh"
)

// LayerSpec is the serialized form of one layer.
//
// Dense kernels are stored [in][out] so exported Keras weights can be
// written without transposing.
type LayerSpec struct {
	Type       string      `json:"type"`
	Activation string      `json:"activation,omitempty"`
	Kernel     [][]float64 `json:"kernel,omitempty"`
	Bias       []float64   `json:"bias,omitempty"`

	Gamma          []float64 `json:"gamma,omitempty"`
	Beta           []float64 `json:"beta,omitempty"`
	MovingMean     []float64 `json:"moving_mean,omitempty"`
	MovingVariance []float64 `json:"moving_variance,omitempty"`
	Epsilon        float64   `json:"epsilon,omitempty"`

	Rate float64 `json:"rate,omitempty"`
}

// NetworkSpec is the serialized classifier.
type NetworkSpec struct {
	InputDim int         `json:"input_dim"`
	Layers   []LayerSpec `json:"layers"`
}

type layer interface {
	forward(x []float64) []float64
	outDim() int
}

// Network is an inference-only feed-forward classifier. It is immutable
// after construction and safe for concurrent use.
type Network struct {
	inDim  int
	layers []layer
}

// NewNetwork validates the spec and builds the layer stack.
func NewNetwork(spec NetworkSpec) (*Network, error) {
	if spec.InputDim <= 0 {
		return nil, fmt.Errorf("network: input_dim must be positive, got %d", spec.InputDim)
	}
	if len(spec.Layers) == 0 {
		return nil, fmt.Errorf("network: no layers")
	}

	n := &Network{inDim: spec.InputDim}
	dim := spec.InputDim
	for i, ls := range spec.Layers {
		l, err := buildLayer(ls, dim)
		if err != nil {
			return nil, fmt.Errorf("network: layer %d (%s): %w", i, ls.Type, err)
		}
		n.layers = append(n.layers, l)
		dim = l.outDim()
	}
	return n, nil
}

// InputDim returns the expected feature count.
func (n *Network) InputDim() int {
	return n.inDim
}

// Forward runs x through every layer and returns the final activations.
func (n *Network) Forward(x []float64) ([]float64, error) {
	if len(x) != n.inDim {
		return nil, fmt.Errorf("network: expected %d inputs, got %d", n.inDim, len(x))
	}
	out := x
	for _, l := range n.layers {
		out = l.forward(out)
	}
	return out, nil
}

func buildLayer(ls LayerSpec, inDim int) (layer, error) {
	switch ls.Type {
	case LayerDense:
		return newDense(ls, inDim)
	case LayerBatchNorm:
		return newBatchNorm(ls, inDim)
	case LayerDropout:
		return passthrough{dim: inDim}, nil
	default:
		return nil, fmt.Errorf("unsupported layer type %q", ls.Type)
	}
}

type dense struct {
	kernel     [][]float64 // [in][out]
	bias       []float64
	activation func(float64) float64
	out        int
}

func newDense(ls LayerSpec, inDim int) (*dense, error) {
	if len(ls.Kernel) != inDim {
		return nil, fmt.Errorf("kernel has %d rows, expected %d", len(ls.Kernel), inDim)
	}
	out := len(ls.Kernel[0])
	if out == 0 {
		return nil, fmt.Errorf("kernel has no output units")
	}
	for i, row := range ls.Kernel {
		if len(row) != out {
			return nil, fmt.Errorf("kernel row %d has %d columns, expected %d", i, len(row), out)
		}
	}
	bias := ls.Bias
	if bias == nil {
		bias = make([]float64, out)
	}
	if len(bias) != out {
		return nil, fmt.Errorf("bias has %d values, expected %d", len(bias), out)
	}
	act, err := activationFunc(ls.Activation)
	if err != nil {
		return nil, err
	}
	return &dense{kernel: ls.Kernel, bias: bias, activation: act, out: out}, nil
}

func (d *dense) forward(x []float64) []float64 {
	y := make([]float64, d.out)
	copy(y, d.bias)
	for i, xi := range x {
		row := d.kernel[i]
		for j, w := range row {
			y[j] += xi * w
		}
	}
	for j := range y {
		y[j] = d.activation(y[j])
	}
	return y
}

func (d *dense) outDim() int { return d.out }

// batchNorm applies the inference form using moving statistics.
type batchNorm struct {
	scale []float64
	shift []float64
}

func newBatchNorm(ls LayerSpec, inDim int) (*batchNorm, error) {
	for name, v := range map[string][]float64{
		"gamma":           ls.Gamma,
		"beta":            ls.Beta,
		"moving_mean":     ls.MovingMean,
		"moving_variance": ls.MovingVariance,
	} {
		if len(v) != inDim {
			return nil, fmt.Errorf("%s has %d values, expected %d", name, len(v), inDim)
		}
	}
	eps := ls.Epsilon
	if eps == 0 {
		eps = 1e-3
	}
	bn := &batchNorm{scale: make([]float64, inDim), shift: make([]float64, inDim)}
	for i := 0; i < inDim; i++ {
		bn.scale[i] = ls.Gamma[i] / math.Sqrt(ls.MovingVariance[i]+eps)
		bn.shift[i] = ls.Beta[i] - ls.MovingMean[i]*bn.scale[i]
	}
	return bn, nil
}

func (b *batchNorm) forward(x []float64) []float64 {
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = v*b.scale[i] + b.shift[i]
	}
	return y
}

func (b *batchNorm) outDim() int { return len(b.scale) }

type passthrough struct{ dim int }

func (p passthrough) forward(x []float64) []float64 { return x }
func (p passthrough) outDim() int                   { return p.dim }

func activationFunc(name string) (func(float64) float64, error) {
	switch name {
	case "", ActivationLinear:
		return func(v float64) float64 { return v }, nil
	case ActivationReLU:
		return func(v float64) float64 { return math.Max(0, v) }, nil
	case ActivationSigmoid:
		return Sigmoid, nil
	case ActivationTanh:
		return math.Tanh, nil
	default:
		return nil, fmt.Errorf("unsupported activation %q", name)
	}
}

// Sigmoid is the logistic function, computed without overflow for large |v|.
func Sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}
