// Package model defines the convolutional regression network that maps a
// sample's features to its mixing efficiency.
package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/osborn/internal/config"
)

// Name is recorded as the model type in checkpoints.
const Name = "OsbornCNN"

// Net is a small 1D convolutional regressor built from 2D layers.
//
// Architecture:
//
//	Input: [batch, C*W] or [batch, C, 1, W]
//	Conv1: C -> Filters1, 1xKernel, stride -> [batch, Filters1, 1, W1]
//	ReLU
//	Conv2: Filters1 -> Filters2, 1xKernel, stride -> [batch, Filters2, 1, W2]
//	ReLU
//	Flatten -> [batch, Filters2*W2]
//	FC1: -> Hidden
//	ReLU
//	FC2: Hidden -> 1 (efficiency)
type Net[B tensor.Backend] struct {
	layout config.Layout
	cfg    config.ModelConfig
	flat   int

	conv1 *nn.Conv2D[B]
	relu1 *nn.ReLU[B]
	conv2 *nn.Conv2D[B]
	relu2 *nn.ReLU[B]
	fc1   *nn.Linear[B]
	relu3 *nn.ReLU[B]
	fc2   *nn.Linear[B]
}

// New builds the network on backend and initializes its weights from rng.
//
// The layers come up with Born's own Xavier initialization; the weights
// are then redrawn from rng so that a fixed seed gives a fixed network.
// New panics if the layout is too narrow for the kernel, like Born's layers do
// for invalid sizes.
func New[B tensor.Backend](backend B, layout config.Layout, cfg config.ModelConfig, rng *rand.Rand) *Net[B] {
	w2 := cfg.ConvWidth(layout.Width)
	if w2 <= 0 {
		panic(fmt.Sprintf("model: width %d too narrow for kernel %d stride %d",
			layout.Width, cfg.Kernel, cfg.Stride))
	}

	n := &Net[B]{
		layout: layout,
		cfg:    cfg,
		flat:   cfg.Filters2 * w2,

		conv1: nn.NewConv2D(layout.Channels, cfg.Filters1, 1, cfg.Kernel, cfg.Stride, 0, true, backend),
		relu1: nn.NewReLU[B](),
		conv2: nn.NewConv2D(cfg.Filters1, cfg.Filters2, 1, cfg.Kernel, cfg.Stride, 0, true, backend),
		relu2: nn.NewReLU[B](),
		fc1:   nn.NewLinear(cfg.Filters2*w2, cfg.Hidden, backend),
		relu3: nn.NewReLU[B](),
		fc2:   nn.NewLinear(cfg.Hidden, 1, backend),
	}
	n.initWeights(rng)
	return n
}

// Forward returns the predicted efficiency with shape [batch, 1].
func (n *Net[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	switch len(shape) {
	case 2:
		if shape[1] != n.layout.Features() {
			panic(fmt.Sprintf("model: expected %d features, got %d", n.layout.Features(), shape[1]))
		}
		input = input.Reshape(shape[0], n.layout.Channels, 1, n.layout.Width)
	case 4:
	default:
		panic(fmt.Sprintf("model: expected 2D [batch, %d] or 4D [batch, %d, 1, %d] input, got %dD",
			n.layout.Features(), n.layout.Channels, n.layout.Width, len(shape)))
	}

	x := n.conv1.Forward(input)
	x = n.relu1.Forward(x)
	x = n.conv2.Forward(x)
	x = n.relu2.Forward(x)

	batch := x.Shape()[0]
	x = x.Reshape(batch, n.flat)

	x = n.fc1.Forward(x)
	x = n.relu3.Forward(x)
	return n.fc2.Forward(x)
}

// Parameters returns all trainable parameters.
func (n *Net[B]) Parameters() []*nn.Parameter[B] {
	named := n.namedParameters()
	params := make([]*nn.Parameter[B], len(named))
	for i, p := range named {
		params[i] = p.param
	}
	return params
}

// StateDict maps "layer.weight" / "layer.bias" names to parameter tensors.
func (n *Net[B]) StateDict() map[string]*tensor.RawTensor {
	named := n.namedParameters()
	state := make(map[string]*tensor.RawTensor, len(named))
	for _, p := range named {
		state[p.name] = p.param.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies parameters from state into the network.
func (n *Net[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for _, p := range n.namedParameters() {
		raw, ok := state[p.name]
		if !ok {
			return fmt.Errorf("model: missing %s in state dict", p.name)
		}
		want := p.param.Tensor().Shape()
		if !raw.Shape().Equal(want) {
			return fmt.Errorf("model: %s shape mismatch: expected %v, got %v", p.name, want, raw.Shape())
		}
		if raw.DType() != tensor.Float32 {
			return fmt.Errorf("model: %s dtype mismatch: expected float32, got %v", p.name, raw.DType())
		}
		copy(p.param.Tensor().Data(), raw.AsFloat32())
	}
	return nil
}

// NumParameters counts the trainable scalars.
func (n *Net[B]) NumParameters() int {
	return CountParameters[B](n)
}

// CountParameters counts the trainable scalars of any module.
func CountParameters[B tensor.Backend](m nn.Module[B]) int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor().Shape().NumElements()
	}
	return total
}

// String returns a representation of the architecture.
func (n *Net[B]) String() string {
	return fmt.Sprintf(`%s(
  %s
  ReLU()
  %s
  ReLU()
  Linear(in=%d, out=%d)
  ReLU()
  Linear(in=%d, out=1)
)`,
		Name,
		n.conv1.String(),
		n.conv2.String(),
		n.flat, n.cfg.Hidden,
		n.cfg.Hidden,
	)
}

type namedParameter[B tensor.Backend] struct {
	name  string
	param *nn.Parameter[B]
}

func (n *Net[B]) namedParameters() []namedParameter[B] {
	out := make([]namedParameter[B], 0, 8)
	add := func(layer string, params []*nn.Parameter[B]) {
		suffixes := []string{"weight", "bias"}
		for i, p := range params {
			out = append(out, namedParameter[B]{name: layer + "." + suffixes[i], param: p})
		}
	}
	add("conv1", n.conv1.Parameters())
	add("conv2", n.conv2.Parameters())
	add("fc1", n.fc1.Parameters())
	add("fc2", n.fc2.Parameters())
	return out
}

// initWeights redraws every weight with Xavier-uniform values from rng and
// zeroes every bias.
func (n *Net[B]) initWeights(rng *rand.Rand) {
	for _, p := range n.namedParameters() {
		data := p.param.Tensor().Data()
		shape := p.param.Tensor().Shape()
		if len(shape) == 1 {
			clear(data)
			continue
		}

		// Linear: [out, in]. Conv2D: [out, in, kh, kw].
		receptive := 1
		for _, d := range shape[2:] {
			receptive *= d
		}
		fanIn := shape[1] * receptive
		fanOut := shape[0] * receptive
		bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
		for i := range data {
			data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
		}
	}
}
