// Package nn implements the in-memory networks used when no exported model
// file is available: a convolutional defect classifier and a stacked-LSTM
// demand forecaster, both built on gorgonia, plus the training loop and
// checkpointing that go with them. Trained production models are served
// through ONNX instead; these networks exist so a pipeline constructed
// without a model file still satisfies the same predict contract and can be
// trained from scratch.
package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Dataset feeds the trainer fixed-size batches. The tensor layouts are
// network-specific: the classifier consumes NCHW images, the forecaster
// time-major (lookback, batch, features) sequences.
type Dataset interface {
	Len() int
	Batch(indices []int) (x, y *tensor.Dense, err error)
}

// Model is a trainable network. Train and eval graphs for the same model
// share weight tensors, so updates made while training are visible to
// evaluation and inference immediately.
type Model interface {
	TrainGraph(batch int) (*Graph, error)
	EvalGraph(batch int) (*Graph, error)
	Weights() []*Weight
}

// Graph bundles one compiled expression graph with its feed points.
type Graph struct {
	ExprGraph  *gorgonia.ExprGraph
	Input      *gorgonia.Node
	Target     *gorgonia.Node // nil on inference graphs
	Output     *gorgonia.Node
	Loss       *gorgonia.Node // nil on inference graphs
	Learnables gorgonia.Nodes
}

// Weight is a named parameter tensor shared across every graph built from
// the same model.
type Weight struct {
	Name  string
	Value *tensor.Dense
}

// newGlorotWeight initializes a parameter with Glorot-normal values, taking
// the first dimension as fan-out and the product of the rest as fan-in.
func newGlorotWeight(rng *rand.Rand, name string, shape ...int) *Weight {
	size := 1
	for _, d := range shape {
		size *= d
	}
	fanOut := shape[0]
	fanIn := size / fanOut
	scale := math.Sqrt(2.0 / float64(fanIn+fanOut))

	data := make([]float32, size)
	for i := range data {
		data[i] = float32(rng.NormFloat64() * scale)
	}
	return &Weight{
		Name:  name,
		Value: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)),
	}
}

func newConstWeight(name string, fill float32, shape ...int) *Weight {
	size := 1
	for _, d := range shape {
		size *= d
	}
	data := make([]float32, size)
	for i := range data {
		data[i] = fill
	}
	return &Weight{
		Name:  name,
		Value: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)),
	}
}

// node binds a weight into a graph, sharing the backing tensor.
func (w *Weight) node(g *gorgonia.ExprGraph) *gorgonia.Node {
	return gorgonia.NewTensor(g, tensor.Float32, w.Value.Dims(),
		gorgonia.WithShape(w.Value.Shape()...),
		gorgonia.WithName(w.Name),
		gorgonia.WithValue(w.Value))
}

// dense applies x*W + b with the bias broadcast over the batch axis. Biases
// are shaped (1, out).
func dense(x, w, b *gorgonia.Node) (*gorgonia.Node, error) {
	xw, err := gorgonia.Mul(x, w)
	if err != nil {
		return nil, fmt.Errorf("dense %s: %w", w.Name(), err)
	}
	out, err := gorgonia.BroadcastAdd(xw, b, nil, []byte{0})
	if err != nil {
		return nil, fmt.Errorf("dense bias %s: %w", b.Name(), err)
	}
	return out, nil
}

const lossEpsilon = 1e-7

// categoricalCrossEntropy is the softmax-output loss: the batch mean of
// -sum_c y*log(p).
func categoricalCrossEntropy(target, probs *gorgonia.Node) (*gorgonia.Node, error) {
	eps := gorgonia.NewConstant(float32(lossEpsilon))
	shifted, err := gorgonia.Add(probs, eps)
	if err != nil {
		return nil, err
	}
	logp, err := gorgonia.Log(shifted)
	if err != nil {
		return nil, err
	}
	prod, err := gorgonia.HadamardProd(target, logp)
	if err != nil {
		return nil, err
	}
	perSample, err := gorgonia.Sum(prod, 1)
	if err != nil {
		return nil, err
	}
	mean, err := gorgonia.Mean(perSample)
	if err != nil {
		return nil, err
	}
	return gorgonia.Neg(mean)
}

// binaryCrossEntropy is the sigmoid-output loss, averaged over every output
// unit: the mean of -(y*log(p) + (1-y)*log(1-p)).
func binaryCrossEntropy(target, probs *gorgonia.Node) (*gorgonia.Node, error) {
	eps := gorgonia.NewConstant(float32(lossEpsilon))
	one := gorgonia.NewConstant(float32(1.0))

	shifted, err := gorgonia.Add(probs, eps)
	if err != nil {
		return nil, err
	}
	logp, err := gorgonia.Log(shifted)
	if err != nil {
		return nil, err
	}
	pos, err := gorgonia.HadamardProd(target, logp)
	if err != nil {
		return nil, err
	}

	invTarget, err := gorgonia.Sub(one, target)
	if err != nil {
		return nil, err
	}
	invProbs, err := gorgonia.Sub(one, probs)
	if err != nil {
		return nil, err
	}
	invShifted, err := gorgonia.Add(invProbs, eps)
	if err != nil {
		return nil, err
	}
	logInv, err := gorgonia.Log(invShifted)
	if err != nil {
		return nil, err
	}
	neg, err := gorgonia.HadamardProd(invTarget, logInv)
	if err != nil {
		return nil, err
	}

	total, err := gorgonia.Add(pos, neg)
	if err != nil {
		return nil, err
	}
	mean, err := gorgonia.Mean(total)
	if err != nil {
		return nil, err
	}
	return gorgonia.Neg(mean)
}
