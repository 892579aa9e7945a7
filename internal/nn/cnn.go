package nn

import (
	"fmt"
	"math/rand"
	"sync"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Classifier geometry: 224x224 RGB in, one probability per defect class out.
const (
	cnnImageSize = 224
	cnnChannels  = 3

	// CylinderClasses is the number of defect classes the classifier scores.
	CylinderClasses = 6
)

// Channel widths of the four conv/batch-norm/max-pool blocks.
var cnnBlockChannels = []int{32, 64, 128, 256}

const (
	cnnHiddenUnits = 512
	bnMomentum     = 0.9
	bnEpsilon      = 1e-5

	cnnDropoutFlat   = 0.5
	cnnDropoutHidden = 0.3
)

// CylinderNet is the convolutional defect classifier: four conv(3x3)/relu/
// batch-norm/max-pool blocks widening 32->64->128->256, then flatten,
// dropout, a 512-unit dense layer, dropout again and a softmax over the
// defect classes.
type CylinderNet struct {
	convW   []*Weight
	bnScale []*Weight
	bnBias  []*Weight
	fcW     *Weight
	fcB     *Weight
	outW    *Weight
	outB    *Weight

	mu     sync.Mutex
	infer  *Graph
	inferM gorgonia.VM
}

// NewCylinderNet builds a freshly initialized, untrained classifier.
func NewCylinderNet() *CylinderNet {
	rng := rand.New(rand.NewSource(1))
	n := &CylinderNet{}

	in := cnnChannels
	for i, out := range cnnBlockChannels {
		n.convW = append(n.convW, newGlorotWeight(rng, fmt.Sprintf("conv%d_w", i), out, in, 3, 3))
		n.bnScale = append(n.bnScale, newConstWeight(fmt.Sprintf("bn%d_scale", i), 1, 1, out, 1, 1))
		n.bnBias = append(n.bnBias, newConstWeight(fmt.Sprintf("bn%d_bias", i), 0, 1, out, 1, 1))
		in = out
	}

	flat := flattenedSize()
	n.fcW = newGlorotWeight(rng, "fc_w", flat, cnnHiddenUnits)
	n.fcB = newConstWeight("fc_b", 0, 1, cnnHiddenUnits)
	n.outW = newGlorotWeight(rng, "out_w", cnnHiddenUnits, CylinderClasses)
	n.outB = newConstWeight("out_b", 0, 1, CylinderClasses)
	return n
}

// flattenedSize is the activation volume after the four 2x2 pools.
func flattenedSize() int {
	side := cnnImageSize
	for range cnnBlockChannels {
		side /= 2
	}
	return cnnBlockChannels[len(cnnBlockChannels)-1] * side * side
}

// Weights returns every parameter tensor for checkpointing.
// TODO: persist batch-norm running statistics once gorgonia exposes them;
// until then a restored checkpoint normalizes with fresh statistics.
func (n *CylinderNet) Weights() []*Weight {
	ws := make([]*Weight, 0, len(n.convW)*3+4)
	for i := range n.convW {
		ws = append(ws, n.convW[i], n.bnScale[i], n.bnBias[i])
	}
	return append(ws, n.fcW, n.fcB, n.outW, n.outB)
}

// Restore loads a training checkpoint into the network's weights.
func (n *CylinderNet) Restore(path string) error {
	return LoadCheckpoint(path, n.Weights())
}

// TrainGraph builds the training graph: dropout active, batch norm in
// training mode, categorical cross-entropy loss against one-hot targets.
func (n *CylinderNet) TrainGraph(batch int) (*Graph, error) {
	return n.build(batch, true, true)
}

// EvalGraph builds the validation graph: no dropout, batch norm in inference
// mode, loss attached.
func (n *CylinderNet) EvalGraph(batch int) (*Graph, error) {
	return n.build(batch, false, true)
}

func (n *CylinderNet) build(batch int, training, withLoss bool) (*Graph, error) {
	g := gorgonia.NewGraph()
	x := gorgonia.NewTensor(g, tensor.Float32, 4,
		gorgonia.WithShape(batch, cnnChannels, cnnImageSize, cnnImageSize),
		gorgonia.WithName("x"))

	out := x
	learnables := make(gorgonia.Nodes, 0, len(n.convW)*3+4)
	for i := range n.convW {
		convW := n.convW[i].node(g)
		conv, err := gorgonia.Conv2d(out, convW, tensor.Shape{3, 3}, []int{1, 1}, []int{1, 1}, []int{1, 1})
		if err != nil {
			return nil, fmt.Errorf("conv block %d: %w", i, err)
		}
		act, err := gorgonia.Rectify(conv)
		if err != nil {
			return nil, fmt.Errorf("conv block %d relu: %w", i, err)
		}

		scale := n.bnScale[i].node(g)
		bias := n.bnBias[i].node(g)
		norm, _, _, bnOp, err := gorgonia.BatchNorm(act, scale, bias, bnMomentum, bnEpsilon)
		if err != nil {
			return nil, fmt.Errorf("conv block %d batch norm: %w", i, err)
		}
		if !training {
			bnOp.SetTraining(false)
		}

		pooled, err := gorgonia.MaxPool2D(norm, tensor.Shape{2, 2}, []int{0, 0}, []int{2, 2})
		if err != nil {
			return nil, fmt.Errorf("conv block %d pool: %w", i, err)
		}
		out = pooled
		learnables = append(learnables, convW, scale, bias)
	}

	flat, err := gorgonia.Reshape(out, tensor.Shape{batch, flattenedSize()})
	if err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}
	if training {
		if flat, err = gorgonia.Dropout(flat, cnnDropoutFlat); err != nil {
			return nil, fmt.Errorf("dropout: %w", err)
		}
	}

	fcW, fcB := n.fcW.node(g), n.fcB.node(g)
	hidden, err := dense(flat, fcW, fcB)
	if err != nil {
		return nil, err
	}
	if hidden, err = gorgonia.Rectify(hidden); err != nil {
		return nil, fmt.Errorf("hidden relu: %w", err)
	}
	if training {
		if hidden, err = gorgonia.Dropout(hidden, cnnDropoutHidden); err != nil {
			return nil, fmt.Errorf("hidden dropout: %w", err)
		}
	}

	outW, outB := n.outW.node(g), n.outB.node(g)
	logits, err := dense(hidden, outW, outB)
	if err != nil {
		return nil, err
	}
	probs, err := gorgonia.SoftMax(logits, 1)
	if err != nil {
		return nil, fmt.Errorf("softmax: %w", err)
	}

	learnables = append(learnables, fcW, fcB, outW, outB)

	graph := &Graph{
		ExprGraph:  g,
		Input:      x,
		Output:     probs,
		Learnables: learnables,
	}
	if withLoss {
		y := gorgonia.NewMatrix(g, tensor.Float32,
			gorgonia.WithShape(batch, CylinderClasses),
			gorgonia.WithName("y"))
		loss, err := categoricalCrossEntropy(y, probs)
		if err != nil {
			return nil, fmt.Errorf("loss: %w", err)
		}
		graph.Target = y
		graph.Loss = loss
	}
	return graph, nil
}

// Predict classifies a single preprocessed image, returning one probability
// per defect class. The inference graph is compiled on first use and reused.
func (n *CylinderNet) Predict(input []float32) ([]float32, error) {
	want := cnnChannels * cnnImageSize * cnnImageSize
	if len(input) != want {
		return nil, fmt.Errorf("input has %d values, want %d", len(input), want)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.infer == nil {
		graph, err := n.build(1, false, false)
		if err != nil {
			return nil, err
		}
		n.infer = graph
		n.inferM = gorgonia.NewTapeMachine(graph.ExprGraph)
	}

	in := tensor.New(tensor.WithShape(1, cnnChannels, cnnImageSize, cnnImageSize), tensor.WithBacking(input))
	if err := gorgonia.Let(n.infer.Input, in); err != nil {
		return nil, fmt.Errorf("bind input: %w", err)
	}
	n.inferM.Reset()
	if err := n.inferM.RunAll(); err != nil {
		return nil, fmt.Errorf("forward pass: %w", err)
	}

	out := n.infer.Output.Value().Data().([]float32)
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}
