package nn

import (
	"fmt"
	"math/rand"
	"sync"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Forecaster geometry: 30 timesteps of 7 features in, 7 per-day
// probabilities out.
const (
	lstmLookback = 30
	lstmFeatures = 7

	// ForecastOutputs is the number of per-day probabilities the forecaster
	// emits.
	ForecastOutputs = 7
)

var lstmLayerUnits = []int{128, 64, 32}

const (
	lstmDropout  = 0.2
	denseHidden1 = 64
	denseHidden2 = 32
)

// lstmLayer holds the per-gate parameters of one LSTM layer. Gates are kept
// as separate matrices (input, forget, output, candidate) rather than one
// fused block.
type lstmLayer struct {
	units int

	wxi, whi, bi *Weight
	wxf, whf, bf *Weight
	wxo, who, bo *Weight
	wxc, whc, bc *Weight
}

func newLSTMLayer(rng *rand.Rand, name string, in, units int) *lstmLayer {
	w := func(gate, kind string, rows, cols int) *Weight {
		return newGlorotWeight(rng, fmt.Sprintf("%s_w%s%s", name, kind, gate), rows, cols)
	}
	b := func(gate string, fill float32) *Weight {
		return newConstWeight(fmt.Sprintf("%s_b%s", name, gate), fill, 1, units)
	}
	return &lstmLayer{
		units: units,
		wxi:   w("i", "x", in, units),
		whi:   w("i", "h", units, units),
		bi:    b("i", 0),
		wxf:   w("f", "x", in, units),
		whf:   w("f", "h", units, units),
		// Forget gate bias starts at 1 so fresh networks retain state.
		bf:  b("f", 1),
		wxo: w("o", "x", in, units),
		who: w("o", "h", units, units),
		bo:  b("o", 0),
		wxc: w("c", "x", in, units),
		whc: w("c", "h", units, units),
		bc:  b("c", 0),
	}
}

func (l *lstmLayer) weights() []*Weight {
	return []*Weight{
		l.wxi, l.whi, l.bi,
		l.wxf, l.whf, l.bf,
		l.wxo, l.who, l.bo,
		l.wxc, l.whc, l.bc,
	}
}

// DemandNet is the stacked recurrent forecaster: three LSTM layers
// (128 -> 64 -> 32 units) with dropout after each, two relu dense layers
// (64, 32) and a sigmoid output per forecast day. The sigmoid outputs are
// independent probabilities, not a distribution.
type DemandNet struct {
	layers []*lstmLayer
	fc1W   *Weight
	fc1B   *Weight
	fc2W   *Weight
	fc2B   *Weight
	outW   *Weight
	outB   *Weight

	mu     sync.Mutex
	infer  *Graph
	inferM gorgonia.VM
}

// NewDemandNet builds a freshly initialized, untrained forecaster.
func NewDemandNet() *DemandNet {
	rng := rand.New(rand.NewSource(1))
	n := &DemandNet{}

	in := lstmFeatures
	for i, units := range lstmLayerUnits {
		n.layers = append(n.layers, newLSTMLayer(rng, fmt.Sprintf("lstm%d", i), in, units))
		in = units
	}

	n.fc1W = newGlorotWeight(rng, "fc1_w", in, denseHidden1)
	n.fc1B = newConstWeight("fc1_b", 0, 1, denseHidden1)
	n.fc2W = newGlorotWeight(rng, "fc2_w", denseHidden1, denseHidden2)
	n.fc2B = newConstWeight("fc2_b", 0, 1, denseHidden2)
	n.outW = newGlorotWeight(rng, "out_w", denseHidden2, ForecastOutputs)
	n.outB = newConstWeight("out_b", 0, 1, ForecastOutputs)
	return n
}

// Weights returns every parameter tensor for checkpointing.
func (n *DemandNet) Weights() []*Weight {
	var ws []*Weight
	for _, layer := range n.layers {
		ws = append(ws, layer.weights()...)
	}
	return append(ws, n.fc1W, n.fc1B, n.fc2W, n.fc2B, n.outW, n.outB)
}

// Restore loads a training checkpoint into the network's weights.
func (n *DemandNet) Restore(path string) error {
	return LoadCheckpoint(path, n.Weights())
}

// TrainGraph builds the training graph: dropout active, binary cross-entropy
// loss over the per-day targets.
func (n *DemandNet) TrainGraph(batch int) (*Graph, error) {
	return n.build(batch, true, true)
}

// EvalGraph builds the validation graph: no dropout, loss attached.
func (n *DemandNet) EvalGraph(batch int) (*Graph, error) {
	return n.build(batch, false, true)
}

// build statically unrolls the three LSTM layers over the lookback window.
// The input is time-major (lookback, batch, features) so each timestep is a
// leading-axis slice.
func (n *DemandNet) build(batch int, training, withLoss bool) (*Graph, error) {
	g := gorgonia.NewGraph()
	x := gorgonia.NewTensor(g, tensor.Float32, 3,
		gorgonia.WithShape(lstmLookback, batch, lstmFeatures),
		gorgonia.WithName("x"))

	steps := make([]*gorgonia.Node, lstmLookback)
	for t := 0; t < lstmLookback; t++ {
		xt, err := gorgonia.Slice(x, gorgonia.S(t))
		if err != nil {
			return nil, fmt.Errorf("slice timestep %d: %w", t, err)
		}
		steps[t] = xt
	}

	var learnables gorgonia.Nodes
	var lastHidden *gorgonia.Node
	for li, layer := range n.layers {
		nodes := make(map[*Weight]*gorgonia.Node, 12)
		for _, w := range layer.weights() {
			node := w.node(g)
			nodes[w] = node
			learnables = append(learnables, node)
		}

		h := zeroState(g, fmt.Sprintf("lstm%d_h0", li), batch, layer.units)
		c := zeroState(g, fmt.Sprintf("lstm%d_c0", li), batch, layer.units)

		outputs := make([]*gorgonia.Node, len(steps))
		for t, xt := range steps {
			var err error
			h, c, err = lstmCell(xt, h, c, layer, nodes)
			if err != nil {
				return nil, fmt.Errorf("lstm layer %d step %d: %w", li, t, err)
			}
			out := h
			if training {
				if out, err = gorgonia.Dropout(out, lstmDropout); err != nil {
					return nil, fmt.Errorf("lstm layer %d dropout: %w", li, err)
				}
			}
			outputs[t] = out
		}

		lastHidden = outputs[len(outputs)-1]
		steps = outputs
	}

	fc1W, fc1B := n.fc1W.node(g), n.fc1B.node(g)
	hidden, err := dense(lastHidden, fc1W, fc1B)
	if err != nil {
		return nil, err
	}
	if hidden, err = gorgonia.Rectify(hidden); err != nil {
		return nil, fmt.Errorf("dense 1 relu: %w", err)
	}

	fc2W, fc2B := n.fc2W.node(g), n.fc2B.node(g)
	if hidden, err = dense(hidden, fc2W, fc2B); err != nil {
		return nil, err
	}
	if hidden, err = gorgonia.Rectify(hidden); err != nil {
		return nil, fmt.Errorf("dense 2 relu: %w", err)
	}

	outW, outB := n.outW.node(g), n.outB.node(g)
	logits, err := dense(hidden, outW, outB)
	if err != nil {
		return nil, err
	}
	probs, err := gorgonia.Sigmoid(logits)
	if err != nil {
		return nil, fmt.Errorf("sigmoid: %w", err)
	}

	learnables = append(learnables, fc1W, fc1B, fc2W, fc2B, outW, outB)

	graph := &Graph{
		ExprGraph:  g,
		Input:      x,
		Output:     probs,
		Learnables: learnables,
	}
	if withLoss {
		y := gorgonia.NewMatrix(g, tensor.Float32,
			gorgonia.WithShape(batch, ForecastOutputs),
			gorgonia.WithName("y"))
		loss, err := binaryCrossEntropy(y, probs)
		if err != nil {
			return nil, fmt.Errorf("loss: %w", err)
		}
		graph.Target = y
		graph.Loss = loss
	}
	return graph, nil
}

// lstmCell advances one LSTM layer by a single timestep.
func lstmCell(xt, h, c *gorgonia.Node, layer *lstmLayer, nodes map[*Weight]*gorgonia.Node) (*gorgonia.Node, *gorgonia.Node, error) {
	gate := func(wx, wh, b *Weight) (*gorgonia.Node, error) {
		xw, err := gorgonia.Mul(xt, nodes[wx])
		if err != nil {
			return nil, err
		}
		hw, err := gorgonia.Mul(h, nodes[wh])
		if err != nil {
			return nil, err
		}
		sum, err := gorgonia.Add(xw, hw)
		if err != nil {
			return nil, err
		}
		return gorgonia.BroadcastAdd(sum, nodes[b], nil, []byte{0})
	}

	preI, err := gate(layer.wxi, layer.whi, layer.bi)
	if err != nil {
		return nil, nil, err
	}
	i, err := gorgonia.Sigmoid(preI)
	if err != nil {
		return nil, nil, err
	}

	preF, err := gate(layer.wxf, layer.whf, layer.bf)
	if err != nil {
		return nil, nil, err
	}
	f, err := gorgonia.Sigmoid(preF)
	if err != nil {
		return nil, nil, err
	}

	preO, err := gate(layer.wxo, layer.who, layer.bo)
	if err != nil {
		return nil, nil, err
	}
	o, err := gorgonia.Sigmoid(preO)
	if err != nil {
		return nil, nil, err
	}

	preC, err := gate(layer.wxc, layer.whc, layer.bc)
	if err != nil {
		return nil, nil, err
	}
	candidate, err := gorgonia.Tanh(preC)
	if err != nil {
		return nil, nil, err
	}

	keep, err := gorgonia.HadamardProd(f, c)
	if err != nil {
		return nil, nil, err
	}
	write, err := gorgonia.HadamardProd(i, candidate)
	if err != nil {
		return nil, nil, err
	}
	newC, err := gorgonia.Add(keep, write)
	if err != nil {
		return nil, nil, err
	}

	cOut, err := gorgonia.Tanh(newC)
	if err != nil {
		return nil, nil, err
	}
	newH, err := gorgonia.HadamardProd(o, cOut)
	if err != nil {
		return nil, nil, err
	}
	return newH, newC, nil
}

// zeroState is an all-zero (batch, units) constant for the initial hidden
// and cell states.
func zeroState(g *gorgonia.ExprGraph, name string, batch, units int) *gorgonia.Node {
	zeros := tensor.New(tensor.WithShape(batch, units), tensor.WithBacking(make([]float32, batch*units)))
	return gorgonia.NewConstant(zeros, gorgonia.WithName(name), gorgonia.In(g))
}

// Predict forecasts from a single flattened 30x7 sequence, returning the
// per-day probabilities. The inference graph is compiled on first use and
// reused.
func (n *DemandNet) Predict(input []float32) ([]float32, error) {
	want := lstmLookback * lstmFeatures
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

	// A (30, 7) row-major sequence has the same layout as (30, 1, 7).
	in := tensor.New(tensor.WithShape(lstmLookback, 1, lstmFeatures), tensor.WithBacking(input))
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
