package training

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/i474232898/umbrella-rain-service/internal/model"
)

// Options controls the optimizer. Zero values are replaced by the defaults.
type Options struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	// Patience is how many epochs without validation improvement are
	// tolerated before training stops and the best weights are restored.
	Patience int
	// Plateau halves the learning rate after this many flat epochs.
	Plateau int
	Seed    uint64
}

// DefaultOptions mirrors the schedule the production model was trained with.
func DefaultOptions() Options {
	return Options{
		Epochs:       10,
		BatchSize:    16,
		LearningRate: 0.001,
		Patience:     5,
		Plateau:      3,
		Seed:         42,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Epochs <= 0 {
		o.Epochs = d.Epochs
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.LearningRate <= 0 {
		o.LearningRate = d.LearningRate
	}
	if o.Patience <= 0 {
		o.Patience = d.Patience
	}
	if o.Plateau <= 0 {
		o.Plateau = d.Plateau
	}
	return o
}

// Logistic is a single sigmoid unit over scaled features.
type Logistic struct {
	Weights []float64
	Bias    float64
}

// Probability returns sigmoid(w·x + b).
func (m Logistic) Probability(x []float64) float64 {
	z := m.Bias
	for i, w := range m.Weights {
		z += w * x[i]
	}
	return model.Sigmoid(z)
}

// Spec converts the model into the network description the service loads.
func (m Logistic) Spec() model.NetworkSpec {
	kernel := make([][]float64, len(m.Weights))
	for i, w := range m.Weights {
		kernel[i] = []float64{w}
	}
	return model.NetworkSpec{
		InputDim: len(m.Weights),
		Layers: []model.LayerSpec{{
			Type:       model.LayerDense,
			Activation: model.ActivationSigmoid,
			Kernel:     kernel,
			Bias:       []float64{m.Bias},
		}},
	}
}

// EpochStats records one pass over the training set.
type EpochStats struct {
	Epoch        int
	TrainLoss    float64
	ValLoss      float64
	LearningRate float64
}

// Dataset is a scaled feature matrix with binary labels.
type Dataset struct {
	X [][]float64
	Y []float64
}

// NewDataset scales samples with s.
func NewDataset(samples []Sample, s *model.Scaler) (Dataset, error) {
	d := Dataset{X: make([][]float64, 0, len(samples)), Y: make([]float64, 0, len(samples))}
	for _, smp := range samples {
		x, err := s.Transform(smp.Features())
		if err != nil {
			return Dataset{}, err
		}
		d.X = append(d.X, x)
		d.Y = append(d.Y, float64(smp.Label))
	}
	return d, nil
}

// Len returns the number of rows.
func (d Dataset) Len() int { return len(d.Y) }

// Train fits a logistic model with mini-batch Adam and early stopping on the
// validation loss. The returned model holds the best weights seen.
func Train(ctx context.Context, train, val Dataset, opts Options) (Logistic, []EpochStats, error) {
	if train.Len() == 0 {
		return Logistic{}, nil, fmt.Errorf("train: empty training set")
	}
	if val.Len() == 0 {
		val = train
	}
	opts = opts.withDefaults()
	dim := len(train.X[0])
	rnd := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	m := Logistic{Weights: make([]float64, dim)}
	for i := range m.Weights {
		m.Weights[i] = (rnd.Float64()*2 - 1) * 0.05
	}
	opt := newAdam(dim+1, opts.LearningRate)

	best := m.clone()
	bestLoss := math.Inf(1)
	sinceBest, sinceImprove := 0, 0

	order := make([]int, train.Len())
	for i := range order {
		order[i] = i
	}

	var history []EpochStats
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return Logistic{}, history, err
		}
		rnd.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for start := 0; start < len(order); start += opts.BatchSize {
			end := min(start+opts.BatchSize, len(order))
			grad := m.gradient(train, order[start:end])
			opt.step(m.params(), grad)
		}

		stats := EpochStats{
			Epoch:        epoch,
			TrainLoss:    m.loss(train),
			ValLoss:      m.loss(val),
			LearningRate: opt.lr,
		}
		history = append(history, stats)

		if stats.ValLoss < bestLoss {
			bestLoss = stats.ValLoss
			best = m.clone()
			sinceBest, sinceImprove = 0, 0
			continue
		}
		sinceBest++
		sinceImprove++
		if sinceBest >= opts.Patience {
			break
		}
		if sinceImprove >= opts.Plateau {
			opt.lr *= 0.5
			sinceImprove = 0
		}
	}
	return best, history, nil
}

// Accuracy is the share of rows whose thresholded probability matches the label.
func Accuracy(m Logistic, d Dataset) float64 {
	if d.Len() == 0 {
		return 0
	}
	correct := 0
	for i, x := range d.X {
		pred := 0.0
		if m.Probability(x) >= 0.5 {
			pred = 1
		}
		if pred == d.Y[i] {
			correct++
		}
	}
	return float64(correct) / float64(d.Len())
}

const lossEpsilon = 1e-7

// loss is the mean binary cross-entropy over d.
func (m Logistic) loss(d Dataset) float64 {
	var sum float64
	for i, x := range d.X {
		p := math.Min(math.Max(m.Probability(x), lossEpsilon), 1-lossEpsilon)
		sum -= d.Y[i]*math.Log(p) + (1-d.Y[i])*math.Log(1-p)
	}
	return sum / float64(d.Len())
}

// gradient of the mean loss over rows; the last entry is the bias.
func (m Logistic) gradient(d Dataset, rows []int) []float64 {
	g := make([]float64, len(m.Weights)+1)
	for _, r := range rows {
		diff := m.Probability(d.X[r]) - d.Y[r]
		for i, v := range d.X[r] {
			g[i] += diff * v
		}
		g[len(m.Weights)] += diff
	}
	n := float64(len(rows))
	for i := range g {
		g[i] /= n
	}
	return g
}

func (m *Logistic) params() []*float64 {
	p := make([]*float64, 0, len(m.Weights)+1)
	for i := range m.Weights {
		p = append(p, &m.Weights[i])
	}
	return append(p, &m.Bias)
}

func (m Logistic) clone() Logistic {
	return Logistic{Weights: append([]float64(nil), m.Weights...), Bias: m.Bias}
}

type adam struct {
	lr, beta1, beta2, eps float64
	m, v                  []float64
	t                     int
}

func newAdam(n int, lr float64) *adam {
	return &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7, m: make([]float64, n), v: make([]float64, n)}
}

func (a *adam) step(params []*float64, grad []float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, p := range params {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*grad[i]
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*grad[i]*grad[i]
		*p -= a.lr * (a.m[i] / c1) / (math.Sqrt(a.v[i]/c2) + a.eps)
	}
}
