package model

import (
	"fmt"
	"math"
)

// FeatureOrder is the column order the scaler and network were fitted on.
var FeatureOrder = []string{"humidity", "temperature"}

// Predictor pairs the fitted scaler with the trained network. It is loaded
// once at startup and shared read-only across requests.
type Predictor struct {
	version string
	scaler  *Scaler
	net     *Network
}

// NewPredictor checks that the scaler and network agree on dimensionality.
func NewPredictor(version string, scaler *Scaler, net *Network) (*Predictor, error) {
	if scaler == nil || net == nil {
		return nil, fmt.Errorf("predictor: scaler and network are required")
	}
	if scaler.Dim() != net.InputDim() {
		return nil, fmt.Errorf("predictor: scaler has %d features, network expects %d", scaler.Dim(), net.InputDim())
	}
	if scaler.Dim() != len(FeatureOrder) {
		return nil, fmt.Errorf("predictor: expected %d features, artifact has %d", len(FeatureOrder), scaler.Dim())
	}
	return &Predictor{version: version, scaler: scaler, net: net}, nil
}

// Version identifies the loaded artifact.
func (p *Predictor) Version() string {
	return p.version
}

// Probability scores one reading. The returned value is the first output
// unit of the network and is guaranteed to be within [0, 1].
func (p *Predictor) Probability(humidity, temperature float64) (float64, error) {
	scaled, err := p.scaler.Transform([]float64{humidity, temperature})
	if err != nil {
		return 0, err
	}
	out, err := p.net.Forward(scaled)
	if err != nil {
		return 0, err
	}
	prob := out[0]
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return 0, fmt.Errorf("predictor: probability %v out of range", prob)
	}
	return prob, nil
}
