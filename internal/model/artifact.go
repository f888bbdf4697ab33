package model

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Bundle is the artifact written by the training job: the fitted scaler
// plus a reference to the serialized network.
type Bundle struct {
	Version   string   `json:"version"`
	Features  []string `json:"features"`
	Scaler    Scaler   `json:"scaler"`
	ModelPath string   `json:"model_path"`
}

// Load reads the bundle at bundleRef, then the network it references.
// A non-empty modelRef overrides the bundle's model_path.
func Load(ctx context.Context, src Source, bundleRef, modelRef string) (*Predictor, error) {
	var bundle Bundle
	if err := readJSON(ctx, src, bundleRef, &bundle); err != nil {
		return nil, fmt.Errorf("load bundle: %w", err)
	}
	if err := checkFeatures(bundle.Features); err != nil {
		return nil, fmt.Errorf("load bundle: %w", err)
	}
	scaler, err := NewScaler(bundle.Scaler.Mean, bundle.Scaler.Scale)
	if err != nil {
		return nil, fmt.Errorf("load bundle: %w", err)
	}

	ref := modelRef
	if ref == "" {
		if bundle.ModelPath == "" {
			return nil, fmt.Errorf("load bundle: model_path is empty and no override was given")
		}
		ref = Resolve(bundleRef, bundle.ModelPath)
	}

	var spec NetworkSpec
	if err := readJSON(ctx, src, ref, &spec); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	net, err := NewNetwork(spec)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return NewPredictor(bundle.Version, scaler, net)
}

// WriteArtifact writes the network to modelPath and a bundle referencing it
// to bundlePath. The bundle stores modelRef verbatim so it can be relative.
func WriteArtifact(bundlePath, modelPath, modelRef string, version string, scaler *Scaler, spec NetworkSpec) error {
	if err := writeJSON(modelPath, spec); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	bundle := Bundle{
		Version:   version,
		Features:  FeatureOrder,
		Scaler:    *scaler,
		ModelPath: modelRef,
	}
	if err := writeJSON(bundlePath, bundle); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	return nil
}

func checkFeatures(features []string) error {
	// Older bundles carry no feature list; they were always humidity, temperature.
	if len(features) == 0 {
		return nil
	}
	if len(features) != len(FeatureOrder) {
		return fmt.Errorf("expected features %v, got %v", FeatureOrder, features)
	}
	for i := range features {
		if features[i] != FeatureOrder[i] {
			return fmt.Errorf("expected features %v, got %v", FeatureOrder, features)
		}
	}
	return nil
}

func readJSON(ctx context.Context, src Source, ref string, v any) error {
	rc, err := src.Open(ctx, ref)
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read %s: %w", ref, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", ref, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
