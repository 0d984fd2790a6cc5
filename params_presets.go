package pneumoresistance

import (
	"embed"
	"encoding/json"

	"github.com/pkg/errors"
)

//go:embed data/presets/*.json
var presetFS embed.FS

const (
	presetEmpiricalUSA = "empirical_usa"
	presetPolymod      = "polymod"
)

// presettableFields names the four Parameters fields that may hold
// either literal array data or a bare preset name.
var presettableFields = []string{
	"gamma", "lifetime_distribution", "mean_n_treatments_per_age", "alpha",
}

// extractPresettableFields pulls any presettable field whose raw JSON
// value is a bare string (a preset name, not an array) out of fields so
// the subsequent strict-typed decode into Parameters does not choke on
// a string where it expects []float64 or [][]float64. The extracted
// name, keyed by field name, is returned for resolvePresets to act on.
func extractPresettableFields(fields map[string]json.RawMessage) map[string]string {
	names := make(map[string]string)
	for _, key := range presettableFields {
		raw, present := fields[key]
		if !present {
			continue
		}
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			names[key] = name
			delete(fields, key)
		}
	}
	return names
}

// resolvePresets loads the embedded table for every field
// extractPresettableFields found a bare name for, resizing it to the
// model's configured dimensions.
func (p *Parameters) resolvePresets(presetNames map[string]string) error {
	if name, ok := presetNames["gamma"]; ok {
		vals, err := loadPreset1D("gamma_" + name + ".json")
		if err != nil {
			return err
		}
		p.Gamma = resize1D(vals, p.NSerotypes)
	}
	if name, ok := presetNames["lifetime_distribution"]; ok {
		vals, err := loadPreset1D("lifetime_distribution_" + name + ".json")
		if err != nil {
			return err
		}
		p.LifetimeDistribution = vals
	}
	if name, ok := presetNames["mean_n_treatments_per_age"]; ok {
		vals, err := loadPreset1D("mean_n_treatments_per_age_" + name + ".json")
		if err != nil {
			return err
		}
		p.MeanNTreatmentsPerAge = resize1D(vals, p.NAges)
	}
	if name, ok := presetNames["alpha"]; ok {
		m, err := loadPreset2D("alpha_" + name + ".json")
		if err != nil {
			return err
		}
		p.Alpha = resize2D(m, p.NAges)
	}
	return nil
}

func loadPreset1D(filename string) ([]float64, error) {
	blob, err := presetFS.ReadFile("data/presets/" + filename)
	if err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "preset table %s not found: %v", filename, err)
	}
	var vals []float64
	if err := json.Unmarshal(blob, &vals); err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "preset table %s malformed: %v", filename, err)
	}
	return vals, nil
}

func loadPreset2D(filename string) ([][]float64, error) {
	blob, err := presetFS.ReadFile("data/presets/" + filename)
	if err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "preset table %s not found: %v", filename, err)
	}
	var vals [][]float64
	if err := json.Unmarshal(blob, &vals); err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "preset table %s malformed: %v", filename, err)
	}
	return vals, nil
}

// resize1D resamples src to length n by nearest-source-index mapping,
// the same coarse-to-fine (or fine-to-coarse) rebinning the source
// applies when a preset's native resolution does not match the
// configured age or serotype count.
func resize1D(src []float64, n int) []float64 {
	if n <= 0 || len(src) == n {
		return src
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = src[nearestIndex(i, n, len(src))]
	}
	return out
}

func resize2D(src [][]float64, n int) [][]float64 {
	if n <= 0 || len(src) == n {
		return src
	}
	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, n)
		srcRow := nearestIndex(i, n, len(src))
		for j := range row {
			srcCol := nearestIndex(j, n, len(src[srcRow]))
			row[j] = src[srcRow][srcCol]
		}
		out[i] = row
	}
	return out
}

func nearestIndex(i, n, srcLen int) int {
	if n <= 1 {
		return 0
	}
	idx := i * (srcLen - 1) / (n - 1)
	if idx < 0 {
		return 0
	}
	if idx >= srcLen {
		return srcLen - 1
	}
	return idx
}
