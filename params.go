package pneumoresistance

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Parameters is the full effective parameter set for one simulation
// run: the external input contract of §6. It is supplied as a
// JSON-encoded object; LoadParameters decodes it and Validate checks
// the cross-field consistency rules that distinguish a configuration
// error from a runnable model.
type Parameters struct {
	TransmissionModel   string `json:"transmission_model"`
	TransmissionScaling string `json:"transmission_scaling"`

	TYear                  float64 `json:"t_year"`
	DemographicBurninTime  float64 `json:"demographic_burnin_time"`
	TEnd                   float64 `json:"t_end"`
	ColonizationEventTimestep float64 `json:"colonization_event_timestep"`
	VerificationTimestep   float64 `json:"verification_timestep"`
	OutputTimestep         float64 `json:"output_timestep"`
	OutputStart            float64 `json:"output_start"`

	NHosts     int `json:"n_hosts"`
	NSerotypes int `json:"n_serotypes"`
	NAges      int `json:"n_ages"`

	PInitImmune        float64   `json:"p_init_immune"`
	InitProbHostColonized []float64 `json:"init_prob_host_colonized"`
	InitProbResistant  float64   `json:"init_prob_resistant"`

	Beta                            float64   `json:"beta"`
	Kappa                           float64   `json:"kappa"`
	Xi                              float64   `json:"xi"`
	Epsilon                         float64   `json:"epsilon"`
	Sigma                           float64   `json:"sigma"`
	MuMax                           float64   `json:"mu_max"`
	Gamma                           []float64 `json:"gamma"`
	GammaTreatedSensitive           float64   `json:"gamma_treated_sensitive"`
	GammaTreatedRatioResistantToSensitive float64 `json:"gamma_treated_ratio_resistant_to_sensitive"`
	RatioFOIResistantToSensitive    float64   `json:"ratio_foi_resistant_to_sensitive"`

	ImmigrationRate              float64   `json:"immigration_rate"`
	ImmigrationResistanceModel   string    `json:"immigration_resistance_model"`
	PImmigrationResistant        float64   `json:"p_immigration_resistant"`
	PImmigrationResistantBounds  [2]float64 `json:"p_immigration_resistant_bounds"`
	ResistanceHistoryLength      int       `json:"resistance_history_length"`

	TreatmentMultiplier      float64   `json:"treatment_multiplier"`
	MeanNTreatmentsPerAge    []float64 `json:"mean_n_treatments_per_age"`
	MinTimeBetweenTreatments float64   `json:"min_time_between_treatments"`
	TreatmentDurationMean    float64   `json:"treatment_duration_mean"`
	TreatmentDurationSD      float64   `json:"treatment_duration_sd"`

	LifetimeDistribution []float64 `json:"lifetime_distribution"`

	UseRandomMixing bool        `json:"use_random_mixing"`
	Alpha           [][]float64 `json:"alpha"`

	OutputAgeclasses   []int `json:"output_ageclasses"`
	EnableOutputByAge  bool  `json:"enable_output_by_age"`

	RandomSeed *int64 `json:"random_seed"`

	UseCalendarQueue    bool    `json:"use_calendar_queue"`
	QueueMinBucketWidth float64 `json:"queue_min_bucket_width"`

	ColonizeHostByHost bool `json:"colonize_host_by_host"`

	DBFilename  string `json:"db_filename"`
	OverwriteDB bool   `json:"overwrite_db"`

	LoadHostsFromCheckpoint bool    `json:"load_hosts_from_checkpoint"`
	CheckpointLoadPath      string  `json:"checkpoint_load_path"`
	CheckpointSavePrefix    string  `json:"checkpoint_save_prefix"`
	CheckpointStart         *float64 `json:"checkpoint_start"`
	CheckpointTimestep      *float64 `json:"checkpoint_timestep"`

	JobInfo map[string]interface{} `json:"job_info"`

	TraceEvents bool `json:"trace_events,omitempty"`
}

// LoadParameters reads and decodes a JSON parameter file, resolves
// named presets (empirical_usa, polymod) into their array content, and
// fills in the same hasattr-style defaults the source applies in
// set_up_parameters.
func LoadParameters(path string) (*Parameters, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "cannot open parameter file %s: %v", path, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(blob, &fields); err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "cannot decode parameter file %s: %v", path, err)
	}
	presetRaw := extractPresettableFields(fields)

	remaining, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	p := defaultParameters()
	if err := json.Unmarshal(remaining, p); err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "cannot decode parameter file %s: %v", path, err)
	}
	if err := p.resolvePresets(presetRaw); err != nil {
		return nil, err
	}
	return p, nil
}

// defaultParameters returns the defaults the source applies
// via its hasattr(p, ...) fallbacks in set_up_parameters, before the
// caller's JSON overrides them.
func defaultParameters() *Parameters {
	return &Parameters{
		OutputStart:                 0,
		EnableOutputByAge:           true,
		UseCalendarQueue:            true,
		CheckpointSavePrefix:        "checkpoint_out",
		CheckpointLoadPath:          "checkpoint_in.sqlite",
		PImmigrationResistantBounds: [2]float64{0.01, 0.99},
	}
}

// Validate implements the configuration-error checks of §7: these are
// the cross-field inconsistencies the source either asserts on or
// silently mishandles, made explicit and fatal at startup here.
func (p *Parameters) Validate() error {
	if p.TransmissionModel == "" {
		p.TransmissionModel = "independent"
	}
	if p.TransmissionScaling == "" {
		p.TransmissionScaling = "by_colonization"
	}
	switch p.TransmissionModel {
	case "independent":
		if p.TransmissionScaling != "by_colonization" {
			return errors.Wrapf(ErrConfiguration, "independent transmission requires transmission_scaling=by_colonization, got %s", p.TransmissionScaling)
		}
	case "cotransmission":
		if p.TransmissionScaling != "by_colonization" && p.TransmissionScaling != "by_host" {
			return errors.Wrapf(ErrConfiguration, "unrecognized transmission_scaling %s", p.TransmissionScaling)
		}
	default:
		return errors.Wrapf(ErrConfiguration, "unrecognized transmission_model %s", p.TransmissionModel)
	}

	if !p.UseRandomMixing && p.Alpha == nil {
		return errors.Wrap(ErrConfiguration, "alpha is required when use_random_mixing=false")
	}
	if p.NSerotypes <= 0 {
		return errors.Wrap(ErrConfiguration, "n_serotypes must be positive")
	}
	if len(p.Gamma) < p.NSerotypes {
		return errors.Wrapf(ErrConfiguration, "gamma has %d entries, need at least n_serotypes=%d", len(p.Gamma), p.NSerotypes)
	}
	for i := 0; i < p.NSerotypes-1; i++ {
		if p.Gamma[i] < p.Gamma[i+1] {
			return errors.Wrapf(ErrConfiguration, "gamma must be non-increasing by serotype rank: gamma[%d]=%f < gamma[%d]=%f", i, p.Gamma[i], i+1, p.Gamma[i+1])
		}
	}
	if p.RatioFOIResistantToSensitive > 1.0 {
		return errors.Wrap(ErrConfiguration, "ratio_foi_resistant_to_sensitive must be <= 1.0")
	}
	if p.NHosts <= 0 {
		return errors.Wrap(ErrConfiguration, "n_hosts must be positive")
	}
	if p.NAges <= 0 {
		return errors.Wrap(ErrConfiguration, "n_ages must be positive")
	}
	if len(p.InitProbHostColonized) < p.NSerotypes {
		return errors.Wrapf(ErrConfiguration, "init_prob_host_colonized has %d entries, need n_serotypes=%d", len(p.InitProbHostColonized), p.NSerotypes)
	}
	switch p.ImmigrationResistanceModel {
	case "constant", "fraction_resistant_global", "fraction_resistant_by_serotype", "history_by_serotype":
	default:
		return errors.Wrapf(ErrConfiguration, "unrecognized immigration_resistance_model %s", p.ImmigrationResistanceModel)
	}
	if p.ImmigrationResistanceModel == "history_by_serotype" && p.ResistanceHistoryLength <= 0 {
		return errors.Wrap(ErrConfiguration, "resistance_history_length must be positive for history_by_serotype")
	}
	if p.LoadHostsFromCheckpoint && p.DemographicBurninTime != 0 {
		return errors.Wrap(ErrConfiguration, "demographic_burnin_time must be 0 when load_hosts_from_checkpoint")
	}
	if len(p.LifetimeDistribution) == 0 {
		return errors.Wrap(ErrConfiguration, "lifetime_distribution must not be empty")
	}
	if len(p.MeanNTreatmentsPerAge) < p.NAges {
		return errors.Wrapf(ErrConfiguration, "mean_n_treatments_per_age has %d entries, need n_ages=%d", len(p.MeanNTreatmentsPerAge), p.NAges)
	}
	if p.TYear <= 0 {
		return errors.Wrap(ErrConfiguration, "t_year must be positive")
	}
	if p.QueueMinBucketWidth <= 0 {
		p.QueueMinBucketWidth = 1e-4
	}
	if p.DBFilename != "" {
		if _, err := os.Stat(p.DBFilename); err == nil && !p.OverwriteDB {
			return errors.Wrapf(ErrOutputConflict, "%s already exists", p.DBFilename)
		}
	}
	if p.LoadHostsFromCheckpoint {
		if _, err := os.Stat(p.CheckpointLoadPath); err != nil {
			return errors.Wrapf(ErrCheckpointMissing, "%s does not exist", p.CheckpointLoadPath)
		}
	}

	normalizeAlpha(p)
	return nil
}

// normalizeAlpha row-normalizes p.Alpha in place, matching the
// source's per-row division by the row sum. Rows that sum to zero are
// left as they are; noTransmissionMask records them, and
// age-assortative colonization dispatch skips those ages.
func normalizeAlpha(p *Parameters) {
	if p.Alpha == nil {
		return
	}
	for i := range p.Alpha {
		var sum float64
		for _, v := range p.Alpha[i] {
			sum += v
		}
		if sum > 0 {
			for j := range p.Alpha[i] {
				p.Alpha[i][j] /= sum
			}
		}
	}
}

// noTransmissionMask returns, for each age, whether that age's alpha
// row sums to zero (post-normalization rows of exactly zero stay
// zero); age-assortative colonization dispatch skips these ages
// entirely rather than dividing by zero.
func (p *Parameters) noTransmissionMask() []bool {
	mask := make([]bool, p.NAges)
	if p.Alpha == nil {
		return mask
	}
	for i := range p.Alpha {
		var sum float64
		for _, v := range p.Alpha[i] {
			sum += v
		}
		mask[i] = sum == 0
	}
	return mask
}
