package pneumoresistance

// testParameters returns a small, fully valid Parameters value
// suitable as a starting point for unit tests; callers mutate the
// fields relevant to what they're testing.
func testParameters() *Parameters {
	seed := int64(42)
	return &Parameters{
		TransmissionModel:   "independent",
		TransmissionScaling: "by_colonization",

		TYear:                     10.0,
		DemographicBurninTime:     50.0,
		TEnd:                      20.0,
		ColonizationEventTimestep: 1.0,
		VerificationTimestep:      5.0,
		OutputTimestep:            5.0,
		OutputStart:               0,

		NHosts:     50,
		NSerotypes: 3,
		NAges:      5,

		PInitImmune:           0.1,
		InitProbHostColonized: []float64{0.2, 0.15, 0.1},
		InitProbResistant:     0.1,

		Beta:                                  0.5,
		Kappa:                                 5.0,
		Xi:                                    1.0,
		Epsilon:                               0.1,
		Sigma:                                 0.3,
		MuMax:                                 0.2,
		Gamma:                                 []float64{30.0, 20.0, 10.0},
		GammaTreatedSensitive:                 3.0,
		GammaTreatedRatioResistantToSensitive: 1.5,
		RatioFOIResistantToSensitive:          0.8,

		ImmigrationRate:            0.05,
		ImmigrationResistanceModel: "constant",
		PImmigrationResistant:      0.1,
		PImmigrationResistantBounds: [2]float64{0.01, 0.99},

		TreatmentMultiplier:      1.0,
		MeanNTreatmentsPerAge:    []float64{0.5, 0.5, 0.5, 0.5, 0.5},
		MinTimeBetweenTreatments: 0.1,
		TreatmentDurationMean:    0.05,
		TreatmentDurationSD:      0.01,

		LifetimeDistribution: []float64{1, 1, 1, 1, 1},

		UseRandomMixing: true,

		EnableOutputByAge: true,
		RandomSeed:        &seed,

		UseCalendarQueue:    true,
		QueueMinBucketWidth: 1e-4,
	}
}
