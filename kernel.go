package pneumoresistance

import (
	"log"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
)

// OutputSink receives periodic snapshots of kernel state. Implementations
// decide how (and whether) to persist them; the kernel only knows it
// must call WriteOutput on the configured cadence.
type OutputSink interface {
	WriteOutput(k *Kernel, t float64) error
	WriteImmigrationResistance(k *Kernel, t float64, serotypeID int, fraction float64) error
	Close() error
}

// CheckpointStore persists and restores full model state so a run can
// resume from an arbitrary point.
type CheckpointStore interface {
	Save(k *Kernel, t float64) error
	Load(path string) (*CheckpointData, error)
}

// resistanceRecord is one accepted-colonization outcome retained by the
// history_by_serotype immigration model's bounded window.
type resistanceRecord struct {
	resistant int
}

// Kernel owns every piece of mutable simulation state: the host
// population, the event queue driving it, the incremental aggregates,
// and the output/checkpoint sinks. It carries no package-level globals
// besides the process-wide RNG seeded once at construction.
type Kernel struct {
	Params     *Parameters
	Queue      EventQueue
	Aggregates *Aggregates
	Hosts      []*Host

	lifetimeDist   *DiscreteDistribution
	noTransmission []bool

	resistanceHistory [][]resistanceRecord

	sink       OutputSink
	checkpoint CheckpointStore

	logger      *log.Logger
	traceEvents bool

	eventCount           uint64
	lastOutputEventCount uint64
	lastOutputWallTime   time.Time
}

// NewKernel wires a Parameters set, a new event queue, and the
// output/checkpoint sinks into a Kernel, seeds its hosts (freshly drawn
// or restored from a checkpoint), and queues the initial events.
// Validate must already have been called on params.
func NewKernel(params *Parameters, sink OutputSink, checkpoint CheckpointStore) (*Kernel, error) {
	seed := resolveSeed(params.RandomSeed)
	seedRNG(seed)
	params.RandomSeed = &seed

	lifetimeDist, err := NewDiscreteDistribution(params.LifetimeDistribution, 0)
	if err != nil {
		return nil, errors.Wrap(err, "lifetime_distribution")
	}

	k := &Kernel{
		Params:             params,
		Aggregates:         NewAggregates(params.NAges, params.NSerotypes),
		lifetimeDist:       lifetimeDist,
		noTransmission:     params.noTransmissionMask(),
		sink:               sink,
		checkpoint:         checkpoint,
		logger:             log.New(os.Stderr, "", log.LstdFlags),
		traceEvents:        params.TraceEvents,
		lastOutputWallTime: time.Now(),
	}

	if params.ImmigrationResistanceModel == "history_by_serotype" {
		k.resistanceHistory = make([][]resistanceRecord, params.NSerotypes)
	}

	// Host times are always recorded on the model's one absolute
	// timeline: a fresh run's t_min is itself the (very negative)
	// demographic-burnin start, and a resumed run's t_min is the exact
	// time the checkpoint was taken, never rebased to a new 0. This is
	// what lets SQLiteCheckpointStore.Save persist BirthTime as-is.
	var checkpointData *CheckpointData
	tMin := -(params.DemographicBurninTime + float64(params.NAges)*params.TYear)
	if params.LoadHostsFromCheckpoint {
		checkpointData, err = k.checkpoint.Load(params.CheckpointLoadPath)
		if err != nil {
			return nil, err
		}
		tMin = checkpointData.T
	}

	var queue EventQueue
	if params.UseCalendarQueue {
		queue, err = NewCalendarQueue(tMin, 1.0, params.QueueMinBucketWidth)
		if err != nil {
			return nil, err
		}
	} else {
		queue = NewHeapQueue(tMin)
	}
	k.Queue = queue

	if checkpointData != nil {
		if err := k.restoreHostsFromCheckpoint(checkpointData); err != nil {
			return nil, err
		}
	} else {
		k.initializeHosts()
	}

	k.Queue.AddOrUpdate(singletonKey(EventVerify), tMin)
	k.Queue.AddOrUpdate(singletonKey(EventWriteOutput), params.OutputStart)
	if params.CheckpointStart != nil {
		k.Queue.AddOrUpdate(singletonKey(EventWriteCheckpoint), *params.CheckpointStart)
	}

	if checkpointData != nil {
		for _, h := range k.Hosts {
			h.updateNextClearance(k, tMin)
		}
		k.Queue.AddOrUpdate(singletonKey(EventDoColonizations), tMin)
	} else {
		k.Queue.AddOrUpdate(singletonKey(EventInitColonizations), 0)
	}

	return k, nil
}

// queueTime reports the currently scheduled time for key, if any; used
// by host.verify to cross-check per-host state against the queue.
func (k *Kernel) queueTime(key EventKey) (float64, bool) {
	if !k.Queue.Contains(key) {
		return 0, false
	}
	// Both queue implementations expose membership but not direct
	// lookup-by-key without popping; Peek only returns the minimum.
	// Both implementations additionally provide TimeOf for this reason.
	if tl, ok := k.Queue.(interface{ TimeOf(EventKey) (float64, bool) }); ok {
		return tl.TimeOf(key)
	}
	return 0, false
}

// drawHostLifetime samples one lifetime in calendar-time units from the
// configured lifetime distribution, scaled from years to the model's
// native time unit.
func (k *Kernel) drawHostLifetime() float64 {
	return k.lifetimeDist.NextContinuous() * k.Params.TYear
}

// drawTreatmentTimes builds one host's full treatment schedule: for
// every integer year of life, it draws a Poisson count of treatment
// courses and rejection-samples start/duration pairs until every gap
// (including the gap back to the previous year's last course) respects
// min_time_between_treatments.
func (k *Kernel) drawTreatmentTimes(birthTime, deathTime float64) []treatmentInterval {
	p := k.Params
	var schedule []treatmentInterval

	age := 0
	yearStart := birthTime
	for yearStart < deathTime {
		yearEnd := yearStart + p.TYear
		if yearEnd > deathTime {
			yearEnd = deathTime
		}
		meanN := p.TreatmentMultiplier * p.MeanNTreatmentsPerAge[minInt(age, len(p.MeanNTreatmentsPerAge)-1)]
		n := poissonDraw(meanN)

		var prevEnd float64
		if len(schedule) > 0 {
			prevEnd = schedule[len(schedule)-1].end
		} else {
			prevEnd = yearStart - p.MinTimeBetweenTreatments
		}

		if n > 0 {
			for attempt := 0; ; attempt++ {
				candidates := make([]treatmentInterval, n)
				ok := true
				last := prevEnd
				starts := make([]float64, n)
				for i := 0; i < n; i++ {
					starts[i] = yearStart + uniformFloat()*(yearEnd-yearStart)
				}
				sortFloats(starts)
				for i := 0; i < n; i++ {
					dur := math.Max(0, normDraw(p.TreatmentDurationMean, p.TreatmentDurationSD))
					candidates[i] = treatmentInterval{start: starts[i], end: starts[i] + dur}
					if candidates[i].start < last+p.MinTimeBetweenTreatments {
						ok = false
					}
					last = candidates[i].end
				}
				if ok || attempt > 1000 {
					schedule = append(schedule, candidates...)
					break
				}
			}
		}
		yearStart = yearEnd
		age++
	}
	return schedule
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func sortFloats(xs []float64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

// initializeHosts draws birth_time/lifetime pairs uniformly over the
// demographic burn-in window for every host slot and seeds the age
// aggregates; colonization state is left empty until InitColonizations
// fires at t=0.
func (k *Kernel) initializeHosts() {
	p := k.Params
	k.Hosts = make([]*Host, p.NHosts)
	for i := 0; i < p.NHosts; i++ {
		lifetime := k.drawHostLifetime()
		birthTime := -p.DemographicBurninTime - uniformFloat()*lifetime
		h := newHost(k, i, birthTime, lifetime)
		k.Hosts[i] = h
		k.Aggregates.adjustAgeCount(h.Age, 1)
		k.Aggregates.addToAgeSet(h.Age, i)
	}
}

// restoreHostsFromCheckpoint rebuilds every host from a prior run's
// WriteCheckpoint data, keeping every time field on the same absolute
// timeline the checkpoint was saved on. Resuming requires
// demographic_burnin_time == 0, enforced by Parameters.Validate.
func (k *Kernel) restoreHostsFromCheckpoint(data *CheckpointData) error {
	k.Hosts = make([]*Host, len(data.Hosts))
	for i, saved := range data.Hosts {
		h := &Host{
			Index:             i,
			BirthTime:         saved.BirthTime,
			DeathTime:         saved.BirthTime + saved.Lifetime,
			Colonizations:     saved.Colonizations,
			PastColonizations: saved.PastColonizations,
			TreatmentTimes:    saved.TreatmentTimes,
		}
		h.TreatmentIndex = -1
		for idx, iv := range h.TreatmentTimes {
			if iv.end >= data.T {
				h.TreatmentIndex = idx
				h.InTreatment = iv.start <= data.T && iv.end >= data.T
				break
			}
		}
		k.Hosts[i] = h

		age := int((data.T - h.BirthTime) / k.Params.TYear)
		h.Age = age
		k.Aggregates.adjustAgeCount(age, 1)
		k.Aggregates.addToAgeSet(age, i)
		if h.Colonizations != nil {
			k.Aggregates.adjustColonizationsByAge(age, h.Colonizations, 1)
		}

		if h.DeathTime > data.T {
			nextBirthday := h.BirthTime + float64(age+1)*k.Params.TYear
			if nextBirthday < h.DeathTime {
				k.Queue.AddOrUpdate(hostKey(EventCelebrateBirthday, i), nextBirthday)
			} else {
				k.Queue.AddOrUpdate(hostKey(EventReset, i), h.DeathTime)
			}
		}
		if h.TreatmentIndex >= 0 && h.TreatmentIndex < len(h.TreatmentTimes) {
			if h.InTreatment {
				k.Queue.AddOrUpdate(hostKey(EventStepTreatment, i), h.TreatmentTimes[h.TreatmentIndex].end)
			} else {
				k.Queue.AddOrUpdate(hostKey(EventStepTreatment, i), h.TreatmentTimes[h.TreatmentIndex].start)
			}
		}
	}
	return seedRNGFromState(data.RNGState)
}

// scheduleDoColonizations seeds the first population-wide colonization
// event at t=0, dispatching to the independent or cotransmission
// handler according to transmission_model.
func (k *Kernel) scheduleDoColonizations() {
	k.Queue.AddOrUpdate(singletonKey(EventDoColonizations), 0)
}

// Run drains the event queue until either it empties or the popped time
// exceeds t_end, dispatching every popped key to its handler.
func (k *Kernel) Run() error {
	for {
		key, t, ok := k.Queue.Pop()
		if !ok {
			return nil
		}
		if t > k.Params.TEnd {
			return nil
		}
		if err := k.dispatch(key, t); err != nil {
			return errors.Wrapf(err, "dispatch %s at t=%f", key.Kind, t)
		}
	}
}

func (k *Kernel) dispatch(key EventKey, t float64) error {
	k.eventCount++
	if k.traceEvents && k.logger != nil {
		k.logger.Printf("event %s host=%d t=%f", key.Kind, key.HostIndex, t)
	}
	switch key.Kind {
	case EventCelebrateBirthday:
		k.Hosts[key.HostIndex].celebrateBirthday(k, t)
	case EventReset:
		k.Hosts[key.HostIndex].reset(k, t)
	case EventStepTreatment:
		k.Hosts[key.HostIndex].stepTreatment(k, t)
	case EventClearColonization:
		return k.Hosts[key.HostIndex].clearColonization(k, t)
	case EventInitColonizations:
		k.initializeColonizationsAndImmunity(t)
	case EventDoColonizations:
		if k.Params.TransmissionModel == "cotransmission" {
			k.doColonizationsCotransmission(t)
		} else {
			k.doColonizationsIndependent(t)
		}
	case EventVerify:
		return k.verify(t)
	case EventWriteOutput:
		if k.sink != nil {
			if err := k.sink.WriteOutput(k, t); err != nil {
				return err
			}
		}
		k.logThroughput(t)
		next := t + k.Params.OutputTimestep
		if next <= k.Params.TEnd {
			k.Queue.AddOrUpdate(singletonKey(EventWriteOutput), next)
		}
	case EventWriteCheckpoint:
		if k.checkpoint != nil {
			if err := k.checkpoint.Save(k, t); err != nil {
				return err
			}
		}
		if k.Params.CheckpointTimestep != nil {
			next := t + *k.Params.CheckpointTimestep
			if next <= k.Params.TEnd {
				k.Queue.AddOrUpdate(singletonKey(EventWriteCheckpoint), next)
			}
		}
	default:
		return errors.Wrapf(ErrInvariantViolation, "unhandled event kind %s", key.Kind)
	}
	return nil
}

// logThroughput reports the cumulative event count, the event rate and
// wall time since the last write_output tick, and the currently
// allocated heap memory, replacing the source's resource.getrusage
// report with runtime.ReadMemStats.
func (k *Kernel) logThroughput(t float64) {
	if k.logger == nil {
		return
	}
	now := time.Now()
	elapsed := now.Sub(k.lastOutputWallTime)
	processed := k.eventCount - k.lastOutputEventCount

	var rate float64
	if elapsed > 0 {
		rate = float64(processed) / elapsed.Seconds()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	k.logger.Printf("write_output t=%f events=%d rate=%.1f/s alloc=%dMB elapsed=%s",
		t, k.eventCount, rate, mem.Alloc/(1<<20), elapsed)

	k.lastOutputWallTime = now
	k.lastOutputEventCount = k.eventCount
}

// DryRun validates a fully constructed kernel without running any
// events: the output sink's parameters row has already been written by
// the time NewKernel returns, so this only needs to confirm the seeded
// population is internally consistent, mirroring the source's dry-run
// mode that initializes the database and stops before the event loop.
func (k *Kernel) DryRun() error {
	return k.Aggregates.verifyCounts(k.Hosts, k.Params.NSerotypes)
}

// initializeColonizationsAndImmunity seeds past-colonization (immunity)
// history and live colonizations for a freshly built, checkpoint-free
// population, then hands off to the steady-state colonization loop.
func (k *Kernel) initializeColonizationsAndImmunity(t float64) {
	p := k.Params
	for _, h := range k.Hosts {
		for s := 0; s < p.NSerotypes; s++ {
			for r := 0; r < 2; r++ {
				if binomialDraw(1, p.PInitImmune) == 1 {
					h.PastColonizations[s][r]++
				}
			}
		}
	}

	for s := 0; s < p.NSerotypes; s++ {
		for r := 0; r < 2; r++ {
			var probColonized float64
			if r == 0 {
				probColonized = p.InitProbHostColonized[s] * (1 - p.InitProbResistant)
			} else {
				probColonized = p.InitProbHostColonized[s] * p.InitProbResistant
			}
			n := binomialDraw(p.NHosts, probColonized)
			if n < 1 {
				n = 1
			}
			for i := 0; i < n; i++ {
				target := k.Hosts[uniformInt(len(k.Hosts))]
				target.receiveColonization(k, s, r, t)
			}
		}
	}
	k.scheduleDoColonizations()
}

// recordResistanceHistory appends one accepted-colonization outcome to
// the bounded FIFO window used by the history_by_serotype immigration
// model, evicting the oldest entry once the window is full.
func (k *Kernel) recordResistanceHistory(serotypeID, resistant int) {
	if k.resistanceHistory == nil {
		return
	}
	win := k.resistanceHistory[serotypeID]
	win = append(win, resistanceRecord{resistant: resistant})
	if len(win) > k.Params.ResistanceHistoryLength {
		win = win[1:]
	}
	k.resistanceHistory[serotypeID] = win
}

// getFractionResistant returns the fraction of all current live
// colonizations (across every serotype) that are resistant.
func (k *Kernel) getFractionResistant() float64 {
	var sensitive, resistant int
	for age := range k.Aggregates.ColonizationsByAge {
		for _, row := range k.Aggregates.ColonizationsByAge[age] {
			sensitive += row[0]
			resistant += row[1]
		}
	}
	if sensitive+resistant == 0 {
		return 0
	}
	return float64(resistant) / float64(sensitive+resistant)
}

func (k *Kernel) getFractionResistantForSerotype(serotypeID int) float64 {
	var sensitive, resistant int
	for age := range k.Aggregates.ColonizationsByAge {
		row := k.Aggregates.ColonizationsByAge[age][serotypeID]
		sensitive += row[0]
		resistant += row[1]
	}
	if sensitive+resistant == 0 {
		return 0
	}
	return float64(resistant) / float64(sensitive+resistant)
}

func (k *Kernel) getFractionResistantHistoryForSerotype(serotypeID int) (float64, bool) {
	win := k.resistanceHistory[serotypeID]
	if len(win) == 0 {
		return 0, false
	}
	var resistant int
	for _, rec := range win {
		resistant += rec.resistant
	}
	return float64(resistant) / float64(len(win)), true
}
