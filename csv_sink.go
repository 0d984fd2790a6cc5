package pneumoresistance

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// CSVSink is a lightweight OutputSink alternative to SQLiteSink: it
// covers only the two summary-level tables (summary and
// age_distribution), matching the source's summary-level CSV exports
// rather than the full per-cell breakdown SQLiteSink writes.
type CSVSink struct {
	summaryPath        string
	ageDistributionPath string
	wroteSummaryHeader bool
	wroteAgeHeader     bool
}

// NewCSVSink derives the per-table file paths from basepath the same
// way the source's logger templates one base path into several
// suffixed files.
func NewCSVSink(basepath string) *CSVSink {
	trimmed := strings.TrimSuffix(basepath, ".")
	return &CSVSink{
		summaryPath:         trimmed + ".summary.csv",
		ageDistributionPath: trimmed + ".age_distribution.csv",
	}
}

func (s *CSVSink) WriteOutput(k *Kernel, t float64) error {
	nHosts := len(k.Hosts)
	nCol, nResistant := 0, 0
	for age := range k.Aggregates.ColonizationsByAge {
		for _, row := range k.Aggregates.ColonizationsByAge[age] {
			nCol += row[0] + row[1]
			nResistant += row[1]
		}
	}
	var fracResistant float64
	if nCol > 0 {
		fracResistant = float64(nResistant) / float64(nCol)
	}

	var b bytes.Buffer
	if !s.wroteSummaryHeader {
		b.WriteString("t,n_hosts,n_colonizations,n_resistant,fraction_resistant\n")
		s.wroteSummaryHeader = true
	}
	b.WriteString(fmt.Sprintf("%f,%d,%d,%d,%f\n", t, nHosts, nCol, nResistant, fracResistant))
	if err := appendToFile(s.summaryPath, b.Bytes()); err != nil {
		return err
	}

	var ab bytes.Buffer
	if !s.wroteAgeHeader {
		ab.WriteString("t,age,n_hosts\n")
		s.wroteAgeHeader = true
	}
	for age, n := range k.Aggregates.NHostsByAge {
		ab.WriteString(fmt.Sprintf("%f,%d,%d\n", t, age, n))
	}
	return appendToFile(s.ageDistributionPath, ab.Bytes())
}

// WriteImmigrationResistance is a no-op for CSVSink: the
// history_by_serotype diagnostic table is SQLite-only, per the scope
// decision recorded alongside this type's grounding entry.
func (s *CSVSink) WriteImmigrationResistance(k *Kernel, t float64, serotypeID int, fraction float64) error {
	return nil
}

func (s *CSVSink) Close() error { return nil }

// appendToFile creates path if it does not exist, or appends to the
// end of the existing file.
func appendToFile(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}
