package pneumoresistance

import (
	"database/sql"
	"encoding/json"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteSink is an OutputSink that writes every periodic snapshot into
// one SQLite database, one table per statistic, matching the
// per-table-writer idiom used throughout the source's own SQLite
// logger.
type SQLiteSink struct {
	db   *sql.DB
	path string
}

// openSQLiteDB opens (creating if necessary) the database at path.
func openSQLiteDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// NewSQLiteSink creates the output database at path and its tables. It
// is an error for path to already exist unless overwrite is true.
func NewSQLiteSink(path string, overwrite bool, jobInfo map[string]interface{}, params *Parameters) (*SQLiteSink, error) {
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return nil, errors.Wrapf(ErrOutputConflict, "%s", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}
	db, err := openSQLiteDB(path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteSink{db: db, path: path}
	if err := s.init(jobInfo, params); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) init(jobInfo map[string]interface{}, params *Parameters) error {
	stmts := []string{
		`create table summary (id integer not null primary key, t real, n_hosts int, n_colonizations int, n_resistant int, fraction_resistant real)`,
		`create table age_distribution (id integer not null primary key, t real, age int, n_hosts int)`,
		`create table counts_by_age_treatment (id integer not null primary key, t real, age int, in_treatment int, serotype int, resistant int, n int)`,
		`create table immigration_resistance (id integer not null primary key, t real, serotype int, fraction_resistant real)`,
		`create table parameters (id integer not null primary key, json text)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "create table: %s", stmt)
		}
	}
	if jobInfo != nil {
		if _, err := s.db.Exec(`create table jobs (id integer not null primary key, json text)`); err != nil {
			return err
		}
		blob, err := json.Marshal(jobInfo)
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(`insert into jobs(json) values(?)`, string(blob)); err != nil {
			return err
		}
	}
	blob, err := json.Marshal(params)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`insert into parameters(json) values(?)`, string(blob))
	return err
}

// WriteOutput writes one full snapshot of kernel state across the
// summary, age_distribution and counts_by_age_treatment tables inside
// a single transaction.
func (s *SQLiteSink) WriteOutput(k *Kernel, t float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

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
	if _, err := tx.Exec(`insert into summary(t, n_hosts, n_colonizations, n_resistant, fraction_resistant) values(?,?,?,?,?)`,
		t, nHosts, nCol, nResistant, fracResistant); err != nil {
		tx.Rollback()
		return err
	}

	ageStmt, err := tx.Prepare(`insert into age_distribution(t, age, n_hosts) values(?,?,?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	for age, n := range k.Aggregates.NHostsByAge {
		if _, err := ageStmt.Exec(t, age, n); err != nil {
			ageStmt.Close()
			tx.Rollback()
			return err
		}
	}
	ageStmt.Close()

	countStmt, err := tx.Prepare(`insert into counts_by_age_treatment(t, age, in_treatment, serotype, resistant, n) values(?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	counts := make(map[[4]int]int)
	for _, h := range k.Hosts {
		treated := 0
		if h.InTreatment {
			treated = 1
		}
		if h.Colonizations == nil {
			continue
		}
		for s, row := range h.Colonizations {
			for r := 0; r < 2; r++ {
				if row[r] == 0 {
					continue
				}
				counts[[4]int{h.Age, treated, s, r}] += row[r]
			}
		}
	}
	for key, n := range counts {
		if _, err := countStmt.Exec(t, key[0], key[1], key[2], key[3], n); err != nil {
			countStmt.Close()
			tx.Rollback()
			return err
		}
	}
	countStmt.Close()

	return tx.Commit()
}

// WriteImmigrationResistance records one dynamically estimated
// immigration resistance fraction, used only by the history_by_serotype
// model.
func (s *SQLiteSink) WriteImmigrationResistance(k *Kernel, t float64, serotypeID int, fraction float64) error {
	_, err := s.db.Exec(`insert into immigration_resistance(t, serotype, fraction_resistant) values(?,?,?)`, t, serotypeID, fraction)
	return err
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
