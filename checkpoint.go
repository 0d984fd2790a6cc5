package pneumoresistance

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// CheckpointHost is the restorable state of one host: enough to
// reconstruct a Host value and re-derive its age, treatment index, and
// next-clearance schedule.
type CheckpointHost struct {
	BirthTime         float64
	Lifetime          float64
	Colonizations     [][2]int
	PastColonizations [][2]int
	TreatmentTimes    []treatmentInterval
}

// CheckpointData is everything SQLiteCheckpointStore.Load returns: the
// simulation time the checkpoint was taken at, the RNG state blob, and
// every host's restorable state.
type CheckpointData struct {
	T        float64
	RNGState []byte
	Hosts    []CheckpointHost
}

// SQLiteCheckpointStore persists and restores Kernel state via
// database/sql, using encoding/binary for the dense per-host
// colonization arrays and encoding/gob (through rngState) for the RNG
// seed, in place of the source's pickle-plus-npybuffer encoding.
type SQLiteCheckpointStore struct {
	prefix string
}

func NewSQLiteCheckpointStore(prefix string) *SQLiteCheckpointStore {
	return &SQLiteCheckpointStore{prefix: prefix}
}

// Save writes a full checkpoint to "<prefix>_<t>.sqlite", building the
// file under a temporary name first and renaming it into place so a
// crash mid-write never leaves a half-written checkpoint visible to a
// future Load.
func (c *SQLiteCheckpointStore) Save(k *Kernel, t float64) error {
	finalPath := checkpointPath(c.prefix, t)
	tmpPath := finalPath + ".tmp"
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	db, err := sql.Open("sqlite3", tmpPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(`create table meta (id integer not null primary key, t real, rng_state blob)`); err != nil {
		return err
	}
	if _, err := db.Exec(`create table hosts (id integer not null primary key, birth_time real, lifetime real, colonizations blob, past_colonizations blob, treatment_times blob)`); err != nil {
		return err
	}

	seed := int64(0)
	if k.Params.RandomSeed != nil {
		seed = *k.Params.RandomSeed
	}
	rngBlob, err := encodeRNGState(seed)
	if err != nil {
		return err
	}
	if _, err := db.Exec(`insert into meta(t, rng_state) values(?, ?)`, t, rngBlob); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`insert into hosts(birth_time, lifetime, colonizations, past_colonizations, treatment_times) values(?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, h := range k.Hosts {
		colBlob := encodeStrainMatrix(h.Colonizations)
		pastBlob := encodeStrainMatrix(h.PastColonizations)
		treatBlob := encodeTreatmentTimes(h.TreatmentTimes)
		if _, err := stmt.Exec(h.BirthTime, h.DeathTime-h.BirthTime, colBlob, pastBlob, treatBlob); err != nil {
			stmt.Close()
			tx.Rollback()
			return err
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return err
	}
	if err := db.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, finalPath)
}

// Load restores a checkpoint previously written by Save.
func (c *SQLiteCheckpointStore) Load(path string) (*CheckpointData, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	data := &CheckpointData{}
	row := db.QueryRow(`select t, rng_state from meta limit 1`)
	if err := row.Scan(&data.T, &data.RNGState); err != nil {
		return nil, errors.Wrapf(ErrCheckpointMissing, "meta table unreadable: %v", err)
	}

	rows, err := db.Query(`select birth_time, lifetime, colonizations, past_colonizations, treatment_times from hosts order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var h CheckpointHost
		var colBlob, pastBlob, treatBlob []byte
		if err := rows.Scan(&h.BirthTime, &h.Lifetime, &colBlob, &pastBlob, &treatBlob); err != nil {
			return nil, err
		}
		h.Colonizations = decodeStrainMatrix(colBlob)
		h.PastColonizations = decodeStrainMatrix(pastBlob)
		h.TreatmentTimes = decodeTreatmentTimes(treatBlob)
		data.Hosts = append(data.Hosts, h)
	}
	return data, rows.Err()
}

// checkpointPath renders a checkpoint time with enough precision that
// distinct checkpoint times never collide on disk.
func checkpointPath(prefix string, t float64) string {
	return fmt.Sprintf("%s_%012.6f.sqlite", prefix, t)
}

// encodeStrainMatrix/decodeStrainMatrix encode a [][2]int colonization
// matrix as a flat sequence of big-endian uint32 pairs, the dense
// fixed-width array encoding npybuffer provides in the source.
func encodeStrainMatrix(m [][2]int) []byte {
	buf := make([]byte, 0, len(m)*8)
	for _, row := range m {
		var tmp [8]byte
		binary.BigEndian.PutUint32(tmp[0:4], uint32(row[0]))
		binary.BigEndian.PutUint32(tmp[4:8], uint32(row[1]))
		buf = append(buf, tmp[:]...)
	}
	return buf
}

func decodeStrainMatrix(blob []byte) [][2]int {
	n := len(blob) / 8
	m := make([][2]int, n)
	for i := 0; i < n; i++ {
		m[i][0] = int(binary.BigEndian.Uint32(blob[i*8 : i*8+4]))
		m[i][1] = int(binary.BigEndian.Uint32(blob[i*8+4 : i*8+8]))
	}
	return m
}

func encodeTreatmentTimes(times []treatmentInterval) []byte {
	var b bytes.Buffer
	for _, iv := range times {
		var tmp [16]byte
		binary.BigEndian.PutUint64(tmp[0:8], math.Float64bits(iv.start))
		binary.BigEndian.PutUint64(tmp[8:16], math.Float64bits(iv.end))
		b.Write(tmp[:])
	}
	return b.Bytes()
}

func decodeTreatmentTimes(blob []byte) []treatmentInterval {
	n := len(blob) / 16
	out := make([]treatmentInterval, n)
	for i := 0; i < n; i++ {
		start := math.Float64frombits(binary.BigEndian.Uint64(blob[i*16 : i*16+8]))
		end := math.Float64frombits(binary.BigEndian.Uint64(blob[i*16+8 : i*16+16]))
		out[i] = treatmentInterval{start: start, end: end}
	}
	return out
}
