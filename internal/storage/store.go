package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/san-kum/liftsim/internal/sim"
	"github.com/san-kum/liftsim/internal/tank"
)

// Store persists simulation sessions under a base directory, one
// directory per session holding metadata.json and ticks.csv.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type SessionMetadata struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Capacity    float64   `json:"capacity"`
	PumpRate    float64   `json:"pump_rate"`
	StepMinutes float64   `json:"step_minutes"`
	Ticks       int       `json:"ticks"`
	FinalVolume float64   `json:"final_volume"`
	Overflows   int       `json:"overflows"`
	Underflows  int       `json:"underflows"`
	Overruns    int       `json:"overruns"`
}

// Recorder buffers tick records for one session. It implements
// [sim.Emitter]; Emit is safe to call from the loop while readers
// inspect recorded counts.
type Recorder struct {
	store *Store
	meta  SessionMetadata

	mu      sync.Mutex
	records []sim.Record
}

func (s *Store) NewRecorder(capacity, pumpRate, stepMinutes float64) *Recorder {
	return &Recorder{
		store: s,
		meta: SessionMetadata{
			ID:          fmt.Sprintf("session_%d", time.Now().Unix()),
			Timestamp:   time.Now(),
			Capacity:    capacity,
			PumpRate:    pumpRate,
			StepMinutes: stepMinutes,
		},
		records: make([]sim.Record, 0, 1024),
	}
}

func (r *Recorder) Emit(rec sim.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)
	r.meta.Ticks++
	r.meta.FinalVolume = rec.Volume
	switch rec.Status {
	case tank.StatusOverflow:
		r.meta.Overflows++
	case tank.StatusUnderflow:
		r.meta.Underflows++
	}
	if rec.Overrun {
		r.meta.Overruns++
	}
	return nil
}

// Close writes the session to disk and returns its ID.
func (r *Recorder) Close() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionDir := filepath.Join(r.store.baseDir, r.meta.ID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(sessionDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(sessionDir, "ticks.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	header := []string{"tick", "elapsed_min", "volume", "inflow", "outflow", "net", "status", "overrun"}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, rec := range r.records {
		row := []string{
			strconv.Itoa(rec.Tick),
			strconv.FormatFloat(rec.ElapsedMinutes, 'f', 6, 64),
			strconv.FormatFloat(rec.Volume, 'f', 6, 64),
			strconv.FormatFloat(rec.Inflow, 'f', 6, 64),
			strconv.FormatFloat(rec.Outflow, 'f', 6, 64),
			strconv.FormatFloat(rec.Net, 'f', 6, 64),
			rec.Status.String(),
			strconv.FormatBool(rec.Overrun),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return r.meta.ID, nil
}

func (s *Store) List() ([]SessionMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SessionMetadata{}, nil
		}
		return nil, err
	}

	sessions := make([]SessionMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}

		var meta SessionMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		sessions = append(sessions, meta)
	}

	return sessions, nil
}

func (s *Store) Load(sessionID string) (*SessionMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, sessionID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta SessionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

func (s *Store) LoadTicks(sessionID string) ([]sim.Record, error) {
	file, err := os.Open(filepath.Join(s.baseDir, sessionID, "ticks.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(rows) < 2 {
		return []sim.Record{}, nil
	}

	records := make([]sim.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 8 {
			continue
		}

		tick, err := strconv.Atoi(row[0])
		if err != nil {
			continue
		}
		elapsed, _ := strconv.ParseFloat(row[1], 64)
		volume, _ := strconv.ParseFloat(row[2], 64)
		inflow, _ := strconv.ParseFloat(row[3], 64)
		outflow, _ := strconv.ParseFloat(row[4], 64)
		net, _ := strconv.ParseFloat(row[5], 64)
		overrun, _ := strconv.ParseBool(row[7])

		records = append(records, sim.Record{
			Tick:           tick,
			ElapsedMinutes: elapsed,
			Volume:         volume,
			Inflow:         inflow,
			Outflow:        outflow,
			Net:            net,
			Status:         parseStatus(row[6]),
			Overrun:        overrun,
		})
	}

	return records, nil
}

func parseStatus(s string) tank.Status {
	switch s {
	case "OVERFLOW":
		return tank.StatusOverflow
	case "UNDERFLOW":
		return tank.StatusUnderflow
	default:
		return tank.StatusOK
	}
}
