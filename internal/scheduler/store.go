package scheduler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// document is the on-disk shape of the cron store file.
type document struct {
	Jobs []*Job `json:"jobs"`
}

// Store persists the job list as a single JSON file, rewritten
// atomically (write to a temp file, then rename) after every
// mutation. A missing or corrupt file loads as an empty job list
// rather than failing — the store has nothing to recover from a
// truncated write except starting over.
type Store struct {
	mu   sync.Mutex
	path string
	jobs []*Job
}

// OpenStore loads path if present, creating its parent directory
// as needed. path itself need not exist yet.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.jobs = loadDocument(path).Jobs
	return s, nil
}

// loadDocument tolerates a missing or unparseable file, returning an
// empty document in either case.
func loadDocument(path string) document {
	data, err := os.ReadFile(path)
	if err != nil {
		return document{}
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}
	}
	return doc
}

// List returns a snapshot of every job, in no particular order.
func (s *Store) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Add appends job and persists.
func (s *Store) Add(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return s.persistLocked()
}

// Remove deletes the job with the given ID, if present, and persists.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range s.jobs {
		if j.ID == id {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			break
		}
	}
	return s.persistLocked()
}

// Persist rewrites the store file from the current in-memory job
// list. Callers that mutate a *Job obtained from List call
// this once they're done, rather than going through Add/Remove.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(document{Jobs: s.jobs}, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".jobs-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path)
}
