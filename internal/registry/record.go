package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Record is a test's persisted state. Targets are written by the test's
// author; Used and Dependencies are recomputed on every build.
type Record struct {
	Targets      []string
	Used         []string
	Dependencies []string

	// extra keeps fields this tool does not own so a rewrite preserves them.
	extra map[string]json.RawMessage
}

// MissingTargets returns the targets the test does not use, in target order.
func (r *Record) MissingTargets() []string {
	used := make(map[string]struct{}, len(r.Used))
	for _, name := range r.Used {
		used[name] = struct{}{}
	}
	var missing []string
	for _, target := range r.Targets {
		if _, ok := used[target]; !ok {
			missing = append(missing, target)
		}
	}
	return missing
}

const (
	keyTargets      = "targets"
	keyUsed         = "used"
	keyDependencies = "dependencies"
)

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	targets, ok := raw[keyTargets]
	if !ok {
		return errors.New("record has no \"targets\" field")
	}
	if err := json.Unmarshal(targets, &r.Targets); err != nil {
		return fmt.Errorf("field \"targets\": %w", err)
	}
	if v, ok := raw[keyUsed]; ok {
		if err := json.Unmarshal(v, &r.Used); err != nil {
			return fmt.Errorf("field \"used\": %w", err)
		}
	}
	if v, ok := raw[keyDependencies]; ok {
		if err := json.Unmarshal(v, &r.Dependencies); err != nil {
			return fmt.Errorf("field \"dependencies\": %w", err)
		}
	}

	delete(raw, keyTargets)
	delete(raw, keyUsed)
	delete(raw, keyDependencies)
	r.extra = raw
	return nil
}

// MarshalJSON implements json.Marshaler. Nil lists are written as [].
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.extra)+3)
	for k, v := range r.extra {
		out[k] = v
	}
	out[keyTargets] = nonNil(r.Targets)
	out[keyUsed] = nonNil(r.Used)
	out[keyDependencies] = nonNil(r.Dependencies)
	return json.Marshal(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// LoadRecord reads the record of the test in dir.
func LoadRecord(dir string) (*Record, error) {
	path := filepath.Join(dir, RecordFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading test record: %w", err)
	}
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decoding test record %s: %w", path, err)
	}
	return rec, nil
}

// SaveRecord writes the record of the test in dir. The write is atomic: the
// new content goes to a temporary file in the same directory which then
// replaces the record, so a failure never leaves a half-written record.
func SaveRecord(dir string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding test record: %w", err)
	}
	data = append(data, '\n')
	return writeFileAtomic(filepath.Join(dir, RecordFileName), data, 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
