package store

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

// WriteJSONAtomic serializes v as JSON and writes it to path using the
// write-temp/rename/best-effort-backup discipline shared by the Session,
// Cron, and Pairing stores: write to "<path>.<pid>.<rand>.tmp", copy the
// current contents to "<path>.bak" on a best-effort basis, then rename the
// temp file into place. A reader concurrent with this call observes either
// the pre-update or post-update file, never a partial write, because the
// rename is the only step that touches the final path.
func WriteJSONAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir parent %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	tmpPath := fmt.Sprintf("%s.%d.%d.tmp", path, os.Getpid(), rand.Int63())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp %s: %w", tmpPath, err)
	}

	if old, readErr := os.ReadFile(path); readErr == nil {
		_ = os.WriteFile(path+".bak", old, 0o600)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, path, err)
	}

	return nil
}

// ReadJSON loads and decodes the JSON file at path into v. A missing file
// returns an error satisfying os.IsNotExist; ReadJSONOrEmpty is the variant
// that treats it as "start from empty state".
func ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ReadJSONOrEmpty loads path into v, ignoring any error (missing file,
// syntactically invalid JSON); in those cases v is left as it was, which
// callers treat as empty state.
func ReadJSONOrEmpty(path string, v interface{}) {
	_ = ReadJSON(path, v)
}
