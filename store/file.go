package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rustyeddy/tradedesk/risk"
	"gopkg.in/yaml.v3"
)

// document is the on-disk layout of a File store.
type document struct {
	Settings *risk.Settings   `json:"settings,omitempty" yaml:"settings,omitempty"`
	Daily    *risk.DailyState `json:"daily,omitempty" yaml:"daily,omitempty"`
}

// File keeps settings and daily state in one YAML or JSON document.
// Writes go to a temp file that is renamed over the target.
type File struct {
	mu   sync.Mutex
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(f.path))
	return ext == ".yaml" || ext == ".yml"
}

func (f *File) read() (document, error) {
	var doc document
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", f.path, err)
	}

	if f.isYAML() {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return doc, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return doc, nil
}

func (f *File) write(doc document) error {
	var data []byte
	var err error
	if f.isYAML() {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal %s: %w", f.path, err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, f.path)
}

func (f *File) LoadSettings(ctx context.Context) (risk.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return risk.Settings{}, err
	}
	if doc.Settings == nil {
		return risk.Settings{}, risk.ErrNotFound
	}
	return *doc.Settings, nil
}

func (f *File) SaveSettings(ctx context.Context, s risk.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Settings = &s
	return f.write(doc)
}

func (f *File) LoadDaily(ctx context.Context) (risk.DailyState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return risk.DailyState{}, err
	}
	if doc.Daily == nil {
		return risk.DailyState{}, risk.ErrNotFound
	}
	return *doc.Daily, nil
}

func (f *File) SaveDaily(ctx context.Context, d risk.DailyState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Daily = &d
	return f.write(doc)
}

func (f *File) Close() error { return nil }
