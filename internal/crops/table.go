// Package crops looks up FAO-56 single crop coefficients (Kc) from a nested
// category, crop and growth stage table.
package crops

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultKc is used when a crop stage cannot be resolved.
const DefaultKc = 1.0

// Stage is a growth stage key. Tables may carry keys beyond the three FAO-56
// stages; those pass through ParseStage unchanged.
type Stage string

const (
	StageInitial Stage = "init"
	StageMid     Stage = "mid"
	StageEnd     Stage = "end"
)

// ParseStage normalizes common spellings of the FAO-56 stages.
func ParseStage(s string) Stage {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "init", "initial", "ini":
		return StageInitial
	case "mid", "mid-season", "midseason":
		return StageMid
	case "end", "late", "late-season":
		return StageEnd
	}
	return Stage(key)
}

var ErrNotFound = errors.New("crop coefficient not found")

type NotFoundError struct {
	Category string
	Crop     string
	Stage    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no Kc for %s/%s/%s", e.Category, e.Crop, e.Stage)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Table maps category -> crop -> stage -> Kc. It is never mutated after
// construction, so concurrent lookups are safe.
type Table struct {
	entries map[string]map[string]map[string]float64
}

//go:embed default_crops.json
var defaultTable []byte

// Default returns the built-in FAO-56 table.
func Default() *Table {
	t, err := Parse(defaultTable, ".json")
	if err != nil {
		panic(fmt.Sprintf("crops: embedded table: %v", err))
	}
	return t
}

// Load reads a JSON or YAML table from disk, chosen by file extension.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crop table: %w", err)
	}
	t, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse crop table %s: %w", path, err)
	}
	return t, nil
}

func Parse(data []byte, ext string) (*Table, error) {
	entries := make(map[string]map[string]map[string]float64)
	switch strings.ToLower(ext) {
	case ".json", "":
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported crop table format %q", ext)
	}
	for cat, cropsByName := range entries {
		for crop, stages := range cropsByName {
			for stage, kc := range stages {
				if kc < 0 {
					return nil, fmt.Errorf("negative Kc %g for %s/%s/%s", kc, cat, crop, stage)
				}
			}
		}
	}
	return &Table{entries: entries}, nil
}

// Empty reports whether the table has no entries. A nil table is empty.
func (t *Table) Empty() bool {
	return t == nil || len(t.entries) == 0
}

func (t *Table) Lookup(category, crop, stage string) (float64, error) {
	nf := &NotFoundError{Category: category, Crop: crop, Stage: stage}
	if t.Empty() {
		return 0, nf
	}
	cropsByName, ok := t.entries[category]
	if !ok {
		return 0, nf
	}
	stages, ok := cropsByName[crop]
	if !ok {
		return 0, nf
	}
	kc, ok := stages[string(ParseStage(stage))]
	if !ok {
		kc, ok = stages[stage]
	}
	if !ok {
		return 0, nf
	}
	return kc, nil
}

// KcOrDefault returns the table value, or def with found=false when the key
// path does not resolve.
func (t *Table) KcOrDefault(category, crop, stage string, def float64) (kc float64, found bool) {
	kc, err := t.Lookup(category, crop, stage)
	if err != nil {
		return def, false
	}
	return kc, true
}

func (t *Table) Categories() []string {
	if t.Empty() {
		return nil
	}
	return sortedKeys(t.entries)
}

func (t *Table) Crops(category string) []string {
	if t.Empty() {
		return nil
	}
	return sortedKeys(t.entries[category])
}

// Stages lists the stage keys for a crop in FAO-56 order, followed by any
// non-standard keys alphabetically.
func (t *Table) Stages(category, crop string) []string {
	if t.Empty() {
		return nil
	}
	stages := t.entries[category][crop]
	if len(stages) == 0 {
		return nil
	}
	keys := sortedKeys(stages)
	rank := func(s string) int {
		switch Stage(s) {
		case StageInitial:
			return 0
		case StageMid:
			return 1
		case StageEnd:
			return 2
		}
		return 3
	}
	sort.SliceStable(keys, func(i, j int) bool { return rank(keys[i]) < rank(keys[j]) })
	return keys
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
