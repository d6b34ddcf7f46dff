// Package entity extracts the identifying entities of a vehicle article
// (year, brand, model name) and validates that AI-generated content still
// talks about the same vehicle as its trusted source title. A one-character
// difference in a model number designates a different product, so this is
// the pipeline's anti-hallucination gate.
package entity

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// AliasTable maps raw brand spellings to canonical display names. It is
// injectable configuration: the host loads it from a file and can swap in
// newly launched brands without a code change.
type AliasTable struct {
	mu        sync.RWMutex
	aliases   map[string]string   // lowercase raw spelling -> canonical name
	subBrands map[string][]string // canonical name -> sub-brand line names
	ordered   []string            // raw spellings, longest first
}

// aliasFile is the YAML shape of a brand alias file.
type aliasFile struct {
	Brands    map[string]string   `yaml:"brands"`
	SubBrands map[string][]string `yaml:"sub_brands"`
}

// NewAliasTable builds a table from raw-spelling->canonical pairs and an
// optional canonical->sub-brand map.
func NewAliasTable(brands map[string]string, subBrands map[string][]string) *AliasTable {
	t := &AliasTable{}
	t.replace(brands, subBrands)
	return t
}

// DefaultAliasTable returns the built-in brand table. Hosts normally extend
// it from a config file; the built-in set covers the common EV makers.
func DefaultAliasTable() *AliasTable {
	return NewAliasTable(map[string]string{
		"byd":          "BYD",
		"比亚迪":          "BYD",
		"denza":        "Denza",
		"腾势":           "Denza",
		"zeekr":        "ZEEKR",
		"极氪":           "ZEEKR",
		"nio":          "NIO",
		"蔚来":           "NIO",
		"onvo":         "Onvo",
		"xpeng":        "XPeng",
		"小鹏":           "XPeng",
		"li auto":      "Li Auto",
		"理想":           "Li Auto",
		"xiaomi":       "Xiaomi",
		"小米":           "Xiaomi",
		"aito":         "AITO",
		"问界":           "AITO",
		"avatr":        "Avatr",
		"阿维塔":          "Avatr",
		"deepal":       "Deepal",
		"深蓝":           "Deepal",
		"geely galaxy": "Geely Galaxy",
		"吉利银河":         "Geely Galaxy",
		"geely":        "Geely",
		"吉利":           "Geely",
		"lynk & co":    "Lynk & Co",
		"lynk co":      "Lynk & Co",
		"领克":           "Lynk & Co",
		"tesla":        "Tesla",
		"特斯拉":          "Tesla",
		"volkswagen":   "Volkswagen",
		"vw":           "Volkswagen",
		"toyota":       "Toyota",
		"honda":        "Honda",
		"hyundai":      "Hyundai",
		"kia":          "Kia",
		"bmw":          "BMW",
		"mercedes":     "Mercedes-Benz",
		"mercedes-benz": "Mercedes-Benz",
		"audi":         "Audi",
		"polestar":     "Polestar",
		"rivian":       "Rivian",
		"lucid":        "Lucid",
	}, map[string][]string{
		"BYD": {"Dynasty", "Ocean"},
	})
}

// LoadAliasFile reads a YAML alias file and merges it over the built-in
// table: file entries win on conflict.
func LoadAliasFile(path string) (*AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}

	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse alias file: %w", err)
	}

	t := DefaultAliasTable()
	t.MergeFrom(f.Brands, f.SubBrands)
	return t, nil
}

// MergeFrom merges additional alias entries into the table.
func (t *AliasTable) MergeFrom(brands map[string]string, subBrands map[string][]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for raw, canonical := range brands {
		t.aliases[strings.ToLower(raw)] = canonical
	}
	for canonical, subs := range subBrands {
		t.subBrands[canonical] = subs
	}
	t.reindex()
}

// Reload replaces the table contents wholesale, merging over the defaults
// again. Used by the file watcher.
func (t *AliasTable) Reload(path string) error {
	fresh, err := LoadAliasFile(path)
	if err != nil {
		return err
	}

	fresh.mu.RLock()
	brands := fresh.aliases
	subs := fresh.subBrands
	fresh.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.aliases = brands
	t.subBrands = subs
	t.reindex()
	return nil
}

// replace sets the table contents. Caller must not hold the lock.
func (t *AliasTable) replace(brands map[string]string, subBrands map[string][]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.aliases = make(map[string]string, len(brands))
	for raw, canonical := range brands {
		t.aliases[strings.ToLower(raw)] = canonical
	}
	t.subBrands = make(map[string][]string, len(subBrands))
	for canonical, subs := range subBrands {
		t.subBrands[canonical] = subs
	}
	t.reindex()
}

// reindex rebuilds the longest-first spelling order. Longest-first matters:
// "Geely Galaxy" must match before "Geely" so multi-word sub-brands beat
// their parent brand. Caller holds the lock.
func (t *AliasTable) reindex() {
	t.ordered = make([]string, 0, len(t.aliases))
	for raw := range t.aliases {
		t.ordered = append(t.ordered, raw)
	}
	sort.Slice(t.ordered, func(i, j int) bool {
		if len(t.ordered[i]) != len(t.ordered[j]) {
			return len(t.ordered[i]) > len(t.ordered[j])
		}
		return t.ordered[i] < t.ordered[j]
	})
}

// Match finds the brand alias that appears earliest in text. Titles name
// the subject vehicle first, so a later mention ("...a serious Tesla
// rival") never wins over the subject brand. At equal positions the longer
// spelling wins, so "Geely Galaxy" beats "Geely". Returns the raw spelling
// as it appears in the text and the canonical name.
func (t *AliasTable) Match(text string) (raw, canonical string, ok bool) {
	lower := strings.ToLower(text)

	t.mu.RLock()
	defer t.mu.RUnlock()

	best := -1
	var bestSpelling string
	for _, spelling := range t.ordered {
		idx := strings.Index(lower, spelling)
		if idx < 0 {
			continue
		}
		// ordered is longest-first, so at equal positions the first hit
		// already holds the longer spelling.
		if best < 0 || idx < best {
			best = idx
			bestSpelling = spelling
		}
	}
	if best < 0 {
		return "", "", false
	}
	return text[best : best+len(bestSpelling)], t.aliases[bestSpelling], true
}

// SubBrands returns the sub-brand line names for a canonical brand.
func (t *AliasTable) SubBrands(canonical string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	subs := t.subBrands[canonical]
	out := make([]string, len(subs))
	copy(out, subs)
	return out
}
