package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"valuation_advisor/pkg/core/record"

	"gopkg.in/yaml.v2"
)

// ErrSymbolNotFound is returned by providers that hold no data for a symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

// DataProvider supplies the financial record for a symbol. Records may be
// partial; an empty period lets the provider pick its latest.
type DataProvider interface {
	Fetch(ctx context.Context, symbol, period string) (record.FinancialRecord, error)
}

// StaticProvider serves records held in memory, keyed by symbol.
type StaticProvider struct {
	mu      sync.RWMutex
	records map[string]record.FinancialRecord
}

func NewStaticProvider(records ...record.FinancialRecord) *StaticProvider {
	p := &StaticProvider{records: make(map[string]record.FinancialRecord)}
	for _, r := range records {
		p.Put(r)
	}
	return p
}

// Put stores a copy of r under its symbol.
func (p *StaticProvider) Put(r record.FinancialRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[strings.ToUpper(r.Symbol)] = r.Clone()
}

func (p *StaticProvider) Fetch(_ context.Context, symbol, period string) (record.FinancialRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.records[strings.ToUpper(symbol)]
	if !ok {
		return record.FinancialRecord{}, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	out := r.Clone()
	if period != "" {
		out.Period = period
	}
	return out, nil
}

// FileProvider reads <Dir>/<SYMBOL>.json or <SYMBOL>.yaml. Each file is a
// flat object of provider fields plus an optional "period" and
// "revenue_history".
type FileProvider struct {
	Dir string
}

func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{Dir: dir}
}

func (p *FileProvider) Fetch(ctx context.Context, symbol, period string) (record.FinancialRecord, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || strings.ContainsAny(symbol, `/\`) {
		return record.FinancialRecord{}, fmt.Errorf("invalid symbol %q: %w", symbol, ErrSymbolNotFound)
	}

	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(p.Dir, symbol+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return record.FinancialRecord{}, fmt.Errorf("read %s: %w", path, err)
		}

		raw, err := decodeFields(ext, data)
		if err != nil {
			return record.FinancialRecord{}, fmt.Errorf("decode %s: %w", path, err)
		}
		if period == "" {
			period, _ = raw["period"].(string)
		}
		return record.FromProviderFields(symbol, period, raw), nil
	}
	return record.FinancialRecord{}, fmt.Errorf("%s in %s: %w", symbol, p.Dir, ErrSymbolNotFound)
}

func decodeFields(ext string, data []byte) (map[string]any, error) {
	raw := make(map[string]any)
	if ext == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
