package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileBalances reads externally held quantities from a JSON document, a
// map of asset to {"free": x, "locked": y}. The file is an exchange
// balance export the operator refreshes out-of-band; it is re-read on
// every call so a refresh takes effect on the next cycle.
type FileBalances struct {
	path string
}

func NewFileBalances(path string) *FileBalances {
	return &FileBalances{path: path}
}

func (f *FileBalances) GetBalances(ctx context.Context) (map[string]Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read balances file: %w", err)
	}
	var out map[string]Balance
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse balances file %s: %w", f.path, err)
	}
	return out, nil
}
