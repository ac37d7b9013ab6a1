// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/poiesic/shelfmark/core"
)

const (
	// maxLineSize bounds a single JSONL line.
	maxLineSize = 10 * 1024 * 1024

	// parquetBatchSize is the number of rows read from a Parquet file at a time.
	parquetBatchSize = 128
)

// LoadItems reads every catalog item in path.
func LoadItems(path string) ([]core.CatalogItem, error) {
	return LoadSample(path, 0)
}

// LoadSample reads at most limit catalog items from path. A limit <= 0 reads
// the whole file.
func LoadSample(path string, limit int) ([]core.CatalogItem, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".parquet":
		return loadParquet(path, limit)
	case ".jsonl", ".ndjson":
		return loadJSONL(path, limit)
	case ".json":
		return loadJSONArray(path, limit)
	default:
		return nil, fmt.Errorf("%w: %q (supported: .jsonl, .ndjson, .json, .parquet)", ErrUnsupportedFormat, ext)
	}
}

func loadJSONL(path string, limit int) ([]core.CatalogItem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	var items []core.CatalogItem
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item core.CatalogItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		items = append(items, item)

		if limit > 0 && len(items) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading dataset: %w", err)
	}

	slog.Debug("loaded JSONL dataset", "path", path, "items", len(items), "lines", lineNum)
	return items, nil
}

func loadJSONArray(path string, limit int) ([]core.CatalogItem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	tok, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON array: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("failed to read JSON array: expected '[', got %v", tok)
	}

	var items []core.CatalogItem
	for decoder.More() {
		var item core.CatalogItem
		if err := decoder.Decode(&item); err != nil {
			return nil, fmt.Errorf("failed to parse JSON item %d: %w", len(items), err)
		}
		items = append(items, item)
		if limit > 0 && len(items) >= limit {
			break
		}
	}

	slog.Debug("loaded JSON dataset", "path", path, "items", len(items))
	return items, nil
}

func loadParquet(path string, limit int) ([]core.CatalogItem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[core.CatalogItem](pf)
	defer reader.Close()

	var items []core.CatalogItem
	rows := make([]core.CatalogItem, parquetBatchSize)
	for {
		n, err := reader.Read(rows)
		items = append(items, rows[:n]...)
		if limit > 0 && len(items) >= limit {
			items = items[:limit]
			break
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	slog.Debug("loaded Parquet dataset", "path", path, "items", len(items), "row_groups", len(pf.RowGroups()))
	return items, nil
}
