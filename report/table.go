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

package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/ingestion"
)

// maxTitleWidth caps the title column.
const maxTitleWidth = 48

// RenderTable writes one row per outcome.
func RenderTable(w io.Writer, outcomes []*ingestion.Outcome) error {
	rows := make([][]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		item := itemFor(outcome)
		record := ""
		if item.RecordID != 0 {
			record = strconv.FormatUint(item.RecordID, 10)
		}
		detail := item.Error
		if detail == "" {
			detail = item.Reason
		}
		rows = append(rows, []string{
			strconv.Itoa(item.Index),
			core.Truncate(item.Title, maxTitleWidth),
			record,
			item.Status,
			item.Identifier,
			detail,
		})
	}
	return RenderRows(w, []string{"#", "Title", "Record", "Status", "Identifier", "Detail"}, rows, 1, 3)
}

// RenderRows writes a table of string rows. rightAligned lists 1-based
// column numbers; headers stay left-aligned. Short rows are padded and
// extra cells dropped.
func RenderRows(w io.Writer, headers []string, rows [][]string, rightAligned ...int) error {
	columns := len(headers)
	if columns == 0 {
		return nil
	}

	tw := newWriter()
	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, number := range rightAligned {
		if number < 1 || number > columns {
			continue
		}
		configs = append(configs, table.ColumnConfig{Number: number, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

// RenderCounts writes a two-column table of counts sorted by label.
func RenderCounts(w io.Writer, header string, counts map[string]int) error {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	tw := newWriter()
	tw.AppendHeader(table.Row{header, "Count"})
	total := 0
	for _, label := range labels {
		tw.AppendRow(table.Row{label, counts[label]})
		total += counts[label]
	}
	tw.AppendFooter(table.Row{"total", total})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func newWriter() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}
