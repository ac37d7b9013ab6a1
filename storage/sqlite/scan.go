package sqlite

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/poiesic/shelfmark/core"
)

const recordColumns = "id, title, authors_json, identifier, work_key, language, summary, genres_json, cover_url, publish_year, inserted_at, updated_at"

const ledgerColumns = "fingerprint, status, record_id, source_url, attempts, created_at, updated_at"

const enrichmentColumns = "record_id, identifier, preview_url, preview_available, cover_url, summary, tags_json, reading_level, recommendations_json, provenance, embedding, embedding_updated_at, inserted_at, updated_at"

type scanner interface{ Scan(dest ...any) error }

func scanRecord(row scanner) (*core.CanonicalRecord, error) {
	var (
		id          int64
		title       string
		authorsRaw  string
		identifier  string
		workKey     string
		language    string
		summary     string
		genresRaw   string
		coverURL    string
		publishYear int
		insertedRaw string
		updatedRaw  string
	)
	if err := row.Scan(&id, &title, &authorsRaw, &identifier, &workKey, &language, &summary,
		&genresRaw, &coverURL, &publishYear, &insertedRaw, &updatedRaw); err != nil {
		return nil, err
	}

	record := &core.CanonicalRecord{
		Id:          core.ID(id),
		Title:       title,
		Identifier:  identifier,
		WorkKey:     workKey,
		Language:    language,
		Summary:     summary,
		CoverURL:    coverURL,
		PublishYear: publishYear,
	}
	var err error
	if record.Authors, err = decodeStrings(authorsRaw); err != nil {
		return nil, fmt.Errorf("decode authors: %w", err)
	}
	if record.Genres, err = decodeStrings(genresRaw); err != nil {
		return nil, fmt.Errorf("decode genres: %w", err)
	}
	if record.InsertedAt, err = parseTime(insertedRaw); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return nil, err
	}
	return record, nil
}

func scanLedgerEntry(row scanner) (*core.LedgerEntry, error) {
	var (
		fingerprint string
		statusRaw   string
		recordID    sql.NullInt64
		sourceURL   string
		attempts    int
		createdRaw  string
		updatedRaw  string
	)
	if err := row.Scan(&fingerprint, &statusRaw, &recordID, &sourceURL, &attempts, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	status, ok := core.ParseLedgerStatus(statusRaw)
	if !ok {
		return nil, fmt.Errorf("unknown ledger status %q", statusRaw)
	}
	entry := &core.LedgerEntry{
		Fingerprint: core.Fingerprint(fingerprint),
		Status:      status,
		RecordId:    core.ID(recordID.Int64),
		SourceURL:   sourceURL,
		Attempts:    attempts,
	}
	var err error
	if entry.CreatedAt, err = parseTime(createdRaw); err != nil {
		return nil, err
	}
	if entry.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return nil, err
	}
	return entry, nil
}

func scanEnrichment(row scanner) (*core.EnrichmentRecord, error) {
	var (
		recordID           int64
		identifier         string
		previewURL         string
		previewAvailable   bool
		coverURL           string
		summary            string
		tagsRaw            string
		readingLevel       string
		recommendationsRaw string
		provenance         string
		embedding          []byte
		embeddedRaw        sql.NullString
		insertedRaw        string
		updatedRaw         string
	)
	if err := row.Scan(&recordID, &identifier, &previewURL, &previewAvailable, &coverURL, &summary, &tagsRaw,
		&readingLevel, &recommendationsRaw, &provenance, &embedding, &embeddedRaw, &insertedRaw, &updatedRaw); err != nil {
		return nil, err
	}

	enrichment := &core.EnrichmentRecord{
		RecordId:         core.ID(recordID),
		Identifier:       identifier,
		PreviewURL:       previewURL,
		PreviewAvailable: previewAvailable,
		CoverURL:         coverURL,
		Summary:          summary,
		ReadingLevel:     core.ReadingLevel(readingLevel),
		Provenance:       core.Provenance(provenance),
	}
	var err error
	if enrichment.Tags, err = decodeStrings(tagsRaw); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if recommendationsRaw != "" && recommendationsRaw != "[]" {
		if err := json.Unmarshal([]byte(recommendationsRaw), &enrichment.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
	}
	if enrichment.Embedding, err = decodeVector(embedding); err != nil {
		return nil, err
	}
	if embeddedRaw.Valid {
		if enrichment.EmbeddingUpdatedAt, err = parseTime(embeddedRaw.String); err != nil {
			return nil, err
		}
	}
	if enrichment.InsertedAt, err = parseTime(insertedRaw); err != nil {
		return nil, err
	}
	if enrichment.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return nil, err
	}
	return enrichment, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func encodeRecommendations(recs []core.Recommendation) string {
	if len(recs) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(recs)
	return string(data)
}

// encodeVector packs float32 values little-endian. A nil vector stores NULL.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if buf == nil {
		return nil, nil
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has %d bytes, not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

func identifierKey(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}

func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
