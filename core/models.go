package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for catalog records.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

const (
	// DefaultTitle is used for items that arrive without a title.
	DefaultTitle = "Untitled"

	// MaxTitleLength is the longest title stored on a CanonicalRecord, in runes.
	MaxTitleLength = 255

	// MaxSummaryLength is the longest subject-derived summary stored on a CanonicalRecord, in runes.
	MaxSummaryLength = 2000

	// MaxGenres is the number of item subjects kept as record genres.
	MaxGenres = 8
)

// CatalogItem is a raw bibliographic item as delivered by an external catalog feed.
// It is transient; the pipeline turns it into (or matches it against) a CanonicalRecord.
type CatalogItem struct {
	Title       string   `json:"title" parquet:"title,optional"`
	Authors     []string `json:"authors" parquet:"authors,list"`
	Identifiers []string `json:"isbns" parquet:"isbns,list"`
	Subjects    []string `json:"subjects" parquet:"subjects,list"`
	CoverURL    string   `json:"cover_url,omitempty" parquet:"cover_url,optional"`
	PublishYear int      `json:"publish_year,omitempty" parquet:"publish_year,optional"`
	WorkKey     string   `json:"work_key,omitempty" parquet:"work_key,optional"`
	Summary     string   `json:"summary,omitempty" parquet:"summary,optional"`
	Language    string   `json:"language,omitempty" parquet:"language,optional"`
}

// Fingerprint returns the dedup key for the item.
func (i *CatalogItem) Fingerprint() Fingerprint {
	return ComputeFingerprint(i.Title, i.Authors, i.Identifiers)
}

// CanonicalRecord is the authoritative catalog entry an ingested item resolves to.
type CanonicalRecord struct {
	Id          ID
	Title       string
	Authors     []string
	Identifier  string // verified ISBN, placeholder (OLISBN-...), or empty
	WorkKey     string // catalog work key, e.g. OL45804W
	Language    string
	Summary     string
	Genres      []string
	CoverURL    string
	PublishYear int
	InsertedAt  time.Time
	UpdatedAt   time.Time
}

// HasVerifiedIdentifier reports whether the record carries a real-world identifier.
func (r *CanonicalRecord) HasVerifiedIdentifier() bool {
	return IsVerifiedIdentifier(r.Identifier)
}

// ResolutionKey returns the work key used to look up a verified identifier,
// preferring the stored work key over one embedded in a placeholder.
func (r *CanonicalRecord) ResolutionKey() string {
	if r.WorkKey != "" {
		return r.WorkKey
	}
	return WorkKeyFromIdentifier(r.Identifier)
}

// NeedsResolution reports whether the identifier resolver should run for this record.
func (r *CanonicalRecord) NeedsResolution() bool {
	return !r.HasVerifiedIdentifier() && r.ResolutionKey() != ""
}

// NewRecordFromItem builds an unsaved CanonicalRecord from a catalog item.
func NewRecordFromItem(item *CatalogItem) *CanonicalRecord {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = DefaultTitle
	}

	summary := strings.TrimSpace(item.Summary)
	if summary == "" {
		summary = strings.Join(item.Subjects, ", ")
	}

	identifier := ""
	if len(item.Identifiers) > 0 {
		identifier = strings.TrimSpace(item.Identifiers[0])
	}
	workKey := item.WorkKey
	if workKey == "" {
		workKey = WorkKeyFromIdentifier(identifier)
	}

	genres := item.Subjects
	if len(genres) > MaxGenres {
		genres = genres[:MaxGenres]
	}

	return &CanonicalRecord{
		Title:       truncateRunes(title, MaxTitleLength),
		Authors:     append([]string(nil), item.Authors...),
		Identifier:  identifier,
		WorkKey:     workKey,
		Language:    item.Language,
		Summary:     truncateRunes(summary, MaxSummaryLength),
		Genres:      append([]string(nil), genres...),
		CoverURL:    item.CoverURL,
		PublishYear: item.PublishYear,
	}
}

// LedgerStatus is the lifecycle state of a ledger entry.
type LedgerStatus int

const (
	// LedgerPending marks an item that has been seen but not yet linked to a record.
	LedgerPending LedgerStatus = iota + 1
	// LedgerDone marks an item linked to a CanonicalRecord. Terminal.
	LedgerDone
	// LedgerFailed marks an attempt that ended in error. Retryable.
	LedgerFailed
)

func (s LedgerStatus) String() string {
	switch s {
	case LedgerPending:
		return "pending"
	case LedgerDone:
		return "done"
	case LedgerFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseLedgerStatus parses the String form of a LedgerStatus.
func ParseLedgerStatus(s string) (LedgerStatus, bool) {
	switch s {
	case "pending":
		return LedgerPending, true
	case "done":
		return LedgerDone, true
	case "failed":
		return LedgerFailed, true
	}
	return 0, false
}

// LedgerEntry records one ingestion attempt per fingerprint.
type LedgerEntry struct {
	Fingerprint Fingerprint
	Status      LedgerStatus
	RecordId    ID // zero when not linked
	SourceURL   string
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsStale reports whether a Pending entry has outlived the given bound and may be retried.
func (e *LedgerEntry) IsStale(now time.Time, staleAfter time.Duration) bool {
	return e.Status == LedgerPending && now.Sub(e.UpdatedAt) >= staleAfter
}

// Provenance tags which upstream source produced an enrichment's text fields.
type Provenance string

const (
	ProvenanceCatalog    Provenance = "catalog-source"
	ProvenanceGenerative Provenance = "generative-fallback"
)

// ReadingLevel is the fixed reading-level vocabulary.
type ReadingLevel string

const (
	ReadingLevelBeginner     ReadingLevel = "Beginner"
	ReadingLevelIntermediate ReadingLevel = "Intermediate"
	ReadingLevelAdvanced     ReadingLevel = "Advanced"
)

// ReadingLevels lists the accepted reading levels in ascending order.
var ReadingLevels = []ReadingLevel{ReadingLevelBeginner, ReadingLevelIntermediate, ReadingLevelAdvanced}

// ParseReadingLevel matches s case-insensitively against the vocabulary.
func ParseReadingLevel(s string) (ReadingLevel, bool) {
	s = strings.TrimSpace(s)
	for _, level := range ReadingLevels {
		if strings.EqualFold(s, string(level)) {
			return level, true
		}
	}
	return "", false
}

// Recommendation is a similar title with the reason it was suggested.
type Recommendation struct {
	Title  string `json:"title" yaml:"title"`
	Reason string `json:"reason" yaml:"reason"`
}

// EnrichmentRecord holds derived content cached per CanonicalRecord.
// The embedding and its timestamp are maintained independently of the text fields.
type EnrichmentRecord struct {
	RecordId           ID
	Identifier         string
	PreviewURL         string
	PreviewAvailable   bool
	CoverURL           string
	Summary            string
	Tags               []string
	ReadingLevel       ReadingLevel
	Recommendations    []Recommendation
	Provenance         Provenance
	Embedding          []float32 // nil when never embedded
	EmbeddingUpdatedAt time.Time // zero when never embedded
	InsertedAt         time.Time
	UpdatedAt          time.Time
}

// HasEmbedding reports whether a vector has been stored.
func (e *EnrichmentRecord) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// SearchResult represents a search hit with the record, its enrichment and a relevance score.
type SearchResult struct {
	Record     *CanonicalRecord
	Enrichment *EnrichmentRecord
	Score      float32
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

// Truncate shortens s to at most max runes.
func Truncate(s string, max int) string {
	return truncateRunes(s, max)
}
