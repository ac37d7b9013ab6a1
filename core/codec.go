package core

import (
	"errors"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// ErrCodecLength indicates an encoded length that cannot fit in the remaining input.
var ErrCodecLength = errors.New("encoded length out of range")

// Serializers for values persisted by the embedded store. Each exposes
// Size, Marshal and Unmarshal in the mus-go style.
var (
	IDMUS               = idMUS{}
	CanonicalRecordMUS  = canonicalRecordMUS{}
	LedgerEntryMUS      = ledgerEntryMUS{}
	EnrichmentRecordMUS = enrichmentRecordMUS{}
)

type idMUS struct{}

func (idMUS) Size(v ID) int { return varint.Uint64.Size(uint64(v)) }

func (idMUS) Marshal(v ID, bs []byte) int { return varint.Uint64.Marshal(uint64(v), bs) }

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

type canonicalRecordMUS struct{}

func (canonicalRecordMUS) Size(v CanonicalRecord) int {
	var s sizer
	s.uint64(uint64(v.Id))
	s.str(v.Title)
	s.strs(v.Authors)
	s.str(v.Identifier)
	s.str(v.WorkKey)
	s.str(v.Language)
	s.str(v.Summary)
	s.strs(v.Genres)
	s.str(v.CoverURL)
	s.int(v.PublishYear)
	s.time(v.InsertedAt)
	s.time(v.UpdatedAt)
	return s.n
}

func (canonicalRecordMUS) Marshal(v CanonicalRecord, bs []byte) int {
	w := writer{bs: bs}
	w.uint64(uint64(v.Id))
	w.str(v.Title)
	w.strs(v.Authors)
	w.str(v.Identifier)
	w.str(v.WorkKey)
	w.str(v.Language)
	w.str(v.Summary)
	w.strs(v.Genres)
	w.str(v.CoverURL)
	w.int(v.PublishYear)
	w.time(v.InsertedAt)
	w.time(v.UpdatedAt)
	return w.n
}

func (canonicalRecordMUS) Unmarshal(bs []byte) (v CanonicalRecord, n int, err error) {
	r := reader{bs: bs}
	v.Id = ID(r.uint64())
	v.Title = r.str()
	v.Authors = r.strs()
	v.Identifier = r.str()
	v.WorkKey = r.str()
	v.Language = r.str()
	v.Summary = r.str()
	v.Genres = r.strs()
	v.CoverURL = r.str()
	v.PublishYear = r.int()
	v.InsertedAt = r.time()
	v.UpdatedAt = r.time()
	return v, r.n, r.err
}

type ledgerEntryMUS struct{}

func (ledgerEntryMUS) Size(v LedgerEntry) int {
	var s sizer
	s.str(string(v.Fingerprint))
	s.int(int(v.Status))
	s.uint64(uint64(v.RecordId))
	s.str(v.SourceURL)
	s.int(v.Attempts)
	s.time(v.CreatedAt)
	s.time(v.UpdatedAt)
	return s.n
}

func (ledgerEntryMUS) Marshal(v LedgerEntry, bs []byte) int {
	w := writer{bs: bs}
	w.str(string(v.Fingerprint))
	w.int(int(v.Status))
	w.uint64(uint64(v.RecordId))
	w.str(v.SourceURL)
	w.int(v.Attempts)
	w.time(v.CreatedAt)
	w.time(v.UpdatedAt)
	return w.n
}

func (ledgerEntryMUS) Unmarshal(bs []byte) (v LedgerEntry, n int, err error) {
	r := reader{bs: bs}
	v.Fingerprint = Fingerprint(r.str())
	v.Status = LedgerStatus(r.int())
	v.RecordId = ID(r.uint64())
	v.SourceURL = r.str()
	v.Attempts = r.int()
	v.CreatedAt = r.time()
	v.UpdatedAt = r.time()
	return v, r.n, r.err
}

type enrichmentRecordMUS struct{}

func (enrichmentRecordMUS) Size(v EnrichmentRecord) int {
	var s sizer
	s.uint64(uint64(v.RecordId))
	s.str(v.Identifier)
	s.str(v.PreviewURL)
	s.bool(v.PreviewAvailable)
	s.str(v.CoverURL)
	s.str(v.Summary)
	s.strs(v.Tags)
	s.str(string(v.ReadingLevel))
	s.int(len(v.Recommendations))
	for _, rec := range v.Recommendations {
		s.str(rec.Title)
		s.str(rec.Reason)
	}
	s.str(string(v.Provenance))
	s.vector(v.Embedding)
	s.time(v.EmbeddingUpdatedAt)
	s.time(v.InsertedAt)
	s.time(v.UpdatedAt)
	return s.n
}

func (enrichmentRecordMUS) Marshal(v EnrichmentRecord, bs []byte) int {
	w := writer{bs: bs}
	w.uint64(uint64(v.RecordId))
	w.str(v.Identifier)
	w.str(v.PreviewURL)
	w.bool(v.PreviewAvailable)
	w.str(v.CoverURL)
	w.str(v.Summary)
	w.strs(v.Tags)
	w.str(string(v.ReadingLevel))
	w.int(len(v.Recommendations))
	for _, rec := range v.Recommendations {
		w.str(rec.Title)
		w.str(rec.Reason)
	}
	w.str(string(v.Provenance))
	w.vector(v.Embedding)
	w.time(v.EmbeddingUpdatedAt)
	w.time(v.InsertedAt)
	w.time(v.UpdatedAt)
	return w.n
}

func (enrichmentRecordMUS) Unmarshal(bs []byte) (v EnrichmentRecord, n int, err error) {
	r := reader{bs: bs}
	v.RecordId = ID(r.uint64())
	v.Identifier = r.str()
	v.PreviewURL = r.str()
	v.PreviewAvailable = r.bool()
	v.CoverURL = r.str()
	v.Summary = r.str()
	v.Tags = r.strs()
	v.ReadingLevel = ReadingLevel(r.str())
	if count := r.length(); count > 0 {
		v.Recommendations = make([]Recommendation, count)
		for i := range v.Recommendations {
			v.Recommendations[i].Title = r.str()
			v.Recommendations[i].Reason = r.str()
		}
	}
	v.Provenance = Provenance(r.str())
	v.Embedding = r.vector()
	v.EmbeddingUpdatedAt = r.time()
	v.InsertedAt = r.time()
	v.UpdatedAt = r.time()
	return v, r.n, r.err
}

// sizer, writer and reader walk a value field by field. Slices are prefixed
// with a signed length; -1 encodes a nil vector. Times are UnixMicro behind a
// presence flag so the zero time round-trips.

type sizer struct{ n int }

func (s *sizer) uint64(v uint64) { s.n += varint.Uint64.Size(v) }
func (s *sizer) int(v int)       { s.n += varint.Int.Size(v) }
func (s *sizer) bool(v bool)     { s.n += ord.Bool.Size(v) }
func (s *sizer) str(v string)    { s.n += ord.String.Size(v) }

func (s *sizer) strs(vs []string) {
	s.int(len(vs))
	for _, v := range vs {
		s.str(v)
	}
}

func (s *sizer) vector(vs []float32) {
	if vs == nil {
		s.int(-1)
		return
	}
	s.int(len(vs))
	for _, v := range vs {
		s.n += varint.Uint32.Size(math.Float32bits(v))
	}
}

func (s *sizer) time(t time.Time) {
	s.bool(!t.IsZero())
	if !t.IsZero() {
		s.n += varint.Int64.Size(t.UnixMicro())
	}
}

type writer struct {
	bs []byte
	n  int
}

func (w *writer) uint64(v uint64) { w.n += varint.Uint64.Marshal(v, w.bs[w.n:]) }
func (w *writer) int(v int)       { w.n += varint.Int.Marshal(v, w.bs[w.n:]) }
func (w *writer) bool(v bool)     { w.n += ord.Bool.Marshal(v, w.bs[w.n:]) }
func (w *writer) str(v string)    { w.n += ord.String.Marshal(v, w.bs[w.n:]) }

func (w *writer) strs(vs []string) {
	w.int(len(vs))
	for _, v := range vs {
		w.str(v)
	}
}

func (w *writer) vector(vs []float32) {
	if vs == nil {
		w.int(-1)
		return
	}
	w.int(len(vs))
	for _, v := range vs {
		w.n += varint.Uint32.Marshal(math.Float32bits(v), w.bs[w.n:])
	}
}

func (w *writer) time(t time.Time) {
	w.bool(!t.IsZero())
	if !t.IsZero() {
		w.n += varint.Int64.Marshal(t.UnixMicro(), w.bs[w.n:])
	}
}

type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) int() int {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) bool() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) str() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

// length reads a slice length and checks it against the remaining input.
// Returns -1 for a nil marker.
func (r *reader) length() int {
	count := r.int()
	if r.err != nil {
		return 0
	}
	if count < -1 || count > len(r.bs)-r.n {
		r.err = ErrCodecLength
		return 0
	}
	return count
}

func (r *reader) strs() []string {
	count := r.length()
	if count <= 0 {
		return nil
	}
	vs := make([]string, count)
	for i := range vs {
		vs[i] = r.str()
	}
	return vs
}

func (r *reader) vector() []float32 {
	count := r.length()
	if count < 0 || r.err != nil {
		return nil
	}
	vs := make([]float32, count)
	for i := range vs {
		if r.err != nil {
			return nil
		}
		bits, n, err := varint.Uint32.Unmarshal(r.bs[r.n:])
		r.n += n
		r.err = err
		vs[i] = math.Float32frombits(bits)
	}
	return vs
}

func (r *reader) time() time.Time {
	if present := r.bool(); !present || r.err != nil {
		return time.Time{}
	}
	micros, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	if err != nil {
		return time.Time{}
	}
	return time.UnixMicro(micros).UTC()
}
