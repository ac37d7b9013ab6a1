package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/shelfmark/core"
)

// Key prefixes for different data types
const (
	recordPrefix           = "canrec"
	recordIdentifierPrefix = "canreci"
	recordTitlePrefix      = "canrect"
	recordIDSeq            = "canrecseq"
	ledgerPrefix           = "ledger"
	enrichmentPrefix       = "enrrec"
)

// makeRecordKey generates a key for a canonical record by ID.
func makeRecordKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", recordPrefix, id))
}

// makeIndexKey generates a composite key for a secondary index.
// Format: prefix:value:id
// The ID is written BigEndian so entries for the same value sort by ID.
func makeIndexKey(prefix, value string, id core.ID) []byte {
	partial := makePartialIndexKey(prefix, value)
	buf := make([]byte, len(partial)+8)
	offset := copy(buf, partial)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialIndexKey generates the prefix shared by all index entries for value.
// Format: prefix:value:
func makePartialIndexKey(prefix, value string) []byte {
	return []byte(prefix + ":" + value + ":")
}

// makeIdentifierKey indexes a record by its upper-cased identifier.
func makeIdentifierKey(identifier string, id core.ID) []byte {
	return makeIndexKey(recordIdentifierPrefix, identifierIndexValue(identifier), id)
}

// makeTitleKey indexes a record by its normalized title.
func makeTitleKey(title string, id core.ID) []byte {
	return makeIndexKey(recordTitlePrefix, core.NormalizeText(title), id)
}

// makeLedgerKey generates a key for a ledger entry by fingerprint.
func makeLedgerKey(fp core.Fingerprint) []byte {
	return []byte(fmt.Sprintf("%s:%s", ledgerPrefix, fp))
}

// makeEnrichmentKey generates a key for the enrichment of a record.
func makeEnrichmentKey(recordID core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", enrichmentPrefix, recordID))
}
