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


package core

import (
	"encoding/hex"
	"slices"
	"strings"

	"github.com/go-crypt/x/blake2b"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fingerprint is the hex-encoded BLAKE2b-256 digest of an item's identifying fields.
type Fingerprint string

// FingerprintLength is the length of a Fingerprint in characters.
const FingerprintLength = 64

// Short returns the first 12 characters, for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

const (
	fieldSeparator = 0x1e
	valueSeparator = 0x1f
)

var folder = cases.Fold()

// ComputeFingerprint derives the dedup key for a catalog item.
// Title, authors and identifiers are normalized (NFKC, case folded, whitespace
// collapsed); authors and identifiers are sorted so their order does not matter.
// Missing values hash as empty. The result carries no process-local state.
func ComputeFingerprint(title string, authors, identifiers []string) Fingerprint {
	h, _ := blake2b.New256(nil)

	h.Write([]byte(NormalizeText(title)))
	h.Write([]byte{fieldSeparator})

	for _, author := range normalizedSet(authors, NormalizeText) {
		h.Write([]byte(author))
		h.Write([]byte{valueSeparator})
	}
	h.Write([]byte{fieldSeparator})

	for _, id := range normalizedSet(identifiers, normalizeCandidate) {
		h.Write([]byte(id))
		h.Write([]byte{valueSeparator})
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// NormalizeText applies NFKC normalization, case folding and whitespace collapsing.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// normalizeCandidate normalizes an identifier candidate. Values that look like
// ISBNs lose their separators; anything else (placeholders, other schemes) is
// compared as normalized text.
func normalizeCandidate(s string) string {
	if IsVerifiedIdentifier(s) {
		return NormalizeIdentifier(s)
	}
	return NormalizeText(s)
}

func normalizedSet(values []string, normalize func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := normalize(v); n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}
