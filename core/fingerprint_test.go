package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeFingerprint_Stable(t *testing.T) {
	a := ComputeFingerprint("Dune", []string{"Frank Herbert"}, nil)
	b := ComputeFingerprint("Dune", []string{"Frank Herbert"}, nil)

	assert.Equal(t, a, b)
	assert.Len(t, string(a), FingerprintLength)
}

func TestComputeFingerprint_OrderInsensitive(t *testing.T) {
	a := ComputeFingerprint("Good Omens",
		[]string{"Terry Pratchett", "Neil Gaiman"},
		[]string{"9780060853983", "0060853980"})
	b := ComputeFingerprint("Good Omens",
		[]string{"Neil Gaiman", "Terry Pratchett"},
		[]string{"0060853980", "9780060853983"})

	assert.Equal(t, a, b)
}

func TestComputeFingerprint_Normalization(t *testing.T) {
	base := ComputeFingerprint("Dune", []string{"Frank Herbert"}, []string{"978-0-441-17271-9"})

	t.Run("case and whitespace", func(t *testing.T) {
		fp := ComputeFingerprint("  DUNE ", []string{"frank   herbert"}, []string{"9780441172719"})
		assert.Equal(t, base, fp)
	})

	t.Run("blank entries are ignored", func(t *testing.T) {
		fp := ComputeFingerprint("Dune", []string{"Frank Herbert", "  "}, []string{"978-0-441-17271-9", ""})
		assert.Equal(t, base, fp)
	})

	t.Run("unicode compatibility forms", func(t *testing.T) {
		// fullwidth letters fold to ASCII under NFKC
		fp := ComputeFingerprint("Ｄｕｎｅ", []string{"Frank Herbert"}, []string{"9780441172719"})
		assert.Equal(t, base, fp)
	})
}

func TestComputeFingerprint_FieldDifferences(t *testing.T) {
	base := ComputeFingerprint("Dune", []string{"Frank Herbert"}, nil)

	assert.NotEqual(t, base, ComputeFingerprint("Dune Messiah", []string{"Frank Herbert"}, nil))
	assert.NotEqual(t, base, ComputeFingerprint("Dune", []string{"Brian Herbert"}, nil))
	assert.NotEqual(t, base, ComputeFingerprint("Dune", []string{"Frank Herbert"}, []string{"9780441172719"}))

	// moving a value between fields must not collide
	assert.NotEqual(t,
		ComputeFingerprint("Frank Herbert", nil, nil),
		ComputeFingerprint("", []string{"Frank Herbert"}, nil))
}

func TestComputeFingerprint_Empty(t *testing.T) {
	fp := ComputeFingerprint("", nil, nil)
	assert.Len(t, string(fp), FingerprintLength)
	assert.Equal(t, fp, ComputeFingerprint("", []string{}, []string{""}))
}

func TestCatalogItem_Fingerprint(t *testing.T) {
	item := CatalogItem{Title: "Dune", Authors: []string{"Frank Herbert"}}
	assert.Equal(t, ComputeFingerprint("Dune", []string{"Frank Herbert"}, nil), item.Fingerprint())
}

func TestFingerprint_Short(t *testing.T) {
	fp := ComputeFingerprint("Dune", nil, nil)
	assert.Len(t, fp.Short(), 12)
	assert.True(t, strings.HasPrefix(string(fp), fp.Short()))
	assert.Equal(t, "abc", Fingerprint("abc").Short())
}
