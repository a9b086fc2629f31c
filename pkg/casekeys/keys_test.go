package casekeys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalUppercasesAndTrims(t *testing.T) {
	assert.Equal(t, "AP000123", Canonical("  ap000123 "))
	assert.Equal(t, "AP000123", Canonical("Ap000123"))
}

func TestCanonicalCollapsesAliasedPrefixes(t *testing.T) {
	// SP and AP name the same accessioning stream.
	assert.Equal(t, Canonical("AP000123"), Canonical("sp000123"))
	assert.Equal(t, "AP000123", Canonical("SP000123"))
}

func TestCanonicalLeavesUnaliasedPrefixesAlone(t *testing.T) {
	assert.Equal(t, "CY000045", Canonical("cy000045"))
}

func TestStatusKeyIsStableAcrossAliases(t *testing.T) {
	a := StatusKey(Canonical("sp000123"))
	b := StatusKey(Canonical("AP000123"))
	assert.Equal(t, a, b)
	assert.Equal(t, "case_status:AP000123", a)
}
