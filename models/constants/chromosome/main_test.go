package chromosome

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalChromosomes(t *testing.T) {
	chroms := CanonicalChromosomes()

	assert.Len(t, chroms, 24)
	assert.Equal(t, "1", chroms[0])
	assert.Equal(t, "22", chroms[21])
	assert.Equal(t, "X", chroms[22])
	assert.Equal(t, "Y", chroms[23])
	assert.NotContains(t, chroms, "M")

	assert.Contains(t, ReferenceChromosomes(), "M")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "1", Normalize("chr1"))
	assert.Equal(t, "22", Normalize("22"))
	assert.Equal(t, "X", Normalize("chrx"))
	assert.Equal(t, "Y", Normalize("y"))
	assert.Equal(t, "M", Normalize("MT"))
	assert.Equal(t, "M", Normalize("chrM"))
	assert.Equal(t, "5", Normalize(" 5 "))
	assert.Equal(t, "GL000220.1", Normalize("GL000220.1"))
}

func TestIsCanonicalChromosome(t *testing.T) {
	for _, chrom := range CanonicalChromosomes() {
		assert.True(t, IsCanonicalChromosome(chrom), chrom)
	}

	assert.True(t, IsCanonicalChromosome("chr7"))
	assert.False(t, IsCanonicalChromosome("M"))
	assert.False(t, IsCanonicalChromosome("MT"))
	assert.False(t, IsCanonicalChromosome("23"))
	assert.False(t, IsCanonicalChromosome("0"))
	assert.False(t, IsCanonicalChromosome("GL000220.1"))
	assert.False(t, IsCanonicalChromosome(""))
}

func TestRank(t *testing.T) {
	assert.Equal(t, 1, Rank("1"))
	assert.Equal(t, 22, Rank("chr22"))
	assert.Equal(t, 23, Rank("X"))
	assert.Equal(t, 24, Rank("y"))
	assert.Equal(t, 25, Rank("MT"))
	assert.Equal(t, 99, Rank("GL000220.1"))

	assert.True(t, Rank("9") < Rank("10"))
	assert.True(t, Rank("22") < Rank("X"))
}
