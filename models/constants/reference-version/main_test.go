package referenceVersion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCastToReferenceVersion(t *testing.T) {
	assert.Equal(t, Hg19, CastToReferenceVersion("hg19"))
	assert.Equal(t, Hg38, CastToReferenceVersion("Hg38"))
	assert.Equal(t, Hg38, CastToReferenceVersion("HG38"))
	assert.Equal(t, Unknown, CastToReferenceVersion("hg17"))
	assert.Equal(t, Unknown, CastToReferenceVersion(""))
}

func TestIsKnownReferenceVersion(t *testing.T) {
	assert.True(t, IsKnownReferenceVersion("hg38"))
	assert.True(t, IsKnownReferenceVersion("hg19"))
	assert.False(t, IsKnownReferenceVersion("GRCh38"))
	assert.False(t, IsKnownReferenceVersion(""))
}
