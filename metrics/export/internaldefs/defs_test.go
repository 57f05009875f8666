package internaldefs

import (
	"strings"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/stretchr/testify/assert"
)

func TestEveryMetricHasOneDefinition(t *testing.T) {
	seen := make(map[goSession.MetricID]string)
	for _, def := range CounterDefs {
		assert.False(t, def.ID.IsHistogram(), def.Name)
		assert.True(t, strings.HasPrefix(def.Name, "gosession_") && strings.HasSuffix(def.Name, "_total"), def.Name)
		assert.NotContains(t, seen, def.ID)
		seen[def.ID] = def.Name
	}
	for _, def := range HistogramDefs {
		assert.True(t, def.ID.IsHistogram(), def.Name)
		assert.NotContains(t, seen, def.ID)
		seen[def.ID] = def.Name
	}
	assert.Len(t, seen, goSession.MetricCount)
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	assert.Equal(t, [BucketCount]uint64{1, 3, 6, 6, 6, 6, 6, 6}, got)
}
