package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePeriod(t *testing.T) {
	for _, input := range []string{"March 2024", "Mar 2024", "2024-03", "03/2024", "  2024-03-31  "} {
		got, err := NormalizePeriod(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, "March 2024", got, "input %q", input)
	}
}

func TestNormalizePeriodRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "   ", "Q3 2024", "March"} {
		_, err := NormalizePeriod(input)
		assert.Error(t, err, "input %q", input)
	}
}
