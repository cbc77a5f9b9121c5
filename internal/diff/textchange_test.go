package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeTextChange(t *testing.T) {
	assert.Nil(t, ComputeTextChange("same", "same", "a", "a"))

	tc := ComputeTextChange("h1", "h2", "old text", "new text")
	if assert.NotNil(t, tc) {
		assert.Equal(t, "old text", tc.Old)
		assert.Equal(t, "new text", tc.New)
		assert.Nil(t, tc.Delta)
	}
}

func TestComputeTextChangeNumericDelta(t *testing.T) {
	tc := ComputeTextChange("h1", "h2", "42 in stock", "17 in stock")
	if assert.NotNil(t, tc) && assert.NotNil(t, tc.Delta) {
		assert.Equal(t, -25.0, *tc.Delta)
	}
}

func TestComputeTextChangeNoDeltaWhenNotNumeric(t *testing.T) {
	tc := ComputeTextChange("h1", "h2", "in stock", "out of stock")
	if assert.NotNil(t, tc) {
		assert.Nil(t, tc.Delta)
	}
}

func TestApproxChangeRatio(t *testing.T) {
	assert.Equal(t, 0.0, ApproxChangeRatio("same", "same"))
	assert.Equal(t, 0.0, ApproxChangeRatio("", ""))

	ratio := ApproxChangeRatio("hello world", "hello there")
	assert.Greater(t, ratio, 0.0)
	assert.Less(t, ratio, 1.0)

	assert.Equal(t, 1.0, ApproxChangeRatio("abc", "xyz"))
}

func TestApproxChangeRatioCommonAffixes(t *testing.T) {
	// "prefix-" and "-suffix" are shared; only the middle differs.
	ratio := ApproxChangeRatio("prefix-AAA-suffix", "prefix-BBB-suffix")
	assert.Greater(t, ratio, 0.0)
	assert.Less(t, ratio, 0.5)
}
