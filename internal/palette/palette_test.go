package palette

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/palette/internal/common"
)

func TestParseHarmony(t *testing.T) {
	h, err := ParseHarmony("")
	require.NoError(t, err)
	assert.Equal(t, HarmonyRandom, h)

	h, err = ParseHarmony(" Triadic ")
	require.NoError(t, err)
	assert.Equal(t, HarmonyTriadic, h)

	_, err = ParseHarmony("pastel-goth")
	assert.ErrorIs(t, err, common.ErrInvalidPalette)
}

func TestNormalize(t *testing.T) {
	got, err := Normalize([]string{"#FF0000", "00ff00", " #0000Ff "})
	require.NoError(t, err)
	assert.Equal(t, []string{"#ff0000", "#00ff00", "#0000ff"}, got)
}

func TestNormalize_Rejects(t *testing.T) {
	tests := map[string][]string{
		"empty":     {},
		"too many":  make([]string, MaxColors+1),
		"not a hex": {"#zzzzzz"},
		"short":     {"#fff"},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(in)
			assert.ErrorIs(t, err, common.ErrInvalidPalette)
		})
	}
}

func TestGenerate_ProducesValidPayload(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for h := range harmonies {
		for _, n := range []int{1, 5, MaxColors} {
			colors := Generate(rng, h, n)
			require.Len(t, colors, n, string(h))
			_, err := Normalize(colors)
			require.NoError(t, err, string(h))
		}
	}
}

func TestGenerate_ClampsSize(t *testing.T) {
	assert.Len(t, Generate(nil, HarmonyRandom, 0), DefaultColors)
	assert.Len(t, Generate(nil, HarmonyRandom, 100), MaxColors)
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(rand.New(rand.NewPCG(7, 7)), HarmonyAnalogous, 4)
	b := Generate(rand.New(rand.NewPCG(7, 7)), HarmonyAnalogous, 4)
	assert.Equal(t, a, b)
}
