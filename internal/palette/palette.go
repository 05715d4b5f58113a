// Package palette validates palette payloads and produces harmony palettes
// for clients that want the server-side shape of a generation.
package palette

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/dmitrijs2005/palette/internal/common"
)

// Harmony tags how the colors of a palette relate to each other.
type Harmony string

const (
	HarmonyRandom        Harmony = "random"
	HarmonyAnalogous     Harmony = "analogous"
	HarmonyComplementary Harmony = "complementary"
	HarmonyTriadic       Harmony = "triadic"
	HarmonyMonochromatic Harmony = "monochromatic"
)

const (
	MinColors     = 1
	MaxColors     = 10
	DefaultColors = 5
)

var harmonies = map[Harmony]struct{}{
	HarmonyRandom:        {},
	HarmonyAnalogous:     {},
	HarmonyComplementary: {},
	HarmonyTriadic:       {},
	HarmonyMonochromatic: {},
}

// ParseHarmony maps a tag to a Harmony. The empty string means random.
func ParseHarmony(s string) (Harmony, error) {
	h := Harmony(strings.ToLower(strings.TrimSpace(s)))
	if h == "" {
		return HarmonyRandom, nil
	}
	if _, ok := harmonies[h]; !ok {
		return "", fmt.Errorf("%w: unknown harmony %q", common.ErrInvalidPalette, s)
	}
	return h, nil
}

// Normalize checks a payload and returns its colors as lowercase #rrggbb.
func Normalize(colors []string) ([]string, error) {
	if len(colors) < MinColors || len(colors) > MaxColors {
		return nil, fmt.Errorf("%w: expected %d..%d colors, got %d", common.ErrInvalidPalette, MinColors, MaxColors, len(colors))
	}
	out := make([]string, len(colors))
	for i, raw := range colors {
		s := strings.TrimSpace(raw)
		if !strings.HasPrefix(s, "#") {
			s = "#" + s
		}
		c, err := colorful.Hex(s)
		if err != nil || len(s) != 7 {
			return nil, fmt.Errorf("%w: color %d %q", common.ErrInvalidPalette, i, raw)
		}
		out[i] = c.Hex()
	}
	return out, nil
}

// Generate builds n colors following h. rng may be nil.
func Generate(rng *rand.Rand, h Harmony, n int) []string {
	if n < MinColors {
		n = DefaultColors
	}
	if n > MaxColors {
		n = MaxColors
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	base := rng.Float64() * 360
	chroma := 0.35 + rng.Float64()*0.3
	out := make([]string, 0, n)

	for i := 0; i < n; i++ {
		var c colorful.Color
		switch h {
		case HarmonyAnalogous:
			c = colorful.Hcl(wrapHue(base+float64(i)*30-float64(n-1)*15), chroma, 0.55+0.06*float64(i%3))
		case HarmonyComplementary:
			hue := base
			if i%2 == 1 {
				hue += 180
			}
			c = colorful.Hcl(wrapHue(hue), chroma, 0.35+0.5*float64(i)/float64(n))
		case HarmonyTriadic:
			c = colorful.Hcl(wrapHue(base+float64(i%3)*120), chroma, 0.45+0.1*float64(i/3))
		case HarmonyMonochromatic:
			c = colorful.Hcl(base, chroma, 0.2+0.7*float64(i+1)/float64(n+1))
		default:
			c = colorful.Hcl(rng.Float64()*360, 0.2+rng.Float64()*0.5, 0.3+rng.Float64()*0.5)
		}
		out = append(out, c.Clamped().Hex())
	}
	return out
}

func wrapHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}
