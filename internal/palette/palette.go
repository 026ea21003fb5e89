// Package palette assigns display colors to streaks.
//
// New streaks take the first fixed palette color that none of the user's
// existing streaks hold. Once all ten are taken, a random pastel is
// generated in HSL space; those are not guaranteed unique.
package palette

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
)

// Colors is the fixed, ordered palette.
var Colors = []string{
	"#4A6CF7",
	"#7D5FFF",
	"#FF7D7D",
	"#FFA861",
	"#41C3A9",
	"#89C2FF",
	"#FF9ECF",
	"#6EDAB8",
	"#C89BFF",
	"#FFCC66",
}

// Fallback HSL ranges. Saturation and lightness are fractions.
const (
	minSaturation = 0.45
	maxSaturation = 0.55
	minLightness  = 0.70
	maxLightness  = 0.80
)

// Allocator picks colors. The zero value is not usable; call New.
type Allocator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an Allocator seeded from the runtime's random source.
func New() *Allocator {
	return &Allocator{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewWithSource returns an Allocator drawing fallback colors from src.
func NewWithSource(src rand.Source) *Allocator {
	return &Allocator{rng: rand.New(src)}
}

// Next returns the first palette color absent from existing, or a
// generated pastel when every palette color is in use.
func (a *Allocator) Next(existing []string) string {
	used := inUse(existing)
	for _, c := range Colors {
		if !used[c] {
			return c
		}
	}
	return a.fallback()
}

func (a *Allocator) fallback() string {
	a.mu.Lock()
	h := a.rng.Float64() * 360
	s := minSaturation + a.rng.Float64()*(maxSaturation-minSaturation)
	l := minLightness + a.rng.Float64()*(maxLightness-minLightness)
	a.mu.Unlock()
	return strings.ToUpper(colorful.Hsl(h, s, l).Clamped().Hex())
}

// IsPaletteColor reports whether c is one of the fixed palette colors.
func IsPaletteColor(c string) bool {
	c = canonical(c)
	for _, p := range Colors {
		if p == c {
			return true
		}
	}
	return false
}

// Recyclable reports whether deleting a streak colored c returns c to the
// pool: c must be a palette color that none of remaining still uses.
func Recyclable(c string, remaining []string) bool {
	if !IsPaletteColor(c) {
		return false
	}
	return !inUse(remaining)[canonical(c)]
}

// Available returns the palette colors not held by existing, in order.
func Available(existing []string) []string {
	used := inUse(existing)
	out := make([]string, 0, len(Colors))
	for _, c := range Colors {
		if !used[c] {
			out = append(out, c)
		}
	}
	return out
}

func inUse(colors []string) map[string]bool {
	m := make(map[string]bool, len(colors))
	for _, c := range colors {
		m[canonical(c)] = true
	}
	return m
}

func canonical(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
