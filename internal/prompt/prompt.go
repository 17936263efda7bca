// Package prompt turns request fields into the text prompt sent to the image
// model. Strategies are pure functions of their Input so handlers can swap
// them without touching the generation pipeline.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrEmptyInput is returned when no usable trait or attribute was supplied.
var ErrEmptyInput = errors.New("prompt: no traits or attributes provided")

const (
	maxTraits    = 24
	maxTraitLen  = 80
	maxPromptLen = 1500
)

// Input carries the descriptive fields of a generation request.
type Input struct {
	Username    string
	Inscription string
	Traits      []string
	Attributes  map[string]string
}

// Strategy builds a prompt from Input.
type Strategy interface {
	Build(in Input) (string, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(Input) (string, error)

// Build implements Strategy.
func (f StrategyFunc) Build(in Input) (string, error) { return f(in) }

var lower = cases.Lower(language.English)

// DefaultStyle is the art direction prepended by the built-in strategies.
const DefaultStyle = "A highly detailed digital character portrait, centered composition, vibrant colors"

// TraitList lists normalized traits after the style line.
func TraitList(style string) Strategy {
	if strings.TrimSpace(style) == "" {
		style = DefaultStyle
	}
	return StrategyFunc(func(in Input) (string, error) {
		traits := NormalizeTraits(in.Traits)
		if len(traits) == 0 {
			return "", ErrEmptyInput
		}
		var b strings.Builder
		b.WriteString(style)
		b.WriteString(". Character traits: ")
		b.WriteString(strings.Join(traits, ", "))
		b.WriteString(".")
		writeInscription(&b, in.Inscription)
		return clip(b.String()), nil
	})
}

// Structured renders attributes as "key: value" pairs in key order.
func Structured(style string) Strategy {
	if strings.TrimSpace(style) == "" {
		style = DefaultStyle
	}
	return StrategyFunc(func(in Input) (string, error) {
		keys := make([]string, 0, len(in.Attributes))
		for k, v := range in.Attributes {
			if clean(k) != "" && clean(v) != "" {
				keys = append(keys, k)
			}
		}
		if len(keys) == 0 {
			return "", ErrEmptyInput
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteString(style)
		b.WriteString(". ")
		for i, k := range keys {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s: %s", lower.String(clean(k)), clean(in.Attributes[k]))
		}
		b.WriteString(".")
		writeInscription(&b, in.Inscription)
		return clip(b.String()), nil
	})
}

// Auto uses TraitList when traits are present, Structured otherwise.
func Auto(style string) Strategy {
	traits, structured := TraitList(style), Structured(style)
	return StrategyFunc(func(in Input) (string, error) {
		if len(NormalizeTraits(in.Traits)) > 0 {
			return traits.Build(in)
		}
		return structured.Build(in)
	})
}

// NormalizeTraits lower-cases, trims, collapses whitespace, truncates and
// de-duplicates traits, keeping first-seen order.
func NormalizeTraits(traits []string) []string {
	out := make([]string, 0, len(traits))
	seen := make(map[string]struct{}, len(traits))
	for _, t := range traits {
		t = lower.String(clean(t))
		if t == "" {
			continue
		}
		if r := []rune(t); len(r) > maxTraitLen {
			t = strings.TrimSpace(string(r[:maxTraitLen]))
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTraits {
			break
		}
	}
	return out
}

func writeInscription(b *strings.Builder, inscription string) {
	if s := clean(inscription); s != "" {
		fmt.Fprintf(b, " The character is named %q.", s)
	}
}

// clean drops control characters and collapses runs of whitespace.
func clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxPromptLen {
		return s
	}
	return string(r[:maxPromptLen])
}
