// Package dice rolls NdS expressions, one per query word, with an overall
// total when more than one roll parsed.
package dice

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/match"
	"github.com/perchrun/perch/internal/plugin"
)

// maxDice bounds one roll so a typo like "roll 999999999d6" stays cheap.
const maxDice = 10000

// Plugin is the dice roller, prefix "roll".
type Plugin struct {
	// roll is swappable for deterministic tests.
	roll func(sides int) int
}

func New() *Plugin {
	return &Plugin{roll: func(sides int) int { return rand.IntN(sides) + 1 }}
}

func (p *Plugin) Prefix() string { return "roll" }

func (p *Plugin) Init(context.Context) error { return nil }

func (p *Plugin) Actions() []plugin.Action {
	return []plugin.Action{plugin.DefaultAction("Copy to clipboard", "copy")}
}

func (p *Plugin) GetForValues(_ context.Context, input *match.Input, sink *collect.TaggedSink) {
	tokens := input.Tokens()
	if len(tokens) == 0 {
		return
	}

	var entries []collect.Entry
	total := 0
	for _, word := range tokens {
		entry, sum, ok := p.rollWord(word)
		if !ok {
			continue
		}
		entries = append(entries, entry)
		total += sum
	}
	if len(entries) > 1 {
		head := collect.Entry{
			Name: fmt.Sprintf("Overall Total:  %d", total),
			Data: collect.NewData(total),
		}
		entries = append([]collect.Entry{head}, entries...)
	}

	sink.Commit(func(yield func(collect.Entry) bool) {
		for _, e := range entries {
			if !yield(e) {
				return
			}
		}
	})
}

// rollWord parses one NdS word and rolls it. Unparseable words are silently
// skipped so mixed queries like "roll 2d6 pls" still work.
func (p *Plugin) rollWord(word string) (collect.Entry, int, bool) {
	dicePart, sidesPart, found := strings.Cut(word, "d")
	if !found {
		return collect.Entry{}, 0, false
	}
	dice, err := strconv.Atoi(strings.TrimSpace(dicePart))
	if err != nil {
		return collect.Entry{}, 0, false
	}
	sides, err := strconv.Atoi(strings.TrimSpace(sidesPart))
	if err != nil || sides < 1 || dice < 0 || dice > maxDice {
		return collect.Entry{}, 0, false
	}

	total := 0
	var subtitle strings.Builder
	subtitle.WriteString("Rolls:")
	for i := 0; i < dice; i++ {
		res := p.roll(sides)
		total += res
		if i != 0 {
			subtitle.WriteByte(',')
		}
		fmt.Fprintf(&subtitle, " %d", res)
	}

	return collect.Entry{
		Name:     fmt.Sprintf("Rolled %dd%d - Total: %d", dice, sides, total),
		Subtitle: subtitle.String(),
		Data:     collect.NewData(total),
	}, total, true
}

func (p *Plugin) Handle(_ context.Context, data collect.Data, _ string) (plugin.Effect, error) {
	return plugin.Effect{
		Kind: plugin.EffectCopy,
		Text: strconv.Itoa(collect.As[int](data)),
	}, nil
}
