// Package convert handles "<value> <unit> to <unit>" queries: metric units
// from a static table, currencies through a cached rates API.
package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/perchrun/perch/internal/cache"
	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/log"
	"github.com/perchrun/perch/internal/match"
	"github.com/perchrun/perch/internal/plugin"
)

// defaultRatesURL is the free tier of exchangerate-api: one JSON document per
// base currency, refreshed upstream daily.
const defaultRatesURL = "https://open.er-api.com/v6/latest/"

type conversion struct {
	from   string
	to     string
	factor float64
}

var conversions = []conversion{
	{"ml", "l", 0.001},
	{"l", "ml", 1000.0},
	{"mg", "g", 0.001},
	{"g", "mg", 1000.0},
	{"g", "kg", 0.001},
	{"kg", "g", 1000.0},
	{"mm", "m", 0.001},
	{"m", "mm", 1000.0},
	{"m", "km", 0.001},
	{"km", "m", 1000.0},
}

type result struct {
	value float64
	unit  string
}

// ratesDocument is the subset of the exchangerate-api response we read.
type ratesDocument struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// Plugin is the unit converter, prefix "convert".
type Plugin struct {
	rates    *cache.HTTPCache
	ratesURL string
}

// Option configures the plugin.
type Option func(*Plugin)

// WithRates enables currency conversion, fetching exchange rates through the
// given cache. Without it only the static metric table is served.
func WithRates(rates *cache.HTTPCache) Option {
	return func(p *Plugin) { p.rates = rates }
}

// WithRatesURL overrides the rates endpoint base URL.
func WithRatesURL(base string) Option {
	return func(p *Plugin) { p.ratesURL = base }
}

func New(opts ...Option) *Plugin {
	p := &Plugin{ratesURL: defaultRatesURL}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Prefix() string { return "convert" }

func (p *Plugin) Init(context.Context) error { return nil }

func (p *Plugin) Actions() []plugin.Action {
	return []plugin.Action{
		plugin.DefaultAction("Copy to clipboard", "copy"),
		plugin.SuggestAction("Convert to", "suggest"),
	}
}

func (p *Plugin) GetForValues(ctx context.Context, input *match.Input, sink *collect.TaggedSink) {
	// <value> <unit> to <unit>, nothing more, nothing less.
	words := strings.Fields(input.Raw())
	if len(words) != 4 || words[2] != "to" {
		return
	}
	amount, err := strconv.ParseFloat(words[0], 64)
	if err != nil {
		return
	}
	from, to := words[1], words[3]

	for _, c := range conversions {
		if !strings.EqualFold(c.from, from) || !strings.EqualFold(c.to, to) {
			continue
		}
		converted := amount * c.factor
		sink.Add(collect.Entry{
			Name:         fmt.Sprintf("%s %s", trimFloat(converted), c.to),
			Subtitle:     fmt.Sprintf("Converted from %s %s", trimFloat(amount), c.from),
			Data:         collect.NewData(result{value: converted, unit: c.to}),
			PerfectMatch: true,
		})
		return
	}

	if p.rates != nil && isCurrencyCode(from) && isCurrencyCode(to) {
		p.convertCurrency(ctx, amount, from, to, sink)
	}
}

// convertCurrency converts through the cached rates document for the source
// currency. Fetch failures drop the entry rather than surfacing an error;
// collection never fails.
func (p *Plugin) convertCurrency(ctx context.Context, amount float64, from, to string, sink *collect.TaggedSink) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)

	body, err := p.rates.Get(ctx, p.ratesURL+from)
	if err != nil {
		log.WithPlugin("convert").Debug("rates fetch failed", "base", from, "error", err)
		return
	}
	var doc ratesDocument
	if err := json.Unmarshal(body, &doc); err != nil || doc.Result != "success" {
		log.WithPlugin("convert").Debug("rates document unusable", "base", from, "error", err)
		return
	}
	rate, ok := doc.Rates[to]
	if !ok {
		return
	}

	converted := amount * rate
	sink.Add(collect.Entry{
		Name:         fmt.Sprintf("%s %s", trimFloat(converted), to),
		Subtitle:     fmt.Sprintf("Converted from %s %s", trimFloat(amount), from),
		Data:         collect.NewData(result{value: converted, unit: to}),
		PerfectMatch: true,
	})
}

// isCurrencyCode reports whether s looks like an ISO 4217 code.
func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func (p *Plugin) Handle(_ context.Context, data collect.Data, actionID string) (plugin.Effect, error) {
	r := collect.As[result](data)
	if actionID == "suggest" {
		return plugin.Effect{
			Kind: plugin.EffectSetQuery,
			Text: fmt.Sprintf("convert %s %s to", trimFloat(r.value), r.unit),
		}, nil
	}
	return plugin.Effect{
		Kind: plugin.EffectCopy,
		Text: fmt.Sprintf("%s %s", trimFloat(r.value), r.unit),
	}, nil
}

// trimFloat renders whole values without a decimal point.
func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
