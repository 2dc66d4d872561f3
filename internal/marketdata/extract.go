package marketdata

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rickgao/quotefeed/internal/fix"
	"github.com/rickgao/quotefeed/internal/model"
)

// GroupMode selects how repeating groups are decoded.
type GroupMode string

const (
	GroupNested     GroupMode = "nested"
	GroupPositional GroupMode = "positional"
)

// GroupError reports a repeating group whose parts do not line up. The
// entries returned alongside it are still usable.
type GroupError struct {
	Mode     GroupMode
	Declared int // NoMDEntries value, -1 when absent
	Decoded  int // Entries reconstructed
	Types    int
	Prices   int
	Sizes    int
}

func (e *GroupError) Error() string {
	if e.Mode == GroupNested {
		return fmt.Sprintf("repeating group: NoMDEntries=%d but decoded %d entries", e.Declared, e.Decoded)
	}
	return fmt.Sprintf("repeating group: %d types, %d prices, %d sizes; kept %d entries",
		e.Types, e.Prices, e.Sizes, e.Decoded)
}

// Extract decodes entries with the given mode.
func Extract(mode GroupMode, fields []fix.Field, logger *slog.Logger) ([]model.Entry, error) {
	if mode == GroupPositional {
		return ExtractPositional(fields, logger)
	}
	return ExtractEntries(fields, logger)
}

// ExtractEntries decodes the NoMDEntries group. An entry ends when one of
// its member tags repeats, so member order within an entry is free. Entries
// without a type or a numeric price are dropped. Messages without
// NoMDEntries are decoded positionally.
func ExtractEntries(fields []fix.Field, logger *slog.Logger) ([]model.Entry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	start := -1
	for i, f := range fields {
		if f.Tag == fix.TagNoMDEntries {
			start = i
			break
		}
	}
	if start < 0 {
		return ExtractPositional(fields, logger)
	}

	declared, err := strconv.Atoi(fields[start].Value)
	if err != nil {
		logger.Warn("invalid NoMDEntries", "value", fields[start].Value)
		declared = -1
	}

	var (
		entries []model.Entry
		raw     int
		cur     rawEntry
	)
	flush := func() {
		if cur.empty() {
			return
		}
		raw++
		if e, ok := cur.entry(logger); ok {
			entries = append(entries, e)
		}
		cur = rawEntry{}
	}

	for _, f := range fields[start+1:] {
		switch f.Tag {
		case fix.TagMDEntryType:
			if cur.hasType {
				flush()
			}
			cur.typ, cur.hasType = f.Value, true
		case fix.TagMDEntryPx:
			if cur.hasPx {
				flush()
			}
			cur.px, cur.hasPx = f.Value, true
		case fix.TagMDEntrySize:
			if cur.hasSize {
				flush()
			}
			cur.size, cur.hasSize = f.Value, true
		}
	}
	flush()

	if declared >= 0 && declared != raw {
		return entries, &GroupError{Mode: GroupNested, Declared: declared, Decoded: raw}
	}
	return entries, nil
}

// ExtractPositional collects entry types, prices and sizes into three
// parallel lists and pairs them by index. Unparsable prices and sizes are
// dropped from their list. A length mismatch truncates to the shortest list
// and is reported as a *GroupError.
func ExtractPositional(fields []fix.Field, logger *slog.Logger) ([]model.Entry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		types  []string
		prices []decimal.Decimal
		sizes  []decimal.Decimal
	)
	for _, f := range fields {
		switch f.Tag {
		case fix.TagMDEntryType:
			types = append(types, f.Value)
		case fix.TagMDEntryPx:
			d, err := decimal.NewFromString(f.Value)
			if err != nil {
				logger.Warn("dropping unparsable price", "value", f.Value)
				continue
			}
			prices = append(prices, d)
		case fix.TagMDEntrySize:
			d, err := decimal.NewFromString(f.Value)
			if err != nil {
				logger.Warn("dropping unparsable size", "value", f.Value)
				continue
			}
			sizes = append(sizes, d)
		}
	}

	n := min(len(types), len(prices), len(sizes))
	entries := make([]model.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, model.Entry{
			Type:    model.EntryType(types[i]),
			Price:   prices[i],
			Size:    sizes[i],
			HasSize: true,
		})
	}

	if len(types) != len(prices) || len(prices) != len(sizes) {
		return entries, &GroupError{
			Mode:     GroupPositional,
			Declared: -1,
			Decoded:  n,
			Types:    len(types),
			Prices:   len(prices),
			Sizes:    len(sizes),
		}
	}
	return entries, nil
}

type rawEntry struct {
	typ, px, size           string
	hasType, hasPx, hasSize bool
}

func (r rawEntry) empty() bool {
	return !r.hasType && !r.hasPx && !r.hasSize
}

func (r rawEntry) entry(logger *slog.Logger) (model.Entry, bool) {
	if !r.hasType || !r.hasPx {
		logger.Warn("dropping incomplete entry", "type", r.typ, "price", r.px)
		return model.Entry{}, false
	}
	price, err := decimal.NewFromString(r.px)
	if err != nil {
		logger.Warn("dropping unparsable price", "type", r.typ, "value", r.px)
		return model.Entry{}, false
	}

	e := model.Entry{Type: model.EntryType(r.typ), Price: price}
	if r.hasSize {
		size, err := decimal.NewFromString(r.size)
		if err != nil {
			logger.Warn("ignoring unparsable size", "type", r.typ, "value", r.size)
		} else {
			e.Size, e.HasSize = size, true
		}
	}
	return e, true
}
