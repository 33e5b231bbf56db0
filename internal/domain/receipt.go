package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ReceiptExtraction is the structured guess an external process makes from a
// payment screenshot. Any field may be missing.
type ReceiptExtraction struct {
	Amount    *float64
	Currency  *string
	Reference *string
}

// ParseReceiptExtraction decodes a raw extraction payload. Numbers may arrive
// as strings and references as numbers; unparseable fields are left nil.
func ParseReceiptExtraction(raw json.RawMessage) ReceiptExtraction {
	var out ReceiptExtraction
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out
	}
	if v, ok := fields["amount"]; ok {
		out.Amount = parseLooseFloat(v)
	}
	if v, ok := fields["currency"]; ok {
		out.Currency = parseLooseString(v)
	}
	if v, ok := fields["reference"]; ok {
		out.Reference = parseLooseString(v)
	}
	return out
}

// Complete reports whether amount, currency and reference are all present.
func (r ReceiptExtraction) Complete() bool {
	return r.Amount != nil && r.Currency != nil && r.Reference != nil
}

func parseLooseFloat(v json.RawMessage) *float64 {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseLooseString(v json.RawMessage) *string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		return &s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return nil
	}
	str := n.String()
	return &str
}

// DigitsOnly strips every non-digit character.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
