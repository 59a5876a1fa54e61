// Copyright 2015 The astrogo Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fitsrs

import (
	"io"
	"strings"
)

// Header is the ordered sequence of cards for one HDU, plus an index from
// keyword to value where the last occurrence wins. Long CONTINUE strings
// have already been spliced onto the owning Value card by the time a
// Header is returned from readHeader.
type Header struct {
	cards []Card
	index map[string]int // keyword -> index into cards, last occurrence wins
}

// Cards returns the ordered card sequence, in file order, END excluded.
func (h *Header) Cards() []Card {
	return h.cards
}

// Get returns the card for keyword name, or nil if absent. Lookup is by the
// dotted name for HIERARCH keywords.
func (h *Header) Get(name string) *Card {
	i, ok := h.index[name]
	if !ok {
		return nil
	}
	return &h.cards[i]
}

// Keys returns every distinct keyword present, in first-occurrence order is
// not guaranteed; use Cards() for file order.
func (h *Header) Keys() []string {
	keys := make([]string, 0, len(h.index))
	for k := range h.index {
		keys = append(keys, k)
	}
	return keys
}

func (h *Header) insert(c Card) {
	h.cards = append(h.cards, c)
	i := len(h.cards) - 1
	switch c.Kind {
	case CardValue, CardHierarch:
		h.index[c.Name] = i
	}
}

// readHeader consumes cards from r, one 80-byte line at a time, until END.
// It splices CONTINUE cards onto the preceding string Value card per §3
// ("Long-string continuation"): when a string value ends with '&', any
// immediately following CONTINUE cards are appended, the trailing '&' is
// dropped from every link but the last, and comments are newline-joined.
// After END, the caller is responsible for rounding the stream position up
// to the next 2880-byte boundary.
func readHeader(r io.Reader) (*Header, int64, error) {
	h := &Header{index: make(map[string]int)}
	var nbytes int64
	var buf [cardLen]byte

	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				return nil, nbytes, wrapf(ErrTruncated, "header truncated before END")
			}
			return nil, nbytes, wrapf(err, "reading header card")
		}
		nbytes += cardLen

		card, err := ParseCard(buf)
		if err != nil {
			return nil, nbytes, err
		}

		switch card.Kind {
		case CardEnd:
			return h, nbytes, nil
		case CardContinuation:
			if err := spliceContinuation(h, card); err != nil {
				return nil, nbytes, err
			}
		default:
			h.insert(card)
		}
	}
}

// spliceContinuation implements the CONTINUE splicing rule. The FITS
// standard forbids CONTINUE following a non-string value; per the design
// notes this is treated as a programmer/data error severe enough to abort
// hard rather than surface as a recoverable parse error.
func spliceContinuation(h *Header, cont Card) error {
	if len(h.cards) == 0 {
		panic("fitsrs: CONTINUE with no preceding card")
	}
	prev := &h.cards[len(h.cards)-1]
	if prev.Kind != CardValue || prev.Value.Kind != ValueString {
		panic("fitsrs: CONTINUE following a non-string value")
	}
	base := strings.TrimSuffix(prev.Value.Str, "&")
	prev.Value.Str = base + cont.Text
	if cont.Cont != "" {
		if prev.Comment != "" {
			prev.Comment = prev.Comment + "\n" + cont.Cont
		} else {
			prev.Comment = cont.Cont
		}
	}
	return nil
}
