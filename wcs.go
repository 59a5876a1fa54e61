// Copyright 2015 The astrogo Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fitsrs

import (
	"strconv"
	"strings"
)

// WCS is the keyword-to-parameter extraction an external WCS solver
// consumes (§4.8): the mandatory CTYPE1/NAXIS plus every optional linear,
// rotation, and SIP-distortion keyword this reader recognizes. Solving
// (pixel<->sky projection) is out of scope; this is purely extraction.
type WCS struct {
	CType1 string
	Naxis  int64

	CType  [4]string // CType[1],CType[2],CType[3] (index 0 unused)
	Naxisn [5]*int64 // Naxisn[1]..Naxisn[4]

	CRPix [4]*float64
	CRVal [4]*float64
	CRota [4]*float64
	CDelt [4]*float64

	// CD/PC linear transformation matrices, keyed "i_j" (1-based), e.g.
	// CD["1_1"], PC["2_3"].
	CD map[string]float64
	PC map[string]float64

	LonPole *float64
	LatPole *float64
	Equinox *float64
	Epoch   *float64
	RadeSys string

	// PVi_j projection parameters, keyed "i_j".
	PV map[string]float64

	// SIP forward (A, B) and inverse (AP, BP) distortion polynomial
	// coefficients, keyed "i_j" (order up to 6). A map rather than ~100
	// named fields: the keyword set is sparse and open-ended (any order up
	// to 6 may or may not be present), so a map loses nothing a fixed
	// struct would have offered.
	A  map[string]float64
	B  map[string]float64
	AP map[string]float64
	BP map[string]float64
}

// ExtractWCS builds a WCS record from an Image HDU's header (§4.8). It
// returns ErrMandatoryMissing if CTYPE1 or NAXIS is absent; every other
// field is optional and simply left unset.
func ExtractWCS(h *Header) (*WCS, error) {
	ctype1, err := requireString(h, "CTYPE1")
	if err != nil {
		return nil, err
	}
	naxis, err := requireInt(h, "NAXIS")
	if err != nil {
		return nil, err
	}

	w := &WCS{
		CType1: ctype1, Naxis: naxis,
		CD: map[string]float64{}, PC: map[string]float64{}, PV: map[string]float64{},
		A: map[string]float64{}, B: map[string]float64{}, AP: map[string]float64{}, BP: map[string]float64{},
	}

	for i := 1; i <= 3; i++ {
		w.CType[i] = optionalString(h, "CTYPE"+itoa(i))
	}
	for i := 1; i <= 4; i++ {
		w.Naxisn[i] = optionalInt(h, "NAXIS"+itoa(i))
	}
	for i := 1; i <= 3; i++ {
		w.CRPix[i] = optionalFloat(h, "CRPIX"+itoa(i))
		w.CRVal[i] = optionalFloat(h, "CRVAL"+itoa(i))
		w.CRota[i] = optionalFloat(h, "CROTA"+itoa(i))
		w.CDelt[i] = optionalFloat(h, "CDELT"+itoa(i))
	}
	for i := 1; i <= 3; i++ {
		for j := 1; j <= 3; j++ {
			key := itoa(i) + "_" + itoa(j)
			if v := optionalFloat(h, "CD"+key); v != nil {
				w.CD[key] = *v
			}
			if v := optionalFloat(h, "PC"+key); v != nil {
				w.PC[key] = *v
			}
		}
	}
	for i := 1; i <= 2; i++ {
		for j := 0; j <= 20; j++ {
			key := itoa(i) + "_" + itoa(j)
			if v := optionalFloat(h, "PV"+key); v != nil {
				w.PV[key] = *v
			}
		}
	}
	extractSIP(h, "A", w.A)
	extractSIP(h, "B", w.B)
	extractSIP(h, "AP", w.AP)
	extractSIP(h, "BP", w.BP)

	w.LonPole = optionalFloat(h, "LONPOLE")
	w.LatPole = optionalFloat(h, "LATPOLE")
	w.Equinox = optionalFloat(h, "EQUINOX")
	w.Epoch = optionalFloat(h, "EPOCH")
	w.RadeSys = optionalString(h, "RADESYS")

	return w, nil
}

// extractSIP scans prefix_i_j for i,j in [0,6], the SIP polynomial order
// range the format allows.
func extractSIP(h *Header, prefix string, dst map[string]float64) {
	for i := 0; i <= 6; i++ {
		for j := 0; j <= 6; j++ {
			key := itoa(i) + "_" + itoa(j)
			if v := optionalFloat(h, prefix+"_"+key); v != nil {
				dst[key] = *v
			}
		}
	}
}

func itoa(i int) string { return strconv.Itoa(i) }

// optionalFloat implements §4.8's extraction rule: try a typed parse of the
// card value; if the card instead holds a quoted string (headers
// occasionally store numbers this way), re-parse that string numerically.
func optionalFloat(h *Header, key string) *float64 {
	c := h.Get(key)
	if c == nil {
		return nil
	}
	switch c.Value.Kind {
	case ValueInteger:
		v := float64(c.Value.Int)
		return &v
	case ValueFloat:
		v := c.Value.Flt
		return &v
	case ValueString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(c.Value.Str), 64); err == nil {
			return &f
		}
	}
	return nil
}

func optionalInt(h *Header, key string) *int64 {
	c := h.Get(key)
	if c == nil {
		return nil
	}
	switch c.Value.Kind {
	case ValueInteger:
		v := c.Value.Int
		return &v
	case ValueFloat:
		v := int64(c.Value.Flt)
		return &v
	case ValueString:
		if n, err := strconv.ParseInt(strings.TrimSpace(c.Value.Str), 10, 64); err == nil {
			return &n
		}
	}
	return nil
}

func optionalString(h *Header, key string) string {
	c := h.Get(key)
	if c == nil || c.Value.Kind != ValueString {
		return ""
	}
	return c.Value.Str
}
