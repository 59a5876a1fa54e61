// Copyright 2015 The astrogo Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command fitsstruct prints a per-HDU structural summary of a FITS file:
// index, type, data-unit byte offset/size, and a one-line header summary.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/cds-astro/fitsrs-sub000"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "fitsstruct",
		Short:         "Inspect the structure of FITS files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	structCmd := &cobra.Command{
		Use:   "struct <FILE>",
		Short: "Print per-HDU structure of a FITS file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl := log.Ldate | log.Ltime
			logger := log.New(os.Stderr, "fitsstruct: ", lvl)
			if !verbose {
				logger.SetOutput(io.Discard)
			}
			return printStruct(cmd.OutOrStdout(), args[0], logger)
		},
	}
	flags := pflag.NewFlagSet("fitsstruct", pflag.ContinueOnError)
	flags.BoolVarP(&verbose, "verbose", "v", false, "emit diagnostic logging to stderr")
	root.PersistentFlags().AddFlagSet(flags)
	root.AddCommand(structCmd)
	return root
}

func printStruct(w io.Writer, path string, logger *log.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stream := fitsrs.NewStream(f, fitsrs.WithLogger(logger))
	idx := 0
	for {
		hdu, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if hdu == nil {
			break
		}
		fmt.Fprintf(w, "HDU[%d] %-8s offset=%-10d size=%-10d %s\n",
			idx, hdu.XType, hdu.DataOffset, hdu.DataSize, summarize(hdu))
		if err := hdu.Close(); err != nil {
			return err
		}
		idx++
	}
	return nil
}

func summarize(hdu *fitsrs.HDU) string {
	switch {
	case hdu.Image() != nil:
		img := hdu.Image()
		return fmt.Sprintf("image%s bitpix=%d", axesString(img.Axes), img.Bitpix)
	case hdu.BinTable() != nil:
		bt := hdu.BinTable()
		kind := "bintable"
		if bt.Tile != nil {
			kind = "bintable(tile-compressed)"
		}
		return fmt.Sprintf("%s (%d cols x %d rows)", kind, bt.Tfields, bt.Naxis2)
	case hdu.AsciiTable() != nil:
		at := hdu.AsciiTable()
		return fmt.Sprintf("asciitable (%d cols x %d rows)", at.Tfields, at.Naxis2)
	default:
		return "(empty)"
	}
}

func axesString(axes []int64) string {
	if len(axes) == 0 {
		return "[]"
	}
	s := "["
	for i, a := range axes {
		if i > 0 {
			s += "x"
		}
		s += fmt.Sprintf("%d", a)
	}
	return s + "]"
}
