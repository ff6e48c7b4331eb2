package convert

import (
	"context"
	"fmt"
	"io"

	"github.com/bcdev/nc2zarr/dataset"
	"github.com/bcdev/nc2zarr/logging"
	"github.com/bcdev/nc2zarr/nzerr"
	"github.com/bcdev/nc2zarr/store"
)

// Options gathers every construction-time option validated by
// Converter, spanning input.*, process.*, and output.* (spec §6/§4.8).
type Options struct {
	Inputs []string

	MultiFile bool
	ConcatDim string

	PreProcess PreProcessOptions
	Process    ProcessOptions

	Overwrite     bool
	Append        bool
	AppendDim     string
	AppendMode    store.AppendMode
	AdjustMetadata bool
	Metadata      dataset.Attrs
	Consolidated  bool
	Retry         store.RetryPolicy

	FinalizeOnly bool
	Verify       bool

	ToolName    string
	ToolVersion string
	Log         *logging.Logger
}

// Converter validates option combinations at construction and drives
// the open → preprocess → process → write pipeline (spec §4.8).
type Converter struct {
	opts   Options
	opener *dataset.Opener
	store  store.Store
}

// New validates opts and wires the opener/store/writer, per spec
// §4.8's construction-time checks.
func New(opts Options, opener *dataset.Opener, target store.Store) (*Converter, error) {
	if !opts.FinalizeOnly && len(opts.Inputs) == 0 {
		return nil, fmt.Errorf("%w: inputs must be non-empty", nzerr.ConverterError)
	}
	if opts.Overwrite && opts.Append {
		return nil, nzerr.OverwriteAndAppend
	}
	if opts.AppendDim == "" {
		opts.AppendDim = "time"
	}
	if opts.MultiFile && opts.ConcatDim == "" {
		opts.ConcatDim = opts.AppendDim
	}
	if opts.PreProcess.ConcatDim == "" {
		opts.PreProcess.ConcatDim = opts.AppendDim
	}
	if opts.AppendMode == "" {
		opts.AppendMode = store.ModeAll
	}
	return &Converter{opts: opts, opener: opener, store: target}, nil
}

// Run drives the pipeline described in spec §4.8.
func (c *Converter) Run(ctx context.Context) error {
	if c.opts.FinalizeOnly {
		return c.finalize()
	}

	writer, err := store.NewWriter(c.store, fmt.Sprintf("%p", c.store), c.opts.AppendDim, c.opts.AppendMode, c.opts.Overwrite, c.opts.Append, c.opts.Retry, c.opts.Log)
	if err != nil {
		return err
	}

	first := true
	if c.opts.MultiFile {
		ds, err := c.opener.OpenCombined(ctx, c.opts.Inputs, c.opts.ConcatDim, func(d *dataset.Dataset) (*dataset.Dataset, error) {
			return PreProcess(d, c.opts.PreProcess)
		})
		if err != nil {
			return err
		}
		if err := c.writeOne(writer, ds, &first); err != nil {
			return err
		}
	} else {
		seq, err := c.opener.Open(ctx, c.opts.Inputs)
		if err != nil {
			return err
		}
		for {
			ds, err := seq.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			ds, err = PreProcess(ds, c.opts.PreProcess)
			if err != nil {
				return err
			}
			if err := c.writeOne(writer, ds, &first); err != nil {
				return err
			}
		}
	}

	if err := c.finalize(); err != nil {
		return err
	}
	if c.opts.Verify {
		if err := Verify(c.store, c.opts.AppendDim); err != nil {
			return fmt.Errorf("%w: %s", nzerr.ConverterError, err)
		}
		if c.opts.Log != nil {
			c.opts.Log.Info("verify: ok")
		}
	}
	return nil
}

func (c *Converter) writeOne(w *store.Writer, ds *dataset.Dataset, first *bool) error {
	ds2, enc, err := Process(ds, c.opts.Process)
	if err != nil {
		return err
	}
	if err := w.Write(ds2, enc, *first); err != nil {
		return err
	}
	*first = false
	return nil
}

func (c *Converter) finalize() error {
	f := NewFinalizer(c.store, FinalizerOptions{
		AdjustMetadata:    c.opts.AdjustMetadata,
		Metadata:          c.opts.Metadata,
		Consolidated:      c.opts.Consolidated,
		ToolName:          c.opts.ToolName,
		ToolVersion:       c.opts.ToolVersion,
		Inputs:            c.opts.Inputs,
		SelfDescribingExt: ".ncjson",
	})
	return f.Run()
}
