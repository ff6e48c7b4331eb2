package store

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/bcdev/nc2zarr/dataset"
	"github.com/bcdev/nc2zarr/logging"
	"github.com/bcdev/nc2zarr/nzerr"
)

// AppendMode is one of the five write policies of spec §4.6.
type AppendMode string

const (
	ModeAll       AppendMode = "all"
	ModeNoOverlap AppendMode = "no_overlap"
	ModeNewer     AppendMode = "newer"
	ModeReplace   AppendMode = "replace"
	ModeRetain    AppendMode = "retain"
)

// RetryPolicy is the writer's retry envelope (spec §4.6/§4.7):
// tries/delay/backoff/max_delay/jitter, retried only for
// nzerr.StoreIOError.
type RetryPolicy struct {
	Tries    int
	Delay    time.Duration
	Backoff  float64
	MaxDelay time.Duration
	Jitter   float64
}

// DefaultRetryPolicy matches a conservative out-of-the-box setting: a
// handful of tries with exponential backoff and light jitter.
var DefaultRetryPolicy = RetryPolicy{Tries: 3, Delay: 200 * time.Millisecond, Backoff: 2, MaxDelay: 5 * time.Second, Jitter: 0.1}

// Run executes op, retrying on any nzerr.StoreIOError up to p.Tries
// times total, sleeping an exponentially backed-off, jittered delay
// between attempts. Any other error (or the last StoreIOError)
// propagates immediately.
func (p RetryPolicy) Run(op func() error) error {
	tries := p.Tries
	if tries <= 0 {
		tries = 1
	}
	delay := p.Delay
	var lastErr error
	for attempt := 0; attempt < tries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !nzerr.Retryable(err) {
			return err
		}
		if attempt == tries-1 {
			break
		}
		sleep := delay
		if p.Jitter > 0 {
			jitter := 1 + (rand.Float64()*2-1)*p.Jitter
			sleep = time.Duration(float64(sleep) * jitter)
		}
		time.Sleep(sleep)
		if p.Backoff > 1 {
			delay = time.Duration(float64(delay) * p.Backoff)
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}

// Writer persists processed datasets to a Store, honoring the append
// mode, idempotency rules, and retry policy of spec §4.6.
type Writer struct {
	Store     Store
	AppendDim string
	Mode      AppendMode
	Overwrite bool
	Append    bool
	Retry     RetryPolicy
	Tolerance float64
	Log       *logging.Logger

	cache *chunkCache
}

// NewWriter validates overwrite/append exclusivity (spec §4.6 /
// OverwriteAndAppend) and returns a ready Writer.
func NewWriter(s Store, identity, appendDim string, mode AppendMode, overwrite, appendFlag bool, retry RetryPolicy, log *logging.Logger) (*Writer, error) {
	if overwrite && appendFlag {
		return nil, nzerr.OverwriteAndAppend
	}
	tol := float64(DefaultTolerance)
	return &Writer{
		Store: s, AppendDim: appendDim, Mode: mode, Overwrite: overwrite, Append: appendFlag,
		Retry: retry, Tolerance: tol, Log: log, cache: newChunkCache(identity),
	}, nil
}

// Write persists ds to the store for one pipeline iteration, wrapped
// in the retry policy. On the first iteration it creates the store
// from scratch when Overwrite is set or the store does not exist yet;
// in every other case it appends to the existing store.
func (w *Writer) Write(ds *dataset.Dataset, enc map[string]dataset.Encoding, isFirst bool) error {
	start := time.Now()
	err := w.Retry.Run(func() error { return w.writeOnce(ds, enc, isFirst) })
	if err == nil && w.Log != nil {
		w.Log.Slice("wrote", w.AppendDim, sliceLabel(ds, w.AppendDim), time.Since(start))
	}
	return err
}

func sliceLabel(ds *dataset.Dataset, dim string) interface{} {
	c := ds.Coordinate(dim)
	if c == nil || c.Data == nil || c.Data.Len() == 0 {
		return "?"
	}
	return c.Data.Scalar(0)
}

func (w *Writer) writeOnce(ds *dataset.Dataset, enc map[string]dataset.Encoding, isFirst bool) error {
	exists, err := w.Store.Exists()
	if err != nil {
		return err
	}
	if isFirst && (w.Overwrite || !exists) {
		if err := w.Store.Create(ds, enc); err != nil {
			return err
		}
		if c := ds.Coordinate(w.AppendDim); c != nil {
			w.cache.noteTicks(w.AppendDim, CoordTicks(c.Data))
		}
		return nil
	}
	if !exists {
		return fmt.Errorf("%w", nzerr.StoreNotFound)
	}

	ds = dropByteStringStatics(ds, w.AppendDim)
	delete(ds.Attrs, "coordinates")

	switch w.Mode {
	case ModeAll:
		return w.appendPlain(ds)
	case ModeNoOverlap:
		return w.appendNoOverlap(ds)
	case ModeNewer:
		return w.appendNewer(ds)
	case ModeReplace, ModeRetain:
		return w.appendReplaceOrRetain(ds)
	default:
		return fmt.Errorf("store: unknown append mode %q", w.Mode)
	}
}

// dropByteStringStatics removes data variables that don't carry
// appendDim and have byte-string dtype, per spec §4.6 ("these must not
// be re-appended").
func dropByteStringStatics(ds *dataset.Dataset, appendDim string) *dataset.Dataset {
	out := ds
	for _, name := range ds.Names() {
		v := ds.Get(name)
		if !v.HasDim(appendDim) && v.DType == dataset.Bytes {
			out.Delete(name)
		}
	}
	return out
}

func (w *Writer) appendPlain(ds *dataset.Dataset) error {
	for _, v := range ds.Variables() {
		idx := v.DimIndex(w.AppendDim)
		if idx < 0 {
			continue
		}
		existing, err := w.Store.ReadVariable(v.Name)
		if err != nil {
			return err
		}
		merged, err := dataset.ConcatDim(idx, existing.Data, v.Data)
		if err != nil {
			return fmt.Errorf("%w: %s", nzerr.StoreIOError, err)
		}
		existing.Data = merged
		existing.Shape = merged.Shape
		if err := w.Store.WriteVariable(existing); err != nil {
			return err
		}
		if v.Name == w.AppendDim {
			w.cache.noteTicks(w.AppendDim, CoordTicks(merged))
		}
	}
	return nil
}

// existingCoordTicks returns the append-dim coordinate's current
// values, consulting the in-process cache before falling back to a
// store read (see chunkCache's doc comment: this is called once per
// input row by appendReplaceOrRetain, so the cache is what keeps that
// loop from re-reading the same coordinate from the store on every
// iteration).
func (w *Writer) existingCoordTicks() ([]float64, error) {
	if ticks, ok := w.cache.ticksOf(w.AppendDim); ok {
		return ticks, nil
	}
	existing, err := w.Store.ReadVariable(w.AppendDim)
	if err != nil {
		return nil, err
	}
	ticks := CoordTicks(existing.Data)
	w.cache.noteTicks(w.AppendDim, ticks)
	return ticks, nil
}

func (w *Writer) appendNoOverlap(ds *dataset.Dataset) error {
	existingTicks, err := w.existingCoordTicks()
	if err != nil {
		return err
	}
	if !monotoneNonDecreasing(existingTicks) {
		return fmt.Errorf("%w: existing coordinates are not monotone", nzerr.AppendOrderViolation)
	}
	newCoord := ds.Coordinate(w.AppendDim)
	if newCoord == nil {
		return fmt.Errorf("%w: new dataset has no %s coordinate", nzerr.AppendOrderViolation, w.AppendDim)
	}
	newTicks := CoordTicks(newCoord.Data)
	if len(existingTicks) > 0 && len(newTicks) > 0 && existingTicks[len(existingTicks)-1] >= newTicks[0] {
		return fmt.Errorf("%w: new minimum does not exceed existing maximum", nzerr.AppendOrderViolation)
	}
	return w.appendPlain(ds)
}

func (w *Writer) appendNewer(ds *dataset.Dataset) error {
	newCoord := ds.Coordinate(w.AppendDim)
	if newCoord == nil {
		return fmt.Errorf("%w: new dataset has no %s coordinate", nzerr.AppendOrderViolation, w.AppendDim)
	}
	newTicks := CoordTicks(newCoord.Data)
	if !monotoneIncreasing(newTicks) {
		return fmt.Errorf("%w: new coordinates are not strictly increasing", nzerr.AppendOrderViolation)
	}
	existingTicks, err := w.existingCoordTicks()
	if err != nil {
		return err
	}
	max := negInf
	if len(existingTicks) > 0 {
		max = existingTicks[len(existingTicks)-1]
	}
	var keep []int
	for i, t := range newTicks {
		if t > max {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil
	}
	subset, err := subsetDataset(ds, w.AppendDim, keep)
	if err != nil {
		return err
	}
	return w.appendPlain(subset)
}

func (w *Writer) appendReplaceOrRetain(ds *dataset.Dataset) error {
	n := 0
	if c := ds.Coordinate(w.AppendDim); c != nil {
		n = c.Data.Shape[0]
	}
	for i := 0; i < n; i++ {
		slice, err := sliceAt(ds, w.AppendDim, i)
		if err != nil {
			return err
		}
		existingTicks, err := w.existingCoordTicks()
		if err != nil {
			return err
		}
		v := sliceAt1Coord(slice, w.AppendDim)
		at, action := Locate(true, existingTicks, v, w.Tolerance)
		switch action {
		case ActionAppend:
			if err := w.appendPlain(slice); err != nil {
				return err
			}
		case ActionInsert:
			if err := w.insertAt(slice, at); err != nil {
				return err
			}
		case ActionReplace:
			if w.Mode == ModeRetain {
				continue
			}
			if err := w.replaceAt(slice, at); err != nil {
				return err
			}
		}
	}
	consolidated, err := w.Store.IsConsolidated()
	if err != nil {
		return err
	}
	if consolidated {
		return w.Store.Consolidate()
	}
	return nil
}

func sliceAt1Coord(ds *dataset.Dataset, dim string) float64 {
	c := ds.Coordinate(dim)
	if c == nil || c.Data.Len() == 0 {
		return 0
	}
	return c.Data.Scalar(0)
}

// scratchVariableName derives a stable, collision-resistant scratch
// name for staging a variable's merged data before promoting it to
// its real name, standing in for the original's write-to-temp-store-
// then-shift insertion strategy (spec §4.6): the hash keys on the
// variable name and insertion index so concurrent inserts at distinct
// positions never collide on the same scratch name.
func scratchVariableName(name string, at int) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s@%d", name, at)))
	return fmt.Sprintf(".scratch-%s-%x", name, sum[:8])
}

func (w *Writer) insertAt(slice *dataset.Dataset, at int) error {
	for _, v := range slice.Variables() {
		idx := v.DimIndex(w.AppendDim)
		if idx < 0 {
			continue
		}
		if idx != 0 {
			return fmt.Errorf("%w: variable %q", nzerr.AppendDimNotFirst, v.Name)
		}
		existing, err := w.Store.ReadVariable(v.Name)
		if err != nil {
			return err
		}
		merged, err := existing.Data.InsertAt(idx, at, v.Data)
		if err != nil {
			return fmt.Errorf("%w: %s", nzerr.StoreIOError, err)
		}
		existing.Data = merged
		existing.Shape = merged.Shape

		scratch := existing.Clone()
		scratchName := scratchVariableName(v.Name, at)
		scratch.Name = scratchName
		if err := w.Store.WriteVariable(scratch); err != nil {
			return fmt.Errorf("%w: staging insert for %q: %s", nzerr.StoreIOError, v.Name, err)
		}
		if err := w.promoteScratch(scratchName, v.Name); err != nil {
			return err
		}
		if v.Name == w.AppendDim {
			w.cache.noteTicks(w.AppendDim, CoordTicks(merged))
		}
	}
	return nil
}

// promoteScratch reads the staged scratch variable back and writes it
// under its real name, so the real write's source is the durable
// staged copy rather than the in-memory merge that produced it (spec
// §4.6's "write to a temporary store, then shift"): a crash between
// the stage and the promotion leaves a complete, recoverable scratch
// variable instead of a half-written real one.
func (w *Writer) promoteScratch(scratchName, finalName string) error {
	staged, err := w.Store.ReadVariable(scratchName)
	if err != nil {
		return fmt.Errorf("%w: reading staged insert for %q: %s", nzerr.StoreIOError, finalName, err)
	}
	staged.Name = finalName
	if err := w.Store.WriteVariable(staged); err != nil {
		return err
	}
	if err := w.Store.DeleteVariable(scratchName); err != nil && w.Log != nil {
		w.Log.Warn("could not remove insert scratch variable %s: %s", scratchName, err)
	}
	return nil
}

func (w *Writer) replaceAt(slice *dataset.Dataset, at int) error {
	for _, v := range slice.Variables() {
		idx := v.DimIndex(w.AppendDim)
		if idx < 0 {
			continue
		}
		existing, err := w.Store.ReadVariable(v.Name)
		if err != nil {
			return err
		}
		merged, err := existing.Data.ReplaceAt(idx, at, v.Data)
		if err != nil {
			return fmt.Errorf("%w: %s", nzerr.StoreIOError, err)
		}
		existing.Data = merged
		if err := w.Store.WriteVariable(existing); err != nil {
			return err
		}
		if v.Name == w.AppendDim {
			w.cache.noteTicks(w.AppendDim, CoordTicks(merged))
		}
	}
	return nil
}

func sliceAt(ds *dataset.Dataset, dim string, idx int) (*dataset.Dataset, error) {
	out := dataset.New()
	out.Attrs = ds.Attrs.Clone()
	for _, v := range ds.Variables() {
		d := v.DimIndex(dim)
		cp := v.Clone()
		if d >= 0 {
			arr, err := v.Data.SliceDim(d, idx, 1)
			if err != nil {
				return nil, err
			}
			cp.Data = arr
			cp.Shape = arr.Shape
		}
		if err := out.Put(cp); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func subsetDataset(ds *dataset.Dataset, dim string, keep []int) (*dataset.Dataset, error) {
	if len(keep) == 0 {
		return dataset.New(), nil
	}
	result, err := sliceAt(ds, dim, keep[0])
	if err != nil {
		return nil, err
	}
	for _, i := range keep[1:] {
		next, err := sliceAt(ds, dim, i)
		if err != nil {
			return nil, err
		}
		for _, name := range result.Names() {
			v := result.Get(name)
			d := v.DimIndex(dim)
			if d < 0 {
				continue
			}
			other := next.Get(name)
			merged, err := dataset.ConcatDim(d, v.Data, other.Data)
			if err != nil {
				return nil, err
			}
			v.Data = merged
			v.Shape = merged.Shape
		}
	}
	return result, nil
}

var negInf = math.Inf(-1)

func monotoneNonDecreasing(ticks []float64) bool {
	for i := 1; i < len(ticks); i++ {
		if ticks[i] < ticks[i-1] {
			return false
		}
	}
	return true
}

func monotoneIncreasing(ticks []float64) bool {
	for i := 1; i < len(ticks); i++ {
		if ticks[i] <= ticks[i-1] {
			return false
		}
	}
	return true
}
