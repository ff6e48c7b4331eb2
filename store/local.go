package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bcdev/nc2zarr/dataset"
)

// localStore is a Store backed by a plain local directory. Local disk
// I/O has no ecosystem library analogue in the reference dependency
// pack beyond the standard library's os package (the pack's own
// object-storage client wraps net/http directly rather than a
// third-party SDK), so localStore uses os/filepath directly; see
// DESIGN.md.
//
// Layout (a simplified, self-contained stand-in for the chunked
// array-store wire format spec §1 Non-goals excludes reimplementing):
//
//	<root>/.zattrs.json        root attribute block
//	<root>/.zconsolidated.json consolidated metadata snapshot, if any
//	<root>/<var>/.zarray.json  VariableMeta for <var>
//	<root>/<var>/data.bin      <var>'s raw row-major bytes
type localStore struct {
	root string
}

func newLocalStore(root string) *localStore {
	return &localStore{root: root}
}

func (s *localStore) Describe() string { return s.root }

func (s *localStore) varDir(name string) string  { return filepath.Join(s.root, name) }
func (s *localStore) metaPath(name string) string { return filepath.Join(s.varDir(name), ".zarray.json") }
func (s *localStore) dataPath(name string) string { return filepath.Join(s.varDir(name), "data.bin") }
func (s *localStore) attrsPath() string           { return filepath.Join(s.root, ".zattrs.json") }
func (s *localStore) consolidatedPath() string     { return filepath.Join(s.root, ".zconsolidated.json") }

func (s *localStore) Exists() (bool, error) {
	info, err := os.Stat(s.root)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, wrapIO(err)
	}
	return info.IsDir(), nil
}

func (s *localStore) Create(ds *dataset.Dataset, enc map[string]dataset.Encoding) error {
	if err := os.RemoveAll(s.root); err != nil {
		return wrapIO(err)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return wrapIO(err)
	}
	if err := s.SetRootAttrs(ds.Attrs); err != nil {
		return err
	}
	for _, v := range ds.Variables() {
		cp := v.Clone()
		if e, ok := enc[v.Name]; ok {
			cp.Encoding = e
			if chunks, ok := e.Chunks(); ok {
				cp.Chunks = chunks
			}
		}
		if err := s.WriteVariable(cp); err != nil {
			return err
		}
	}
	return nil
}

func (s *localStore) VariableNames() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, s.root)
	}
	if err != nil {
		return nil, wrapIO(err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *localStore) ReadVariable(name string) (*dataset.Variable, error) {
	metaRaw, err := os.ReadFile(s.metaPath(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("store: variable %q: %w", name, ErrNotExist)
	}
	if err != nil {
		return nil, wrapIO(err)
	}
	var meta VariableMeta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("store: variable %q: %w", name, err)
	}
	rawData, err := os.ReadFile(s.dataPath(name))
	if err != nil {
		return nil, wrapIO(err)
	}
	data, err := decodeData(rawData, meta.Encoding)
	if err != nil {
		return nil, fmt.Errorf("store: variable %q: %w", name, err)
	}
	arr, err := dataset.NewArray(meta.DType, meta.Shape, data)
	if err != nil {
		return nil, err
	}
	return &dataset.Variable{
		Name: meta.Name, Dims: meta.Dims, Shape: meta.Shape, DType: meta.DType,
		Chunks: meta.Chunks, Attrs: meta.Attrs, Encoding: meta.Encoding, Data: arr,
	}, nil
}

func (s *localStore) WriteVariable(v *dataset.Variable) error {
	if err := os.MkdirAll(s.varDir(v.Name), 0o755); err != nil {
		return wrapIO(err)
	}
	meta := VariableMeta{
		Name: v.Name, Dims: v.Dims, Shape: v.Shape, DType: v.DType,
		Chunks: v.Chunks, Attrs: v.Attrs, Encoding: v.Encoding,
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.metaPath(v.Name), raw, 0o644); err != nil {
		return wrapIO(err)
	}
	var data []byte
	if v.Data != nil {
		data = v.Data.Data
	}
	encoded, err := encodeData(data, v.Encoding)
	if err != nil {
		return fmt.Errorf("store: variable %q: %w", v.Name, err)
	}
	if err := os.WriteFile(s.dataPath(v.Name), encoded, 0o644); err != nil {
		return wrapIO(err)
	}
	return nil
}

func (s *localStore) DeleteVariable(name string) error {
	if err := os.RemoveAll(s.varDir(name)); err != nil {
		return wrapIO(err)
	}
	return nil
}

func (s *localStore) RootAttrs() (dataset.Attrs, error) {
	raw, err := os.ReadFile(s.attrsPath())
	if os.IsNotExist(err) {
		return dataset.Attrs{}, nil
	}
	if err != nil {
		return nil, wrapIO(err)
	}
	var attrs dataset.Attrs
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (s *localStore) SetRootAttrs(attrs dataset.Attrs) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return wrapIO(err)
	}
	raw, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.attrsPath(), raw, 0o644); err != nil {
		return wrapIO(err)
	}
	return nil
}

func (s *localStore) IsConsolidated() (bool, error) {
	_, err := os.Stat(s.consolidatedPath())
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, wrapIO(err)
	}
	return true, nil
}

func (s *localStore) Consolidate() error {
	names, err := s.VariableNames()
	if err != nil {
		return err
	}
	snapshot := map[string]VariableMeta{}
	for _, name := range names {
		raw, err := os.ReadFile(s.metaPath(name))
		if err != nil {
			return wrapIO(err)
		}
		var meta VariableMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return err
		}
		snapshot[name] = meta
	}
	attrs, err := s.RootAttrs()
	if err != nil {
		return err
	}
	doc := struct {
		Attrs     dataset.Attrs           `json:"attrs"`
		Variables map[string]VariableMeta `json:"variables"`
	}{attrs, snapshot}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return wrapIO(os.WriteFile(s.consolidatedPath(), raw, 0o644))
}

func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrIOSentinel, err)
}
