package convert

import (
	"errors"
	"testing"

	"github.com/bcdev/nc2zarr/dataset"
)

func TestRegisterAndResolveHook(t *testing.T) {
	RegisterHook("example.com/mypkg:Scale", func(ds *dataset.Dataset) (*dataset.Dataset, error) {
		return ds, nil
	})
	fn, err := ResolveHook("example.com/mypkg:Scale")
	if err != nil {
		t.Fatal(err)
	}
	if fn == nil {
		t.Fatal("expected a non-nil hook function")
	}
}

func TestResolveHookUnregistered(t *testing.T) {
	if _, err := ResolveHook("nosuch.pkg:Fn"); err == nil {
		t.Error("expected an error for an unregistered hook")
	}
}

func TestResolveHookMalformedReference(t *testing.T) {
	if _, err := ResolveHook("not a hook ref"); err == nil {
		t.Error("expected an error for a malformed hook reference")
	}
}

func TestProcessPropagatesCustomProcessorError(t *testing.T) {
	RegisterHook("convert_test:Fail", func(ds *dataset.Dataset) (*dataset.Dataset, error) {
		return nil, errors.New("boom")
	})
	ds := dataset.New()
	_, _, err := Process(ds, ProcessOptions{CustomProcessor: "convert_test:Fail"})
	if err == nil {
		t.Error("expected the custom processor's error to propagate")
	}
}
