// Command nc2zarr-fs is a small maintenance CLI for array stores,
// local or S3-backed: list, remove, and copy variables between stores
// without going through the conversion pipeline.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bcdev/nc2zarr/dataset"
	"github.com/bcdev/nc2zarr/store"
)

const version = "0.1.0"

var (
	dashS3Key         string
	dashS3Secret      string
	dashS3EndpointURL string
	dashS3Region      string
	dashVersion       bool
)

func init() {
	flag.StringVar(&dashS3Key, "s3-key", "", "S3 access key")
	flag.StringVar(&dashS3Secret, "s3-secret", "", "S3 secret key")
	flag.StringVar(&dashS3EndpointURL, "s3-endpoint", "", "S3-compatible endpoint URL")
	flag.StringVar(&dashS3Region, "s3-region", "", "S3 region")
	flag.BoolVar(&dashVersion, "version", false, "print version and exit")
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	flag.Parse()

	if dashVersion {
		fmt.Println(version)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		exitf("usage: nc2zarr-fs <ls|rm|cp> ...")
	}

	var err error
	switch args[0] {
	case "ls":
		err = runLs(args[1:])
	case "rm":
		err = runRm(args[1:])
	case "cp":
		err = runCp(args[1:])
	default:
		exitf("unknown subcommand %q (want ls, rm, or cp)", args[0])
	}
	if err != nil {
		exitf("%s", err)
	}
}

func openStore(path string) (store.Store, error) {
	if strings.HasPrefix(path, "s3://") {
		return store.Open("s3", path, store.S3Config{
			Key: dashS3Key, Secret: dashS3Secret,
			EndpointURL: dashS3EndpointURL, Region: dashS3Region,
		})
	}
	return store.Open("local", path, store.S3Config{})
}

func runLs(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: nc2zarr-fs ls <path>")
	}
	s, err := openStore(args[0])
	if err != nil {
		return err
	}
	names, err := s.VariableNames()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runRm(args []string) error {
	recursive := false
	var rest []string
	for _, a := range args {
		if a == "-r" || a == "--recursive" {
			recursive = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: nc2zarr-fs rm [-r] <path>")
	}
	s, err := openStore(rest[0])
	if err != nil {
		return err
	}
	names, err := s.VariableNames()
	if err != nil {
		return err
	}
	if len(names) > 1 && !recursive {
		return fmt.Errorf("store has %d variables; pass -r to remove them all", len(names))
	}
	for _, n := range names {
		if err := s.DeleteVariable(n); err != nil {
			return err
		}
	}
	return nil
}

func runCp(args []string) error {
	recursive := false
	var rest []string
	for _, a := range args {
		if a == "-r" || a == "--recursive" {
			recursive = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) != 2 {
		return fmt.Errorf("usage: nc2zarr-fs cp [-r] <from> <to>")
	}
	from, err := openStore(rest[0])
	if err != nil {
		return err
	}
	to, err := openStore(rest[1])
	if err != nil {
		return err
	}
	exists, err := to.Exists()
	if err != nil {
		return err
	}
	if !exists {
		if err := to.Create(dataset.New(), nil); err != nil {
			return err
		}
	}
	names, err := from.VariableNames()
	if err != nil {
		return err
	}
	if len(names) > 1 && !recursive {
		return fmt.Errorf("store has %d variables; pass -r to copy them all", len(names))
	}
	for _, n := range names {
		v, err := from.ReadVariable(n)
		if err != nil {
			return err
		}
		if err := to.WriteVariable(v); err != nil {
			return err
		}
	}
	attrs, err := from.RootAttrs()
	if err != nil {
		return err
	}
	if len(attrs) > 0 {
		if err := to.SetRootAttrs(attrs); err != nil {
			return err
		}
	}
	return nil
}
