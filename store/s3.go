package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	awssig "github.com/bcdev/nc2zarr/objstore/aws"
	"github.com/bcdev/nc2zarr/objstore/s3"

	"github.com/bcdev/nc2zarr/dataset"
)

// S3Config carries output.s3.{key,secret,endpoint_url,region_name}
// (spec §6) plus the bucket/prefix split out of output.path.
type S3Config struct {
	Key, Secret      string
	EndpointURL      string
	Region           string
	Bucket, Prefix   string
}

// s3Store is a Store backed by objstore/s3.BucketFS, the fs.FS-shaped
// S3 client. It signs every request with objstore/aws.SigningKey,
// wired from S3Config (spec §6's output.s3 block).
type s3Store struct {
	bucket *s3.BucketFS
	prefix string
}

func newS3Store(bucketAndPrefix string, cfg S3Config) (*s3Store, error) {
	bucket := cfg.Bucket
	prefix := cfg.Prefix
	if bucket == "" {
		b, p := splitBucketPath(bucketAndPrefix)
		bucket, prefix = b, p
	}
	key, err := s3SigningKey(bucket, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolving s3 credentials: %w", err)
	}
	return &s3Store{
		bucket: &s3.BucketFS{Key: key, Bucket: bucket, Ctx: context.Background()},
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// S3Lister returns the fs.FS that backs bucket for object-store input
// path resolution ("for object-store schemes, expansion consults the
// remote lister"). It shares s3Store's credential resolution, so a
// blank cfg.Key/Secret falls back to the same ambient-credential
// chain used for S3 output targets.
func S3Lister(bucket string, cfg S3Config) (fs.FS, error) {
	key, err := s3SigningKey(bucket, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolving s3 credentials: %w", err)
	}
	return &s3.BucketFS{Key: key, Bucket: bucket, Ctx: context.Background()}, nil
}

// s3SigningKey derives the request-signing key from an explicit
// output.s3.{key,secret} pair when present (spec §6). Otherwise, when
// NC2ZARR_EC2_ROLE names an instance role, it uses that role's
// credentials from the EC2 instance metadata; without that variable it
// uses the teacher's ambient-credential discovery: environment
// variables, then the ~/.aws config/credentials files.
//
// A blank region is corrected against the bucket's actual region via
// s3.BucketRegion/s3.DeriveForBucket rather than signing with a
// region that happens to be wrong: for an explicit key this applies
// when both region_name and endpoint_url are left out of output.s3,
// and for the EC2 role path the instance's own region need not match
// the target bucket's.
func s3SigningKey(bucket string, cfg S3Config) (*awssig.SigningKey, error) {
	if !s3.ValidBucket(bucket) {
		return nil, fmt.Errorf("invalid s3 bucket name %q", bucket)
	}
	if cfg.Key != "" && cfg.Secret != "" {
		endpoint := cfg.EndpointURL
		if endpoint == "" {
			endpoint = awssig.S3EndPoint(cfg.Region)
		}
		key := awssig.DeriveKey(endpoint, cfg.Key, cfg.Secret, cfg.Region, "s3")
		if cfg.Region == "" && cfg.EndpointURL == "" {
			// BucketRegion answers with the key's own region whenever the
			// key carries an endpoint, so look the region up with an
			// endpoint-less key.
			probe := awssig.DeriveKey("", cfg.Key, cfg.Secret, "us-east-1", "s3")
			region, err := s3.BucketRegion(probe, bucket)
			if err != nil {
				return nil, err
			}
			key = awssig.DeriveKey(awssig.S3EndPoint(region), cfg.Key, cfg.Secret, region, "s3")
		}
		return key, nil
	}
	if role := os.Getenv("NC2ZARR_EC2_ROLE"); role != "" {
		return awssig.EC2Role(role, "s3", s3.DeriveForBucket(bucket))
	}
	return awssig.AmbientKey("s3", nil)
}

// splitBucketPath splits "s3://bucket/a/b" or "bucket/a/b" into
// ("bucket", "a/b").
func splitBucketPath(p string) (bucket, prefix string) {
	p = strings.TrimPrefix(p, "s3://")
	i := strings.IndexByte(p, '/')
	if i < 0 {
		return p, ""
	}
	return p[:i], p[i+1:]
}

// Describe returns the pre-signed HTTPS URL of the store's root
// attribute object, letting operators paste the active store's
// location straight into a browser or curl for a quick sanity check.
func (s *s3Store) Describe() string {
	u, err := s3.URL(s.bucket.Key, s.bucket.Bucket, s.key(".zattrs.json"))
	if err != nil {
		return fmt.Sprintf("s3://%s/%s", s.bucket.Bucket, s.prefix)
	}
	return u
}

func (s *s3Store) key(parts ...string) string {
	full := append([]string{s.prefix}, parts...)
	return path.Join(full...)
}

func (s *s3Store) Exists() (bool, error) {
	// A HEAD-only Stat is enough to answer Exists; it avoids pulling
	// down .zattrs.json's body just to check for its presence.
	_, err := s3.Stat(s.bucket.Key, s.bucket.Bucket, s.key(".zattrs.json"))
	if err == nil {
		return true, nil
	}
	if isNotExistErr(err) {
		return false, nil
	}
	return false, wrapIO(err)
}

func (s *s3Store) Create(ds *dataset.Dataset, enc map[string]dataset.Encoding) error {
	names, _ := s.VariableNames()
	for _, n := range names {
		_ = s.DeleteVariable(n)
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

func (s *s3Store) VariableNames() ([]string, error) {
	entries, err := s.bucket.ReadDir(s.prefix)
	if err != nil {
		if isNotExistErr(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, s.prefix)
		}
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

func (s *s3Store) readJSON(key string, v interface{}) error {
	f, err := s.bucket.Open(key)
	if err != nil {
		if isNotExistErr(err) {
			return fmt.Errorf("%w: %s", ErrNotExist, key)
		}
		return wrapIO(err)
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return wrapIO(err)
	}
	return json.Unmarshal(raw, v)
}

func (s *s3Store) writeJSON(key string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = s.bucket.Put(key, raw)
	return wrapIO(err)
}

func (s *s3Store) ReadVariable(name string) (*dataset.Variable, error) {
	var meta VariableMeta
	if err := s.readJSON(s.key(name, ".zarray.json"), &meta); err != nil {
		return nil, fmt.Errorf("store: variable %q: %w", name, err)
	}
	f, err := s.bucket.Open(s.key(name, "data.bin"))
	if err != nil {
		return nil, wrapIO(err)
	}
	defer f.Close()
	rawData, err := io.ReadAll(f)
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

func (s *s3Store) WriteVariable(v *dataset.Variable) error {
	meta := VariableMeta{
		Name: v.Name, Dims: v.Dims, Shape: v.Shape, DType: v.DType,
		Chunks: v.Chunks, Attrs: v.Attrs, Encoding: v.Encoding,
	}
	if err := s.writeJSON(s.key(v.Name, ".zarray.json"), meta); err != nil {
		return err
	}
	var data []byte
	if v.Data != nil {
		data = v.Data.Data
	}
	encoded, err := encodeData(data, v.Encoding)
	if err != nil {
		return fmt.Errorf("store: variable %q: %w", v.Name, err)
	}
	dataKey := s.key(v.Name, "data.bin")
	// Variables with encoded chunk data of at least twice S3's multipart
	// part-size floor go through a multipart upload instead of a
	// single PutObject, the way the teacher's own large-object writers
	// do; small variables (the common case for per-timestep metadata
	// arrays) still take the plain single-request path.
	if len(encoded) >= 2*s3.MinPartSize {
		return wrapIO(s.putMultipart(dataKey, encoded))
	}
	_, err = s.bucket.Put(dataKey, encoded)
	return wrapIO(err)
}

func (s *s3Store) putMultipart(key string, data []byte) error {
	u := &s3.Uploader{Key: s.bucket.Key, Bucket: s.bucket.Bucket, Object: key}
	if err := u.Start(); err != nil {
		return fmt.Errorf("s3 multipart upload: %w", err)
	}
	for len(data) >= 2*s3.MinPartSize {
		part := data[:s3.MinPartSize]
		data = data[s3.MinPartSize:]
		if err := u.Upload(u.NextPart(), part); err != nil {
			_ = u.Abort()
			return fmt.Errorf("s3 multipart upload: %w", err)
		}
	}
	if err := u.Close(data); err != nil {
		_ = u.Abort()
		return fmt.Errorf("s3 multipart upload: %w", err)
	}
	return nil
}

func (s *s3Store) DeleteVariable(name string) error {
	for _, suffix := range []string{".zarray.json", "data.bin"} {
		if err := s.bucket.Remove(s.key(name, suffix)); err != nil && !isNotExistErr(err) {
			return wrapIO(err)
		}
	}
	return nil
}

func (s *s3Store) RootAttrs() (dataset.Attrs, error) {
	var attrs dataset.Attrs
	err := s.readJSON(s.key(".zattrs.json"), &attrs)
	if errors.Is(err, ErrNotExist) {
		return dataset.Attrs{}, nil
	}
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

func (s *s3Store) SetRootAttrs(attrs dataset.Attrs) error {
	return s.writeJSON(s.key(".zattrs.json"), attrs)
}

func (s *s3Store) IsConsolidated() (bool, error) {
	_, err := s3.Stat(s.bucket.Key, s.bucket.Bucket, s.key(".zconsolidated.json"))
	if err == nil {
		return true, nil
	}
	if isNotExistErr(err) {
		return false, nil
	}
	return false, wrapIO(err)
}

func (s *s3Store) Consolidate() error {
	names, err := s.VariableNames()
	if err != nil {
		return err
	}
	snapshot := map[string]VariableMeta{}
	for _, name := range names {
		var meta VariableMeta
		if err := s.readJSON(s.key(name, ".zarray.json"), &meta); err != nil {
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
	return s.writeJSON(s.key(".zconsolidated.json"), doc)
}

func isNotExistErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, ErrNotExist) {
		return true
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return strings.Contains(pe.Err.Error(), "404")
	}
	return strings.Contains(err.Error(), "404") || strings.Contains(err.Error(), "NoSuchKey")
}
