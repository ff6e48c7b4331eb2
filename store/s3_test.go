package store

import (
	"testing"
)

func TestS3SigningKeyUsesExplicitCredentials(t *testing.T) {
	key, err := s3SigningKey("my-test-bucket", S3Config{Key: "AKIAEXAMPLE", Secret: "secret", Region: "eu-central-1"})
	if err != nil {
		t.Fatal(err)
	}
	if key.AccessKey != "AKIAEXAMPLE" {
		t.Errorf("got %q, want AKIAEXAMPLE", key.AccessKey)
	}
	if key.Region != "eu-central-1" {
		t.Errorf("got %q, want eu-central-1", key.Region)
	}
}

func TestS3SigningKeyFallsBackToAmbientEnvironment(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAAMBIENT")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "ambientsecret")
	t.Setenv("AWS_REGION", "us-west-2")
	t.Setenv("AWS_SESSION_TOKEN", "")

	key, err := s3SigningKey("my-test-bucket", S3Config{})
	if err != nil {
		t.Fatal(err)
	}
	if key.AccessKey != "AKIAAMBIENT" {
		t.Errorf("got %q, want AKIAAMBIENT", key.AccessKey)
	}
	if key.Region != "us-west-2" {
		t.Errorf("got %q, want us-west-2", key.Region)
	}
}

func TestS3SigningKeyRejectsInvalidBucketName(t *testing.T) {
	if _, err := s3SigningKey("x", S3Config{Key: "k", Secret: "s", Region: "us-east-1"}); err == nil {
		t.Error("expected an error for a too-short bucket name")
	}
}

func TestS3ListerSharesCredentialResolution(t *testing.T) {
	fsys, err := S3Lister("my-bucket", S3Config{Key: "AKIAEXAMPLE", Secret: "secret", Region: "us-east-1"})
	if err != nil {
		t.Fatal(err)
	}
	if fsys == nil {
		t.Fatal("expected a non-nil fs.FS")
	}
}
