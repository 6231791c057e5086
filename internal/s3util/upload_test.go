package s3util

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, path, want string
	}{
		{"", "/tmp/out/archive.zip", "archive.zip"},
		{"exports", "/tmp/out/archive.zip", "exports/archive.zip"},
		{"exports/2026/", "archive.zip", "exports/2026/archive.zip"},
	}
	for _, tt := range tests {
		if got := ObjectKey(tt.prefix, tt.path); got != tt.want {
			t.Errorf("ObjectKey(%q, %q) = %q, want %q", tt.prefix, tt.path, got, tt.want)
		}
	}
}

func TestUploadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.zip")
	if err := os.WriteFile(path, []byte("zipdata"), 0o600); err != nil {
		t.Fatal(err)
	}

	put := &fakePutter{}
	key, err := UploadFile(context.Background(), put, "bucket", "exports/archive.zip", path, "application/zip")
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if key != "exports/archive.zip" {
		t.Errorf("key = %q", key)
	}
	if *put.input.Bucket != "bucket" || *put.input.ContentType != "application/zip" {
		t.Errorf("input = %+v", put.input)
	}
	if *put.input.Tagging != projectTag {
		t.Errorf("Tagging = %q, want %q", *put.input.Tagging, projectTag)
	}
	if string(put.body) != "zipdata" {
		t.Errorf("body = %q", put.body)
	}
}

func TestUploadFileErrors(t *testing.T) {
	if _, err := UploadFile(context.Background(), &fakePutter{}, "b", "k", filepath.Join(t.TempDir(), "missing.zip"), "application/zip"); err == nil {
		t.Error("UploadFile() with missing file returned nil error")
	}

	path := filepath.Join(t.TempDir(), "a.zip")
	_ = os.WriteFile(path, []byte("x"), 0o600)
	putErr := errors.New("access denied")
	if _, err := UploadFile(context.Background(), &fakePutter{err: putErr}, "b", "k", path, "application/zip"); !errors.Is(err, putErr) {
		t.Errorf("UploadFile() error = %v, want wrapped put error", err)
	}
}
