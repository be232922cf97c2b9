package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:8080/audio", nil)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	url, err := store.Upload(context.Background(), "turns/abc.wav", "audio/wav", []byte("RIFF"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "http://localhost:8080/audio/turns/abc.wav" {
		t.Fatalf("unexpected URL %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "turns", "abc.wav"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "RIFF" {
		t.Fatalf("stored %q, want RIFF", data)
	}
}

func TestLocalStoreFileURLWithoutBase(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "", nil)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	url, err := store.Upload(context.Background(), "a.wav", "audio/wav", []byte("x"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, "a.wav") {
		t.Fatalf("unexpected URL %q", url)
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "", nil)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if _, err := store.Upload(context.Background(), "../../etc/escape", "text/plain", []byte("x")); err != nil {
		// A sanitized key is also acceptable as long as it stays inside dir.
		t.Logf("upload rejected: %v", err)
		return
	}
	if _, err := os.Stat(filepath.Join(dir, "etc", "escape")); err != nil {
		t.Fatalf("sanitized key not written inside store dir: %v", err)
	}
}

type fakeS3 struct {
	bucket      string
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = *in.Bucket
	f.key = *in.Key
	f.contentType = *in.ContentType
	buf := make([]byte, 64)
	n, _ := in.Body.Read(buf)
	f.body = buf[:n]
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreUpload(t *testing.T) {
	client := &fakeS3{}
	store, err := NewS3Store(client, S3Options{
		Bucket:        "voxa-audio",
		Prefix:        "tts",
		PublicBaseURL: "https://cdn.example.com/",
	}, nil)
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}

	url, err := store.Upload(context.Background(), "abc.wav", "audio/wav", []byte("RIFF"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://cdn.example.com/tts/abc.wav" {
		t.Fatalf("unexpected URL %q", url)
	}
	if client.bucket != "voxa-audio" || client.key != "tts/abc.wav" {
		t.Fatalf("unexpected put target %s/%s", client.bucket, client.key)
	}
	if client.contentType != "audio/wav" {
		t.Fatalf("unexpected content type %q", client.contentType)
	}
	if string(client.body) != "RIFF" {
		t.Fatalf("unexpected body %q", client.body)
	}
}

func TestS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(&fakeS3{}, S3Options{PublicBaseURL: "https://x"}, nil); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}
