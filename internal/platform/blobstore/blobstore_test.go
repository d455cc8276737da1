package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

func seedBlob(t *testing.T, store BlobStore, ownerID, category, fileName, contentType, content string) *BlobMetadata {
	t.Helper()
	meta := BlobMetadata{
		FileName:    fileName,
		ContentType: contentType,
		OwnerID:     ownerID,
		Category:    category,
		CreatedBy:   "test-user",
	}
	result, err := store.Upload(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

func TestInMemoryBlobStore_Upload(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := "%PDF-1.4 fake scan"

	meta := BlobMetadata{
		FileName:    "license.pdf",
		ContentType: "application/pdf",
		OwnerID:     "doctor-1",
		Category:    "verification-document",
		CreatedBy:   "doctor-1",
	}

	result, err := store.Upload(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if result.FileName != "license.pdf" {
		t.Errorf("expected FileName=license.pdf, got %s", result.FileName)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("expected Size=%d, got %d", len(content), result.Size)
	}

	expectedHash := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
	if result.Hash != expectedHash {
		t.Errorf("expected hash %s, got %s", expectedHash, result.Hash)
	}
	if result.CreatedAt.IsZero() {
		t.Fatal("expected non-zero CreatedAt")
	}
}

func TestInMemoryBlobStore_Upload_MissingFileName(t *testing.T) {
	store := NewInMemoryBlobStore()
	meta := BlobMetadata{ContentType: "application/pdf"}

	_, err := store.Upload(context.Background(), meta, strings.NewReader("x"))
	if !errors.Is(err, ErrMissingFileName) {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}
}

func TestInMemoryBlobStore_Upload_DisallowedContentType(t *testing.T) {
	store := NewInMemoryBlobStore()
	meta := BlobMetadata{
		FileName:    "payload.html",
		ContentType: "text/html",
	}

	_, err := store.Upload(context.Background(), meta, strings.NewReader("<html>"))
	if !errors.Is(err, ErrInvalidContentType) {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}
}

func TestInMemoryBlobStore_Upload_TooLarge(t *testing.T) {
	store := NewInMemoryBlobStore()
	meta := BlobMetadata{
		FileName:    "scan.png",
		ContentType: "image/png",
	}

	oversized := bytes.NewReader(bytes.Repeat([]byte("a"), MaxFileSize+1))
	_, err := store.Upload(context.Background(), meta, oversized)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestInMemoryBlobStore_DownloadRoundTrip(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := "jpeg-bytes"
	seeded := seedBlob(t, store, "patient-1", "imaging", "xray.jpg", "image/jpeg", content)

	rc, meta, err := store.Download(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != content {
		t.Errorf("expected content %q, got %q", content, string(data))
	}
	if meta.OwnerID != "patient-1" {
		t.Errorf("expected owner patient-1, got %s", meta.OwnerID)
	}
}

func TestInMemoryBlobStore_Download_NotFound(t *testing.T) {
	store := NewInMemoryBlobStore()
	_, _, err := store.Download(context.Background(), "nope")
	if !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryBlobStore_GetMetadata(t *testing.T) {
	store := NewInMemoryBlobStore()
	seeded := seedBlob(t, store, "patient-1", "lab-results", "cbc.pdf", "application/pdf", "results")

	meta, err := store.GetMetadata(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if meta.Category != "lab-results" {
		t.Errorf("expected category lab-results, got %s", meta.Category)
	}

	if _, err := store.GetMetadata(context.Background(), "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryBlobStore_Delete(t *testing.T) {
	store := NewInMemoryBlobStore()
	seeded := seedBlob(t, store, "patient-1", "general", "note.pdf", "application/pdf", "note")

	if err := store.Delete(context.Background(), seeded.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetMetadata(context.Background(), seeded.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Error("expected blob to be gone after delete")
	}
	if err := store.Delete(context.Background(), seeded.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound on double delete, got %v", err)
	}
}

func TestInMemoryBlobStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryBlobStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			meta := BlobMetadata{
				FileName:    fmt.Sprintf("doc-%d.pdf", n),
				ContentType: "application/pdf",
				OwnerID:     "patient-1",
			}
			if _, err := store.Upload(context.Background(), meta, strings.NewReader("x")); err != nil {
				t.Errorf("upload %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()
}
