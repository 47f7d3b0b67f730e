// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package anomaly

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/goccy/go-json"

	"github.com/tomtom215/insiderwatch/internal/config"
	"github.com/tomtom215/insiderwatch/internal/models"
)

func writeModel(t *testing.T, path string, m *Model) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	writeModel(t, path, testModel(-0.5))

	m, err := NewFileSource(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.Forest.Offset != -0.5 {
		t.Errorf("offset = %v", m.Forest.Offset)
	}
}

func TestFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "absent.json")).Load(context.Background())
	if !errors.Is(err, models.ErrModelUnavailable) {
		t.Errorf("Load() error = %v, want ErrModelUnavailable", err)
	}
}

func TestFileSource_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewFileSource(path).Load(context.Background())
	if err == nil || errors.Is(err, models.ErrModelUnavailable) {
		t.Errorf("Load() error = %v, want a decode error", err)
	}
}

func TestCachedSource_ReloadsOnModTimeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	writeModel(t, path, testModel(-0.5))
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	src := NewCachedSource(NewFileSource(path))
	ctx := context.Background()

	first, err := src.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := src.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("unchanged file was reloaded")
	}

	writeModel(t, path, testModel(-0.7))
	if err := os.Chtimes(path, time.Now(), time.Now()); err != nil {
		t.Fatal(err)
	}
	third, err := src.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if third == first || third.Forest.Offset != -0.7 {
		t.Errorf("modified file not reloaded: offset = %v", third.Forest.Offset)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Load(ctx); !errors.Is(err, models.ErrModelUnavailable) {
		t.Errorf("Load() after removal = %v, want ErrModelUnavailable", err)
	}
}

// mockS3 serves one object and honors If-None-Match.
type mockS3 struct {
	mu    sync.Mutex
	data  []byte
	etag  string
	err   error
	calls int
}

type statusError struct{ code int }

func (e *statusError) Error() string       { return "http status" }
func (e *statusError) HTTPStatusCode() int { return e.code }

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if aws.ToString(in.IfNoneMatch) == m.etag {
		return nil, &statusError{code: 304}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(m.data)),
		ETag: aws.String(m.etag),
	}, nil
}

func TestS3Source(t *testing.T) {
	data, err := json.Marshal(testModel(-0.5))
	if err != nil {
		t.Fatal(err)
	}
	client := &mockS3{data: data, etag: `"v1"`}
	src := NewS3Source(client, "models", "forest.json")
	ctx := context.Background()

	first, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	second, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if first != second {
		t.Error("unchanged object was re-parsed")
	}

	updated, _ := json.Marshal(testModel(-0.9))
	client.mu.Lock()
	client.data, client.etag = updated, `"v2"`
	client.mu.Unlock()

	third, err := src.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if third.Forest.Offset != -0.9 {
		t.Errorf("offset = %v, want -0.9", third.Forest.Offset)
	}
}

func TestS3Source_Missing(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"no such key", &types.NoSuchKey{}},
		{"no such bucket", &types.NoSuchBucket{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewS3Source(&mockS3{err: tt.err}, "models", "forest.json")
			if _, err := src.Load(context.Background()); !errors.Is(err, models.ErrModelUnavailable) {
				t.Errorf("Load() error = %v, want ErrModelUnavailable", err)
			}
		})
	}

	src := NewS3Source(&mockS3{err: errors.New("connection reset")}, "models", "forest.json")
	_, err := src.Load(context.Background())
	if err == nil || errors.Is(err, models.ErrModelUnavailable) {
		t.Errorf("Load() error = %v, want a transport error", err)
	}
}

func TestNewSource_FileByDefault(t *testing.T) {
	src, err := NewSource(context.Background(), &config.AnomalyConfig{ModelPath: "/nonexistent/model.json"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*CachedSource); !ok {
		t.Errorf("NewSource() = %T, want *CachedSource", src)
	}
}
