// Package livetest provides helpers for integration tests against live
// backends: a moto server standing in for S3, or a real Supabase project.
//
// Tests using this package should be tagged with //go:build liveintegration.
//
// Usage:
//
//	func TestAgainstMoto(t *testing.T) {
//	    livetest.SkipIfNoMoto(t)
//	    store := livetest.NewS3Store(t, ctx)
//	    // ... test code ...
//	}
package livetest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dataviz-jp/cartosync/pkg/blobstore/s3"
	"github.com/dataviz-jp/cartosync/pkg/blobstore/supabase"
)

const (
	// DefaultMotoEndpoint is the default moto server endpoint.
	// Port 5555 avoids conflict with macOS AirTunes on 5000.
	DefaultMotoEndpoint = "http://localhost:5555"

	// DefaultRegion is the region moto tests run in.
	DefaultRegion = "us-east-1"

	// Moto accepts any credentials.
	testAccessKeyID     = "testing"
	testSecretAccessKey = "testing"
)

// MotoEndpoint is configurable via MOTO_ENDPOINT.
var MotoEndpoint = getEnvOrDefault("MOTO_ENDPOINT", DefaultMotoEndpoint)

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// MotoAvailable checks if the moto server is reachable.
func MotoAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, MotoEndpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// SkipIfNoMoto skips the test when no moto server is running.
func SkipIfNoMoto(t *testing.T) {
	t.Helper()
	if !MotoAvailable() {
		t.Skipf("moto server not available at %s (start with: make moto-start)", MotoEndpoint)
	}
}

// ResetMoto clears all moto state. Call between tests for isolation.
func ResetMoto(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, MotoEndpoint+"/moto-api/reset", nil)
	if err != nil {
		return fmt.Errorf("create reset request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reset moto: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reset moto: status %d", resp.StatusCode)
	}
	return nil
}

// CreateBucket creates a uniquely named bucket on moto and returns its name.
func CreateBucket(t *testing.T, ctx context.Context) string {
	t.Helper()

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(DefaultRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(testAccessKeyID, testSecretAccessKey, ""),
		),
	)
	if err != nil {
		t.Fatalf("load aws config: %v", err)
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		o.BaseEndpoint = aws.String(MotoEndpoint)
		o.UsePathStyle = true
	})

	bucket := "cartosync-test-" + uuid.NewString()
	if _, err := client.CreateBucket(ctx, &awss3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("create bucket %s: %v", bucket, err)
	}
	return bucket
}

// NewS3Store builds a blobstore.Store against moto with a fresh bucket.
func NewS3Store(t *testing.T, ctx context.Context) *s3.Store {
	t.Helper()

	bucket := CreateBucket(t, ctx)
	store, err := s3.New(ctx, s3.Config{
		Bucket:          bucket,
		Region:          DefaultRegion,
		Endpoint:        MotoEndpoint,
		AccessKeyID:     testAccessKeyID,
		SecretAccessKey: testSecretAccessKey,
		ForcePathStyle:  true,
	})
	if err != nil {
		t.Fatalf("build s3 store: %v", err)
	}
	return store
}

// SkipIfNoSupabase skips unless SUPABASE_TEST_URL and SUPABASE_TEST_KEY are
// set. Live Supabase tests write real rows; point them at a throwaway
// project.
func SkipIfNoSupabase(t *testing.T) {
	t.Helper()
	if os.Getenv("SUPABASE_TEST_URL") == "" || os.Getenv("SUPABASE_TEST_KEY") == "" {
		t.Skip("SUPABASE_TEST_URL / SUPABASE_TEST_KEY not set")
	}
}

// NewSupabaseStore builds a blobstore.Store against the configured live
// Supabase project.
func NewSupabaseStore(t *testing.T) *supabase.Client {
	t.Helper()

	client, err := supabase.New(supabase.Config{
		BaseURL: os.Getenv("SUPABASE_TEST_URL"),
		APIKey:  os.Getenv("SUPABASE_TEST_KEY"),
		Bucket:  getEnvOrDefault("SUPABASE_TEST_BUCKET", "user_projects"),
	})
	if err != nil {
		t.Fatalf("build supabase store: %v", err)
	}
	return client
}
