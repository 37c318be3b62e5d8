package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// SaveObjectToGCS uploads raw evidence bytes under the given object name.
func SaveObjectToGCS(ctx context.Context, objectName string, data []byte, contentType string) error {
	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return errors.New("GCS_BUCKET is required")
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket %q not found or not accessible: %v", bucketName, err)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}

// StoreEvidenceObject stores a claim evidence attachment and returns its access URL.
// STORAGE_PROVIDER=local writes under LOCAL_STORAGE_DIR for dev environments
// without GCS credentials.
func StoreEvidenceObject(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if GetStorageProvider() == StorageProviderLocal {
		dir := strings.TrimSpace(os.Getenv("LOCAL_STORAGE_DIR"))
		if dir == "" {
			dir = "uploads"
		}
		path := filepath.Join(dir, filepath.FromSlash(objectName))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", err
		}
		return path, nil
	}

	if err := SaveObjectToGCS(ctx, objectName, data, contentType); err != nil {
		return "", err
	}
	return BuildObjectAccessURL(objectName), nil
}
