package attachments

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"innomatch/api/internal/config"
)

func TestObjectKeyValidation(t *testing.T) {
	cases := []struct {
		name     string
		owner    string
		kind     Kind
		filename string
		wantErr  bool
	}{
		{"image", "u1", KindImage, "Site Photo.JPG", false},
		{"document", "u1", KindDocument, "proposal.pdf", false},
		{"report", "admin", KindReport, "final.xlsx", false},
		{"unknown kind", "u1", Kind("avatar"), "me.png", true},
		{"blocked extension", "u1", KindImage, "payload.exe", true},
		{"document as image", "u1", KindImage, "deck.pdf", true},
		{"no owner", "", KindImage, "a.png", true},
		{"no extension", "u1", KindDocument, "README", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, contentType, err := objectKey(tc.owner, tc.kind, tc.filename)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidUpload) {
					t.Fatalf("expected ErrInvalidUpload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("objectKey: %v", err)
			}
			if !strings.HasPrefix(key, string(tc.kind)+"/"+tc.owner+"/") {
				t.Fatalf("unexpected key layout %q", key)
			}
			if contentType == "" {
				t.Fatalf("expected content type for %s", tc.filename)
			}
		})
	}
}

func TestObjectKeySanitizesPath(t *testing.T) {
	key, contentType, err := objectKey("u1", KindImage, `..\..\etc/My Photo.png`)
	if err != nil {
		t.Fatalf("objectKey: %v", err)
	}
	if strings.Contains(key, "..") || !strings.HasSuffix(key, "-my-photo.png") {
		t.Fatalf("unexpected key %q", key)
	}
	if contentType != "image/png" {
		t.Fatalf("unexpected content type %q", contentType)
	}
}

func TestServicePresignWithMemorySigner(t *testing.T) {
	svc := NewService(NewMemorySigner("portal-uploads", "http://blobs.test"), 10*time.Minute)
	fixed := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	up, err := svc.Presign(context.Background(), "u1", KindDocument, "plan.pdf")
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if up.Method != "PUT" || up.ContentType != "application/pdf" {
		t.Fatalf("unexpected upload %+v", up)
	}
	if !up.ExpiresAt.Equal(fixed.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", up.ExpiresAt)
	}
	u, err := url.Parse(up.UploadURL)
	if err != nil {
		t.Fatalf("parse upload url: %v", err)
	}
	if u.Query().Get("method") != "PUT" || !strings.Contains(u.Path, up.Key) {
		t.Fatalf("unexpected upload url %s", up.UploadURL)
	}
	if svc.Driver() != DriverMemory {
		t.Fatalf("unexpected driver %s", svc.Driver())
	}
}

func TestMinioSignerPresignsOffline(t *testing.T) {
	signer, err := NewMinioSigner(MinioConfig{
		Endpoint:  "minio.test:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "portal-uploads",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewMinioSigner: %v", err)
	}
	raw, err := signer.PresignPut(context.Background(), "image/u1/abc-photo.png", "image/png", 5*time.Minute)
	if err != nil {
		t.Fatalf("PresignPut: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "minio.test:9000" || u.Path != "/portal-uploads/image/u1/abc-photo.png" {
		t.Fatalf("unexpected presigned url %s", raw)
	}
	if u.Query().Get("X-Amz-Expires") != "300" || u.Query().Get("X-Amz-Signature") == "" {
		t.Fatalf("expected sigv4 query, got %s", u.RawQuery)
	}
}

func TestMinioSignerRequiresEndpointAndBucket(t *testing.T) {
	if _, err := NewMinioSigner(MinioConfig{Bucket: "b"}); err == nil {
		t.Fatal("expected missing endpoint to fail")
	}
	if _, err := NewMinioSigner(MinioConfig{Endpoint: "minio.test:9000"}); err == nil {
		t.Fatal("expected missing bucket to fail")
	}
}

func TestS3SignerPresignsOffline(t *testing.T) {
	signer, err := NewS3Signer(context.Background(), S3Config{
		Region:    "eu-west-1",
		Bucket:    "portal-uploads",
		Endpoint:  "https://s3.test",
		AccessKey: "AKIA",
		SecretKey: "SECRET",
	})
	if err != nil {
		t.Fatalf("NewS3Signer: %v", err)
	}
	raw, err := signer.PresignGet(context.Background(), "document/u1/abc-plan.pdf", 15*time.Minute)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "s3.test" || !strings.HasPrefix(u.Path, "/portal-uploads/document/u1/") {
		t.Fatalf("unexpected presigned url %s", raw)
	}
	if u.Query().Get("X-Amz-Expires") != "900" {
		t.Fatalf("unexpected expiry in %s", u.RawQuery)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	signer, err := Open(context.Background(), config.Config{BlobDriver: "memory", BlobBucket: "b"})
	if err != nil || signer.Driver() != DriverMemory {
		t.Fatalf("expected memory signer, got %v (%v)", signer, err)
	}
	if _, err := Open(context.Background(), config.Config{BlobDriver: "ftp"}); err == nil {
		t.Fatal("expected unknown driver to fail")
	}
}
