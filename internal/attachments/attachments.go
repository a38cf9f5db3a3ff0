// Package attachments hands out presigned URLs so clients upload problem
// images and proposal documents straight to object storage. The API never
// proxies file bytes.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"innomatch/api/internal/util"
)

// Driver identifies a concrete signing backend.
type Driver string

const (
	DriverMemory Driver = "memory" // in-process URLs (dev, tests)
	DriverMinio  Driver = "minio"  // MinIO via minio-go
	DriverS3     Driver = "s3"     // AWS S3 via aws-sdk-go-v2
)

// Kind is what the uploaded file will be attached to.
type Kind string

const (
	KindImage    Kind = "image"    // problem statement image_url
	KindDocument Kind = "document" // proposal documents_url
	KindReport   Kind = "report"   // project report cloud_documents_url
)

var allowedExtensions = map[Kind][]string{
	KindImage:    {".jpg", ".jpeg", ".png", ".webp", ".gif"},
	KindDocument: {".pdf", ".doc", ".docx", ".ppt", ".pptx", ".zip"},
	KindReport:   {".pdf", ".doc", ".docx", ".xlsx", ".zip"},
}

// ErrInvalidUpload rejects an unknown kind or a disallowed file type.
var ErrInvalidUpload = errors.New("invalid upload")

// Signer produces time-limited URLs for a single bucket.
type Signer interface {
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Driver() Driver
}

// Upload is returned to the client: PUT the file to UploadURL, then store
// DownloadURL on the record.
type Upload struct {
	Key         string    `json:"key"`
	UploadURL   string    `json:"uploadUrl"`
	DownloadURL string    `json:"downloadUrl"`
	Method      string    `json:"method"`
	ContentType string    `json:"contentType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type Service struct {
	signer Signer
	ttl    time.Duration
	now    func() time.Time
}

func NewService(signer Signer, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{signer: signer, ttl: ttl, now: time.Now}
}

// Presign validates the request and signs an upload under
// <kind>/<ownerID>/<random>-<name>.
func (s *Service) Presign(ctx context.Context, ownerID string, kind Kind, filename string) (Upload, error) {
	key, contentType, err := objectKey(ownerID, kind, filename)
	if err != nil {
		return Upload{}, err
	}
	uploadURL, err := s.signer.PresignPut(ctx, key, contentType, s.ttl)
	if err != nil {
		return Upload{}, fmt.Errorf("presign upload: %w", err)
	}
	downloadURL, err := s.signer.PresignGet(ctx, key, s.ttl)
	if err != nil {
		return Upload{}, fmt.Errorf("presign download: %w", err)
	}
	return Upload{
		Key:         key,
		UploadURL:   uploadURL,
		DownloadURL: downloadURL,
		Method:      "PUT",
		ContentType: contentType,
		ExpiresAt:   s.now().Add(s.ttl).UTC(),
	}, nil
}

func (s *Service) Driver() Driver { return s.signer.Driver() }

func objectKey(ownerID string, kind Kind, filename string) (string, string, error) {
	exts, ok := allowedExtensions[kind]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown kind %q", ErrInvalidUpload, kind)
	}
	if strings.TrimSpace(ownerID) == "" {
		return "", "", fmt.Errorf("%w: owner required", ErrInvalidUpload)
	}
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := strings.ToLower(path.Ext(base))
	allowed := false
	for _, candidate := range exts {
		if ext == candidate {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", "", fmt.Errorf("%w: %q files are not accepted for %s", ErrInvalidUpload, ext, kind)
	}
	name := sanitizeName(strings.TrimSuffix(base, path.Ext(base)))
	if name == "" {
		name = "file"
	}
	key := fmt.Sprintf("%s/%s/%s-%s%s", kind, sanitizeName(ownerID), util.NewID("")[:12], name, ext)
	return key, contentTypes[ext], nil
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".zip":  "application/zip",
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
