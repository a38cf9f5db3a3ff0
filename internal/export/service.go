package export

import (
	"context"
	"fmt"
	"time"
)

type renderFunc func(ctx context.Context, html, title string) (*Result, error)

// Service turns report data into a downloadable file.
type Service struct {
	appName    string
	now        func() time.Time
	renderPDF  renderFunc
	renderDOCX renderFunc
}

// NewService creates an export service backed by headless Chrome and pandoc.
func NewService(appName string) *Service {
	return &Service{
		appName:    appName,
		now:        time.Now,
		renderPDF:  exportPDF,
		renderDOCX: exportDOCX,
	}
}

// Export renders data in the requested format.
func (s *Service) Export(ctx context.Context, data ReportData, format Format) (*Result, error) {
	if data.AppName == "" {
		data.AppName = s.appName
	}
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = s.now()
	}
	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(data.Title()) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.renderPDF(ctx, html, data.Title())
	case FormatDOCX:
		return s.renderDOCX(ctx, html, data.Title())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
