package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"innomatch/api/internal/store"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("January 2, 2006")
	},
	"yesNo": func(b bool) string {
		if b {
			return "Yes"
		}
		return "No"
	},
	"paragraphs": paragraphs,
}).Parse(reportHTML))

// ReportData holds everything the report template renders. Labels come from
// the proposal the report closes out.
type ReportData struct {
	AppName      string
	Report       store.ProjectReport
	ProblemTitle string
	Organization string
	ProductName  string
	OwnerEmail   string
	GeneratedAt  time.Time
}

// Title is the document title and the base of the exported filename.
func (d ReportData) Title() string {
	if strings.TrimSpace(d.Report.ProjectTitle) != "" {
		return d.Report.ProjectTitle
	}
	return "Project report " + d.Report.ID
}

// CreatedAt returns the report creation time, zero when undated.
func (d ReportData) CreatedAt() time.Time {
	ms := d.Report.CreatedMillis()
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// RenderReportHTML renders the report as a standalone HTML page.
func RenderReportHTML(data ReportData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// paragraphs splits free text on blank lines.
func paragraphs(s string) []string {
	var out []string
	for _, block := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, block)
		}
	}
	return out
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, serif; color: #222; line-height: 1.5; }
h1 { font-size: 22pt; margin-bottom: 0; }
.meta { color: #666; font-size: 10pt; margin-bottom: 24px; }
table.facts { border-collapse: collapse; margin-bottom: 24px; }
table.facts th { text-align: left; padding: 4px 12px 4px 0; color: #555; font-weight: normal; }
table.facts td { padding: 4px 0; }
h2 { font-size: 14pt; border-bottom: 1px solid #ddd; padding-bottom: 4px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">{{if .AppName}}{{.AppName}} &middot; {{end}}Project report{{with .CreatedAt | formatDate}} &middot; {{.}}{{end}}</div>
<table class="facts">
{{- if .ProblemTitle}}
<tr><th>Problem statement</th><td>{{.ProblemTitle}}</td></tr>
{{- end}}
{{- if .Organization}}
<tr><th>Organization</th><td>{{.Organization}}</td></tr>
{{- end}}
{{- if .ProductName}}
<tr><th>Research product</th><td>{{.ProductName}}</td></tr>
{{- end}}
{{- if .OwnerEmail}}
<tr><th>Proposal contact</th><td>{{.OwnerEmail}}</td></tr>
{{- end}}
<tr><th>Commercialised</th><td>{{yesNo .Report.IsCommercialised}}</td></tr>
{{- if .Report.ProjectValue}}
<tr><th>Project value</th><td>{{.Report.ProjectValue}}</td></tr>
{{- end}}
{{- if .Report.CloudDocumentsURL}}
<tr><th>Documents</th><td><a href="{{.Report.CloudDocumentsURL}}">{{.Report.CloudDocumentsURL}}</a></td></tr>
{{- end}}
<tr><th>Reported by</th><td>{{.Report.AdminEmail}}</td></tr>
</table>
<h2>Final report</h2>
{{range paragraphs .Report.FinalReport}}<p>{{.}}</p>
{{end}}
<h2>Outcomes</h2>
{{range paragraphs .Report.Outcomes}}<p>{{.}}</p>
{{end}}
<h2>National impacts</h2>
{{range paragraphs .Report.NationalImpacts}}<p>{{.}}</p>
{{end}}
{{- if not .GeneratedAt.IsZero}}
<div class="meta">Generated {{formatDate .GeneratedAt}}</div>
{{- end}}
</body>
</html>
`
