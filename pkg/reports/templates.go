package reports

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// artifactData is the view handed to both templates. Strings that need
// formatting are prepared here so the templates stay declarative.
type artifactData struct {
	Scan           *Scan
	Severity       string
	Score          float64
	DurationText   string
	ScannedText    string
	TotalFiles     int
	TotalLines     int
	Recommendation string
}

func viewOf(scan *Scan) artifactData {
	data := artifactData{
		Scan:           scan,
		Severity:       scan.Severity(),
		Score:          scan.OpportunityScore(),
		DurationText:   "unknown",
		ScannedText:    "unknown",
		TotalFiles:     scan.TotalFiles(),
		TotalLines:     scan.TotalLines(),
		Recommendation: scan.Recommendation(),
	}
	if d := scan.Duration(); d != nil {
		data.DurationText = fmt.Sprintf("%.1fs", *d)
	}
	if t := scan.ScannedAt(); t != nil {
		data.ScannedText = t.UTC().Format("2006-01-02 15:04:05 UTC")
	}
	return data
}

// Scan-supplied strings pass through html/template so everything is
// escaped on the way out.
var htmlReport = htmltemplate.Must(htmltemplate.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Scan Report {{.Scan.ReportID}}</title>
<style>
body { font-family: sans-serif; margin: 2rem auto; max-width: 60rem; color: #1a1a2e; }
table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
th, td { text-align: left; padding: 0.4rem 0.8rem; border-bottom: 1px solid #ddd; }
.severity { text-transform: uppercase; font-weight: bold; }
.warning { color: #a33; }
</style>
</head>
<body>
<h1>Duplicate Detection Scan Report</h1>
<p><strong>Report:</strong> {{.Scan.ReportID}}{{with .Scan.ScanName}} &mdash; {{.}}{{end}}</p>
<p><strong>Scan type:</strong> {{.Scan.ScanType}} &middot; <strong>Scanned:</strong> {{.ScannedText}} &middot; <strong>Duration:</strong> {{.DurationText}}</p>
<h2>Key Findings</h2>
<table>
<tr><th>Duplicate groups</th><td>{{.Scan.Metrics.TotalDuplicateGroups}}</td></tr>
<tr><th>Duplicated lines</th><td>{{.Scan.Metrics.TotalDuplicatedLines}} ({{printf "%.1f" .Scan.Metrics.DuplicationPercentage}}%)</td></tr>
<tr><th>Severity</th><td class="severity">{{.Severity}}</td></tr>
<tr><th>Potential reduction</th><td>{{.Scan.Metrics.PotentialLOCReduction}} lines</td></tr>
<tr><th>Quick wins</th><td>{{.Scan.Metrics.QuickWins}}</td></tr>
<tr><th>Opportunity score</th><td>{{printf "%.2f" .Score}}/100</td></tr>
</table>
<h2>Repositories</h2>
<table>
<tr><th>Name</th><th>Path</th><th>Files</th><th>Lines</th></tr>
{{range .Scan.Repositories}}<tr><td>{{.Name}}</td><td>{{.Path}}</td><td>{{.TotalFiles}}</td><td>{{.TotalLines}}</td></tr>
{{end}}</table>
<p>Scanned {{.TotalFiles}} files, {{.TotalLines}} lines in total.</p>
{{with .Scan.Warnings}}<h2>Warnings</h2>
<ul>{{range .}}<li class="warning">{{.}}</li>{{end}}</ul>
{{end}}{{with .Scan.Recommendations}}<h2>Recommendations</h2>
<ul>{{range .}}<li>{{.}}</li>{{end}}</ul>
{{end}}<h2>Recommendation</h2>
<p>{{.Recommendation}}</p>
</body>
</html>
`))

var markdownReport = texttemplate.Must(texttemplate.New("digest").Parse(`# Duplicate Detection Scan Report

Report {{.Scan.ReportID}} ({{.Scan.ScanType}}), scanned {{.ScannedText}}, duration {{.DurationText}}.

Scanned {{len .Scan.Repositories}} repositor{{if eq (len .Scan.Repositories) 1}}y{{else}}ies{{end}} containing {{.TotalFiles}} files and {{.TotalLines}} lines of code.

## Key Findings

- **Duplicate Groups Found:** {{.Scan.Metrics.TotalDuplicateGroups}}
- **Duplicated Code:** {{.Scan.Metrics.TotalDuplicatedLines}} lines ({{printf "%.1f" .Scan.Metrics.DuplicationPercentage}}% of total)
- **Duplication Severity:** {{.Severity}}
- **Potential Reduction:** {{.Scan.Metrics.PotentialLOCReduction}} lines could be eliminated

## Consolidation Opportunities

- **Quick Wins:** {{.Scan.Metrics.QuickWins}} high-impact, low-effort consolidations
- **Opportunity Score:** {{printf "%.2f" .Score}}/100

## Recommendation

{{.Recommendation}}
{{with .Scan.Warnings}}
## Warnings
{{range .}}
- {{.}}{{end}}
{{end}}`))

func renderHTML(scan *Scan) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlReport.Execute(&buf, viewOf(scan)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderMarkdown(scan *Scan) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdownReport.Execute(&buf, viewOf(scan)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
