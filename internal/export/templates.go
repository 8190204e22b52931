package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var dashboardTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	content, err := templateFS.ReadFile("templates/dashboard.html")
	if err != nil {
		dashboardTemplate = template.Must(template.New("dashboard").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	dashboardTemplate = template.Must(template.New("dashboard").Funcs(funcMap).Parse(string(content)))
}

// RenderDashboardHTML renders the dashboard report template.
func RenderDashboardHTML(data DashboardData) (string, error) {
	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Operations Dashboard</title>
</head>
<body>
  <h1>Operations Dashboard{{if .TeamName}} - {{.TeamName}}{{end}}</h1>
  <p>{{formatDate .GeneratedAt "Jan 2, 2006"}}</p>
  {{range .StatusCounts}}<div>{{.Label}}: {{.Count}}</div>{{end}}
</body>
</html>`
