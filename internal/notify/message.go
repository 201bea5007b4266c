package notify

import (
	"fmt"
	"strings"
	"text/template"

	"vigil/internal/domain"
	"vigil/internal/templatefmt"
)

const messageBody = `{{ headline . }}
{{- with .Context.Duration }}
Recent runs: {{ range $i, $v := .RecentMS }}{{ if $i }}, {{ end }}{{ fmtMillis $v }}{{ end }} (trend {{ .Trend }}, mean {{ fmtMillis .MeanMS }})
{{- with .Anomaly }}
Duration anomaly ({{ .Type }}, {{ .Severity }}): expected {{ fmtMillis .ExpectedLow }} .. {{ fmtMillis .ExpectedHigh }}
{{- end }}
{{- end }}
{{- with .Context.ErrorPattern }}
Failures in last 24h: {{ .FailureCount24h }}
{{- if .LastErrorSnippet }}
Last error: {{ .LastErrorSnippet }}
{{- end }}
{{- end }}
{{- with .Context.Correlation }}
Also failing in this project:{{ range .Related }} {{ or .MonitorName .MonitorID }}{{ end }}
{{- end }}`

var messageTemplate = template.Must(
	template.New("alert").
		Funcs(templatefmt.FuncMap()).
		Funcs(template.FuncMap{"headline": headline}).
		Parse(messageBody),
)

// headline renders the first message line for one event kind.
// Params: event payload.
// Returns: kind-specific summary line.
func headline(event Event) string {
	name := event.Monitor.Name
	if name == "" {
		name = event.Monitor.ID
	}
	project := event.Project.Name
	if project != "" {
		project = " [" + project + "]"
	}
	switch event.Kind {
	case domain.EventDown:
		return fmt.Sprintf("DOWN%s: %s missed its schedule and exceeded grace", project, name)
	case domain.EventUp:
		return fmt.Sprintf("RECOVERED%s: %s is reporting again", project, name)
	case domain.EventFail:
		return fmt.Sprintf("FAIL%s: %s reported a failed run", project, name)
	case domain.EventStillDown:
		return fmt.Sprintf("STILL DOWN%s: %s has not recovered", project, name)
	default:
		return fmt.Sprintf("%s%s: %s", strings.ToUpper(string(event.Kind)), project, name)
	}
}

// RenderMessage renders the shared human-readable alert text.
// Params: event payload.
// Returns: multi-line message used by chat transports.
func RenderMessage(event Event) string {
	var builder strings.Builder
	if err := messageTemplate.Execute(&builder, event); err != nil {
		// Template data is fully under our control; fall back to the headline.
		return headline(event)
	}
	return builder.String()
}
