package notifications

// commonTemplates are the builtin templates selectable by name.
var commonTemplates = map[string]string{
	`default`: `
{{- if .Summary -}}
  {{- range $i, $line := .Summary -}}
    {{- if $i}}{{println}}{{end -}}
    {{$line.Emoji}} {{Title $line.Kind}}: {{$line.Count}} ({{Percent $line.Percentage}})
    {{- range $line.Entries}}
- {{.}}
    {{- end -}}
  {{- end -}}
{{- else -}}
  Nothing deleted
  {{- with .DryRun}} ({{len .}} deletions planned by dry-run){{end -}}
{{- end -}}`,

	`porcelain.v1.summary`: `
{{- range .Deleted}}deleted {{.}}{{println}}{{end -}}
{{- range .Failed}}failed {{.}}{{println}}{{end -}}
{{- range .Skipped}}skipped {{.}}{{println}}{{end -}}
{{- range .DryRun}}dry-run {{.}}{{println}}{{end -}}`,

	`json.v1`: `{{ . | ToJSON }}`,
}
