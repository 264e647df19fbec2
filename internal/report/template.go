package report

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/geraldosnetto/agro-sub002/internal/aggregate"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

// systemPrompt frames every report. Output language is Brazilian Portuguese.
const systemPrompt = `Você é um analista de mercado do agronegócio brasileiro.
Escreva relatórios objetivos em português, em Markdown, citando apenas os
números fornecidos no contexto. Não invente cotações nem faça recomendações
de compra ou venda.`

// promptTemplate renders the market context handed to the model.
const promptTemplate = `{{if eq .Kind "daily" -}}
Elabore o resumo diário do mercado agro para {{date .TakenAt}}.
Estruture em: Panorama, Grãos, Pecuária, Câmbio e Internacional, Notícias.
{{- else -}}
Elabore uma análise do mercado de {{.Name}} para {{date .TakenAt}}.
Estruture em: Preços físicos, Referência internacional, Fatores de mercado, Perspectiva.
{{- end}}

## Cotações físicas
{{range .Commodities -}}
{{$quotes := index $.Quotes .Slug -}}
### {{.Name}} ({{.Unit}})
{{- if $quotes}}
{{range $quotes}}- {{.Market}}: {{brl .Value}}{{with .Variation}} ({{pctp .}}){{end}} em {{date .Date}}
{{end}}
{{- else}}
- sem cotações disponíveis
{{end}}
{{end -}}

## Referência internacional
{{range $slug, $p := .International -}}
- {{$slug}} {{$p.Symbol}}: {{printf "%.2f" $p.Price}} {{$p.Currency}}{{with $p.Unit}} ({{.}}){{end}}, {{pct $p.ChangePct}}
{{else -}}
- indisponível
{{end}}
## Câmbio
{{with .Rate -}}
- Dólar PTAX venda: {{brl .Venda}} ({{pct .Variation}}) em {{date .Date}}
{{- else -}}
- indisponível
{{- end}}

## Notícias recentes (sentimento: {{.Mood.Label}}, {{.Mood.Count}} notícias)
{{range .News -}}
- [{{.Source}}] {{.Title}}
{{else -}}
- nenhuma notícia recente
{{end -}}
{{if .Missing}}
Dados indisponíveis nesta coleta: {{join .Missing ", "}}.
{{end -}}
`

var prompt = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"brl":  utils.FormatBRL,
	"pct":  utils.FormatPct,
	"pctp": func(p *float64) string { return utils.FormatPct(*p) },
	"date": utils.FormatDateBR,
	"join": strings.Join,
}).Parse(promptTemplate))

// promptData is the template input: the snapshot plus the report target.
type promptData struct {
	aggregate.Snapshot
	Kind models.ReportKind
	Name string
}

// RenderPrompt renders the user prompt for a report from a market snapshot.
// name is the commodity display name for commodity reports.
func RenderPrompt(kind models.ReportKind, name string, snap aggregate.Snapshot) (string, error) {
	var buf bytes.Buffer
	if err := prompt.Execute(&buf, promptData{Snapshot: snap, Kind: kind, Name: name}); err != nil {
		return "", fmt.Errorf("executing prompt template: %w", err)
	}
	return buf.String(), nil
}
