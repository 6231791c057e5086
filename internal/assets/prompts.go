// Package assets provides embedded prompt templates.
//
// Prompt templates are stored as text files under prompts/ and embedded at compile time.
package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

// AnalysisSystemPrompt frames the listing analysis call.
//
//go:embed prompts/analysis-system.txt
var AnalysisSystemPrompt string

// SubjectPreservationRules is attached to every enhancement call. It forbids
// any change to the product itself.
//
//go:embed prompts/subject-preservation.txt
var SubjectPreservationRules string

//go:embed prompts/analysis-user.txt
var analysisUserTemplate string

//go:embed prompts/enhance-standard.txt
var enhanceStandardTemplate string

//go:embed prompts/enhance-high.txt
var enhanceHighTemplate string

// template.Must panics on malformed templates at startup, not at call time.
var (
	analysisTmpl        = template.Must(template.New("analysis").Parse(analysisUserTemplate))
	enhanceStandardTmpl = template.Must(template.New("standard").Parse(enhanceStandardTemplate))
	enhanceHighTmpl     = template.Must(template.New("high").Parse(enhanceHighTemplate))
)

// EnhancementData is injected into the enhancement templates.
type EnhancementData struct {
	Rules       string
	AspectRatio string
	Refinement  string
}

// RenderAnalysisPrompt renders the analysis prompt. metadataContext may be empty.
func RenderAnalysisPrompt(metadataContext string) string {
	return render(analysisTmpl, struct{ MetadataContext string }{metadataContext})
}

// RenderEnhancementPrompt renders the tier-specific enhancement instruction.
// The subject preservation rules are always included.
func RenderEnhancementPrompt(highTier bool, aspectRatio, refinement string) string {
	tmpl := enhanceStandardTmpl
	if highTier {
		tmpl = enhanceHighTmpl
	}
	return render(tmpl, EnhancementData{
		Rules:       strings.TrimSpace(SubjectPreservationRules),
		AspectRatio: aspectRatio,
		Refinement:  strings.TrimSpace(refinement),
	})
}

func render(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	// Execution errors are not expected with these templates; return whatever rendered.
	_ = tmpl.Execute(&buf, data)
	return strings.TrimSpace(buf.String())
}
