package prompt

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed templates/reading.md
var readingPromptRaw string

//go:embed templates/system.md
var systemPromptRaw string

var readingPromptTmpl = template.Must(template.New("reading").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(readingPromptRaw))

// Format renders the interpretation prompt for req. The output depends only
// on req.
func Format(req *model.InterpretationRequest) (string, error) {
	if req == nil {
		return "", goerr.Wrap(model.ErrNoCards, "interpretation request is nil")
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := readingPromptTmpl.Execute(&buf, map[string]any{
		"Query": req.Query,
		"Label": req.SpreadType.Label(),
		"Cards": req.Cards,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute reading prompt template")
	}

	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// System returns the instruction for providers that accept a separate system
// prompt
func System() string {
	return strings.TrimSpace(systemPromptRaw)
}
