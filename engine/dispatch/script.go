package dispatch

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// ScriptData is exposed to the script template.
type ScriptData struct {
	Key    string
	UserID string
}

// ScriptRenderer renders the personal loader script for a redeemed key.
type ScriptRenderer struct {
	tmpl *template.Template
}

func NewScriptRenderer(text string) (*ScriptRenderer, error) {
	tmpl, err := template.New("script").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse script template: %w", err)
	}
	return &ScriptRenderer{tmpl: tmpl}, nil
}

func (r *ScriptRenderer) Render(data ScriptData) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render script: %w", err)
	}
	return buf.String(), nil
}
