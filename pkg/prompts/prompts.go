// Package prompts loads the prompt templates used for content generation.
// Operators can override the defaults by dropping a prompts.yaml next to
// the binary.
package prompts

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

const defaultPromptsPath = "prompts.yaml"

const defaultSystemGeneration = `You are a scriptwriter for short-form video content.
Given a topic, write an engaging narration script with a hook in the first
sentence, then produce a title, a one-paragraph description and tags.
Respond with a JSON object: {"script": "...", "title": "...",
"description": "...", "tags": ["..."]}.`

const defaultRequestTemplate = `Topic: {{.Prompt}}
{{- if .Audience}}
Target audience: {{.Audience}}
{{- end}}
{{- if gt .MaxSeconds 0}}
Spoken length: {{.MinSeconds}}-{{.MaxSeconds}} seconds at a natural pace.
{{- end}}
`

type Prompts struct {
	System     SystemPrompts     `yaml:"system"`
	Generation GenerationPrompts `yaml:"generation"`
}

type SystemPrompts struct {
	Generation string `yaml:"generation"`
}

type GenerationPrompts struct {
	Request string `yaml:"request"`
}

type RequestParams struct {
	Prompt     string
	Audience   string
	MinSeconds int
	MaxSeconds int
}

// Load reads prompts.yaml from the working directory. A missing file is not
// an error: the built-in templates are used.
func Load() (*Prompts, error) {
	return LoadFrom(defaultPromptsPath)
}

func LoadFrom(path string) (*Prompts, error) {
	p := &Prompts{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			p.applyDefaults()
			return p, nil
		}
		return nil, fmt.Errorf("read prompts file: %w", err)
	}

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}

	p.applyDefaults()
	return p, nil
}

func (p *Prompts) applyDefaults() {
	if p.System.Generation == "" {
		p.System.Generation = defaultSystemGeneration
	}
	if p.Generation.Request == "" {
		p.Generation.Request = defaultRequestTemplate
	}
}

// SystemGeneration is the system message for content generation.
func (p *Prompts) SystemGeneration() string {
	return p.System.Generation
}

// RenderRequest builds the user message for one generation request.
func (p *Prompts) RenderRequest(params RequestParams) (string, error) {
	return render(p.Generation.Request, params)
}

func render(tmpl string, data any) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
