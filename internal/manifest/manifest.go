// Package manifest renders the task manifest a node submits when starting
// its container task on a matched deal.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"fleetmanager/internal/core"
)

// templateData is the set of values a manifest template may reference.
type templateData struct {
	NodeTag string
	Tag     string
}

// TemplateBuilder renders a node's task manifest from the YAML template
// file its task class configures, substituting the node's tag the way the
// reference tool's Jinja2 templating did.
type TemplateBuilder struct {
	// TemplateDir is the directory TaskConfig.TemplateFile is resolved
	// relative to.
	TemplateDir string
}

// NewTemplateBuilder creates a builder resolving templates under dir.
func NewTemplateBuilder(dir string) *TemplateBuilder {
	return &TemplateBuilder{TemplateDir: dir}
}

// BuildManifest renders nodeTag's task manifest. It implements
// fleet.ManifestBuilder.
func (b *TemplateBuilder) BuildManifest(nodeTag string, cfg core.TaskConfig) ([]byte, error) {
	path := filepath.Join(b.TemplateDir, cfg.TemplateFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task template %q: %w", path, err)
	}

	tmpl, err := template.New(cfg.TemplateFile).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse task template %q: %w", path, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{NodeTag: nodeTag, Tag: cfg.Tag}); err != nil {
		return nil, fmt.Errorf("render task template %q: %w", path, err)
	}

	return buf.Bytes(), nil
}
