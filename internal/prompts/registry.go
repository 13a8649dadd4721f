// Package prompts loads versioned prompt templates and renders them from typed contexts.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"resume-pipeline/internal/shared/util"
)

//go:embed templates/*.tmpl
var embedded embed.FS

var (
	ErrTemplateNotFound   = errors.New("prompt template not found")
	ErrMissingPlaceholder = errors.New("missing placeholder")
	ErrUnresolved         = errors.New("unresolved placeholder")
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Context supplies placeholder values for one template.
type Context interface {
	Placeholders() map[string]string
}

// Vars is an untyped Context, used by tooling that renders arbitrary templates.
type Vars map[string]string

// Placeholders implements Context.
func (v Vars) Placeholders() map[string]string { return v }

// Meta is the YAML front matter of a template file.
type Meta struct {
	Name         string   `yaml:"name"`
	Version      int      `yaml:"version"`
	Description  string   `yaml:"description"`
	Placeholders []string `yaml:"placeholders"`
}

// Template is one loaded template version.
type Template struct {
	Meta
	Body string
	File string
}

// Rendered is the final prompt text with the identity of the template that produced it.
type Rendered struct {
	Name    string
	Version int
	Text    string
	Hash    string
}

// Registry holds every loaded template version, keyed by name.
type Registry struct {
	mu        sync.RWMutex
	templates map[string][]Template
}

// Default loads the templates embedded in the binary.
func Default() (*Registry, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir loads templates from a directory on disk.
func LoadDir(dir string) (*Registry, error) {
	return Load(os.DirFS(dir))
}

// Load reads every *.tmpl file in fsys.
func Load(fsys fs.FS) (*Registry, error) {
	r := &Registry{templates: make(map[string][]Template)}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".tmpl" {
			return nil
		}
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		tmpl, err := parseTemplate(p, raw)
		if err != nil {
			return err
		}
		return r.add(tmpl)
	})
	if err != nil {
		return nil, err
	}
	if len(r.templates) == 0 {
		return nil, errors.New("no prompt templates found")
	}
	return r, nil
}

func parseTemplate(file string, raw []byte) (Template, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return Template{}, fmt.Errorf("template %s: missing front matter", file)
	}
	rest := strings.TrimPrefix(text, "---\n")
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return Template{}, fmt.Errorf("template %s: unterminated front matter", file)
	}
	var meta Meta
	dec := yaml.NewDecoder(bytes.NewReader([]byte(rest[:end])))
	dec.KnownFields(true)
	if err := dec.Decode(&meta); err != nil {
		return Template{}, fmt.Errorf("template %s: front matter: %w", file, err)
	}
	if strings.TrimSpace(meta.Name) == "" {
		return Template{}, fmt.Errorf("template %s: name is required", file)
	}
	if meta.Version <= 0 {
		return Template{}, fmt.Errorf("template %s: version must be positive", file)
	}
	body := strings.TrimSpace(rest[end+len("\n---\n"):])

	declared := make(map[string]struct{}, len(meta.Placeholders))
	for _, p := range meta.Placeholders {
		declared[p] = struct{}{}
	}
	for _, m := range placeholderRe.FindAllStringSubmatch(body, -1) {
		if _, ok := declared[m[1]]; !ok {
			return Template{}, fmt.Errorf("template %s: body uses undeclared placeholder %q", file, m[1])
		}
	}
	return Template{Meta: meta, Body: body, File: file}, nil
}

func (r *Registry) add(t Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.templates[t.Name] {
		if existing.Version == t.Version {
			return fmt.Errorf("template %s v%d defined twice (%s, %s)", t.Name, t.Version, existing.File, t.File)
		}
	}
	versions := append(r.templates[t.Name], t)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	r.templates[t.Name] = versions
	return nil
}

// Names returns the registered template names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Latest returns the highest version of a template.
func (r *Registry) Latest(name string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.templates[name]
	if len(versions) == 0 {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return versions[len(versions)-1], nil
}

// Version returns a pinned template version.
func (r *Registry) Version(name string, version int) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.templates[name] {
		if t.Version == version {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %s v%d", ErrTemplateNotFound, name, version)
}

// Render resolves the latest version of name against ctx.
func (r *Registry) Render(name string, ctx Context) (Rendered, error) {
	t, err := r.Latest(name)
	if err != nil {
		return Rendered{}, err
	}
	return t.Render(ctx)
}

// RenderVersion resolves a pinned version of name against ctx.
func (r *Registry) RenderVersion(name string, version int, ctx Context) (Rendered, error) {
	t, err := r.Version(name, version)
	if err != nil {
		return Rendered{}, err
	}
	return t.Render(ctx)
}

// Render substitutes every declared placeholder in a single pass.
// Values are inserted verbatim, so text that looks like a placeholder inside a value is not expanded.
func (t Template) Render(ctx Context) (Rendered, error) {
	var values map[string]string
	if ctx != nil {
		values = ctx.Placeholders()
	}
	for _, p := range t.Placeholders {
		if _, ok := values[p]; !ok {
			return Rendered{}, fmt.Errorf("render %s v%d: %w %q", t.Name, t.Version, ErrMissingPlaceholder, p)
		}
	}

	var missing string
	text := placeholderRe.ReplaceAllStringFunc(t.Body, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := values[key]
		if !ok {
			missing = key
			return m
		}
		return v
	})
	if missing != "" {
		return Rendered{}, fmt.Errorf("render %s v%d: %w %q", t.Name, t.Version, ErrUnresolved, missing)
	}
	return Rendered{Name: t.Name, Version: t.Version, Text: text, Hash: util.HashString(text)}, nil
}
