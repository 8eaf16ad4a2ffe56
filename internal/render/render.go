// Package render turns document view models into HTML. Default templates are
// compiled into the binary; a directory on disk may override any template,
// stylesheet or image asset by file name.
package render

import (
	"bytes"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"mime"
	"os"
	"path"
	"sync"
)

// Template names known to the renderer.
const (
	Certificate     = "certificate"
	ApplicationForm = "application_form"
)

// ErrUnknownTemplate is returned when Render is asked for a name it does not
// know.
var ErrUnknownTemplate = errors.New("unknown template")

//go:embed templates
var embedded embed.FS

// Renderer parses templates lazily and caches them until Invalidate.
type Renderer struct {
	files fs.FS

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// New builds a renderer. When dir is non-empty its files take precedence over
// the embedded defaults.
func New(dir string) *Renderer {
	base, _ := fs.Sub(embedded, "templates")
	files := base
	if dir != "" {
		files = layered{os.DirFS(dir), base}
	}
	return &Renderer{files: files, cache: make(map[string]*template.Template)}
}

// Render executes the named template with data.
func (r *Renderer) Render(name string, data any) (string, error) {
	tmpl, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.String(), nil
}

// Invalidate drops every cached template so the next Render re-reads files.
func (r *Renderer) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]*template.Template)
	r.mu.Unlock()
}

func (r *Renderer) lookup(name string) (*template.Template, error) {
	if name != Certificate && name != ApplicationForm {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	r.mu.RLock()
	tmpl, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	src, err := fs.ReadFile(r.files, name+".html")
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", name, err)
	}
	tmpl, err = template.New(name).Funcs(r.funcs()).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	r.mu.Lock()
	r.cache[name] = tmpl
	r.mu.Unlock()
	return tmpl, nil
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"css": func(file string) (template.CSS, error) {
			data, err := fs.ReadFile(r.files, file)
			if err != nil {
				return "", fmt.Errorf("stylesheet %s: %w", file, err)
			}
			return template.CSS(data), nil
		},
		"asset": func(file string) (template.URL, error) {
			return r.dataURL(file)
		},
		"optionalAsset": func(file string) template.URL {
			u, err := r.dataURL(file)
			if err != nil {
				return ""
			}
			return u
		},
		"inc": func(i int) int { return i + 1 },
	}
}

// dataURL inlines an image so the page renders without network access.
func (r *Renderer) dataURL(file string) (template.URL, error) {
	data, err := fs.ReadFile(r.files, file)
	if err != nil {
		return "", fmt.Errorf("asset %s: %w", file, err)
	}
	ctype := mime.TypeByExtension(path.Ext(file))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	return template.URL("data:" + ctype + ";base64," + base64.StdEncoding.EncodeToString(data)), nil
}

// layered resolves a name against each file system in order.
type layered []fs.FS

func (l layered) Open(name string) (fs.File, error) {
	var firstErr error
	for _, fsys := range l {
		f, err := fsys.Open(name)
		if err == nil {
			return f, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
