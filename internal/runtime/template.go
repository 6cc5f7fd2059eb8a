package runtime

import (
	"context"
	"sync"

	"github.com/driaug/plunk/internal/perr"
)

// Template is the raw subject/body text named by a Step's TemplateRef or an
// Email's TemplateRef — rendered by this package, but owned and stored by
// an external collaborator (a template editor/API). Transactional marks
// the template as exempt from the unsubscribe footer.
type Template struct {
	Subject       string
	Body          string
	Transactional bool
}

// TemplateProvider resolves a templateRef to its raw (unrendered) content.
type TemplateProvider interface {
	GetTemplate(ctx context.Context, templateRef string) (Template, error)
}

// MemoryTemplateProvider is a fixed in-process TemplateProvider, suitable
// for tests and single-operator deployments that configure templates
// statically rather than through a separate authoring service.
type MemoryTemplateProvider struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewMemoryTemplateProvider() *MemoryTemplateProvider {
	return &MemoryTemplateProvider{templates: make(map[string]Template)}
}

func (p *MemoryTemplateProvider) Put(ref string, t Template) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.templates[ref] = t
}

func (p *MemoryTemplateProvider) GetTemplate(_ context.Context, templateRef string) (Template, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.templates[templateRef]
	if !ok {
		return Template{}, &perr.NotFoundError{Resource: "template", ID: templateRef}
	}
	return t, nil
}
