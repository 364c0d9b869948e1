package tools

import "google.golang.org/genai"

// Registry holds the fixed capability set. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds the registry with every capability wired in.
// The set is closed at compile time.
func NewRegistry(internet *InternetSearch) *Registry {
	all := []Tool{internet}

	r := &Registry{tools: make(map[string]Tool, len(all))}
	for _, t := range all {
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Declarations returns the schemas advertised to the model, in
// registration order.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Declaration())
	}
	return decls
}
