// Package symbolindex maintains the pure in-memory, per-project call
// graph: every function/class/method definition, keyed by name and by
// defining file, plus the set of call targets made from inside each.
package symbolindex

import (
	"context"
	"sync"

	"github.com/forgecode/agentcore/internal/pytree"
	"github.com/forgecode/agentcore/pkg/models"
)

// Index is the Symbol Index for one project.
type Index struct {
	mu          sync.RWMutex
	definitions map[string][]models.CodeSymbol // name -> defining symbols
	byFile      map[string][]string            // relative path -> defined names
	parser      *pytree.Parser
}

// New creates an empty Symbol Index.
func New() *Index {
	return &Index{
		definitions: make(map[string][]models.CodeSymbol),
		byFile:      make(map[string][]string),
		parser:      pytree.New(),
	}
}

// UpdateFile removes every symbol previously attributed to path, then
// re-indexes it from content. path is the project-relative path used as
// the index key.
func (idx *Index) UpdateFile(ctx context.Context, path string, content []byte) error {
	defs, err := idx.parser.Parse(ctx, content)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeFileLocked(path)

	var names []string
	for _, d := range defs {
		kind := models.SymbolFunction
		switch d.Kind {
		case "class":
			kind = models.SymbolClass
		case "method":
			kind = models.SymbolMethod
		}
		calls := make(map[string]struct{}, len(d.Calls))
		for _, c := range d.Calls {
			calls[c] = struct{}{}
		}
		sym := models.CodeSymbol{
			Name:        d.Name,
			FilePath:    path,
			Line:        d.StartLine,
			Kind:        kind,
			ParentClass: d.ParentClass,
			Calls:       calls,
		}
		idx.definitions[d.Name] = append(idx.definitions[d.Name], sym)
		names = append(names, d.Name)
	}
	idx.byFile[path] = names
	return nil
}

// RemoveFile drops every symbol attributed to path without re-indexing.
func (idx *Index) RemoveFile(path string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeFileLocked(path)
}

func (idx *Index) removeFileLocked(path string) {
	for _, name := range idx.byFile[path] {
		kept := idx.definitions[name][:0:0]
		for _, sym := range idx.definitions[name] {
			if sym.FilePath != path {
				kept = append(kept, sym)
			}
		}
		if len(kept) == 0 {
			delete(idx.definitions, name)
		} else {
			idx.definitions[name] = kept
		}
	}
	delete(idx.byFile, path)
}

// FindDefinition returns every symbol defining name.
func (idx *Index) FindDefinition(name string) []models.CodeSymbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]models.CodeSymbol(nil), idx.definitions[name]...)
}

// FindReferences returns every symbol whose call set contains name.
func (idx *Index) FindReferences(name string) []models.CodeSymbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var refs []models.CodeSymbol
	for _, syms := range idx.definitions {
		for _, sym := range syms {
			if _, ok := sym.Calls[name]; ok {
				refs = append(refs, sym)
			}
		}
	}
	return refs
}

// GetCallees returns the call set of the first definition of name, or
// nil if name is undefined.
func (idx *Index) GetCallees(name string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	syms := idx.definitions[name]
	if len(syms) == 0 {
		return nil
	}
	callees := make([]string, 0, len(syms[0].Calls))
	for c := range syms[0].Calls {
		callees = append(callees, c)
	}
	return callees
}
