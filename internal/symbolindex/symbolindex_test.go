package symbolindex

import (
	"context"
	"testing"

	"github.com/forgecode/agentcore/pkg/models"
)

const sourceV1 = `
def helper():
    return 1

def caller():
    helper()
`

const sourceV2 = `
def caller():
    pass
`

func TestUpdateFileIndexesDefinitionsAndCalls(t *testing.T) {
	idx := New()
	if err := idx.UpdateFile(context.Background(), "mod.py", []byte(sourceV1)); err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}

	defs := idx.FindDefinition("helper")
	if len(defs) != 1 || defs[0].Kind != models.SymbolFunction {
		t.Fatalf("expected one function definition for helper, got %+v", defs)
	}

	refs := idx.FindReferences("helper")
	if len(refs) != 1 || refs[0].Name != "caller" {
		t.Fatalf("expected caller to reference helper, got %+v", refs)
	}

	callees := idx.GetCallees("caller")
	if len(callees) != 1 || callees[0] != "helper" {
		t.Fatalf("expected caller callees [helper], got %v", callees)
	}
}

func TestUpdateFileReindexesAndDropsStaleSymbols(t *testing.T) {
	idx := New()
	if err := idx.UpdateFile(context.Background(), "mod.py", []byte(sourceV1)); err != nil {
		t.Fatalf("UpdateFile v1: %v", err)
	}
	if err := idx.UpdateFile(context.Background(), "mod.py", []byte(sourceV2)); err != nil {
		t.Fatalf("UpdateFile v2: %v", err)
	}

	if defs := idx.FindDefinition("helper"); len(defs) != 0 {
		t.Fatalf("expected helper definition to be dropped after reindex, got %+v", defs)
	}
	if refs := idx.FindReferences("helper"); len(refs) != 0 {
		t.Fatalf("expected no references to helper after reindex, got %+v", refs)
	}
	if defs := idx.FindDefinition("caller"); len(defs) != 1 {
		t.Fatalf("expected caller still defined, got %+v", defs)
	}
}

func TestRemoveFile(t *testing.T) {
	idx := New()
	if err := idx.UpdateFile(context.Background(), "mod.py", []byte(sourceV1)); err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}
	idx.RemoveFile("mod.py")
	if defs := idx.FindDefinition("helper"); len(defs) != 0 {
		t.Fatalf("expected no definitions after RemoveFile, got %+v", defs)
	}
}
