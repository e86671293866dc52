package tools

import (
	"context"

	"github.com/forgecode/agentcore/internal/toolfoundry"
)

// defaultReindex refreshes the Symbol and Vector indices for one file
// after a mutating tool writes it, keeping the two caches consistent
// with disk as a single logical step per the concurrency model's
// "write + reindex as one logical step before returning success" rule.
// Index refresh is best-effort: a reindex failure never turns an
// otherwise-successful file write into a failed tool result, since the
// indices are rebuildable caches, never the source of truth.
func defaultReindex(ctx context.Context, deps *toolfoundry.Deps, path string, content string) {
	if deps.SymbolIndex != nil {
		_ = deps.SymbolIndex.UpdateFile(ctx, path, []byte(content))
	}
	if deps.VectorIndex != nil {
		_ = deps.VectorIndex.ReindexFile(ctx, path, []byte(content))
	}
}

// GenerateFunc produces a file body from a natural-language task
// description, as the coder role would when write_file is called
// without literal content. Implemented by internal/conductor, which owns
// the LLM Streamer client and the code_stream_chunk broadcast.
type GenerateFunc func(ctx context.Context, deps *toolfoundry.Deps, path, taskDescription string) (string, error)

// NewProjectFunc creates a brand-new project workspace for the calling
// user. Implemented by internal/session, which owns the per-user
// project.Manager; userID comes from the calling toolfoundry.Deps since
// the Tool Foundry registry is a single shared instance, not rebuilt per
// request.
type NewProjectFunc func(userID int64, name string) error

// RegisterAll registers every Tool Foundry entry from §4.8/§E of the
// design into reg. generate and newProject may be nil (e.g. in tests
// that never exercise those branches), in which case the corresponding
// tool reports itself unavailable rather than panicking.
func RegisterAll(reg *toolfoundry.Registry, generate GenerateFunc, newProject NewProjectFunc) {
	// File system
	reg.Register(ReadFileTool{})
	reg.Register(WriteFileTool{Reindex: defaultReindex, Generate: generate})
	reg.Register(AppendToFileTool{Reindex: defaultReindex})
	reg.Register(DeleteFileTool{})
	reg.Register(CreateDirectoryTool{})
	reg.Register(CreatePackageInitTool{})
	reg.Register(DeleteDirectoryTool{})
	reg.Register(CopyFileTool{})
	reg.Register(MoveFileTool{})
	reg.Register(AddDependencyToRequirementsTool{})
	reg.Register(GetFileTreeTool{})

	// Read-only / inspection
	reg.Register(ListFilesTool{})
	reg.Register(GetDependenciesTool{})
	reg.Register(GetMissionLogTool{})
	reg.Register(FindDefinitionTool{})
	reg.Register(FindReferencesTool{})
	reg.Register(ListFunctionsInFileTool{})
	reg.Register(GetCodeForTool{})
	reg.Register(LintFileTool{})

	// Structure editing
	reg.Register(AddClassToFileTool{Reindex: defaultReindex})
	reg.Register(AddFunctionToFileTool{Reindex: defaultReindex})
	reg.Register(AddMethodToClassTool{Reindex: defaultReindex})
	reg.Register(AddParameterToFunctionTool{Reindex: defaultReindex})
	reg.Register(AddDecoratorToFunctionTool{Reindex: defaultReindex})
	reg.Register(AppendToFunctionTool{Reindex: defaultReindex})
	reg.Register(ReplaceNodeInFileTool{Reindex: defaultReindex})
	reg.Register(ReplaceMethodInClassTool{Reindex: defaultReindex})
	reg.Register(RenameSymbolInFileTool{Reindex: defaultReindex})
	reg.Register(AddImportTool{Reindex: defaultReindex})
	reg.Register(AddAttributeToInitTool{Reindex: defaultReindex})

	// Project-wide
	reg.Register(RenameSymbolTool{Reindex: defaultReindex})
	reg.Register(IndexProjectContextTool{})

	// Mission-log
	reg.Register(AddTaskToMissionLogTool{})
	reg.Register(MarkTaskAsDoneTool{})

	// Execution
	reg.Register(RunTestsTool{})
	reg.Register(RunShellCommandTool{})
	reg.Register(PipInstallTool{})

	// Project lifecycle
	reg.Register(CreateProjectTool{NewProject: newProject})
}
