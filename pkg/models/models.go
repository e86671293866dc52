// Package models contains the data types shared across agentcore's
// components: mission tasks, tool invocations, code-intelligence records,
// and the external seams (users, provider keys, role assignments) the
// core consumes but does not own.
package models


// Task is a single entry in a project's Mission Log.
//
// IDs are monotonically increasing within a project and are never reused,
// even after a task is deleted or replaced by a strategic re-plan.
type Task struct {
	ID          int        `json:"id"`
	Description string     `json:"description"`
	Done        bool       `json:"done"`
	ToolCall    *Invocation `json:"tool_call,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// MissionLog is the durable, ordered task list for one project.
type MissionLog struct {
	InitialGoal string `json:"initial_goal"`
	Tasks       []Task `json:"tasks"`
	NextID      int    `json:"next_id"`
}

// Invocation is a tool call emitted by the LLM: a tool name plus its
// arguments, validated against the tool's declared parameter schema
// before execution.
type Invocation struct {
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolResult is the classified outcome of running one Invocation.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// FileNode is one entry in a project file-tree snapshot.
type FileNode struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Kind     string     `json:"kind"` // "file" | "dir"
	Children []FileNode `json:"children,omitempty"`
}

// SymbolKind enumerates the kinds of definitions the Symbol Index tracks.
type SymbolKind string

const (
	SymbolClass    SymbolKind = "class"
	SymbolFunction SymbolKind = "function"
	SymbolMethod   SymbolKind = "method"
)

// CodeSymbol is one definition recorded by the Symbol Index.
type CodeSymbol struct {
	Name        string
	FilePath    string
	Line        int
	Kind        SymbolKind
	ParentClass string
	Calls       map[string]struct{}
}

// VectorChunk is one unit of indexed source stored by the Vector Index.
type VectorChunk struct {
	ID         string
	Document   string
	FilePath   string
	NodeType   string // "function" | "class" | "chunk"
	NodeName   string
	Embedding  []float32
}

// ScoredChunk is a VectorChunk returned from a similarity query.
type ScoredChunk struct {
	Chunk    VectorChunk
	Distance float32
}

// User is external to the core; the core only ever consumes its ID.
type User struct {
	ID             int64
	Email          string
	HashedPassword string
}

// ProviderKey is a user's encrypted API key for one LLM provider.
type ProviderKey struct {
	UserID        int64
	ProviderName  string
	EncryptedBlob string
}

// Role names the model slot a RoleAssignment binds.
type Role string

const (
	RolePlanner Role = "planner"
	RoleCoder   Role = "coder"
	RoleChat    Role = "chat"
)

// RoleAssignment binds one role to a provider/model pair and temperature
// for a given user.
type RoleAssignment struct {
	UserID      int64
	Role        Role
	ModelID     string // "provider/model"
	Temperature float64
}

// Project describes one user's workspace on disk.
type Project struct {
	OwnerUserID  int64
	Name         string
	AbsolutePath string
}
