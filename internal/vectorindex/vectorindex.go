// Package vectorindex is the per-project semantic code index: chunks of
// source (one per top-level function/class, or sliding-window fallback
// for files that do not parse) embedded and stored under a project's
// .rag_db/ directory, queried by cosine distance.
package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/forgecode/agentcore/internal/apperrors"
	"github.com/forgecode/agentcore/internal/pytree"
	"github.com/forgecode/agentcore/pkg/models"
)

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Fatal("create vector index directory", err)
	}
	return nil
}

const (
	// EmbeddingDim is the sentence-encoder output dimensionality used
	// throughout the index.
	EmbeddingDim = 384

	chunkSize    = 1000
	chunkOverlap = 150

	dbFileName = "index.db"
)

// Embedder turns source text into a fixed-dimension vector. Production
// wiring supplies a client for the external embedding service; tests use
// a deterministic stub.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the per-project Vector Index, namespaced to one collection.
type Index struct {
	db           *sql.DB
	collection   string
	embedder     Embedder
	parser       *pytree.Parser
}

var collectionSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// CollectionName builds the namespaced collection identifier for a
// (user, project) pair.
func CollectionName(userID int64, projectName string) string {
	sanitized := collectionSanitizer.ReplaceAllString(projectName, "_")
	return fmt.Sprintf("aura_project_%d_%s", userID, sanitized)
}

// Open creates or reopens the Vector Index database under
// <projectRoot>/.rag_db/.
func Open(projectRoot string, userID int64, projectName string, embedder Embedder) (*Index, error) {
	dir := filepath.Join(projectRoot, ".rag_db")
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, apperrors.Fatal("open vector index database", err)
	}
	idx := &Index{
		db:         db,
		collection: CollectionName(userID, projectName),
		embedder:   embedder,
		parser:     pytree.New(),
	}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	_, err := idx.db.Exec(`
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	file_path TEXT NOT NULL,
	node_type TEXT NOT NULL,
	node_name TEXT NOT NULL,
	document TEXT NOT NULL,
	embedding TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_collection_file ON chunks(collection, file_path);
`)
	if err != nil {
		return apperrors.Fatal("migrate vector index schema", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error { return idx.db.Close() }

// Upsert embeds and stores docs, colliding on id and overwriting any
// prior chunk with the same id.
func (idx *Index) Upsert(ctx context.Context, chunks []models.VectorChunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Document
	}
	embeddings, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return apperrors.Fatal("embed chunks", err)
	}
	if len(embeddings) != len(chunks) {
		return apperrors.Fatal("embedder returned mismatched vector count", nil)
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Fatal("begin upsert transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, collection, file_path, node_type, node_name, document, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	file_path=excluded.file_path, node_type=excluded.node_type,
	node_name=excluded.node_name, document=excluded.document, embedding=excluded.embedding
`)
	if err != nil {
		return apperrors.Fatal("prepare upsert", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, idx.collection, c.FilePath, c.NodeType, c.NodeName,
			c.Document, encodeEmbedding(embeddings[i])); err != nil {
			return apperrors.Fatal("upsert chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Fatal("commit upsert transaction", err)
	}
	return nil
}

// Query embeds text and returns the k chunks in this project's
// collection with the lowest cosine distance.
func (idx *Index) Query(ctx context.Context, text string, k int) ([]models.ScoredChunk, error) {
	vecs, err := idx.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, apperrors.Fatal("embed query", err)
	}
	query := vecs[0]

	rows, err := idx.db.QueryContext(ctx,
		`SELECT id, file_path, node_type, node_name, document, embedding FROM chunks WHERE collection = ?`,
		idx.collection)
	if err != nil {
		return nil, apperrors.Fatal("query chunks", err)
	}
	defer rows.Close()

	var scored []models.ScoredChunk
	for rows.Next() {
		var c models.VectorChunk
		var embeddingRaw string
		if err := rows.Scan(&c.ID, &c.FilePath, &c.NodeType, &c.NodeName, &c.Document, &embeddingRaw); err != nil {
			return nil, apperrors.Fatal("scan chunk row", err)
		}
		c.Embedding = decodeEmbedding(embeddingRaw)
		scored = append(scored, models.ScoredChunk{Chunk: c, Distance: cosineDistance(query, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Fatal("iterate chunk rows", err)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// ReindexFile deletes every chunk for path, then parses content and
// re-inserts. Files that fail to parse fall back to sliding-window
// chunks.
func (idx *Index) ReindexFile(ctx context.Context, path string, content []byte) error {
	if _, err := idx.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE collection = ? AND file_path = ?`, idx.collection, path); err != nil {
		return apperrors.Fatal("delete stale chunks", err)
	}

	chunks := idx.chunkFile(ctx, path, content)
	if len(chunks) == 0 {
		return nil
	}
	return idx.Upsert(ctx, chunks)
}

// ReindexProject drops this project's entire collection and rebuilds it
// from files, a map of project-relative path to file content.
func (idx *Index) ReindexProject(ctx context.Context, files map[string][]byte) error {
	if _, err := idx.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, idx.collection); err != nil {
		return apperrors.Fatal("drop collection", err)
	}
	var all []models.VectorChunk
	for path, content := range files {
		all = append(all, idx.chunkFile(ctx, path, content)...)
	}
	if len(all) == 0 {
		return nil
	}
	return idx.Upsert(ctx, all)
}

// chunkFile produces the VectorChunks for one file: one per top-level
// function/class when the file parses as Python, otherwise fixed-size
// sliding-window chunks over the raw text.
func (idx *Index) chunkFile(ctx context.Context, path string, content []byte) []models.VectorChunk {
	if strings.HasSuffix(path, ".py") {
		if defs, err := idx.parser.Parse(ctx, content); err == nil && len(defs) > 0 {
			chunks := make([]models.VectorChunk, 0, len(defs))
			for _, d := range defs {
				if d.Kind == "method" {
					continue // methods are covered by their enclosing class's span
				}
				nodeType := "function"
				if d.Kind == "class" {
					nodeType = "class"
				}
				chunks = append(chunks, models.VectorChunk{
					ID:       fmt.Sprintf("%s-%s-%s", path, nodeType, d.Name),
					Document: string(content[d.StartByte:d.EndByte]),
					FilePath: path,
					NodeType: nodeType,
					NodeName: d.Name,
				})
			}
			return chunks
		}
	}
	return slidingWindowChunks(path, string(content))
}

func slidingWindowChunks(path, text string) []models.VectorChunk {
	if len(text) == 0 {
		return nil
	}
	var chunks []models.VectorChunk
	step := chunkSize - chunkOverlap
	for start, n := 0, 0; start < len(text); start += step {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, models.VectorChunk{
			ID:       fmt.Sprintf("%s-chunk-%d", path, n),
			Document: text[start:end],
			FilePath: path,
			NodeType: "chunk",
			NodeName: strconv.Itoa(n),
		})
		n++
		if end == len(text) {
			break
		}
	}
	return chunks
}

func cosineDistance(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 2 // maximal distance for incomparable vectors
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	similarity := dot / (sqrt(normA) * sqrt(normB))
	return float32(1 - similarity)
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	x := v
	for i := 0; i < 40; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

func encodeEmbedding(v []float32) string {
	var b strings.Builder
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	return b.String()
}

func decodeEmbedding(raw string) []float32 {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, _ := strconv.ParseFloat(p, 32)
		out[i] = float32(f)
	}
	return out
}
