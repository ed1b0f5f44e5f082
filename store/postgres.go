package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"docqa/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const (
	defaultEFSearch = 40
	maxEFSearch     = 1000
)

type PostgresStore struct {
	pool      *pgxpool.Pool
	vectorDim int
	logger    *slog.Logger
}

var _ DBStorer = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, connStr string, vectorDim int, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{
		pool:      pool,
		vectorDim: vectorDim,
		logger:    logger,
	}, nil
}

func (p *PostgresStore) NextDocumentID(ctx context.Context) (string, error) {
	var seq int64
	if err := p.pool.QueryRow(ctx, "SELECT nextval('document_id_seq')").Scan(&seq); err != nil {
		return "", fmt.Errorf("allocate document id: %w", err)
	}
	return FormatDocumentID(uint64(seq)), nil
}

func (p *PostgresStore) SaveDocument(ctx context.Context, doc *types.Document) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO documents (id, filename, type, size, uploaded_at, text, page_count, chunk_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID,
		sanitizeUTF8(doc.Filename),
		string(doc.Type),
		doc.Size,
		doc.UploadedAt,
		sanitizeUTF8(doc.Text),
		doc.PageCount,
		len(doc.Chunks),
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}

	batch := &pgx.Batch{}
	for _, c := range doc.Chunks {
		batch.Queue(`
			INSERT INTO chunks (id, doc_id, filename, page, paragraph, position, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, doc.ID, sanitizeUTF8(c.Filename), c.Page, c.Paragraph, c.Position,
			sanitizeUTF8(c.Content), pgvector.NewVector(c.Embedding),
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert chunks of %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit document %s: %w", doc.ID, err)
	}
	doc.ChunkCount = len(doc.Chunks)
	return nil
}

const documentColumns = "id, filename, type, size, uploaded_at, text, page_count, chunk_count"

func scanDocument(row pgx.Row) (*types.Document, error) {
	doc := &types.Document{}
	var fileType string
	if err := row.Scan(
		&doc.ID,
		&doc.Filename,
		&fileType,
		&doc.Size,
		&doc.UploadedAt,
		&doc.Text,
		&doc.PageCount,
		&doc.ChunkCount); err != nil {
		return nil, err
	}
	doc.Type = types.FileType(fileType)
	return doc, nil
}

func (p *PostgresStore) GetDocumentByID(ctx context.Context, id string) (*types.Document, error) {
	row := p.pool.QueryRow(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = $1", id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *PostgresStore) ListDocuments(ctx context.Context) ([]types.Document, error) {
	rows, err := p.pool.Query(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY uploaded_at, length(id), id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (p *PostgresStore) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, "SELECT count(*) FROM documents").Scan(&n)
	return n, err
}

func (p *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// efSearch is the hnsw candidate list size for a search returning limit rows.
// pgvector returns at most ef_search rows from an index scan.
func efSearch(limit int) int {
	return min(max(limit, defaultEFSearch), maxEFSearch)
}

func (p *PostgresStore) Search(ctx context.Context, queryVec []float32, limit int) ([]types.Chunk, error) {
	if len(queryVec) == 0 {
		return nil, errors.New("empty query vector")
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('hnsw.ef_search', $1, true)", strconv.Itoa(efSearch(limit))); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT c.id, c.doc_id, c.filename, c.page, c.paragraph, c.position, c.content,
		       1 - (c.embedding <=> $1) AS score
		FROM chunks c
		WHERE c.embedding IS NOT NULL
		ORDER BY c.embedding <=> $1, c.doc_id, c.page, c.paragraph, c.position
		LIMIT $2
	`
	rows, err := tx.Query(ctx, query, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var c types.Chunk
		if err := rows.Scan(
			&c.ID,
			&c.DocID,
			&c.Filename,
			&c.Page,
			&c.Paragraph,
			&c.Position,
			&c.Content,
			&c.Score); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	SortChunks(chunks)
	p.logger.Debug("vector search", "hits", len(chunks), "limit", limit)
	return chunks, nil
}

func (p *PostgresStore) SaveQuery(ctx context.Context, q types.QueryRecord) error {
	chunkIDs, err := json.Marshal(q.ChunkIDs)
	if err != nil {
		return err
	}
	answers, err := json.Marshal(q.Answers)
	if err != nil {
		return err
	}
	themes, err := json.Marshal(q.Themes)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO queries (id, query, created_at, chunk_ids, answers, themes, total_docs)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		q.ID, sanitizeUTF8(q.Query), q.Timestamp, chunkIDs, answers, themes, q.TotalDocsSearched,
	)
	return err
}

func (p *PostgresStore) ListQueries(ctx context.Context, limit int) ([]types.QueryRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, query, created_at, chunk_ids, answers, themes, total_docs
		FROM queries ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.QueryRecord
	for rows.Next() {
		var (
			q                         types.QueryRecord
			id                        uuid.UUID
			chunkIDs, answers, themes []byte
		)
		if err := rows.Scan(&id, &q.Query, &q.Timestamp, &chunkIDs, &answers, &themes, &q.TotalDocsSearched); err != nil {
			return nil, err
		}
		q.ID = id
		if err := json.Unmarshal(chunkIDs, &q.ChunkIDs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answers, &q.Answers); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(themes, &q.Themes); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// schema creates the tables and indexes. The hnsw index needs no training
// data, so it is valid from the first insert on.
func schema(vectorDim int) string {
	return fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE SEQUENCE IF NOT EXISTS document_id_seq;

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		type TEXT NOT NULL,
		size BIGINT NOT NULL,
		uploaded_at TIMESTAMP WITH TIME ZONE NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		page_count INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		doc_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		page INTEGER NOT NULL,
		paragraph INTEGER NOT NULL,
		position INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d)
	);

	DROP INDEX IF EXISTS idx_chunks_embedding;
	CREATE INDEX IF NOT EXISTS idx_chunks_embedding_hnsw ON chunks USING hnsw (embedding vector_cosine_ops);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);

	CREATE TABLE IF NOT EXISTS queries (
		id UUID PRIMARY KEY,
		query TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		chunk_ids JSONB NOT NULL,
		answers JSONB NOT NULL,
		themes JSONB NOT NULL,
		total_docs INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_queries_created_at ON queries(created_at);
	`, vectorDim)
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema(p.vectorDim))
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool is closed")
	}
	return nil
}
