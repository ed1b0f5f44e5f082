package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"docqa/types"

	"go.etcd.io/bbolt"
)

var (
	bucketDocs    = []byte("documents")
	bucketChunks  = []byte("chunks")
	bucketQueries = []byte("queries")
)

// BoltStore keeps everything in a single bbolt file and ranks chunks by brute
// force, which suits single-node deployments with small corpora.
type BoltStore struct {
	db *bbolt.DB
}

var _ DBStorer = (*BoltStore)(nil)

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketDocs, bucketChunks, bucketQueries} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// chunkKey groups chunks under their document so deletes are a prefix scan.
func chunkKey(docID string, position int) []byte {
	key := make([]byte, 0, len(docID)+9)
	key = append(key, docID...)
	key = append(key, '/')
	return binary.BigEndian.AppendUint64(key, uint64(position))
}

func chunkPrefix(docID string) []byte {
	return append([]byte(docID), '/')
}

func (s *BoltStore) NextDocumentID(context.Context) (string, error) {
	var seq uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		seq, err = tx.Bucket(bucketDocs).NextSequence()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("allocate document id: %w", err)
	}
	return FormatDocumentID(seq), nil
}

func (s *BoltStore) SaveDocument(_ context.Context, doc *types.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocs)
		if docs.Get([]byte(doc.ID)) != nil {
			return fmt.Errorf("document %s already exists", doc.ID)
		}

		stored := *doc
		stored.ChunkCount = len(doc.Chunks)
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		if err := docs.Put([]byte(doc.ID), data); err != nil {
			return err
		}

		chunks := tx.Bucket(bucketChunks)
		for _, c := range doc.Chunks {
			c.DocID = doc.ID
			data, err := json.Marshal(c)
			if err != nil {
				return err
			}
			if err := chunks.Put(chunkKey(doc.ID, c.Position), data); err != nil {
				return err
			}
		}
		doc.ChunkCount = stored.ChunkCount
		return nil
	})
}

func (s *BoltStore) GetDocumentByID(_ context.Context, id string) (*types.Document, error) {
	var doc types.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("document %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *BoltStore) ListDocuments(context.Context) ([]types.Document, error) {
	var docs []types.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(_, v []byte) error {
			var doc types.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(docs, compareDocuments)
	return docs, nil
}

func (s *BoltStore) CountDocuments(context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketDocs).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) DeleteDocument(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocs)
		if docs.Get([]byte(id)) == nil {
			return fmt.Errorf("document %s: %w", id, types.ErrNotFound)
		}
		if err := docs.Delete([]byte(id)); err != nil {
			return err
		}

		prefix := chunkPrefix(id)
		var keys [][]byte
		c := tx.Bucket(bucketChunks).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := tx.Bucket(bucketChunks).Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Search(_ context.Context, queryVec []float32, limit int) ([]types.Chunk, error) {
	if len(queryVec) == 0 {
		return nil, errors.New("empty query vector")
	}
	if limit <= 0 {
		return nil, nil
	}

	var hits []types.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunks).ForEach(func(_, v []byte) error {
			var c types.Chunk
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if len(c.Embedding) == 0 {
				return nil
			}
			c.Score = CosineSimilarity(queryVec, c.Embedding)
			c.Embedding = nil
			hits = append(hits, c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	SortChunks(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *BoltStore) SaveQuery(_ context.Context, q types.QueryRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueries)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(q)
		if err != nil {
			return err
		}
		return b.Put(binary.BigEndian.AppendUint64(nil, seq), data)
	})
}

// ListQueries returns up to limit records, newest first.
func (s *BoltStore) ListQueries(_ context.Context, limit int) ([]types.QueryRecord, error) {
	var out []types.QueryRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketQueries).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var q types.QueryRecord
			if err := json.Unmarshal(v, &q); err != nil {
				return err
			}
			out = append(out, q)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
