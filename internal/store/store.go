// Package store provides a thin bbolt wrapper for opendosm's local data store.
//
// The store keeps two kinds of data: raw upstream documents, so that repeat
// commands work offline and do not hammer the CDN, and saved views, which are
// named canonical queries for a page.
//
// Buckets:
//
//	documents: raw JSON documents keyed by content.Ref.CacheKey()
//	views:     saved canonical queries, keyed by uuid
//	_meta:     internal: schema version, created_at
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 2

// Bucket name constants.
var (
	bucketDocuments = []byte("documents")
	bucketViews     = []byte("views")
	bucketInternal  = []byte("_meta")
)

// AllBuckets lists every user-facing bucket for stats and clear operations.
var AllBuckets = []string{"documents", "views"}

// ErrUnknownBucket is returned by ClearBucket for names outside AllBuckets.
var ErrUnknownBucket = errors.New("unknown bucket")

// Store wraps a bbolt database.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

func openDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}
	return db, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.path
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDocuments, bucketViews, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("created_at")) == nil {
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion)))
	})
}

// ─── Documents ────────────────────────────────────────────────────────────────

// Document is a cached upstream document.
type Document struct {
	Key       string          `json:"key"`
	FetchedAt time.Time       `json:"fetched_at"`
	Body      json.RawMessage `json:"body"`
}

// DocumentInfo summarises a cached document without its body.
type DocumentInfo struct {
	Key       string    `json:"key"`
	FetchedAt time.Time `json:"fetched_at"`
	Bytes     int       `json:"bytes"`
}

// PutDocument stores body under key, stamping FetchedAt. body must be JSON.
func (s *Store) PutDocument(key string, body []byte) error {
	if !json.Valid(body) {
		return fmt.Errorf("document %s: body is not valid JSON", key)
	}
	doc := Document{Key: key, FetchedAt: time.Now().UTC(), Body: body}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(key), b)
	})
}

// GetDocument retrieves a document by key.
// Returns (doc, true, nil) if found, (zero, false, nil) if not found.
func (s *Store) GetDocument(key string) (Document, bool, error) {
	var doc Document
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDocuments).Get([]byte(key))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &doc)
	})
	if err != nil {
		return Document{}, false, err
	}
	return doc, doc.Key != "", nil
}

// ListDocuments returns every cached document, sorted by key.
func (s *Store) ListDocuments() ([]DocumentInfo, error) {
	var out []DocumentInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			out = append(out, DocumentInfo{Key: doc.Key, FetchedAt: doc.FetchedAt, Bytes: len(doc.Body)})
			return nil
		})
	})
	return out, err
}

// DeleteDocument removes a cached document.
func (s *Store) DeleteDocument(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).Delete([]byte(key))
	})
}

// ─── Views ────────────────────────────────────────────────────────────────────

// View is a saved canonical query for one page.
type View struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Page      string    `json:"page"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

// PutView saves a view, replacing any view with the same ID.
func (s *Store) PutView(v View) error {
	if v.ID == "" {
		return errors.New("view id is required")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding view: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketViews).Put([]byte(v.ID), b)
	})
}

// GetView retrieves a view by ID, unique ID prefix, or exact name.
func (s *Store) GetView(ref string) (View, bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return View{}, false, nil
	}
	views, err := s.ListViews()
	if err != nil {
		return View{}, false, err
	}
	var prefixed []View
	for _, v := range views {
		if v.ID == ref || v.Name == ref {
			return v, true, nil
		}
		if strings.HasPrefix(v.ID, ref) {
			prefixed = append(prefixed, v)
		}
	}
	if len(prefixed) == 1 {
		return prefixed[0], true, nil
	}
	return View{}, false, nil
}

// ListViews returns all views in creation order.
func (s *Store) ListViews() ([]View, error) {
	var views []View
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketViews).ForEach(func(k, v []byte) error {
			var view View
			if err := json.Unmarshal(v, &view); err != nil {
				return err
			}
			views = append(views, view)
			return nil
		})
	})
	sort.SliceStable(views, func(i, j int) bool { return views[i].CreatedAt.Before(views[j].CreatedAt) })
	return views, err
}

// DeleteView removes a view by ID.
func (s *Store) DeleteView(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketViews).Delete([]byte(id))
	})
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all buckets.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var count int
			var bytes int64
			if err := b.ForEach(func(k, v []byte) error {
				count++
				bytes += int64(len(k) + len(v))
				return nil
			}); err != nil {
				return err
			}
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: bytes})
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	known := false
	for _, b := range AllBuckets {
		if b == name {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("%w %q (buckets: %s)", ErrUnknownBucket, name, strings.Join(AllBuckets, ", "))
	}
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the database into a fresh file and swaps it in place,
// returning the file sizes before and after. The Store stays usable.
func (s *Store) Compact() (before, after int64, err error) {
	if fi, err := os.Stat(s.path); err == nil {
		before = fi.Size()
	}
	tmp := s.path + ".compact"
	_ = os.Remove(tmp)

	dst, err := openDB(tmp)
	if err != nil {
		return before, 0, err
	}
	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmp)
		return before, 0, fmt.Errorf("compacting: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return before, 0, err
	}
	if err := s.db.Close(); err != nil {
		os.Remove(tmp)
		return before, 0, err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		// Put the original back in service before reporting.
		if db, reopenErr := openDB(s.path); reopenErr == nil {
			s.db = db
		}
		return before, 0, fmt.Errorf("replacing database: %w", err)
	}
	db, err := openDB(s.path)
	if err != nil {
		return before, 0, err
	}
	s.db = db
	if fi, err := os.Stat(s.path); err == nil {
		after = fi.Size()
	}
	return before, after, nil
}
