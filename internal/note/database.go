package note

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"

	"github.com/zombor/billnote/internal/money"
)

const (
	notesBucket  = "notes"
	ownersBucket = "note_owners" // owner \x00 noteID -> nil
	itemsBucket  = "note_items"  // noteID / itemID -> item
)

// DB defines the interface for note persistence
type DB interface {
	// SaveNote inserts or replaces a note and indexes it under its owner
	SaveNote(n *Note) error

	// GetNote retrieves a note by ID
	GetNote(id string) (*Note, error)

	// ListNotes returns every note owned by owner
	ListNotes(owner string) ([]*Note, error)

	// DeleteNote removes a note and all of its items
	DeleteNote(id string) error

	// SaveItem inserts or replaces an item. The parent note must exist.
	SaveItem(item *Item) error

	// GetItem retrieves an item of a note
	GetItem(noteID, itemID string) (*Item, error)

	// ListItems returns the items of a note ordered by position
	ListItems(noteID string) ([]*Item, error)

	// DeleteItem removes an item of a note
	DeleteItem(noteID, itemID string) error

	// RecomputeTotal sets the note total to the sum of its persisted item totals
	RecomputeTotal(noteID string, at time.Time) (decimal.Decimal, error)

	// SetArtifactKey records where the original receipt image was stored
	SetArtifactKey(noteID, key string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB.
// Each method runs in one transaction; bbolt serializes writers, so a
// recompute always reads the item set left by the last committed mutation.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the database file and its buckets
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{notesBucket, ownersBucket, itemsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func ownerKey(owner, noteID string) []byte {
	return []byte(owner + "\x00" + noteID)
}

func itemKey(noteID, itemID string) []byte {
	return []byte(noteID + "/" + itemID)
}

func itemPrefix(noteID string) []byte {
	return []byte(noteID + "/")
}

func getNote(tx *bbolt.Tx, id string) (*Note, error) {
	data := tx.Bucket([]byte(notesBucket)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	var n Note
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshaling note: %w", err)
	}
	return &n, nil
}

func putNote(tx *bbolt.Tx, n *Note) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling note: %w", err)
	}
	return tx.Bucket([]byte(notesBucket)).Put([]byte(n.ID), data)
}

func listItems(tx *bbolt.Tx, noteID string) ([]*Item, error) {
	items := make([]*Item, 0)
	prefix := itemPrefix(noteID)
	c := tx.Bucket([]byte(itemsBucket)).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var item Item
		if err := json.Unmarshal(v, &item); err != nil {
			return nil, fmt.Errorf("unmarshaling item: %w", err)
		}
		items = append(items, &item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// SaveNote inserts or replaces a note
func (b *BoltDB) SaveNote(n *Note) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := putNote(tx, n); err != nil {
			return err
		}
		return tx.Bucket([]byte(ownersBucket)).Put(ownerKey(n.AddedBy, n.ID), []byte{})
	})
}

// GetNote retrieves a note by ID
func (b *BoltDB) GetNote(id string) (*Note, error) {
	var n *Note
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		n, err = getNote(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotes returns every note owned by owner
func (b *BoltDB) ListNotes(owner string) ([]*Note, error) {
	notes := make([]*Note, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		prefix := []byte(owner + "\x00")
		c := tx.Bucket([]byte(ownersBucket)).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			n, err := getNote(tx, string(k[len(prefix):]))
			if err != nil {
				return err
			}
			notes = append(notes, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// DeleteNote removes a note, its owner index entry and all of its items
func (b *BoltDB) DeleteNote(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		n, err := getNote(tx, id)
		if err != nil {
			return err
		}

		items := tx.Bucket([]byte(itemsBucket))
		prefix := itemPrefix(id)
		var keys [][]byte
		c := items.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := items.Delete(k); err != nil {
				return fmt.Errorf("deleting item: %w", err)
			}
		}

		if err := tx.Bucket([]byte(ownersBucket)).Delete(ownerKey(n.AddedBy, id)); err != nil {
			return fmt.Errorf("deleting owner index: %w", err)
		}
		return tx.Bucket([]byte(notesBucket)).Delete([]byte(id))
	})
}

// SaveItem inserts or replaces an item of an existing note
func (b *BoltDB) SaveItem(item *Item) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getNote(tx, item.NoteID); err != nil {
			return err
		}
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		return tx.Bucket([]byte(itemsBucket)).Put(itemKey(item.NoteID, item.ID), data)
	})
}

// GetItem retrieves an item of a note
func (b *BoltDB) GetItem(noteID, itemID string) (*Item, error) {
	var item *Item
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(itemsBucket)).Get(itemKey(noteID, itemID))
		if data == nil {
			return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
		}
		return json.Unmarshal(data, &item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns the items of a note ordered by position
func (b *BoltDB) ListItems(noteID string) ([]*Item, error) {
	var items []*Item
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		items, err = listItems(tx, noteID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteItem removes an item of a note
func (b *BoltDB) DeleteItem(noteID, itemID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucket))
		key := itemKey(noteID, itemID)
		if bucket.Get(key) == nil {
			return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
		}
		return bucket.Delete(key)
	})
}

// RecomputeTotal reads the note's items and stores their sum in one write
// transaction
func (b *BoltDB) RecomputeTotal(noteID string, at time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := b.db.Update(func(tx *bbolt.Tx) error {
		n, err := getNote(tx, noteID)
		if err != nil {
			return err
		}
		items, err := listItems(tx, noteID)
		if err != nil {
			return err
		}

		totals := make([]decimal.Decimal, 0, len(items))
		for _, item := range items {
			totals = append(totals, item.TotalPrice)
		}
		total = money.Sum(totals...)

		n.TotalAmount = total
		n.UpdatedAt = at
		return putNote(tx, n)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// SetArtifactKey records the storage key of the original receipt image
func (b *BoltDB) SetArtifactKey(noteID, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		n, err := getNote(tx, noteID)
		if err != nil {
			return err
		}
		n.ArtifactKey = key
		return putNote(tx, n)
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
