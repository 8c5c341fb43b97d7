// ABOUTME: All-or-nothing commits for badger save phases of any size.
// ABOUTME: Phases too big for one transaction go through a staged journal replayed on open.
package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/harperreed/vitals/internal/models"
)

const (
	// stagePrefix holds entries of a save phase that did not fit one
	// transaction: stage:<id>\x00<final key>.
	stagePrefix = "stage:"
	// journalPrefix marks a staged phase as committed: journal:<id>.
	journalPrefix = "journal:"
)

type kv struct {
	key []byte
	val []byte
}

func stageKeyPrefix(id string) []byte {
	return []byte(stagePrefix + id + keySep)
}

func journalKey(id string) []byte {
	return []byte(journalPrefix + id)
}

// commit applies entries in one transaction. When they do not fit, it
// stages them, records the commit point, then promotes them. A crash before
// the commit point discards the phase on the next open; a crash after it
// finishes the promotion.
func (b *Badger) commit(entries []kv) error {
	if len(entries) == 0 {
		return nil
	}

	txn := b.db.NewTransaction(true)
	defer txn.Discard()
	for _, e := range entries {
		err := txn.Set(e.key, e.val)
		if errors.Is(err, badger.ErrTxnTooBig) {
			txn.Discard()
			return b.commitJournaled(entries)
		}
		if err != nil {
			return err
		}
	}
	return txn.Commit()
}

func (b *Badger) commitJournaled(entries []kv) error {
	id := models.NewID()
	if err := b.stage(id, entries); err != nil {
		_ = b.dropStage(id)
		return err
	}
	if err := b.markCommitted(id); err != nil {
		_ = b.dropStage(id)
		return err
	}
	if err := b.promote(id, entries); err != nil {
		return fmt.Errorf("promote staged entries (completed on next open): %w", err)
	}
	return nil
}

// stage writes entries under the phase's private prefix. Readers never scan
// it, so staged entries stay invisible until promoted.
func (b *Badger) stage(id string, entries []kv) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	prefix := stageKeyPrefix(id)
	for _, e := range entries {
		if err := wb.Set(append(bytes.Clone(prefix), e.key...), e.val); err != nil {
			return fmt.Errorf("stage entry: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("stage entries: %w", err)
	}
	return nil
}

func (b *Badger) markCommitted(id string) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(journalKey(id), nil)
	}); err != nil {
		return fmt.Errorf("mark phase committed: %w", err)
	}
	return nil
}

// promote moves staged entries to their final keys across as many
// transactions as needed, then clears the journal mark. Every step is
// idempotent, so an interrupted promotion can simply run again.
func (b *Badger) promote(id string, entries []kv) error {
	prefix := stageKeyPrefix(id)
	txn := b.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	apply := func(e kv) error {
		if _, err := txn.Get(e.key); errors.Is(err, badger.ErrKeyNotFound) {
			if err := txn.Set(e.key, e.val); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		return txn.Delete(append(bytes.Clone(prefix), e.key...))
	}

	for _, e := range entries {
		err := apply(e)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return fmt.Errorf("commit promotion: %w", err)
			}
			txn = b.db.NewTransaction(true)
			err = apply(e)
		}
		if err != nil {
			return err
		}
	}
	if err := txn.Delete(journalKey(id)); err != nil {
		return err
	}
	return txn.Commit()
}

// staged reads back a phase's entries with their final keys.
func (b *Badger) staged(id string) ([]kv, error) {
	prefix := stageKeyPrefix(id)
	var out []kv
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, kv{key: bytes.Clone(it.Item().Key()[len(prefix):]), val: val})
		}
		return nil
	})
	return out, err
}

func (b *Badger) dropStage(id string) error {
	return b.deleteKeys(stageKeyPrefix(id), nil)
}

// deleteKeys removes every key under prefix for which keep is nil or false.
func (b *Badger) deleteKeys(prefix []byte, keep func(key []byte) bool) error {
	var doomed [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			if keep == nil || !keep(k) {
				doomed = append(doomed, k)
			}
		}
		return nil
	})
	if err != nil || len(doomed) == 0 {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range doomed {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// recoverJournal promotes every committed phase and drops staged entries
// of phases that never reached their commit point.
func (b *Badger) recoverJournal() error {
	committed := make(map[string]bool)
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(journalPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			committed[string(it.Item().Key()[len(prefix):])] = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	for id := range committed {
		entries, err := b.staged(id)
		if err != nil {
			return fmt.Errorf("read staged phase %s: %w", id, err)
		}
		if err := b.promote(id, entries); err != nil {
			return fmt.Errorf("promote staged phase %s: %w", id, err)
		}
	}

	return b.deleteKeys([]byte(stagePrefix), func(k []byte) bool {
		id, _, _ := bytes.Cut(k[len(stagePrefix):], []byte(keySep))
		return committed[string(id)]
	})
}
