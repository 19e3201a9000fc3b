package storage

import (
	"fmt"
	"time"

	"boostchat/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketIdentity       = []byte("identity")
	bucketIdentityLegacy = []byte("identity_legacy")
	bucketSession        = []byte("session")
)

// BboltStore is the durable client-side store: one identity record, one
// legacy-compat identity record and one cached session per database
// file (one file = one device profile).
type BboltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStore(path string) (*BboltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketIdentity); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketIdentityLegacy); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketSession); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStore{db: db, now: time.Now}, nil
}

func (s *BboltStore) Close() error {
	return s.db.Close()
}

// SaveIdentity writes the unified identity record with a fresh
// timestamp.
func (s *BboltStore) SaveIdentity(identity models.Identity) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIdentity)
		dbIdentity := &DBIdentity{
			DisplayName:   identity.DisplayName,
			Email:         identity.Email,
			WhatsApp:      identity.WhatsApp,
			ParticipantID: identity.ParticipantID,
			SavedAt:       s.now().Unix(),
		}
		data, err := dbIdentity.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbIdentity.Key(), data)
	})
}

// LoadIdentity reads the unified identity record. When it is absent (or
// corrupt, which counts as absent) the legacy record is consulted and,
// if found, migrated forward: the unified shape is written with the
// participant id preserved and the legacy record removed. Returns
// models.ErrNotFound when neither shape yields a usable identity.
func (s *BboltStore) LoadIdentity() (models.Identity, error) {
	var identity models.Identity
	err := s.db.Update(func(tx *bbolt.Tx) error {
		primary := tx.Bucket(bucketIdentity)
		if data := primary.Get(keyIdentity); data != nil {
			var dbIdentity DBIdentity
			if err := dbIdentity.UnmarshalBinary(data); err == nil {
				identity = models.Identity{
					DisplayName:   dbIdentity.DisplayName,
					Email:         dbIdentity.Email,
					WhatsApp:      dbIdentity.WhatsApp,
					ParticipantID: dbIdentity.ParticipantID,
					SavedAt:       dbIdentity.SavedAt,
				}
				return nil
			}
			// Corrupt record: drop it and fall through to the legacy
			// shape as if the primary never existed.
			if err := primary.Delete(keyIdentity); err != nil {
				return err
			}
		}

		legacy := tx.Bucket(bucketIdentityLegacy)
		data := legacy.Get(keyIdentity)
		if data == nil {
			return models.ErrNotFound
		}
		var dbLegacy DBLegacyClient
		if err := dbLegacy.UnmarshalBinary(data); err != nil {
			_ = legacy.Delete(keyIdentity)
			return models.ErrNotFound
		}
		if dbLegacy.FirstName == "" {
			return models.ErrNotFound
		}

		identity = models.Identity{
			DisplayName:   dbLegacy.FirstName,
			Email:         dbLegacy.Email,
			WhatsApp:      dbLegacy.WhatsApp,
			ParticipantID: dbLegacy.ParticipantID,
			SavedAt:       s.now().Unix(),
		}

		// Migrate forward: single unified record, no duplicate write
		// paths after this point.
		migrated := &DBIdentity{
			DisplayName:   identity.DisplayName,
			Email:         identity.Email,
			WhatsApp:      identity.WhatsApp,
			ParticipantID: identity.ParticipantID,
			SavedAt:       identity.SavedAt,
		}
		migratedData, err := migrated.MarshalBinary()
		if err != nil {
			return err
		}
		if err := primary.Put(migrated.Key(), migratedData); err != nil {
			return err
		}
		return legacy.Delete(keyIdentity)
	})
	return identity, err
}

// SeedLegacyIdentity writes the pre-unification record shape. Used by
// installers importing state from older deployments and by migration
// tests.
func (s *BboltStore) SeedLegacyIdentity(firstName, email, whatsapp, participantID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIdentityLegacy)
		dbLegacy := &DBLegacyClient{
			FirstName:     firstName,
			Email:         email,
			WhatsApp:      whatsapp,
			ParticipantID: participantID,
		}
		data, err := dbLegacy.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbLegacy.Key(), data)
	})
}

// SaveSession caches the resolved session alongside the identity.
func (s *BboltStore) SaveSession(session models.Session) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSession)
		dbSession := &DBSession{
			ID:        session.ID,
			Mode:      string(session.Mode),
			AIActive:  session.AIActive,
			CreatedAt: session.CreatedAt,
		}
		data, err := dbSession.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbSession.Key(), data)
	})
}

func (s *BboltStore) LoadSession() (models.Session, error) {
	var session models.Session
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSession)
		data := b.Get(keySession)
		if data == nil {
			return models.ErrNotFound
		}
		var dbSession DBSession
		if err := dbSession.UnmarshalBinary(data); err != nil {
			_ = b.Delete(keySession)
			return models.ErrNotFound
		}
		session = models.Session{
			ID:        dbSession.ID,
			Mode:      models.Mode(dbSession.Mode),
			AIActive:  dbSession.AIActive,
			CreatedAt: dbSession.CreatedAt,
		}
		return nil
	})
	return session, err
}

// Clear removes every known record: primary identity, legacy identity
// and cached session. Used only on an explicit "change identity".
func (s *BboltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketIdentity).Delete(keyIdentity); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIdentityLegacy).Delete(keyIdentity); err != nil {
			return err
		}
		return tx.Bucket(bucketSession).Delete(keySession)
	})
}
