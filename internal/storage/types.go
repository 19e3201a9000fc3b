package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Single-record buckets use fixed keys: one device profile owns at most
// one identity and one cached session.
var (
	keyIdentity = []byte("identity")
	keySession  = []byte("session")
)

// DBIdentity is the unified identity record.
type DBIdentity struct {
	DisplayName   string `msgpack:"displayName"`
	Email         string `msgpack:"email"`
	WhatsApp      string `msgpack:"whatsapp"`
	ParticipantID string `msgpack:"participantId"`
	SavedAt       int64  `msgpack:"savedAt"`
}

func (i *DBIdentity) Key() []byte {
	return keyIdentity
}

func (i *DBIdentity) MarshalBinary() (data []byte, err error) {
	type alias DBIdentity
	return msgpack.Marshal((*alias)(i))
}

func (i *DBIdentity) UnmarshalBinary(data []byte) error {
	type alias DBIdentity
	return msgpack.Unmarshal(data, (*alias)(i))
}

// DBLegacyClient is the pre-unification identity shape. It is only ever
// read (and migrated forward); new writes always produce DBIdentity.
type DBLegacyClient struct {
	FirstName     string `msgpack:"firstName"`
	Email         string `msgpack:"email"`
	WhatsApp      string `msgpack:"whatsapp"`
	ParticipantID string `msgpack:"participantId"`
}

func (c *DBLegacyClient) Key() []byte {
	return keyIdentity
}

func (c *DBLegacyClient) MarshalBinary() (data []byte, err error) {
	type alias DBLegacyClient
	return msgpack.Marshal((*alias)(c))
}

func (c *DBLegacyClient) UnmarshalBinary(data []byte) error {
	type alias DBLegacyClient
	return msgpack.Unmarshal(data, (*alias)(c))
}

// DBSession caches the last resolved session for the stored identity.
type DBSession struct {
	ID        string `msgpack:"id"`
	Mode      string `msgpack:"mode"`
	AIActive  bool   `msgpack:"aiActive"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (s *DBSession) Key() []byte {
	return keySession
}

func (s *DBSession) MarshalBinary() (data []byte, err error) {
	type alias DBSession
	return msgpack.Marshal((*alias)(s))
}

func (s *DBSession) UnmarshalBinary(data []byte) error {
	type alias DBSession
	return msgpack.Unmarshal(data, (*alias)(s))
}
