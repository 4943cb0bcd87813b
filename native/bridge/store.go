package bridge

import (
	"encoding/binary"
	"errors"
	"sort"
)

// Storage abstracts the subset of state manager functionality required by the
// router's replay-protection and configuration records.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

var (
	processedKeyPrefix = []byte("bridge/processed/")
	nonceKeyPrefix     = []byte("bridge/nonce/")
	domainKeyPrefix    = []byte("bridge/domain/")
	domainIndexKey     = []byte("bridge/domain/index")
	outboundKeyPrefix  = []byte("bridge/outbound/")
)

var errStoreNotConfigured = errors.New("bridge store: storage not configured")

// Store persists the router's processed-message set, per-domain nonces,
// domain configurations and outbound records. Persistence keeps replay
// protection intact across restarts.
type Store struct {
	store Storage
}

func NewStore(store Storage) *Store {
	return &Store{store: store}
}

func domainKey(domain uint64) []byte {
	var suffix [8]byte
	binary.BigEndian.PutUint64(suffix[:], domain)
	return append(append([]byte(nil), domainKeyPrefix...), suffix[:]...)
}

func nonceKey(domain uint64) []byte {
	var suffix [8]byte
	binary.BigEndian.PutUint64(suffix[:], domain)
	return append(append([]byte(nil), nonceKeyPrefix...), suffix[:]...)
}

func processedKey(id [32]byte) []byte {
	return append(append([]byte(nil), processedKeyPrefix...), id[:]...)
}

func outboundKey(id [32]byte) []byte {
	return append(append([]byte(nil), outboundKeyPrefix...), id[:]...)
}

// IsProcessed reports whether a message id is already in the processed set.
func (s *Store) IsProcessed(id [32]byte) (bool, error) {
	if s == nil || s.store == nil {
		return false, errStoreNotConfigured
	}
	var marker uint8
	return s.store.KVGet(processedKey(id), &marker)
}

// MarkProcessed inserts a message id into the processed set.
func (s *Store) MarkProcessed(id [32]byte) error {
	if s == nil || s.store == nil {
		return errStoreNotConfigured
	}
	return s.store.KVPut(processedKey(id), uint8(1))
}

// NextNonce increments and persists the outbound nonce for a destination
// domain. The first nonce handed out is 1.
func (s *Store) NextNonce(domain uint64) (uint64, error) {
	if s == nil || s.store == nil {
		return 0, errStoreNotConfigured
	}
	var current uint64
	if _, err := s.store.KVGet(nonceKey(domain), &current); err != nil {
		return 0, err
	}
	next := current + 1
	if err := s.store.KVPut(nonceKey(domain), next); err != nil {
		return 0, err
	}
	return next, nil
}

type domainRecord struct {
	DomainID     uint64
	RemoteVault  [20]byte
	RemoteRouter [20]byte
	GasLimit     uint64
	Enabled      bool
}

// GetDomain loads a domain configuration, returning nil when unknown.
func (s *Store) GetDomain(domain uint64) (*DomainConfig, error) {
	if s == nil || s.store == nil {
		return nil, errStoreNotConfigured
	}
	var rec domainRecord
	found, err := s.store.KVGet(domainKey(domain), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	cfg := DomainConfig(rec)
	return &cfg, nil
}

// PutDomain upserts a domain configuration and maintains the domain index.
func (s *Store) PutDomain(cfg *DomainConfig) error {
	if s == nil || s.store == nil {
		return errStoreNotConfigured
	}
	if cfg == nil {
		return errors.New("bridge store: nil domain config")
	}
	rec := domainRecord(*cfg)
	if err := s.store.KVPut(domainKey(cfg.DomainID), &rec); err != nil {
		return err
	}
	var index []uint64
	if _, err := s.store.KVGet(domainIndexKey, &index); err != nil {
		return err
	}
	for _, id := range index {
		if id == cfg.DomainID {
			return nil
		}
	}
	index = append(index, cfg.DomainID)
	sort.Slice(index, func(i, j int) bool { return index[i] < index[j] })
	return s.store.KVPut(domainIndexKey, index)
}

// ListDomains returns every configured domain in id order.
func (s *Store) ListDomains() ([]DomainConfig, error) {
	if s == nil || s.store == nil {
		return nil, errStoreNotConfigured
	}
	var index []uint64
	if _, err := s.store.KVGet(domainIndexKey, &index); err != nil {
		return nil, err
	}
	out := make([]DomainConfig, 0, len(index))
	for _, id := range index {
		cfg, err := s.GetDomain(id)
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			out = append(out, *cfg)
		}
	}
	return out, nil
}

type outboundRecord struct {
	ID         [32]byte
	DestDomain uint64
	Nonce      uint64
	Status     string
	SentAt     uint64
}

// PutOutbound records a message handed to the transport.
func (s *Store) PutOutbound(rec *OutboundRecord) error {
	if s == nil || s.store == nil {
		return errStoreNotConfigured
	}
	if rec == nil {
		return errors.New("bridge store: nil outbound record")
	}
	stored := outboundRecord{
		ID:         rec.ID,
		DestDomain: rec.DestDomain,
		Nonce:      rec.Nonce,
		Status:     rec.Status,
		SentAt:     uint64(rec.SentAt),
	}
	return s.store.KVPut(outboundKey(rec.ID), &stored)
}

// GetOutbound loads an outbound record, returning nil when unknown.
func (s *Store) GetOutbound(id [32]byte) (*OutboundRecord, error) {
	if s == nil || s.store == nil {
		return nil, errStoreNotConfigured
	}
	var rec outboundRecord
	found, err := s.store.KVGet(outboundKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &OutboundRecord{
		ID:         rec.ID,
		DestDomain: rec.DestDomain,
		Nonce:      rec.Nonce,
		Status:     rec.Status,
		SentAt:     int64(rec.SentAt),
	}, nil
}
