package secrets

import (
	"context"
	"log/slog"
	"sync"

	"github.com/inesonic/speedsentry/internal/cache"
	"github.com/inesonic/speedsentry/internal/dbmux"
	"github.com/inesonic/speedsentry/internal/identity"
	"github.com/inesonic/speedsentry/internal/telemetry"
)

const cacheName = "secrets"

type cachedSecret struct {
	customerID uint32
	secret     *Secret
}

func cachedSecretID(c cachedSecret) uint32 { return c.customerID }

// Store is C4: the per-customer secret store. The cache has no internal
// lock (see internal/cache); every operation here wraps cache access with
// mu, and always writes the database before publishing to the cache — a
// racing reader may miss the cache window and re-read the database, but
// AddOrUpdate is idempotent so that's harmless.
type Store struct {
	mu     sync.Mutex
	cache  *cache.Cache[cachedSecret, uint32]
	key    [32]byte
	codec  *identity.Codec
	logger *slog.Logger
}

// NewStore creates a secrets Store. cacheDepth bounds the in-memory cache;
// key is the 32-byte at-rest encryption key; codec backs ToIdentifier and
// ToCustomerID.
func NewStore(cacheDepth uint64, key [32]byte, codec *identity.Codec, logger *slog.Logger) *Store {
	return &Store{
		cache:  cache.New[cachedSecret, uint32](cacheDepth, cachedSecretID),
		key:    key,
		codec:  codec,
		logger: logger,
	}
}

// SetEncryptionKey rotates the at-rest encryption key. No re-encryption
// migration is performed: rows written under the old key cannot be
// decrypted (secrets already cached are still served) until the old key
// is set again.
func (s *Store) SetEncryptionKey(key [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
}

// ToIdentifier delegates to the identifier codec (C2).
func (s *Store) ToIdentifier(customerID uint32) uint64 { return s.codec.ToIdentifier(customerID) }

// ToCustomerID delegates to the identifier codec (C2).
func (s *Store) ToCustomerID(identifier uint64) uint32 { return s.codec.ToCustomerID(identifier) }

// Get returns the customer's secret, consulting the cache first unless
// noCacheUpdate suppresses populating it on a miss.
func (s *Store) Get(ctx context.Context, db dbmux.DBTX, customerID uint32, noCacheUpdate bool) (*Secret, bool) {
	s.mu.Lock()
	if cached, ok := s.cache.Get(customerID); ok {
		s.mu.Unlock()
		telemetry.CacheHitsTotal.WithLabelValues(cacheName).Inc()
		return cached.secret, true
	}
	s.mu.Unlock()
	telemetry.CacheMissesTotal.WithLabelValues(cacheName).Inc()

	var blob []byte
	err := db.QueryRow(ctx, `SELECT secret FROM customer_secrets WHERE customer_id = $1`, customerID).Scan(&blob)
	if err != nil {
		s.logger.Debug("secrets: no stored secret", "customer_id", customerID, "error", err)
		return nil, false
	}

	s.mu.Lock()
	key := s.key
	s.mu.Unlock()

	plain, err := decrypt(key, blob)
	if err != nil {
		s.logger.Error("secrets: decrypting stored secret", "customer_id", customerID, "error", err)
		return nil, false
	}
	secret, err := secretFromBytes(plain)
	if err != nil {
		s.logger.Error("secrets: malformed stored secret", "customer_id", customerID, "error", err)
		return nil, false
	}

	if !noCacheUpdate {
		s.mu.Lock()
		s.cache.AddOrUpdate(cachedSecret{customerID: customerID, secret: secret})
		s.mu.Unlock()
	}
	return secret, true
}

// Delete removes the customer's secret row and evicts the cache entry.
func (s *Store) Delete(ctx context.Context, db dbmux.DBTX, customerID uint32) bool {
	_, err := db.Exec(ctx, `DELETE FROM customer_secrets WHERE customer_id = $1`, customerID)
	if err != nil {
		s.logger.Error("secrets: deleting secret", "customer_id", customerID, "error", err)
		return false
	}
	s.mu.Lock()
	evicted := s.cache.Evict(customerID)
	s.mu.Unlock()
	if evicted {
		telemetry.CacheEvictionsTotal.WithLabelValues(cacheName, "delete").Inc()
	}
	return true
}

// Rotate generates a fresh secret, upserts it under a new random IV, and
// populates the cache with the result on success.
func (s *Store) Rotate(ctx context.Context, db dbmux.DBTX, customerID uint32) (*Secret, bool) {
	secret, err := newSecret()
	if err != nil {
		s.logger.Error("secrets: generating secret", "customer_id", customerID, "error", err)
		return nil, false
	}

	s.mu.Lock()
	key := s.key
	s.mu.Unlock()

	blob, err := encrypt(key, secret.Padded())
	if err != nil {
		s.logger.Error("secrets: encrypting secret", "customer_id", customerID, "error", err)
		return nil, false
	}

	_, err = db.Exec(ctx, `
		INSERT INTO customer_secrets (customer_id, secret) VALUES ($1, $2)
		ON CONFLICT (customer_id) DO UPDATE SET secret = EXCLUDED.secret
	`, customerID, blob)
	if err != nil {
		s.logger.Error("secrets: upserting secret", "customer_id", customerID, "error", err)
		return nil, false
	}

	s.mu.Lock()
	s.cache.AddOrUpdate(cachedSecret{customerID: customerID, secret: secret})
	s.mu.Unlock()

	return secret, true
}
