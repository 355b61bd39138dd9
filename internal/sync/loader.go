// Package sync implements the progressive loader (C8) and the pending
// operations sweep that drains the local queue to the remote, per
// spec.md sections 4.8 and 4.6.
package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/leon6002/keybox-sub000/internal/events"
	"github.com/leon6002/keybox-sub000/internal/keyhierarchy"
	"github.com/leon6002/keybox-sub000/internal/remote"
	"github.com/leon6002/keybox-sub000/internal/store"
	"github.com/leon6002/keybox-sub000/internal/vault"
	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

// DefaultDecryptBatchSize is the default batch size for the progressive
// decrypt loop, per spec.md section 4.8 and the "decrypt_batch_size"
// configuration key in section 6.
const DefaultDecryptBatchSize = 10

// LoadResult is the outcome of Loader.Load, per spec.md section 4.8.
type LoadResult struct {
	Entries   []vault.CredentialRecord
	FromCache bool
	Total     int
	HasMore   bool
}

// Loader implements the progressive loader (C8).
type Loader struct {
	Session         *keyhierarchy.Session
	Optimistic      *store.OptimisticStore
	Cache           *store.Cache
	Remote          *remote.Client
	Bus             *events.Bus
	DecryptBatch    int
	refreshGroup    singleflight.Group
}

// NewLoader constructs a Loader. A zero decryptBatch defaults to
// DefaultDecryptBatchSize.
func NewLoader(session *keyhierarchy.Session, optimistic *store.OptimisticStore, cache *store.Cache, remoteClient *remote.Client, bus *events.Bus, decryptBatch int) *Loader {
	if decryptBatch <= 0 {
		decryptBatch = DefaultDecryptBatchSize
	}
	return &Loader{
		Session:      session,
		Optimistic:   optimistic,
		Cache:        cache,
		Remote:       remoteClient,
		Bus:          bus,
		DecryptBatch: decryptBatch,
	}
}

// Load implements spec.md section 4.8's algorithm.
func (l *Loader) Load(ctx context.Context, userID string) (LoadResult, error) {
	if l.Session.State() != keyhierarchy.Unlocked {
		return LoadResult{FromCache: false}, nil
	}
	userKey, err := l.Session.GetUserKey()
	if err != nil {
		return LoadResult{}, err
	}

	optimisticResult, err := l.Optimistic.List(userID, userKey)
	if err != nil {
		return LoadResult{}, fmt.Errorf("list optimistic rows: %w", err)
	}
	if len(optimisticResult.Records) > 0 {
		l.scheduleBackgroundRefresh(userID)
		return LoadResult{
			Entries:   optimisticResult.Records,
			FromCache: false,
			Total:     len(optimisticResult.Records),
		}, nil
	}

	cacheKey, err := store.Fingerprint("passwords/load", userID, map[string]any{})
	if err != nil {
		return LoadResult{}, err
	}

	cached, hit, err := l.Cache.Get(cacheKey, userID)
	if err != nil {
		return LoadResult{}, fmt.Errorf("cache get: %w", err)
	}
	if hit {
		l.scheduleBackgroundRefresh(userID)
		ciphers, err := decodeCipherList(cached)
		if err != nil {
			return LoadResult{}, err
		}
		return l.decryptWindow(ctx, ciphers, userKey, true)
	}

	return l.fetchAndCache(ctx, userID, userKey, cacheKey)
}

// ForceRefresh invalidates the cache entry for userID and re-fetches from
// the remote, per spec.md section 4.8 step 5.
func (l *Loader) ForceRefresh(ctx context.Context, userID string) (LoadResult, error) {
	if l.Session.State() != keyhierarchy.Unlocked {
		return LoadResult{}, vaulterr.ErrVaultLocked
	}
	userKey, err := l.Session.GetUserKey()
	if err != nil {
		return LoadResult{}, err
	}
	cacheKey, err := store.Fingerprint("passwords/load", userID, map[string]any{})
	if err != nil {
		return LoadResult{}, err
	}
	if err := l.Cache.Invalidate(cacheKey); err != nil {
		return LoadResult{}, fmt.Errorf("invalidate cache: %w", err)
	}
	return l.fetchAndCache(ctx, userID, userKey, cacheKey)
}

func (l *Loader) fetchAndCache(ctx context.Context, userID string, userKey []byte, cacheKey string) (LoadResult, error) {
	wireCiphers, err := l.Remote.LoadPasswords(ctx, userID)
	if err != nil {
		return LoadResult{}, err
	}

	payload, err := json.Marshal(wireCiphers)
	if err != nil {
		return LoadResult{}, fmt.Errorf("marshal remote response: %w", err)
	}
	if err := l.Cache.Put(cacheKey, userID, payload, "1"); err != nil {
		return LoadResult{}, fmt.Errorf("cache put: %w", err)
	}

	ciphers, err := decodeCipherList(payload)
	if err != nil {
		return LoadResult{}, err
	}
	return l.decryptWindow(ctx, ciphers, userKey, false)
}

func decodeCipherList(data []byte) ([]vault.EncryptedCipher, error) {
	var ciphers []vault.EncryptedCipher
	if err := json.Unmarshal(data, &ciphers); err != nil {
		return nil, fmt.Errorf("%w: %v", vaulterr.ErrCorruptRecord, err)
	}
	return ciphers, nil
}

// decryptWindow decrypts ciphers in batches of l.DecryptBatch, yielding
// cooperatively between batches so a long load does not block other work
// on the same goroutine scheduler, per spec.md section 4.8 and section 5's
// "inter-batch yield" suspension point. It stops early (HasMore=true) if
// ctx is cancelled mid-loop, returning whatever was already decrypted.
func (l *Loader) decryptWindow(ctx context.Context, ciphers []vault.EncryptedCipher, userKey []byte, fromCache bool) (LoadResult, error) {
	result := LoadResult{FromCache: fromCache, Total: len(ciphers)}
	for start := 0; start < len(ciphers); start += l.DecryptBatch {
		select {
		case <-ctx.Done():
			result.HasMore = true
			return result, nil
		default:
		}

		end := min(start+l.DecryptBatch, len(ciphers))
		batch := vault.DecryptMany(ciphers[start:end], userKey)
		result.Entries = append(result.Entries, batch.Records...)

		if end < len(ciphers) {
			select {
			case <-ctx.Done():
				result.HasMore = true
				return result, nil
			default:
			}
		}
	}
	return result, nil
}

// scheduleBackgroundRefresh kicks off a single-flight refresh for userID.
// Concurrent calls for the same userID coalesce into one in-flight
// request, per spec.md section 4.8's "single-flight per userId".
func (l *Loader) scheduleBackgroundRefresh(userID string) {
	go func() {
		_, err, _ := l.refreshGroup.Do(userID, func() (any, error) {
			ctx := context.Background()
			userKey, err := l.Session.GetUserKey()
			if err != nil {
				return nil, err
			}
			cacheKey, err := store.Fingerprint("passwords/load", userID, map[string]any{})
			if err != nil {
				return nil, err
			}
			result, err := l.fetchAndCache(ctx, userID, userKey, cacheKey)
			if err != nil {
				return nil, err
			}
			if len(result.Entries) > 0 {
				l.Bus.Publish(events.PasswordsRefreshed{UserID: userID, Count: len(result.Entries)})
			}
			return result, nil
		})
		if err != nil {
			return
		}
	}()
}
