// Package settings persists the user's remote preferences in a bbolt file.
//
// Values are kept as plain strings under fixed keys, the same shape a
// mobile key-value preference store uses, so a settings export from the
// phone app maps one to one.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"go2tv.app/uniremote/internal/domain"
)

const (
	KeyRokuAddress    = "roku_ip"
	KeyFireTVReceiver = "fire_tv_id"
	KeyFlingServiceID = "fling_sid"
	KeyLastMode       = "last_mode"
	KeyFavorites      = "favorites"
	KeyFireTVInput    = "fire_tv_input"
)

var bucketSettings = []byte("settings")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("settings store is closed")

type Store struct {
	db *bolt.DB
}

// Open opens or creates the store at path, creating parent directories.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create settings dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSettings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Snapshot reads every key. Missing keys take their defaults.
func (s *Store) Snapshot(_ context.Context) (domain.Settings, error) {
	if s.db == nil {
		return domain.Settings{}, ErrClosed
	}
	out := domain.DefaultSettings()
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		if b == nil {
			return nil
		}
		get := func(key string) (string, bool) {
			v := b.Get([]byte(key))
			if v == nil {
				return "", false
			}
			return string(v), true
		}
		if v, ok := get(KeyRokuAddress); ok {
			out.RokuAddress = v
		}
		if v, ok := get(KeyFireTVReceiver); ok {
			out.FireTVReceiverID = v
		}
		if v, ok := get(KeyFlingServiceID); ok && strings.TrimSpace(v) != "" {
			out.FlingServiceID = v
		}
		if v, ok := get(KeyLastMode); ok {
			out.LastMode = domain.ParseMode(v)
		}
		if v, ok := get(KeyFavorites); ok {
			out.Favorites = DecodeFavorites(v)
		}
		if v, ok := get(KeyFireTVInput); ok {
			out.FireTVInput = v
		}
		return nil
	})
	return out, err
}

// Save writes every field of settings in one transaction.
func (s *Store) Save(_ context.Context, settings domain.Settings) error {
	return s.put(map[string]string{
		KeyRokuAddress:    strings.TrimSpace(settings.RokuAddress),
		KeyFireTVReceiver: strings.TrimSpace(settings.FireTVReceiverID),
		KeyFlingServiceID: strings.TrimSpace(settings.FlingServiceID),
		KeyLastMode:       string(domain.ParseMode(string(settings.LastMode))),
		KeyFavorites:      EncodeFavorites(settings.Favorites),
		KeyFireTVInput:    strings.TrimSpace(settings.FireTVInput),
	})
}

func (s *Store) SaveRokuAddress(_ context.Context, address string) error {
	return s.put(map[string]string{KeyRokuAddress: strings.TrimSpace(address)})
}

// SaveReceiverID remembers the selected Fire TV receiver.
func (s *Store) SaveReceiverID(_ context.Context, id string) error {
	return s.put(map[string]string{KeyFireTVReceiver: strings.TrimSpace(id)})
}

func (s *Store) SaveMode(_ context.Context, mode domain.Mode) error {
	return s.put(map[string]string{KeyLastMode: string(mode)})
}

func (s *Store) SaveFavorites(_ context.Context, favorites []domain.Favorite) error {
	return s.put(map[string]string{KeyFavorites: EncodeFavorites(favorites)})
}

// SeedRokuAddress stores address only when no address is saved yet.
func (s *Store) SeedRokuAddress(_ context.Context, address string) (bool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return false, nil
	}
	if s.db == nil {
		return false, ErrClosed
	}
	seeded := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSettings)
		}
		if v := b.Get([]byte(KeyRokuAddress)); strings.TrimSpace(string(v)) != "" {
			return nil
		}
		seeded = true
		return b.Put([]byte(KeyRokuAddress), []byte(address))
	})
	return seeded, err
}

func (s *Store) put(values map[string]string) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSettings)
		}
		for k, v := range values {
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// EncodeFavorites renders favorites as newline-separated "label|appId" lines.
func EncodeFavorites(favorites []domain.Favorite) string {
	lines := make([]string, 0, len(favorites))
	for _, fav := range favorites {
		label := strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(fav.Label))
		appID := strings.TrimSpace(fav.AppID)
		if appID == "" || strings.ContainsAny(appID, "|\r\n") {
			continue
		}
		lines = append(lines, label+"|"+appID)
	}
	return strings.Join(lines, "\n")
}

// DecodeFavorites skips blank and malformed lines. The app id is whatever
// follows the last '|', so labels may contain the separator.
func DecodeFavorites(raw string) []domain.Favorite {
	out := []domain.Favorite{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		i := strings.LastIndex(line, "|")
		if i < 0 {
			continue
		}
		appID := strings.TrimSpace(line[i+1:])
		if appID == "" {
			continue
		}
		out = append(out, domain.Favorite{Label: strings.TrimSpace(line[:i]), AppID: appID})
	}
	return out
}
