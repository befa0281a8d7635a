package roi

import (
	"bytes"
	"context"
	"encoding/gob"
	"log/slog"
	"net/url"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/dgraph-io/badger/v4"
)

const pageLifetime = int64(time.Hour / time.Second * 6)

var errPageNotCached = badger.ErrKeyNotFound

type cachedPage struct {
	Contents  []byte
	ExpiresAt int64
}

type pageCache struct {
	db *badger.DB
}

func (c pageCache) key(pageUrl string) (string, error) {
	parsed, err := url.Parse(pageUrl)
	if err != nil {
		return "", err
	}
	normalized := purell.NormalizeURL(
		parsed,
		purell.FlagsSafe|
			purell.FlagsUsuallySafeNonGreedy|
			purell.FlagRemoveFragment|
			purell.FlagSortQuery,
	)
	return "roi:" + normalized, nil
}

func (c pageCache) get(ctx context.Context, pageUrl string) ([]byte, error) {
	if c.db == nil {
		return nil, errPageNotCached
	}

	key, err := c.key(pageUrl)
	if err != nil {
		return nil, err
	}

	tx := c.db.NewTransaction(false)
	defer tx.Discard()
	item, err := tx.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	serialized, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	var cached cachedPage
	err = gob.NewDecoder(bytes.NewBuffer(serialized)).Decode(&cached)
	if err != nil {
		return nil, err
	}

	if time.Now().Unix() >= cached.ExpiresAt {
		wtx := c.db.NewTransaction(true)
		defer wtx.Commit()
		if err := wtx.Delete([]byte(key)); err != nil {
			slog.WarnContext(ctx, "failed to delete expired cached page", "key", key, "err", err)
		}
		return nil, errPageNotCached
	}

	slog.DebugContext(ctx, "page cache hit", "key", key, "size", len(cached.Contents))
	return cached.Contents, nil
}

func (c pageCache) set(ctx context.Context, pageUrl string, contents []byte) {
	if c.db == nil {
		return
	}

	key, err := c.key(pageUrl)
	if err != nil {
		return
	}

	serialized := bytes.NewBuffer(nil)
	err = gob.NewEncoder(serialized).Encode(cachedPage{
		Contents:  contents,
		ExpiresAt: time.Now().Unix() + pageLifetime,
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to serialize page for cache", "key", key, "err", err)
		return
	}

	tx := c.db.NewTransaction(true)
	defer tx.Commit()
	if err := tx.Set([]byte(key), serialized.Bytes()); err != nil {
		slog.WarnContext(ctx, "failed to cache page", "key", key, "err", err)
	}
}
