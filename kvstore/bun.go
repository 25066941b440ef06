package kvstore

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-gate"
	"github.com/uptrace/bun"
)

type kvEntry struct {
	bun.BaseModel `bun:"table:kv_entries,alias:kv"`

	Key       string     `bun:"key,pk"`
	Value     string     `bun:"value,notnull"`
	ExpiresAt *time.Time `bun:"expires_at"`
}

type kvMember struct {
	bun.BaseModel `bun:"table:kv_members,alias:kvm"`

	SetKey string `bun:"set_key,pk"`
	Member string `bun:"member,pk"`
}

const (
	sqliteCreateEntries = `CREATE TABLE IF NOT EXISTS kv_entries (
    key TEXT NOT NULL PRIMARY KEY,
    value TEXT NOT NULL,
    expires_at TIMESTAMP
);`
	sqliteCreateMembers = `CREATE TABLE IF NOT EXISTS kv_members (
    set_key TEXT NOT NULL,
    member TEXT NOT NULL,
    PRIMARY KEY (set_key, member)
);`
)

// Bun is a gate.KV over a bun database. Expiry is lazy: expired rows are
// treated as absent and dropped when a read or conditional write touches
// them. SetNX maps to a conflict-aware insert, which is the compare-and-swap
// mint paths depend on.
type Bun struct {
	db  *bun.DB
	idb bun.IDB
	now func() time.Time
}

var _ gate.KV = (*Bun)(nil)
var _ gate.BatchKV = (*Bun)(nil)

// NewBun wraps an existing bun database. Callers own the connection; run
// Init once before first use.
func NewBun(db *bun.DB) *Bun {
	return &Bun{db: db, idb: db, now: time.Now}
}

// WithNow replaces the clock, for tests.
func (s *Bun) WithNow(now func() time.Time) *Bun {
	if now != nil {
		s.now = now
	}
	return s
}

// Init creates the backing tables when they do not exist yet.
func (s *Bun) Init(ctx context.Context) error {
	if _, err := s.idb.ExecContext(ctx, sqliteCreateEntries); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create kv_entries")
	}
	if _, err := s.idb.ExecContext(ctx, sqliteCreateMembers); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create kv_members")
	}
	return nil
}

func (s *Bun) Get(ctx context.Context, key string) (string, bool, error) {
	entry := new(kvEntry)
	err := s.idb.NewSelect().Model(entry).Where("key = ?", key).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, errors.CategoryInternal, "kv get failed")
	}

	if s.expired(entry) {
		_ = s.dropExpired(ctx, key)
		return "", false, nil
	}

	return entry.Value, true, nil
}

func (s *Bun) Set(ctx context.Context, key, value string) error {
	return s.upsert(ctx, &kvEntry{Key: key, Value: value})
}

func (s *Bun) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	deadline := s.now().Add(ttl)
	return s.upsert(ctx, &kvEntry{Key: key, Value: value, ExpiresAt: &deadline})
}

func (s *Bun) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := s.dropExpired(ctx, key); err != nil {
		return false, err
	}

	entry := &kvEntry{Key: key, Value: value}
	if ttl > 0 {
		deadline := s.now().Add(ttl)
		entry.ExpiresAt = &deadline
	}

	res, err := s.idb.NewInsert().Model(entry).
		On("CONFLICT (key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "kv setnx failed")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "kv setnx failed")
	}
	return affected == 1, nil
}

func (s *Bun) Incr(ctx context.Context, key string) (int64, error) {
	var value int64
	run := func(ctx context.Context, idb bun.IDB) error {
		// an expired counter restarts rather than resuming its stale value
		if err := dropExpired(ctx, idb, key, s.now()); err != nil {
			return err
		}

		res, err := idb.NewUpdate().Model((*kvEntry)(nil)).
			Set("value = CAST(value AS INTEGER) + 1").
			Where("key = ?", key).
			Exec(ctx)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if affected == 0 {
			entry := &kvEntry{Key: key, Value: "1"}
			if _, err := idb.NewInsert().Model(entry).Exec(ctx); err != nil {
				return err
			}
			value = 1
			return nil
		}

		var raw string
		if err := idb.NewSelect().Model((*kvEntry)(nil)).
			Column("value").
			Where("key = ?", key).
			Scan(ctx, &raw); err != nil {
			return err
		}

		value, err = strconv.ParseInt(raw, 10, 64)
		return err
	}

	var err error
	if s.db != nil {
		err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return run(ctx, tx)
		})
	} else {
		// already inside a batch transaction
		err = run(ctx, s.idb)
	}
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "kv incr failed")
	}
	return value, nil
}

func (s *Bun) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.idb.NewDelete().Model((*kvEntry)(nil)).
		Where("key IN (?)", bun.In(keys)).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "kv del failed")
	}
	return nil
}

func (s *Bun) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Bun) Expire(ctx context.Context, key string, ttl time.Duration) error {
	deadline := s.now().Add(ttl)
	_, err := s.idb.NewUpdate().Model((*kvEntry)(nil)).
		Set("expires_at = ?", deadline).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "kv expire failed")
	}
	return nil
}

func (s *Bun) SAdd(ctx context.Context, set, member string) error {
	entry := &kvMember{SetKey: set, Member: member}
	_, err := s.idb.NewInsert().Model(entry).
		On("CONFLICT (set_key, member) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "kv sadd failed")
	}
	return nil
}

func (s *Bun) SRem(ctx context.Context, set, member string) error {
	_, err := s.idb.NewDelete().Model((*kvMember)(nil)).
		Where("set_key = ? AND member = ?", set, member).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "kv srem failed")
	}
	return nil
}

func (s *Bun) SMembers(ctx context.Context, set string) ([]string, error) {
	var members []string
	err := s.idb.NewSelect().Model((*kvMember)(nil)).
		Column("member").
		Where("set_key = ?", set).
		Order("member ASC").
		Scan(ctx, &members)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "kv smembers failed")
	}
	return members, nil
}

// Batch runs fn with a store bound to a single transaction. Callers must not
// rely on it for correctness: every KV sequence in the core stays valid when
// executed statement by statement.
func (s *Bun) Batch(ctx context.Context, fn func(kv gate.KV) error) error {
	if s.db == nil {
		return fn(s)
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(&Bun{idb: tx, now: s.now})
	})
}

func (s *Bun) upsert(ctx context.Context, entry *kvEntry) error {
	_, err := s.idb.NewInsert().Model(entry).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "kv set failed")
	}
	return nil
}

func (s *Bun) expired(entry *kvEntry) bool {
	return entry.ExpiresAt != nil && !s.now().Before(*entry.ExpiresAt)
}

func (s *Bun) dropExpired(ctx context.Context, key string) error {
	if err := dropExpired(ctx, s.idb, key, s.now()); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "kv expiry sweep failed")
	}
	return nil
}

func dropExpired(ctx context.Context, idb bun.IDB, key string, now time.Time) error {
	_, err := idb.NewDelete().Model((*kvEntry)(nil)).
		Where("key = ?", key).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Exec(ctx)
	return err
}
