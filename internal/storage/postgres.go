package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mysticduel/duel-server/internal/catalog"
	"github.com/mysticduel/duel-server/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS match_snapshots (
	match_id   TEXT PRIMARY KEY,
	seq        BIGINT NOT NULL,
	status     TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	snapshot   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS card_templates (
	name            TEXT PRIMARY KEY,
	cost            INTEGER NOT NULL,
	card_type       TEXT NOT NULL,
	attack          INTEGER NOT NULL DEFAULT 0,
	health          INTEGER NOT NULL DEFAULT 0,
	ability         TEXT NOT NULL DEFAULT '',
	rarity          TEXT NOT NULL,
	colors          TEXT[] NOT NULL,
	splash_friendly BOOLEAN NOT NULL DEFAULT false,
	splash_bonus    TEXT NOT NULL DEFAULT '',
	emoji           TEXT NOT NULL DEFAULT '',
	variant         TEXT NOT NULL DEFAULT '',
	full_art        BOOLEAN NOT NULL DEFAULT false
);
`

// PostgresStore keeps snapshots and the card catalog in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to url and verifies the connection.
func NewPostgresStore(ctx context.Context, url string, maxConns int32, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database connection established", zap.Int32("max_conns", cfg.MaxConns))
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// SaveSnapshot upserts the snapshot. An older sequence number never
// overwrites a newer one.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *game.MatchSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.MatchID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO match_snapshots (match_id, seq, status, checksum, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (match_id) DO UPDATE SET
			seq = EXCLUDED.seq,
			status = EXCLUDED.status,
			checksum = EXCLUDED.checksum,
			snapshot = EXCLUDED.snapshot,
			updated_at = now()
		WHERE match_snapshots.seq <= EXCLUDED.seq
	`, snap.MatchID, int64(snap.Seq), string(snap.Status), snap.Checksum, data)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.MatchID, err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot of a match.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, matchID string) (*game.MatchSnapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT snapshot FROM match_snapshots WHERE match_id = $1`, matchID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", matchID, err)
	}
	var snap game.MatchSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", matchID, err)
	}
	return &snap, nil
}

// DeleteSnapshot removes a match's snapshot.
func (s *PostgresStore) DeleteSnapshot(ctx context.Context, matchID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM match_snapshots WHERE match_id = $1`, matchID); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", matchID, err)
	}
	return nil
}

// UpsertCards writes templates in one transaction and returns how many
// were written.
func (s *PostgresStore) UpsertCards(ctx context.Context, templates []catalog.CardTemplate) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, t := range templates {
		if err := t.Validate(); err != nil {
			return 0, err
		}
		batch.Queue(`
			INSERT INTO card_templates (
				name, cost, card_type, attack, health, ability, rarity, colors,
				splash_friendly, splash_bonus, emoji, variant, full_art
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (name) DO UPDATE SET
				cost = EXCLUDED.cost,
				card_type = EXCLUDED.card_type,
				attack = EXCLUDED.attack,
				health = EXCLUDED.health,
				ability = EXCLUDED.ability,
				rarity = EXCLUDED.rarity,
				colors = EXCLUDED.colors,
				splash_friendly = EXCLUDED.splash_friendly,
				splash_bonus = EXCLUDED.splash_bonus,
				emoji = EXCLUDED.emoji,
				variant = EXCLUDED.variant,
				full_art = EXCLUDED.full_art
		`,
			t.Name, t.Cost, string(t.Type), t.Attack, t.Health, t.Ability, string(t.Rarity),
			colorStrings(t.Colors), t.SplashFriendly, t.SplashBonus, t.Emoji, t.Variant, t.FullArt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for _, t := range templates {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("upsert card %s: %w", t.Name, err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("upsert cards: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit cards: %w", err)
	}
	s.logger.Info("card templates upserted", zap.Int("count", len(templates)))
	return len(templates), nil
}

// LoadCatalog reads every card template and builds a catalog.
func (s *PostgresStore) LoadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, cost, card_type, attack, health, ability, rarity, colors,
		       splash_friendly, splash_bonus, emoji, variant, full_art
		FROM card_templates ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query card templates: %w", err)
	}
	templates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.CardTemplate, error) {
		var (
			t        catalog.CardTemplate
			cardType string
			rarity   string
			colors   []string
		)
		err := row.Scan(&t.Name, &t.Cost, &cardType, &t.Attack, &t.Health, &t.Ability, &rarity, &colors,
			&t.SplashFriendly, &t.SplashBonus, &t.Emoji, &t.Variant, &t.FullArt)
		t.Type = catalog.CardType(cardType)
		t.Rarity = catalog.Rarity(rarity)
		for _, c := range colors {
			t.Colors = append(t.Colors, catalog.Color(c))
		}
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("read card templates: %w", err)
	}
	return catalog.New(templates...)
}

func colorStrings(colors []catalog.Color) []string {
	out := make([]string, 0, len(colors))
	for _, c := range colors {
		out = append(out, string(c))
	}
	return out
}

var _ game.SnapshotStore = (*PostgresStore)(nil)
