package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/voyplan/voyplan-api/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository is the persistent POI catalog shared across trips.
type Repository interface {
	UpsertPOIs(ctx context.Context, city string, candidates []types.POICandidate) ([]types.POICandidate, error)
	SearchCached(ctx context.Context, city, category string, keywords []string, limit int) ([]types.POICandidate, error)
	GetPOI(ctx context.Context, id string) (*types.POICandidate, error)
	UpdateDetails(ctx context.Context, id string, details *types.PlaceDetails) error
}

// PGXQuerier is the slice of pgxpool.Pool this repository needs.
type PGXQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool PGXQuerier
	psql   sq.StatementBuilderType
}

func NewRepository(pgpool PGXQuerier, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const poiColumns = "id, name, category, tags, COALESCE(rating, 0), user_ratings_total, " +
	"price_level, business_status, lat, lon, COALESCE(address, ''), " +
	"COALESCE(description, ''), reviews, rank_score, external_source, external_id"

// UpsertPOIs persists externally fetched candidates and fills in their
// catalog ids. Records are keyed by (external_source, external_id).
func (r *RepositoryImpl) UpsertPOIs(ctx context.Context, city string, candidates []types.POICandidate) ([]types.POICandidate, error) {
	out := make([]types.POICandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ExternalID == "" {
			continue
		}
		reviews, err := json.Marshal(c.Reviews)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal reviews: %w", err)
		}

		var id string
		err = r.pgpool.QueryRow(ctx, `
			INSERT INTO pois (
				external_source, external_id, name, city, category, tags,
				rating, user_ratings_total, price_level, business_status,
				lat, lon, address, description, reviews
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (external_source, external_id) DO UPDATE SET
				name = EXCLUDED.name,
				rating = EXCLUDED.rating,
				user_ratings_total = EXCLUDED.user_ratings_total,
				price_level = EXCLUDED.price_level,
				business_status = EXCLUDED.business_status,
				updated_at = now()
			RETURNING id`,
			c.Source, c.ExternalID, c.Name, city, c.Category, c.Tags,
			c.Rating, c.UserRatingsTotal, c.PriceLevel, nullIfEmpty(c.BusinessStatus),
			c.Latitude, c.Longitude, nullIfEmpty(c.Address), nullIfEmpty(c.Description), reviews,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert poi %q: %w", c.Name, err)
		}
		c.ID = id
		out = append(out, c)
	}
	return out, nil
}

// SearchCached queries the local catalog by city and category. Keywords, when
// present, widen the match to names and tags.
func (r *RepositoryImpl) SearchCached(ctx context.Context, city, category string, keywords []string, limit int) ([]types.POICandidate, error) {
	builder := r.psql.Select(poiColumns).
		From("pois").
		Where(sq.Eq{"city": city}).
		OrderBy("rating DESC NULLS LAST, user_ratings_total DESC").
		Limit(uint64(limit))

	if category != "" {
		if len(keywords) > 0 {
			or := sq.Or{sq.Eq{"category": category}}
			for _, kw := range keywords {
				or = append(or, sq.ILike{"name": "%" + kw + "%"})
				or = append(or, sq.Expr("EXISTS (SELECT 1 FROM unnest(tags) t WHERE t ILIKE ?)", "%"+kw+"%"))
			}
			builder = builder.Where(or)
		} else {
			builder = builder.Where(sq.Eq{"category": category})
		}
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build poi search query: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search pois: %w", err)
	}
	defer rows.Close()

	var pois []types.POICandidate
	for rows.Next() {
		c, err := scanPOI(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan poi: %w", err)
		}
		pois = append(pois, *c)
	}
	return pois, rows.Err()
}

func (r *RepositoryImpl) GetPOI(ctx context.Context, id string) (*types.POICandidate, error) {
	row := r.pgpool.QueryRow(ctx, `SELECT `+poiColumns+` FROM pois WHERE id = $1`, id)
	c, err := scanPOI(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get poi: %w", err)
	}
	return c, nil
}

func (r *RepositoryImpl) UpdateDetails(ctx context.Context, id string, details *types.PlaceDetails) error {
	reviews, err := json.Marshal(details.Reviews)
	if err != nil {
		return fmt.Errorf("failed to marshal reviews: %w", err)
	}
	hours, err := json.Marshal(details.OpeningHours)
	if err != nil {
		return fmt.Errorf("failed to marshal opening hours: %w", err)
	}

	tag, err := r.pgpool.Exec(ctx, `
		UPDATE pois SET
			description = COALESCE(NULLIF($2, ''), description),
			reviews = $3,
			opening_hours = $4,
			updated_at = now()
		WHERE id = $1`,
		id, details.Description, reviews, hours)
	if err != nil {
		return fmt.Errorf("failed to update poi details: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func scanPOI(row pgx.Row) (*types.POICandidate, error) {
	var c types.POICandidate
	var businessStatus *string
	var reviews []byte

	err := row.Scan(&c.ID, &c.Name, &c.Category, &c.Tags, &c.Rating,
		&c.UserRatingsTotal, &c.PriceLevel, &businessStatus,
		&c.Latitude, &c.Longitude, &c.Address,
		&c.Description, &reviews, &c.RankScore, &c.Source, &c.ExternalID)
	if err != nil {
		return nil, err
	}
	if businessStatus != nil {
		c.BusinessStatus = *businessStatus
	}
	if len(reviews) > 0 {
		if err := json.Unmarshal(reviews, &c.Reviews); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reviews: %w", err)
		}
	}
	return &c, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
