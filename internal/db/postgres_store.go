package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/owuorvin/jubabuy/internal/models"
	"github.com/owuorvin/jubabuy/internal/store"
	"github.com/owuorvin/jubabuy/internal/utils"
)

var baseColumns = []string{
	"id", "slug", "title", "description", "location", "price", "status",
	"featured", "views", "agent_id", "features", "created_at", "updated_at",
}

// pgKind describes the table of one listing kind.
type pgKind struct {
	table string
	attrs []string
	ddl   string
	// targets allocates the kind payload on l and returns scan destinations for attrs.
	targets func(l *models.Listing) []any
	values  func(l *models.Listing) []any
}

var pgKinds = map[models.Kind]pgKind{
	models.KindDwelling: {
		table: "dwellings",
		attrs: []string{"category", "bedrooms", "bathrooms", "floor_area", "furnished"},
		ddl: `category TEXT NOT NULL DEFAULT '',
			bedrooms INTEGER NOT NULL DEFAULT 0,
			bathrooms INTEGER NOT NULL DEFAULT 0,
			floor_area INTEGER NOT NULL DEFAULT 0,
			furnished BOOLEAN NOT NULL DEFAULT FALSE`,
		targets: func(l *models.Listing) []any {
			d := &models.Dwelling{}
			l.Dwelling = d
			return []any{&d.Category, &d.Bedrooms, &d.Bathrooms, &d.FloorArea, &d.Furnished}
		},
		values: func(l *models.Listing) []any {
			d := l.Dwelling
			return []any{d.Category, d.Bedrooms, d.Bathrooms, d.FloorArea, d.Furnished}
		},
	},
	models.KindVehicle: {
		table: "vehicles",
		attrs: []string{"make", "model", "year", "mileage", "fuel_type", "transmission", "condition"},
		ddl: `make TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			year INTEGER NOT NULL DEFAULT 0,
			mileage INTEGER NOT NULL DEFAULT 0,
			fuel_type TEXT NOT NULL DEFAULT '',
			transmission TEXT NOT NULL DEFAULT '',
			condition TEXT NOT NULL DEFAULT ''`,
		targets: func(l *models.Listing) []any {
			v := &models.Vehicle{}
			l.Vehicle = v
			return []any{&v.Make, &v.Model, &v.Year, &v.Mileage, &v.FuelType, &v.Transmission, &v.Condition}
		},
		values: func(l *models.Listing) []any {
			v := l.Vehicle
			return []any{v.Make, v.Model, v.Year, v.Mileage, v.FuelType, v.Transmission, v.Condition}
		},
	},
	models.KindParcel: {
		table: "parcels",
		attrs: []string{"area", "area_unit", "zoning"},
		ddl: `area DOUBLE PRECISION NOT NULL DEFAULT 0,
			area_unit TEXT NOT NULL DEFAULT '',
			zoning TEXT NOT NULL DEFAULT ''`,
		targets: func(l *models.Listing) []any {
			p := &models.Parcel{}
			l.Parcel = p
			return []any{&p.Area, &p.AreaUnit, &p.Zoning}
		},
		values: func(l *models.Listing) []any {
			p := l.Parcel
			return []any{p.Area, p.AreaUnit, p.Zoning}
		},
	},
}

// column maps a logical column onto a physical one, rejecting anything not in the schema.
func (k pgKind) column(logical string) (string, error) {
	kind, name := store.AttrColumn(logical)
	cols := baseColumns
	if kind != "" {
		if k.table != models.Kind(kind).Plural() {
			return "", fmt.Errorf("column %q does not belong to %s", logical, k.table)
		}
		cols = k.attrs
	}
	for _, c := range cols {
		if c == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown column %q", logical)
}

func (k pgKind) selectList() string {
	return strings.Join(append(append([]string{}, baseColumns...), k.attrs...), ", ")
}

// PostgresStore is the relational backend. Ties on the sort column fall back to seq,
// the insertion sequence.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func kindOf(kind models.Kind) (pgKind, error) {
	pk, ok := pgKinds[kind]
	if !ok {
		return pgKind{}, fmt.Errorf("unknown listing kind %q", kind)
	}
	return pk, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// where renders the predicates of q with $n placeholders.
func (k pgKind) where(q store.Query) (string, []any, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	for _, p := range q.Predicates {
		col, err := k.column(p.Column)
		if err != nil {
			return "", nil, err
		}
		switch p.Op {
		case store.OpEq:
			conds = append(conds, col+" = "+arg(p.Value))
		case store.OpGte:
			conds = append(conds, col+" >= "+arg(p.Value))
		case store.OpLte:
			conds = append(conds, col+" <= "+arg(p.Value))
		case store.OpContains:
			conds = append(conds, col+" ILIKE "+arg("%"+escapeLike(fmt.Sprint(p.Value))+"%"))
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", p.Op)
		}
	}
	if q.Search != "" && len(q.SearchColumns) > 0 {
		ph := arg("%" + escapeLike(q.Search) + "%")
		ors := make([]string, 0, len(q.SearchColumns))
		for _, sc := range q.SearchColumns {
			col, err := k.column(sc)
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, col+" ILIKE "+ph)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if len(conds) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (s *PostgresStore) CountListings(ctx context.Context, q store.Query) (int64, error) {
	pk, err := kindOf(q.Kind)
	if err != nil {
		return 0, err
	}
	where, args, err := pk.where(q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+pk.table+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", pk.table, err)
	}
	return n, nil
}

func (s *PostgresStore) FindListings(ctx context.Context, q store.Query) ([]models.Listing, error) {
	pk, err := kindOf(q.Kind)
	if err != nil {
		return nil, err
	}
	where, args, err := pk.where(q)
	if err != nil {
		return nil, err
	}

	order := " ORDER BY seq ASC"
	if q.SortColumn != "" {
		col, err := pk.column(q.SortColumn)
		if err != nil {
			return nil, err
		}
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		order = fmt.Sprintf(" ORDER BY %s %s, seq ASC", col, dir)
	}

	sql := "SELECT " + pk.selectList() + " FROM " + pk.table + where + order
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, q.Offset)
	sql += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", pk.table, err)
	}
	defer rows.Close()

	listings := []models.Listing{}
	for rows.Next() {
		l, err := pk.scan(q.Kind, rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", pk.table, err)
	}
	return listings, nil
}

func (k pgKind) scan(kind models.Kind, row pgx.Row) (*models.Listing, error) {
	l := &models.Listing{Kind: kind}
	var status string
	dest := []any{
		&l.ID, &l.Slug, &l.Title, &l.Description, &l.Location, &l.Price, &status,
		&l.Featured, &l.Views, &l.AgentID, &l.FeaturesRaw, &l.CreatedAt, &l.UpdatedAt,
	}
	dest = append(dest, k.targets(l)...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	l.Status = models.Status(status)
	return l, nil
}

func (s *PostgresStore) FindImages(ctx context.Context, entityType models.Kind, entityIDs []string) ([]models.Image, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, alt, is_main, sort_order, entity_id FROM images
		 WHERE entity_type = $1 AND entity_id = ANY($2)
		 ORDER BY entity_id, sort_order`, string(entityType), entityIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		img := models.Image{EntityType: entityType}
		if err := rows.Scan(&img.ID, &img.URL, &img.Alt, &img.IsMain, &img.Order, &img.EntityID); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *PostgresStore) FindAgents(ctx context.Context, ids []string) ([]models.Agent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name, email, phone, avatar FROM agents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.Avatar); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *PostgresStore) FindListing(ctx context.Context, kind models.Kind, idOrSlug string) (*models.Listing, error) {
	pk, err := kindOf(kind)
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, "SELECT "+pk.selectList()+" FROM "+pk.table+" WHERE id = $1 OR slug = $1 LIMIT 1", idOrSlug)
	l, err := pk.scan(kind, row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error finding %s %s: %w", kind, idOrSlug, err)
	}
	return l, nil
}

func (s *PostgresStore) IncrementViews(ctx context.Context, kind models.Kind, id string) error {
	pk, err := kindOf(kind)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, "UPDATE "+pk.table+" SET views = views + 1 WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to increment views of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func rowValues(pk pgKind, l *models.Listing) []any {
	vals := []any{
		l.ID, l.Slug, l.Title, l.Description, l.Location, l.Price, string(l.Status),
		l.Featured, l.Views, l.AgentID, l.FeaturesRaw, l.CreatedAt, l.UpdatedAt,
	}
	return append(vals, pk.values(l)...)
}

func (s *PostgresStore) InsertListing(ctx context.Context, listing *models.Listing) error {
	pk, err := kindOf(listing.Kind)
	if err != nil {
		return err
	}
	cols := append(append([]string{}, baseColumns...), pk.attrs...)
	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", pk.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := s.pool.Exec(ctx, sql, rowValues(pk, listing)...); err != nil {
		if IsPostgresDuplicateKeyError(err) {
			return fmt.Errorf("listing %s: %w: %w", listing.ID, store.ErrDuplicate, err)
		}
		return fmt.Errorf("failed to insert listing into %s: %w", pk.table, err)
	}
	return nil
}

func (s *PostgresStore) ReplaceListing(ctx context.Context, listing *models.Listing) error {
	pk, err := kindOf(listing.Kind)
	if err != nil {
		return err
	}
	cols := append(append([]string{}, baseColumns...), pk.attrs...)
	sets := make([]string, 0, len(cols)-1)
	for i, c := range cols[1:] {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+2))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", pk.table, strings.Join(sets, ", "))
	tag, err := s.pool.Exec(ctx, sql, rowValues(pk, listing)...)
	if err != nil {
		return fmt.Errorf("failed to update listing %s: %w", listing.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteListing(ctx context.Context, kind models.Kind, id string) error {
	pk, err := kindOf(kind)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM "+pk.table+" WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete listing %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		if _, err := tx.Exec(ctx, "DELETE FROM images WHERE entity_type = $1 AND entity_id = $2", string(kind), id); err != nil {
			return fmt.Errorf("failed to delete images of %s: %w", id, err)
		}
		return nil
	})
}

func (s *PostgresStore) ReplaceImages(ctx context.Context, entityType models.Kind, entityID string, images []models.Image) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue("DELETE FROM images WHERE entity_type = $1 AND entity_id = $2", string(entityType), entityID)
		for _, img := range images {
			if img.ID == "" {
				img.ID = utils.NewSixID().String()
			}
			batch.Queue(`INSERT INTO images (id, entity_type, entity_id, url, alt, is_main, sort_order)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				img.ID, string(entityType), entityID, img.URL, img.Alt, img.IsMain, img.Order)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to replace images of %s: %w", entityID, err)
		}
		return nil
	})
}

func (s *PostgresStore) UpsertAgent(ctx context.Context, agent *models.Agent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agents (id, name, email, phone, avatar) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
		 phone = EXCLUDED.phone, avatar = EXCLUDED.avatar`,
		agent.ID, agent.Name, agent.Email, agent.Phone, agent.Avatar)
	if err != nil {
		return fmt.Errorf("failed to upsert agent %s: %w", agent.ID, err)
	}
	return nil
}

func (s *PostgresStore) ToggleFavorite(ctx context.Context, userID, listingID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM favorites WHERE user_id = $1 AND listing_id = $2", userID, listingID)
	if err != nil {
		return false, fmt.Errorf("failed to remove favorite: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO favorites (user_id, listing_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", userID, listingID)
	if err != nil {
		return false, fmt.Errorf("failed to add favorite: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT listing_id FROM favorites WHERE user_id = $1 ORDER BY created_at, listing_id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read favorites: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}
