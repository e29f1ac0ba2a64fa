package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"propsync/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// IsUniqueViolation reports whether err is a constraint failure the bulk
// upsert can hit: 23505 from a concurrent writer racing the same reference,
// or 21000 when a batch carries one reference twice and ON CONFLICT refuses
// to touch the row a second time.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" || pgErr.Code == "21000"
}

// =============================================================================
// Properties
// =============================================================================

// propertyCols is the number of bind parameters per row in the bulk upsert.
// created_at and updated_at are set server-side.
const propertyCols = 25

func bulkUpsertQuery(rows int) string {
	values := make([]string, 0, rows)
	for i := 0; i < rows; i++ {
		ph := make([]string, propertyCols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", i*propertyCols+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+", NOW(), NOW())")
	}

	return `
		INSERT INTO properties (
			id, reference, listing_type, property_type, community, sub_community,
			region, country, price, currency, bedrooms, bathrooms, property_status,
			title, description, sqfeet_area, sqfeet_builtup, amenities, is_fitted,
			is_furnished, images, agent, development, neighbourhood, sold,
			created_at, updated_at
		) VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (reference) DO UPDATE SET
			listing_type = EXCLUDED.listing_type,
			property_type = EXCLUDED.property_type,
			community = EXCLUDED.community,
			sub_community = EXCLUDED.sub_community,
			region = EXCLUDED.region,
			country = EXCLUDED.country,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			bedrooms = EXCLUDED.bedrooms,
			bathrooms = EXCLUDED.bathrooms,
			property_status = EXCLUDED.property_status,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			sqfeet_area = EXCLUDED.sqfeet_area,
			sqfeet_builtup = EXCLUDED.sqfeet_builtup,
			amenities = EXCLUDED.amenities,
			is_fitted = EXCLUDED.is_fitted,
			is_furnished = EXCLUDED.is_furnished,
			images = EXCLUDED.images,
			agent = EXCLUDED.agent,
			development = EXCLUDED.development,
			neighbourhood = EXCLUDED.neighbourhood,
			sold = EXCLUDED.sold,
			updated_at = NOW()`
}

// BulkUpsertProperties writes a whole batch in one statement, inserting new
// references and refreshing existing ones.
func (s *PostgresStore) BulkUpsertProperties(ctx context.Context, props []models.Property) error {
	if len(props) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(props)*propertyCols)
	for _, p := range props {
		id := p.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		args = append(args,
			id, p.Reference, p.ListingType, p.PropertyType, p.Community, p.SubCommunity,
			p.Region, p.Country, p.Price, p.Currency, p.Bedrooms, p.Bathrooms, p.PropertyStatus,
			p.Title, p.Description, p.SqfeetArea, p.SqfeetBuiltup, p.Amenities, p.IsFitted,
			p.IsFurnished, p.Images, agentJSON(p.Agent), p.Development, p.Neighbourhood, p.Sold,
		)
	}

	if _, err := s.pool.Exec(ctx, bulkUpsertQuery(len(props)), args...); err != nil {
		return fmt.Errorf("bulk upsert %d properties: %w", len(props), err)
	}
	return nil
}

func (s *PostgresStore) GetPropertyByReference(ctx context.Context, reference string) (*models.Property, error) {
	query := `
		SELECT id, reference, listing_type, property_type, community, sub_community,
			region, country, price, currency, bedrooms, bathrooms, property_status,
			title, description, sqfeet_area, sqfeet_builtup, amenities, is_fitted,
			is_furnished, images, agent, development, neighbourhood, sold,
			created_at, updated_at
		FROM properties WHERE reference = $1`

	var p models.Property
	var agentRaw []byte
	err := s.pool.QueryRow(ctx, query, reference).Scan(
		&p.ID, &p.Reference, &p.ListingType, &p.PropertyType, &p.Community, &p.SubCommunity,
		&p.Region, &p.Country, &p.Price, &p.Currency, &p.Bedrooms, &p.Bathrooms, &p.PropertyStatus,
		&p.Title, &p.Description, &p.SqfeetArea, &p.SqfeetBuiltup, &p.Amenities, &p.IsFitted,
		&p.IsFurnished, &p.Images, &agentRaw, &p.Development, &p.Neighbourhood, &p.Sold,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(agentRaw) > 0 {
		if err := json.Unmarshal(agentRaw, &p.Agent); err != nil {
			return nil, fmt.Errorf("decode agent for %s: %w", reference, err)
		}
	}
	return &p, nil
}

// UpdatePropertyByReference refreshes every mutable column of the row keyed
// by reference. The bool result reports whether a row was actually touched.
func (s *PostgresStore) UpdatePropertyByReference(ctx context.Context, p *models.Property) (bool, error) {
	query := `
		UPDATE properties SET
			listing_type = $2, property_type = $3, community = $4, sub_community = $5,
			region = $6, country = $7, price = $8, currency = $9, bedrooms = $10,
			bathrooms = $11, property_status = $12, title = $13, description = $14,
			sqfeet_area = $15, sqfeet_builtup = $16, amenities = $17, is_fitted = $18,
			is_furnished = $19, images = $20, agent = $21, development = $22,
			neighbourhood = $23, sold = $24, updated_at = NOW()
		WHERE reference = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.Reference, p.ListingType, p.PropertyType, p.Community, p.SubCommunity,
		p.Region, p.Country, p.Price, p.Currency, p.Bedrooms,
		p.Bathrooms, p.PropertyStatus, p.Title, p.Description,
		p.SqfeetArea, p.SqfeetBuiltup, p.Amenities, p.IsFitted,
		p.IsFurnished, p.Images, agentJSON(p.Agent), p.Development,
		p.Neighbourhood, p.Sold,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) InsertProperty(ctx context.Context, p *models.Property) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	query := `
		INSERT INTO properties (
			id, reference, listing_type, property_type, community, sub_community,
			region, country, price, currency, bedrooms, bathrooms, property_status,
			title, description, sqfeet_area, sqfeet_builtup, amenities, is_fitted,
			is_furnished, images, agent, development, neighbourhood, sold,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, NOW(), NOW()
		)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		p.ID, p.Reference, p.ListingType, p.PropertyType, p.Community, p.SubCommunity,
		p.Region, p.Country, p.Price, p.Currency, p.Bedrooms, p.Bathrooms, p.PropertyStatus,
		p.Title, p.Description, p.SqfeetArea, p.SqfeetBuiltup, p.Amenities, p.IsFitted,
		p.IsFurnished, p.Images, agentJSON(p.Agent), p.Development, p.Neighbourhood, p.Sold,
	).Scan(&p.ID)
}

func agentJSON(agents []models.Agent) interface{} {
	if len(agents) == 0 {
		return nil
	}
	data, err := json.Marshal(agents)
	if err != nil {
		return nil
	}
	return data
}

// =============================================================================
// Import Runs
// =============================================================================

func (s *PostgresStore) CreateImportRun(ctx context.Context, run *models.ImportRun) error {
	query := `
		INSERT INTO import_runs (feed_name, started_at, status, total_records, processed_records, errors_count, error_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		run.FeedName, run.StartedAt, run.Status, run.TotalRecords, run.ProcessedRecords, run.ErrorsCount, run.ErrorMessage, run.Metadata,
	).Scan(&run.ID)
}

func (s *PostgresStore) UpdateImportRun(ctx context.Context, run *models.ImportRun) error {
	query := `
		UPDATE import_runs SET
			finished_at = $2, status = $3, total_records = $4, processed_records = $5,
			errors_count = $6, error_message = $7, metadata = $8
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.FinishedAt, run.Status, run.TotalRecords, run.ProcessedRecords,
		run.ErrorsCount, run.ErrorMessage, run.Metadata,
	)
	return err
}

func (s *PostgresStore) GetRecentImportRuns(ctx context.Context, limit int) ([]models.ImportRun, error) {
	query := `
		SELECT id, feed_name, started_at, finished_at, status, total_records,
			processed_records, errors_count, COALESCE(error_message, ''), metadata
		FROM import_runs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ImportRun
	for rows.Next() {
		var run models.ImportRun
		if err := rows.Scan(
			&run.ID, &run.FeedName, &run.StartedAt, &run.FinishedAt, &run.Status,
			&run.TotalRecords, &run.ProcessedRecords, &run.ErrorsCount, &run.ErrorMessage, &run.Metadata,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// Import Logs
// =============================================================================

func (s *PostgresStore) CreateImportLog(ctx context.Context, entry *models.ImportLog) error {
	query := `
		INSERT INTO import_logs (run_id, timestamp, level, message, feed_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		entry.RunID, entry.Timestamp, entry.Level, entry.Message, entry.FeedName,
	).Scan(&entry.ID)
}

// =============================================================================
// Property Media
// =============================================================================

func (s *PostgresStore) UpsertMedia(ctx context.Context, m *models.Media) error {
	query := `
		INSERT INTO property_media (id, reference, original_url, s3_key, content_hash, mime_type, file_size_bytes, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (original_url) DO UPDATE SET reference = EXCLUDED.reference
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		m.ID, m.Reference, m.OriginalURL, m.S3Key, m.ContentHash, m.MimeType, m.FileSizeBytes, m.Status, m.Attempts, m.CreatedAt,
	).Scan(&m.ID)
}

func (s *PostgresStore) GetMediaByOriginalURL(ctx context.Context, url string) (*models.Media, error) {
	query := `
		SELECT id, reference, original_url, s3_key, COALESCE(content_hash, ''),
			COALESCE(mime_type, ''), file_size_bytes, status, attempts, created_at
		FROM property_media WHERE original_url = $1`

	var m models.Media
	err := s.pool.QueryRow(ctx, query, url).Scan(
		&m.ID, &m.Reference, &m.OriginalURL, &m.S3Key, &m.ContentHash,
		&m.MimeType, &m.FileSizeBytes, &m.Status, &m.Attempts, &m.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) GetPendingMedia(ctx context.Context, limit int) ([]models.Media, error) {
	query := `
		SELECT id, reference, original_url, s3_key, COALESCE(content_hash, ''),
			COALESCE(mime_type, ''), file_size_bytes, status, attempts, created_at
		FROM property_media
		WHERE status = 'pending' AND attempts < 3
		ORDER BY created_at
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var media []models.Media
	for rows.Next() {
		var m models.Media
		if err := rows.Scan(
			&m.ID, &m.Reference, &m.OriginalURL, &m.S3Key, &m.ContentHash,
			&m.MimeType, &m.FileSizeBytes, &m.Status, &m.Attempts, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

func (s *PostgresStore) MarkMediaUploaded(ctx context.Context, id uuid.UUID, s3Key, contentHash, mimeType string, sizeBytes int64) error {
	query := `
		UPDATE property_media SET
			status = 'uploaded', s3_key = $2, content_hash = $3, mime_type = $4, file_size_bytes = $5
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, id, s3Key, contentHash, mimeType, sizeBytes)
	return err
}

func (s *PostgresStore) MarkMediaFailed(ctx context.Context, id uuid.UUID, status string, attempts int) error {
	query := `UPDATE property_media SET status = $2, attempts = $3 WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id, status, attempts)
	return err
}
