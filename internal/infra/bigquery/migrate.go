package bigquery

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
)

// Migration is one numbered SQL file, e.g. 0001_init.sql.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// ReadMigrations loads migration files from dir, substituting the
// {{PROJECT_ID}} and {{DATASET_ID}} placeholders. The checksum is computed
// on the raw file so it does not depend on the target dataset.
func ReadMigrations(dir, projectID, datasetID string, log zerolog.Logger) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ReadMigrations: reading directory: %w", err)
	}

	var migrations []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		matches := migrationPattern.FindStringSubmatch(file.Name())
		if matches == nil {
			log.Warn().Str("file", file.Name()).Msg("skipping file with invalid migration name")
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("ReadMigrations: reading %s: %w", file.Name(), err)
		}

		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: file.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate applies every migration in dir that is not yet recorded in
// schema_migrations and returns how many ran.
func (s *Store) Migrate(ctx context.Context, dir, appliedBy string) (int, error) {
	ensure := `
		CREATE TABLE IF NOT EXISTS ` + s.table("schema_migrations") + ` (
			version    INT64 NOT NULL,
			name       STRING NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			checksum   STRING,
			applied_by STRING
		)
	`
	if _, err := s.run(ctx, ensure, nil); err != nil {
		return 0, fmt.Errorf("Migrate: ensuring schema_migrations: %w", err)
	}

	migrations, err := ReadMigrations(dir, s.projectID, s.datasetID, s.log)
	if err != nil {
		return 0, err
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range migrations {
		if applied[m.Version] {
			s.log.Debug().Int("version", m.Version).Str("name", m.Name).Msg("migration already applied")
			continue
		}
		s.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		if _, err := s.run(ctx, m.SQL, nil); err != nil {
			return count, fmt.Errorf("Migrate: executing %s: %w", m.Filename, err)
		}

		record := `
			INSERT INTO ` + s.table("schema_migrations") + `
			(version, name, applied_at, checksum, applied_by)
			VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
		`
		_, err := s.run(ctx, record, []bigquery.QueryParameter{
			{Name: "version", Value: m.Version},
			{Name: "name", Value: m.Name},
			{Name: "checksum", Value: m.Checksum},
			{Name: "applied_by", Value: appliedBy},
		})
		if err != nil {
			return count, fmt.Errorf("Migrate: recording %s: %w", m.Filename, err)
		}
		count++
	}
	return count, nil
}

func (s *Store) appliedVersions(ctx context.Context) (map[int]bool, error) {
	type appliedRow struct {
		Version int64 `bigquery:"version"`
	}
	rows, err := readAll[appliedRow](ctx, s, `SELECT version FROM `+s.table("schema_migrations"), nil)
	if err != nil {
		if strings.Contains(err.Error(), "Not found") {
			return map[int]bool{}, nil
		}
		return nil, fmt.Errorf("appliedVersions: %w", err)
	}
	out := make(map[int]bool, len(rows))
	for _, r := range rows {
		out[int(r.Version)] = true
	}
	return out, nil
}

