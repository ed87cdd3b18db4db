package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"clan-tracker/internal/bungie"
	"clan-tracker/internal/config"

	"github.com/rs/zerolog"
)

// ManifestService keeps the reference catalog snapshot current: it compares
// the upstream content-database URL with the last one downloaded and, when
// they differ, downloads the zipped SQLite snapshot and swaps it in place.
type ManifestService struct {
	api    *bungie.Client
	cfg    *config.Config
	db     *sql.DB
	logger zerolog.Logger
}

func NewManifestService(api *bungie.Client, cfg *config.Config, sqlDB *sql.DB, logger zerolog.Logger) *ManifestService {
	return &ManifestService{api: api, cfg: cfg, db: sqlDB, logger: logger}
}

func (s *ManifestService) currentURL(ctx context.Context) (string, error) {
	var url string
	err := s.db.QueryRowContext(ctx, `SELECT url FROM manifest ORDER BY id LIMIT 1`).Scan(&url)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return url, err
}

func (s *ManifestService) upstreamURL(ctx context.Context) (string, string, error) {
	manifest, err := s.api.GetManifest(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch manifest metadata: %w", err)
	}

	path, ok := manifest.MobileWorldContentPaths["en"]
	if !ok {
		return "", "", fmt.Errorf("manifest metadata has no english content database path")
	}
	return "https://www.bungie.net" + path, manifest.Version, nil
}

// Update refreshes the catalog snapshot when upstream has a new version.
// force skips the version comparison.
func (s *ManifestService) Update(ctx context.Context, force bool) error {
	upstream, version, err := s.upstreamURL(ctx)
	if err != nil {
		return err
	}

	current, err := s.currentURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stored manifest url: %w", err)
	}

	if !force && current == upstream {
		s.logger.Info().Msg("manifest is up to date")
		return nil
	}

	s.logger.Info().Str("url", upstream).Str("version", version).Msg("downloading new manifest snapshot")

	archive, err := s.api.Download(ctx, upstream)
	if err != nil {
		return fmt.Errorf("failed to download manifest database: %w", err)
	}

	if err := s.extractSnapshot(archive); err != nil {
		return err
	}

	if err := s.recordUpdate(ctx, upstream, version); err != nil {
		return err
	}

	s.logger.Info().Str("path", s.cfg.ManifestDBPath).Msg("manifest snapshot updated")
	return nil
}

// extractSnapshot unpacks the zipped content database over the configured
// snapshot path. The snapshot is a single .content file inside the archive.
func (s *ManifestService) extractSnapshot(archive []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return fmt.Errorf("failed to open manifest archive: %w", err)
	}

	for _, file := range reader.File {
		if !strings.Contains(file.Name, ".content") {
			continue
		}

		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", file.Name, err)
		}

		tmp := s.cfg.ManifestDBPath + ".tmp"
		dst, err := os.Create(tmp)
		if err != nil {
			src.Close()
			return fmt.Errorf("failed to create %s: %w", tmp, err)
		}

		_, err = io.Copy(dst, src)
		src.Close()
		if closeErr := dst.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("failed to extract manifest database: %w", err)
		}

		if err := os.Rename(tmp, s.cfg.ManifestDBPath); err != nil {
			return fmt.Errorf("failed to move manifest database into place: %w", err)
		}
		return nil
	}

	return fmt.Errorf("manifest archive contains no content database")
}

func (s *ManifestService) recordUpdate(ctx context.Context, url, version string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE manifest SET url = ?, hash = ?, updated = ? WHERE id = (SELECT id FROM manifest ORDER BY id LIMIT 1)`,
		url, version, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record manifest update: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO manifest (url, hash, updated) VALUES (?, ?, ?)`, url, version, time.Now()); err != nil {
			return fmt.Errorf("failed to record manifest update: %w", err)
		}
	}
	return nil
}
