package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/altynaay/fieldops/pkg/errors"
	"github.com/altynaay/fieldops/pkg/logger"
)

const (
	backupPrefix = "fieldops-"
	backupSuffix = ".db"
	stampLayout  = "20060102-150405"
)

// Info describes one backup file on disk.
type Info struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Service creates, lists, prunes and restores file-level copies of the
// sqlite database. Backups are plain timestamped copies; restore overwrites
// the live database file and takes effect on the next process start.
type Service struct {
	dbPath        string
	dir           string
	keepMinCount  int
	retentionDays int
	now           func() time.Time
	log           *zap.Logger
}

// Option customises the Service.
type Option func(*Service)

// WithNow overrides the clock, primarily for testing retention.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetention adjusts how many days backups are kept and the minimum count
// that survives pruning regardless of age.
func WithRetention(days, keepMin int) Option {
	return func(s *Service) {
		if days > 0 {
			s.retentionDays = days
		}
		if keepMin > 0 {
			s.keepMinCount = keepMin
		}
	}
}

// NewService constructs a backup Service for the sqlite file at dbPath,
// storing copies under dir.
func NewService(dbPath, dir string, opts ...Option) (*Service, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("backup: database path is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("backup: backup directory is required")
	}

	svc := &Service{
		dbPath:        dbPath,
		dir:           dir,
		keepMinCount:  3,
		retentionDays: 14,
		now:           time.Now,
		log:           logger.WithModule("backup"),
	}
	for _, opt := range opts {
		opt(svc)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create directory: %w", err)
	}
	return svc, nil
}

// Create copies the database file into the backup directory under a
// timestamped name and returns its metadata.
func (s *Service) Create(ctx context.Context) (*Info, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	name := backupPrefix + s.now().UTC().Format(stampLayout) + backupSuffix
	target := filepath.Join(s.dir, name)

	if err := copyFile(s.dbPath, target); err != nil {
		return nil, fmt.Errorf("backup: create %s: %w", name, err)
	}

	stat, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("backup: stat %s: %w", name, err)
	}

	s.log.Info("backup created", zap.String("name", name), zap.Int64("size_bytes", stat.Size()))
	return &Info{Name: name, SizeBytes: stat.Size(), CreatedAt: stat.ModTime().UTC()}, nil
}

// List returns the backups on disk, newest first.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("backup: read directory: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isBackupName(entry.Name()) {
			continue
		}
		stat, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:      entry.Name(),
			SizeBytes: stat.Size(),
			CreatedAt: stat.ModTime().UTC(),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })
	return infos, nil
}

// Prune deletes backups older than the retention window while always keeping
// the newest keepMinCount files. Returns the number of files removed.
func (s *Service) Prune(ctx context.Context) (int, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	removed := 0
	for index, info := range infos {
		if index < s.keepMinCount {
			continue
		}
		if info.CreatedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, info.Name)); err != nil {
			return removed, fmt.Errorf("backup: remove %s: %w", info.Name, err)
		}
		removed++
	}

	if removed > 0 {
		s.log.Info("backups pruned", zap.Int("removed", removed))
	}
	return removed, nil
}

// Rotate creates a fresh backup and then enforces retention.
func (s *Service) Rotate(ctx context.Context) (*Info, error) {
	info, err := s.Create(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.Prune(ctx); err != nil {
		return info, err
	}
	return info, nil
}

// Restore overwrites the live database file with the named backup. Callers
// must ensure the database is quiesced; changes apply on next open.
func (s *Service) Restore(ctx context.Context, name string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if !isBackupName(name) || name != filepath.Base(name) {
		return apperrors.NewBadRequest("unknown backup name")
	}

	source := filepath.Join(s.dir, name)
	if _, err := os.Stat(source); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("backup: stat %s: %w", name, err)
	}

	if err := copyFile(source, s.dbPath); err != nil {
		return fmt.Errorf("backup: restore %s: %w", name, err)
	}

	s.log.Warn("database restored from backup", zap.String("name", name))
	return nil
}

func isBackupName(name string) bool {
	return strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, backupSuffix)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
