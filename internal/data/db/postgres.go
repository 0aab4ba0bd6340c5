package db

import (
	"fmt"
	stdlog "log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/envutil"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(logg *logger.Logger) (*PostgresService, error) {
	serviceLog := logg.With("service", "PostgresService")

	host := envutil.Str("POSTGRES_HOST", "localhost")
	port := envutil.Str("POSTGRES_PORT", "5432")
	user := envutil.Str("POSTGRES_USER", "postgres")
	password := envutil.Str("POSTGRES_PASSWORD", "")
	name := envutil.Str("POSTGRES_NAME", "papervault")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, host, port, name)

	gormLog := gormLogger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB { return s.db }

func (s *PostgresService) AutoMigrateAll() error {
	if err := AutoMigrate(s.db); err != nil {
		return err
	}
	// Two concurrent uploads of identical bytes can both pass the dedup
	// check; this partial index turns the second commit into a predictable
	// conflict while the first is still in flight.
	return s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_file_owner_hash_inflight
		ON file (owner_user_id, content_hash)
		WHERE deleted_at IS NULL
		  AND content_hash <> ''
		  AND status IN ('pending', 'processing')
	`).Error
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.File{},

		&types.Receipt{},
		&types.LineItem{},
		&types.Document{},
		&types.Invoice{},
		&types.InvoiceLineItem{},
		&types.Contract{},
		&types.Voucher{},
		&types.Warranty{},
		&types.BankStatement{},
		&types.BankTransaction{},
		&types.ReturnPolicy{},
		&types.ExtractionLink{},

		&types.Merchant{},
		&types.Tag{},
		&types.EntityTag{},
		&types.ImportSource{},

		&types.JobRun{},
		&types.JobStageHistory{},
	)
}
