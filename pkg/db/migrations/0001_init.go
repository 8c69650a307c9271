package migrations

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// FS holds the migration sources so goose can find them from any working directory.
//
//go:embed 0*.go
var FS embed.FS

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

// ClaimRun is the schema snapshot of the claim_runs table at version 1.
type ClaimRun struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Account    string     `gorm:"type:text;not null;default:''"`
	Addresses  int        `gorm:"type:integer;not null;default:0"`
	Claimed    int        `gorm:"type:integer;not null;default:0"`
	Updated    int        `gorm:"type:integer;not null;default:0"`
	Failed     int        `gorm:"type:integer;not null;default:0"`
	StartedAt  time.Time  `gorm:"type:timestamptz;not null;index"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`
}

// ClaimAttempt is the schema snapshot of the claim_attempts table at version 1.
type ClaimAttempt struct {
	ID         int64             `gorm:"type:bigserial;primaryKey"`
	RunID      uuid.UUID         `gorm:"type:uuid;not null;index"`
	Address    string            `gorm:"type:text;not null"`
	Outcome    string            `gorm:"type:text;not null"`
	Reason     string            `gorm:"type:text"`
	Moid       string            `gorm:"type:text"`
	Detail     datatypes.JSONMap `gorm:"type:jsonb"`
	RecordedAt time.Time         `gorm:"type:timestamptz;not null;default:now()"`
	Run        ClaimRun          `gorm:"foreignKey:RunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func open(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := open(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).AutoMigrate(&ClaimRun{}, &ClaimAttempt{})
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := open(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(&ClaimAttempt{}, &ClaimRun{})
}
