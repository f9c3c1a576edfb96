package db

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/workbridge/workbridge-backend/internal/models"
)

// Connect opens a GORM connection to Postgres using the given DSN.
func Connect(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// Migrate runs AutoMigrate for every model plus the thread-uniqueness
// index. The index uses NULLS NOT DISTINCT so that threads without a job
// are also covered by the (client, freelancer, job) constraint.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.User{},
		&models.ClientProfile{},
		&models.FreelancerProfile{},
		&models.Job{},
		&models.ChatThread{},
		&models.ChatMessage{},
		&models.MessageRead{},
		&models.Payment{},
		&models.Dispute{},
	); err != nil {
		return err
	}

	return gdb.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_threads_triple
		 ON chat_threads (client_id, freelancer_id, job_id) NULLS NOT DISTINCT`,
	).Error
}
