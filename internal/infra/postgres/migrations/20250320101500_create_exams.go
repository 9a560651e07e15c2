package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS exams (
					name      text  NOT NULL,
					exam_date date  NOT NULL,
					end_time  text  NOT NULL,
					questions jsonb NOT NULL,
					PRIMARY KEY (name, exam_date)
				)`)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS exams`)
			return err
		},
	)
}
