package main

import (
	"database/sql"
	"flag"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/database"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/internal/services"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	seed := flag.Bool("seed", false, "insert demo accounts, wallets and a published course")
	flag.Parse()

	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)
	viper.ReadInConfig()

	db := database.InitDatabase()
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		zap.L().Fatal("migration failed", zap.Error(err))
	}
	zap.L().Info("migration completed")

	if *seed {
		if err := seedDemoData(db); err != nil {
			zap.L().Fatal("seed failed", zap.Error(err))
		}
		zap.L().Info("seed completed")
	}
}

func seedDemoData(db *sql.DB) error {
	accounts := []struct {
		email    string
		fullName string
		role     string
		password string
		balance  string
	}{
		{"admin@learnhub.local", "System Admin", models.RoleAdmin, "Admin@123", "0"},
		{"instructor@learnhub.local", "Demo Instructor", models.RoleInstructor, "Instructor@123", "0"},
		{"student@learnhub.local", "Demo Student", models.RoleStudent, "Student@123", "1000000"},
	}

	var instructorID string
	for _, a := range accounts {
		hash, err := services.HashPassword(a.password)
		if err != nil {
			return err
		}

		var userID string
		err = db.QueryRow(`
			INSERT INTO users (id, email, full_name, role, password_hash)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (email)
			DO UPDATE SET full_name = EXCLUDED.full_name, role = EXCLUDED.role,
				password_hash = EXCLUDED.password_hash, updated_at = NOW()
			RETURNING id`,
			uuid.NewString(), a.email, a.fullName, a.role, hash).Scan(&userID)
		if err != nil {
			return err
		}
		if a.role == models.RoleInstructor {
			instructorID = userID
		}

		_, err = db.Exec(`
			INSERT INTO wallets (id, user_id, balance)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id)
			DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()`,
			uuid.NewString(), userID, a.balance)
		if err != nil {
			return err
		}
	}

	_, err := db.Exec(`
		INSERT INTO courses (id, title, description, price, published, owner_id)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		ON CONFLICT (id)
		DO UPDATE SET title = EXCLUDED.title, description = EXCLUDED.description,
			price = EXCLUDED.price, published = TRUE, updated_at = NOW()`,
		"a4b2a3a0-0000-4000-8000-000000000001",
		"Go Backend Basic", "Khóa học nền tảng backend", "199000", instructorID)
	return err
}
