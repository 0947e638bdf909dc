package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"astreon/backend/internal/auth"
	"astreon/backend/internal/config"
	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
	"astreon/backend/internal/storage/hybrid"
	"astreon/backend/internal/storage/memory"
	sqlstore "astreon/backend/internal/storage/sql"
)

// 创建管理员账户的命令行工具
//
// 用法: create-admin <username> <email> <password>
//
// 使用与服务端相同的配置：配置了数据库时直接写入数据库，
// 否则写入内存存储（仅用于验证流程，进程退出即丢失）。
func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "Usage: create-admin <username> <email> <password>")
		os.Exit(1)
	}
	username := os.Args[1]
	email := os.Args[2]
	password := os.Args[3]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := auth.ValidatePassword(password); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store, memoryOnly, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to hash password: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	admin := &domain.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := store.CreateUser(admin); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create user: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Admin user created successfully!")
	fmt.Printf("  ID:       %s\n", admin.ID)
	fmt.Printf("  Username: %s\n", admin.Username)
	fmt.Printf("  Email:    %s\n", admin.Email)
	fmt.Printf("  Role:     %s\n", admin.Role)
	if memoryOnly {
		fmt.Println()
		fmt.Println("Note: no database configured, the user was written to in-memory")
		fmt.Println("storage and will not survive this process. Set ASTREON_DATABASE_TYPE")
		fmt.Println("and ASTREON_DATABASE_DSN to create the user in a real database.")
	}
}

func openStore(cfg *config.Config) (storage.Store, bool, error) {
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		return memory.NewStore(), true, nil
	}

	if cfg.Redis.Enabled {
		store, err := hybrid.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		return store, false, err
	}

	store, err := sqlstore.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	return store, false, err
}
