// Package database 负责 MySQL 与 Redis 连接的创建。
package database

import (
	"fmt"
	"time"

	"stututor-go/internal/model"
	"stututor-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

// OpenMySQL 建立 MySQL 连接、配置连接池并迁移 documents 表。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&model.DocumentRecord{}); err != nil {
		return nil, fmt.Errorf("迁移 documents 表失败: %w", err)
	}
	return db, nil
}

// InitMySQL 初始化全局 MySQL 连接，失败时退出进程。
func InitMySQL(dsn string) {
	db, err := OpenMySQL(dsn)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	DB = db
	log.Info("MySQL database connected successfully")
}
