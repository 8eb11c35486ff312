package database

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"boxing-locker-go/internal/model"
	"boxing-locker-go/pkg/log"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接
func InitMySQL(dsn string) {
	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	// 配置连接池
	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}

	sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间

	log.Info("MySQL database connected successfully")
}

// Migrate 创建或更新应用拥有的表。video_mapping 由离线采集维护，这里同样建表以便本地开发。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.ChatSession{},
		&model.ChatMessage{},
		&model.VideoRecord{},
		&model.CoachingLead{},
	)
}
