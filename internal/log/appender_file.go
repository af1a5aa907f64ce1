package log

import (
	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/ethmqtt/internal/config"
)

// AddFileAppender appends a size-rotated log file.
func (m *MultiWriter) AddFileAppender(cfg config.FileOutputConfig) *MultiWriter {
	writer := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.Rotation.MaxSizeMB,  // megabytes
		MaxBackups: cfg.Rotation.MaxBackups, // number of backups
		MaxAge:     cfg.Rotation.MaxAgeDays, // days
		Compress:   cfg.Rotation.Compress,   // compress the backups
	}
	m.writers = append(m.writers, writer)
	return m
}
