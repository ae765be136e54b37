package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book is a catalog title; loanable stock is tracked per BookCopy.
type Book struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Title     string     `gorm:"column:title;not null"`
	Author    string     `gorm:"column:author;not null"`
	ISBN      string     `gorm:"column:isbn;uniqueIndex"`
	Publisher *string    `gorm:"column:publisher"`
	Copies    []BookCopy `gorm:"foreignKey:BookID"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the id in Go; sqlite has no gen_random_uuid().
func (b *Book) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
