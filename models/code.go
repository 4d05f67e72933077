package models

import "time"

// Code is a promotional code discovered in the watched channel. Rows are
// append-only: a code is inserted once and only its is_used flag ever changes.
type Code struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"column:code;size:32;not null;uniqueIndex:idx_code" json:"code"`
	DateFound time.Time `gorm:"column:date_found;not null" json:"date_found"`
	IsUsed    bool      `gorm:"column:is_used;not null;default:false;index:idx_is_used" json:"is_used"`
}

// TableName keeps the historical table name used by earlier deployments.
func (Code) TableName() string { return "codes" }
