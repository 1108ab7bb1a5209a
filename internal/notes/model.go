package notes

import "time"

// DefaultTextColor is applied when a note is created without a display color.
const DefaultTextColor = "#000000"

// Note models a persisted note. ImagePath is empty when the note carries no
// attachment; otherwise it holds the public path of the stored file.
type Note struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID   uint      `gorm:"column:owner_id;not null;index:idx_notes_owner"`
	Title     string    `gorm:"column:title;type:text;not null;default:''"`
	Content   string    `gorm:"column:content;type:text;not null;default:''"`
	ImagePath string    `gorm:"column:image_path;size:512;not null;default:''"`
	TextColor string    `gorm:"column:text_color;size:32;not null;default:'#000000'"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}
