// internal/models/models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Password  string         `gorm:"not null" json:"-"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type JobStatus string

// StatusUploaded is the only status this service ever writes; workers advance it.
const StatusUploaded JobStatus = "uploaded"

// Job is the handoff record for the separation worker. UserID is a lookup
// reference only, there is no foreign key.
type Job struct {
	JobID            string    `gorm:"column:job_id;primaryKey;type:uuid" json:"job_id"`
	UserID           uint      `gorm:"not null;index" json:"user_id"`
	Status           JobStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	OriginalFileName string    `gorm:"not null" json:"original_file_name"`
	StoragePath      string    `gorm:"not null" json:"storage_path"`
	DownloadURL      string    `gorm:"type:text" json:"download_url"`
	CreatedAt        time.Time `gorm:"autoCreateTime:false;default:now()" json:"created_at"`
	LastModified     time.Time `gorm:"autoUpdateTime:false;default:now()" json:"last_modified"`
}

func (Job) TableName() string {
	return "jobs"
}
