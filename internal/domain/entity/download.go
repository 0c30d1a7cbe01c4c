package entity

import "time"

// DownloadEvent 打包下载记录，只追加
type DownloadEvent struct {
	ID           string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID    string    `json:"project_id" gorm:"type:uuid;index;not null"`
	DocumentID   string    `json:"document_id" gorm:"type:uuid;not null"`
	OwnerID      string    `json:"owner_id" gorm:"type:varchar(64);index;not null"`
	ArtifactName string    `json:"artifact_name" gorm:"type:varchar(255);not null"`
	ContentType  string    `json:"content_type" gorm:"type:varchar(128);not null"`
	SizeBytes    int64     `json:"size_bytes" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (DownloadEvent) TableName() string {
	return "download_events"
}
