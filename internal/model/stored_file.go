package model

import "fmt"

const (
	FeedbackComponent = "assignfeedback_onenote"
	FeedbackFileArea  = "feedback"
)

// AreaKey 定位一个文件区：上下文 + 组件 + 区域 + 条目
type AreaKey struct {
	ContextID uint   `json:"contextId"`
	Component string `json:"component"`
	FileArea  string `json:"fileArea"`
	ItemID    uint   `json:"itemId"`
}

func (k AreaKey) String() string {
	return fmt.Sprintf("%d/%s/%s/%d", k.ContextID, k.Component, k.FileArea, k.ItemID)
}

// FeedbackArea 成绩对应的反馈文件区，上下文为作业
func FeedbackArea(g *Grade) AreaKey {
	return AreaKey{
		ContextID: g.AssignmentID,
		Component: FeedbackComponent,
		FileArea:  FeedbackFileArea,
		ItemID:    g.ID,
	}
}

// swagger:model StoredFile
type StoredFile struct {
	UUIDBase
	ContextID   uint   `gorm:"index:idx_area;not null" json:"contextId"`
	Component   string `gorm:"index:idx_area;size:100;not null" json:"component"`
	FileArea    string `gorm:"index:idx_area;size:50;not null" json:"fileArea"`
	ItemID      uint   `gorm:"index:idx_area;not null" json:"itemId"`
	FilePath    string `gorm:"size:255;not null;default:'/'" json:"filePath"`
	FileName    string `gorm:"size:255;not null" json:"fileName"`
	StorageKey  string `gorm:"size:512" json:"-"`
	Size        int64  `json:"size"`
	ContentHash string `gorm:"size:40" json:"contentHash"`
	MimeType    string `gorm:"size:100" json:"mimeType"`
	URL         string `gorm:"-" json:"url,omitempty"`
}

func (StoredFile) TableName() string {
	return "stored_files"
}

func (f *StoredFile) Area() AreaKey {
	return AreaKey{ContextID: f.ContextID, Component: f.Component, FileArea: f.FileArea, ItemID: f.ItemID}
}

// IsDirectory 目录条目以 "." 作为文件名
func (f *StoredFile) IsDirectory() bool {
	return f.FileName == "."
}
