package model

import (
	"errors"
	"time"
)

var (
	ErrInvalidGradeID      = errors.New("feedback record requires a grade id")
	ErrInvalidAssignmentID = errors.New("feedback record requires an assignment id")
	ErrNegativeFileCount   = errors.New("feedback file count must not be negative")
)

// FeedbackRecord 每个成绩对应一条 OneNote 反馈记录，NumFiles 与文件区中的文件数保持一致
// swagger:model FeedbackRecord
type FeedbackRecord struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AssignmentID uint      `gorm:"column:assignment;index;not null" json:"assignment"`
	GradeID      uint      `gorm:"column:grade;uniqueIndex;not null" json:"grade"`
	NumFiles     int       `gorm:"column:numfiles;not null;default:0" json:"numfiles"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (FeedbackRecord) TableName() string {
	return "assignfeedback_onenote"
}

func NewFeedbackRecord(gradeID, assignmentID uint, numFiles int) (*FeedbackRecord, error) {
	r := &FeedbackRecord{GradeID: gradeID, AssignmentID: assignmentID}
	if err := r.SetFileCount(numFiles); err != nil {
		return nil, err
	}
	if gradeID == 0 {
		return nil, ErrInvalidGradeID
	}
	if assignmentID == 0 {
		return nil, ErrInvalidAssignmentID
	}
	return r, nil
}

func (r *FeedbackRecord) SetFileCount(n int) error {
	if n < 0 {
		return ErrNegativeFileCount
	}
	r.NumFiles = n
	return nil
}
