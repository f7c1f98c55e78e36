package model

import "time"

// swagger:model Grade
type Grade struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AssignmentID uint      `gorm:"index;not null" json:"assignmentId"`
	UserID       uint      `gorm:"index;not null" json:"userId"`
	Grade        *float64  `json:"grade"` // nil 或负数表示尚未评分
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (Grade) TableName() string {
	return "assign_grades"
}

// IsGraded 是否已给出有效成绩
func (g *Grade) IsGraded() bool {
	return g.Grade != nil && *g.Grade >= 0
}
