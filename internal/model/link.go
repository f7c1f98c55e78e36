package model

// ExternalDocumentLink 作业 + 用户 与 OneNote 页面的映射
// swagger:model ExternalDocumentLink
type ExternalDocumentLink struct {
	BaseModel
	AssignID                uint   `gorm:"column:assign_id;uniqueIndex:idx_assign_user;not null" json:"assignId"`
	UserID                  uint   `gorm:"column:user_id;uniqueIndex:idx_assign_user;not null" json:"userId"`
	SubmissionStudentPageID string `gorm:"size:255" json:"submissionStudentPageId"`
	FeedbackStudentPageID   string `gorm:"size:255" json:"feedbackStudentPageId"`
	FeedbackTeacherPageID   string `gorm:"size:255" json:"feedbackTeacherPageId"`
}

func (ExternalDocumentLink) TableName() string {
	return "assign_user_ext"
}
