package model

import "time"

// OneNoteToken 用户的 OneNote OAuth 令牌，access/refresh token 加密存储
type OneNoteToken struct {
	BaseModel
	UserID       uint      `gorm:"uniqueIndex;not null" json:"userId"`
	AccessToken  string    `gorm:"type:text" json:"-"`
	RefreshToken string    `gorm:"type:text" json:"-"`
	TokenType    string    `gorm:"size:20" json:"tokenType"`
	Expiry       time.Time `json:"expiry"`
}

func (OneNoteToken) TableName() string {
	return "onenote_tokens"
}
