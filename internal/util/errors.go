package util

import "errors"

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPermissionDenied = errors.New("permission denied")
	ErrGradeNotFound    = errors.New("grade not found")
	ErrFileNotFound     = errors.New("file not found")
	ErrInvalidState     = errors.New("invalid oauth state")

	// OneNote 反馈同步的错误类型
	ErrLinkNotFound     = errors.New("onenote feedback page not linked")
	ErrAuthRequired     = errors.New("onenote sign-in required")
	ErrExportFailed     = errors.New("onenote feedback download failed")
	ErrStoreWriteFailed = errors.New("feedback file store write failed")
	ErrSyncInProgress   = errors.New("feedback sync already in progress")
)
