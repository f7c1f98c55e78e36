package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
	StorageS3    = "s3"
)

const (
	MimeZip         = "application/zip"
	MimeOctetStream = "application/octet-stream"
)

// FeedbackFilePrefix 导出的反馈压缩包文件名前缀
const FeedbackFilePrefix = "OneNote_"
