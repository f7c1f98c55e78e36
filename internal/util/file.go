package util

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"os"
)

// FileInfo 本地文件的大小、sha1 与嗅探出的 MIME 类型
type FileInfo struct {
	Size        int64
	ContentHash string
	MimeType    string
}

func InspectFile(path string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buffer := make([]byte, 512)
	n, err := f.Read(buffer)
	if err != nil && err != io.EOF {
		return nil, err
	}
	mimeType := http.DetectContentType(buffer[:n])

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	h := sha1.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return nil, err
	}

	return &FileInfo{
		Size:        size,
		ContentHash: hex.EncodeToString(h.Sum(nil)),
		MimeType:    mimeType,
	}, nil
}
