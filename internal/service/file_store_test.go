package service

import (
	"context"
	"errors"
	"io"
	"onenote_feedback/internal/config"
	"onenote_feedback/internal/model"
	"onenote_feedback/internal/repository"
	"onenote_feedback/internal/testutil"
	"onenote_feedback/internal/util"
	"os"
	"path/filepath"
	"testing"
)

// flakyProvider 在 failUploads 置位时拒绝写入
type flakyProvider struct {
	StorageProvider
	failUploads bool
}

var errUploadRejected = errors.New("upload rejected")

func (p *flakyProvider) Upload(ctx context.Context, key string, r io.Reader, size int64, ct string) (string, error) {
	if p.failUploads {
		return "", errUploadRejected
	}
	return p.StorageProvider.Upload(ctx, key, r, size, ct)
}

func (p *flakyProvider) UploadFile(ctx context.Context, key, path, ct string) (string, error) {
	if p.failUploads {
		return "", errUploadRejected
	}
	return p.StorageProvider.UploadFile(ctx, key, path, ct)
}

func newFileStore(t *testing.T) (*FileStore, *flakyProvider, *repository.FileRepository) {
	t.Helper()
	repo := repository.NewFileRepository(testutil.NewDB(t))
	provider := &flakyProvider{
		StorageProvider: &LocalStorageProvider{Config: &config.StorageConfig{LocalPath: t.TempDir()}},
	}
	return NewFileStore(repo, provider), provider, repo
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.bin")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readAll(t *testing.T, s *FileStore, id string) string {
	t.Helper()
	rc, _, err := s.Open(context.Background(), id)
	if err != nil {
		t.Fatalf("Open(%s): %v", id, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

var testArea = model.AreaKey{ContextID: 3, Component: model.FeedbackComponent, FileArea: model.FeedbackFileArea, ItemID: 8}

func TestFileStoreCreateAndOpen(t *testing.T) {
	store, _, _ := newFileStore(t)
	ctx := context.Background()

	f, err := store.CreateFromPath(ctx, testArea, "OneNote_1.zip", writeTemp(t, "hello"))
	if err != nil {
		t.Fatalf("CreateFromPath: %v", err)
	}
	if f.Size != 5 || f.ContentHash != "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d" || f.FilePath != "/" {
		t.Errorf("stored file = %+v", f)
	}
	if got := readAll(t, store, f.ID); got != "hello" {
		t.Errorf("content = %q", got)
	}

	if _, _, err := store.Open(ctx, "missing"); !errors.Is(err, util.ErrFileNotFound) {
		t.Fatalf("Open(missing) error = %v", err)
	}
}

func TestFileStoreCreateFailureLeavesNoRow(t *testing.T) {
	store, provider, _ := newFileStore(t)
	ctx := context.Background()

	provider.failUploads = true
	if _, err := store.CreateFromPath(ctx, testArea, "x.zip", writeTemp(t, "x")); !errors.Is(err, errUploadRejected) {
		t.Fatalf("CreateFromPath error = %v", err)
	}
	if n, _ := store.CountFiles(ctx, testArea); n != 0 {
		t.Fatalf("CountFiles = %d after failed create", n)
	}
}

func TestFileStoreDeleteAllExcept(t *testing.T) {
	store, _, _ := newFileStore(t)
	ctx := context.Background()

	old, err := store.CreateFromPath(ctx, testArea, "old.zip", writeTemp(t, "old"))
	if err != nil {
		t.Fatal(err)
	}
	keep, err := store.CreateFromPath(ctx, testArea, "new.zip", writeTemp(t, "new"))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteAllExcept(ctx, testArea, keep.ID); err != nil {
		t.Fatal(err)
	}

	files, err := store.ListFiles(ctx, testArea)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].ID != keep.ID {
		t.Fatalf("ListFiles = %+v", files)
	}
	if _, _, err := store.Open(ctx, old.ID); !errors.Is(err, util.ErrFileNotFound) {
		t.Fatalf("Open(old) error = %v", err)
	}

	if err := store.DeleteAll(ctx, testArea); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteAll(ctx, testArea); err != nil {
		t.Fatalf("DeleteAll on empty area: %v", err)
	}
	if n, _ := store.CountFiles(ctx, testArea); n != 0 {
		t.Fatalf("CountFiles = %d", n)
	}
}

func TestFileStoreCopyAreaSkipsRootDirectory(t *testing.T) {
	store, _, repo := newFileStore(t)
	ctx := context.Background()

	root := &model.StoredFile{
		ContextID: testArea.ContextID, Component: testArea.Component, FileArea: testArea.FileArea, ItemID: testArea.ItemID,
		FilePath: "/", FileName: ".",
	}
	if err := repo.Create(ctx, root); err != nil {
		t.Fatal(err)
	}
	src, err := store.CreateFromPath(ctx, testArea, "a.zip", writeTemp(t, "payload"))
	if err != nil {
		t.Fatal(err)
	}

	target := model.AreaKey{ContextID: 4, Component: model.FeedbackComponent, FileArea: model.FeedbackFileArea, ItemID: 9}
	n, err := store.CopyArea(ctx, testArea, target)
	if err != nil {
		t.Fatalf("CopyArea: %v", err)
	}
	if n != 1 {
		t.Fatalf("CopyArea copied %d files, want 1", n)
	}

	copied, err := repo.ListAllByArea(ctx, target)
	if err != nil {
		t.Fatal(err)
	}
	if len(copied) != 1 || copied[0].FileName != "a.zip" || copied[0].ID == src.ID {
		t.Fatalf("target area = %+v", copied)
	}
	if got := readAll(t, store, copied[0].ID); got != "payload" {
		t.Errorf("copied content = %q", got)
	}
	if got := readAll(t, store, src.ID); got != "payload" {
		t.Errorf("source content after copy = %q", got)
	}
}

func TestFileStoreDeleteContext(t *testing.T) {
	store, _, _ := newFileStore(t)
	ctx := context.Background()

	other := model.AreaKey{ContextID: 99, Component: model.FeedbackComponent, FileArea: model.FeedbackFileArea, ItemID: 1}
	sibling := testArea
	sibling.ItemID = 20
	for _, a := range []model.AreaKey{testArea, sibling, other} {
		if _, err := store.CreateFromPath(ctx, a, "f.zip", writeTemp(t, "x")); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.DeleteContext(ctx, testArea.ContextID, model.FeedbackComponent); err != nil {
		t.Fatal(err)
	}
	for _, a := range []model.AreaKey{testArea, sibling} {
		if n, _ := store.CountFiles(ctx, a); n != 0 {
			t.Errorf("CountFiles(%s) = %d after DeleteContext", a, n)
		}
	}
	if n, _ := store.CountFiles(ctx, other); n != 1 {
		t.Errorf("CountFiles(%s) = %d, want 1", other, n)
	}
}

func TestLocalStorageProviderRejectsTraversal(t *testing.T) {
	p := &LocalStorageProvider{Config: &config.StorageConfig{LocalPath: t.TempDir()}}
	if _, err := p.Open(context.Background(), "../../etc/passwd"); err == nil || errors.Is(err, util.ErrFileNotFound) {
		t.Fatalf("Open traversal error = %v", err)
	}
	if err := p.Delete(context.Background(), "a/b/missing"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}
