package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"onenote_feedback/internal/config"
	"onenote_feedback/internal/lease"
	"onenote_feedback/internal/model"
	"onenote_feedback/internal/onenote"
	"onenote_feedback/internal/repository"
	"onenote_feedback/internal/service"
	"onenote_feedback/internal/testutil"
	"onenote_feedback/internal/util"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type stubDocs struct {
	sessions map[uint]bool
	err      error
}

func (d *stubDocs) HasValidSession(ctx context.Context, userID uint) bool { return d.sessions[userID] }

func (d *stubDocs) ExportPage(ctx context.Context, userID uint, pageID, destPath string) (*onenote.DownloadInfo, error) {
	if d.err != nil {
		return nil, d.err
	}
	if err := os.WriteFile(destPath, []byte("PK-feedback"), 0644); err != nil {
		return nil, err
	}
	return &onenote.DownloadInfo{Path: destPath, Size: 11}, nil
}

type stubSignIn struct{}

func (stubSignIn) SignInURL(state string) string { return "https://login.example/authorize?state=" + state }

type fixture struct {
	router *gin.Engine
	docs   *stubDocs
	links  *repository.LinkRepository
	grades *repository.GradeRepository
	locker *lease.MemoryLocker
	cfg    *config.Config
	user   *util.Claims
}

func newFixture(t *testing.T, role model.UserRole, userID uint) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	cfg := &config.Config{
		JWT:      config.JWTConfig{Secret: "test-secret"},
		Storage:  config.StorageConfig{Type: util.StorageLocal, LocalPath: t.TempDir()},
		Feedback: config.FeedbackConfig{MaxSummaryFiles: 5, LeaseTTL: time.Minute, TempDir: t.TempDir()},
		OneNote:  config.OneNoteConfig{ExportTimeout: time.Second},
	}

	f := &fixture{
		docs:   &stubDocs{sessions: map[uint]bool{100: true}},
		links:  repository.NewLinkRepository(db),
		grades: repository.NewGradeRepository(db),
		locker: lease.NewMemoryLocker(),
		cfg:    cfg,
		user:   &util.Claims{UserID: userID, Role: role},
	}
	files := service.NewFileStore(repository.NewFileRepository(db), service.NewStorageService(cfg).Provider)
	svc := service.NewFeedbackService(f.links, f.docs, repository.NewFeedbackRepository(db), files, f.locker, cfg)

	fc := NewFeedbackController(svc, f.grades, stubSignIn{}, cfg)
	ac := NewAdminController(svc, f.links, f.grades)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user", f.user)
		c.Next()
	})
	r.POST("/api/grades/:gradeId/feedback/sync", fc.Sync)
	r.GET("/api/grades/:gradeId/feedback/summary", fc.GetSummary)
	r.GET("/api/grades/:gradeId/feedback/empty", fc.IsEmpty)
	r.GET("/api/grades/:gradeId/feedback/files", fc.View)
	r.GET("/api/grades/:gradeId/feedback/form", fc.FormActions)
	r.GET("/api/feedback/files/:fileId/download", fc.Download)
	r.PUT("/api/assignments/:assignmentId/links/:userId", ac.UpsertLink)
	r.DELETE("/api/assignments/:assignmentId", ac.DeleteAssignment)
	f.router = r

	if err := f.grades.Save(context.Background(), &model.Grade{ID: 11, AssignmentID: 1, UserID: 7}); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, util.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp util.Response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

func (f *fixture) link(t *testing.T) {
	t.Helper()
	w, _ := f.do(t, http.MethodPut, "/api/assignments/1/links/7", `{"feedbackTeacherPageId":"page-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("link status = %d: %s", w.Code, w.Body.String())
	}
}

func TestSyncErrorMapping(t *testing.T) {
	t.Run("grade not found", func(t *testing.T) {
		f := newFixture(t, model.Teacher, 100)
		w, _ := f.do(t, http.MethodPost, "/api/grades/999/feedback/sync", "")
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("invalid grade id", func(t *testing.T) {
		f := newFixture(t, model.Teacher, 100)
		w, _ := f.do(t, http.MethodPost, "/api/grades/abc/feedback/sync", "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("link not found", func(t *testing.T) {
		f := newFixture(t, model.Teacher, 100)
		w, resp := f.do(t, http.MethodPost, "/api/grades/11/feedback/sync", "")
		if w.Code != http.StatusNotFound || resp.Message != util.ErrLinkNotFound.Error() {
			t.Fatalf("status = %d, message = %q", w.Code, resp.Message)
		}
	})

	t.Run("auth required carries sign-in url", func(t *testing.T) {
		f := newFixture(t, model.Teacher, 200)
		f.link(t)
		w, resp := f.do(t, http.MethodPost, "/api/grades/11/feedback/sync", "")
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", w.Code)
		}
		data, _ := resp.Data.(map[string]interface{})
		u, _ := data["signInUrl"].(string)
		if !strings.HasPrefix(u, "https://login.example/authorize?state=") {
			t.Fatalf("signInUrl = %q", u)
		}
		state := strings.TrimPrefix(u, "https://login.example/authorize?state=")
		if id, err := util.ParseOAuthState(state, f.cfg.JWT.Secret); err != nil || id != 200 {
			t.Fatalf("ParseOAuthState() = %d, %v", id, err)
		}
	})

	t.Run("export failed", func(t *testing.T) {
		f := newFixture(t, model.Teacher, 100)
		f.link(t)
		f.docs.err = onenote.ErrPageNotFound
		w, _ := f.do(t, http.MethodPost, "/api/grades/11/feedback/sync", "")
		if w.Code != http.StatusBadGateway {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("sync in progress", func(t *testing.T) {
		f := newFixture(t, model.Teacher, 100)
		f.link(t)
		release, err := f.locker.Acquire(context.Background(), lease.GradeKey(11), time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		defer release()
		w, _ := f.do(t, http.MethodPost, "/api/grades/11/feedback/sync", "")
		if w.Code != http.StatusConflict {
			t.Fatalf("status = %d", w.Code)
		}
	})
}

func TestSyncThenReadFeedback(t *testing.T) {
	f := newFixture(t, model.Teacher, 100)
	f.link(t)

	w, resp := f.do(t, http.MethodPost, "/api/grades/11/feedback/sync", "")
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d: %s", w.Code, w.Body.String())
	}
	rec, _ := resp.Data.(map[string]interface{})
	if rec["numfiles"] != float64(1) {
		t.Fatalf("sync data = %v", resp.Data)
	}

	_, resp = f.do(t, http.MethodGet, "/api/grades/11/feedback/empty", "")
	if data, _ := resp.Data.(map[string]interface{}); data["empty"] != false {
		t.Fatalf("empty = %v", resp.Data)
	}

	_, resp = f.do(t, http.MethodGet, "/api/grades/11/feedback/summary?max=0", "")
	summary, _ := resp.Data.(map[string]interface{})
	if summary["overLimit"] != true || summary["fileCount"] != float64(1) || summary["files"] != nil {
		t.Fatalf("summary = %v", summary)
	}

	w, _ = f.do(t, http.MethodGet, "/api/grades/11/feedback/summary?max=-1", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative max status = %d", w.Code)
	}

	_, resp = f.do(t, http.MethodGet, "/api/grades/11/feedback/files", "")
	files, _ := resp.Data.([]interface{})
	if len(files) != 1 {
		t.Fatalf("files = %v", resp.Data)
	}
	file := files[0].(map[string]interface{})
	url, _ := file["url"].(string)

	w, _ = f.do(t, http.MethodGet, url, "")
	if w.Code != http.StatusOK || w.Body.String() != "PK-feedback" {
		t.Fatalf("download status = %d body = %q", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), file["fileName"].(string)) {
		t.Errorf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
	}

	w, _ = f.do(t, http.MethodGet, "/api/feedback/files/unknown/download", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown download status = %d", w.Code)
	}
}

func TestFormActionsSignInPrompt(t *testing.T) {
	f := newFixture(t, model.Teacher, 300)
	_, resp := f.do(t, http.MethodGet, "/api/grades/11/feedback/form", "")
	data, _ := resp.Data.(map[string]interface{})
	if data["signedIn"] != false || data["signInUrl"] == "" || data["signInUrl"] == nil {
		t.Fatalf("form = %v", data)
	}

	f.docs.sessions[300] = true
	f.link(t)
	_, resp = f.do(t, http.MethodGet, "/api/grades/11/feedback/form", "")
	data, _ = resp.Data.(map[string]interface{})
	action, _ := data["action"].(map[string]interface{})
	if data["signedIn"] != true || action["pageId"] != "page-1" || action["label"] != service.ActionAddFeedback {
		t.Fatalf("form = %v", data)
	}
}

func TestDeleteAssignment(t *testing.T) {
	f := newFixture(t, model.Admin, 1)
	f.docs.sessions[1] = true
	f.link(t)

	if w, _ := f.do(t, http.MethodPost, "/api/grades/11/feedback/sync", ""); w.Code != http.StatusOK {
		t.Fatalf("sync status = %d", w.Code)
	}
	if w, _ := f.do(t, http.MethodDelete, "/api/assignments/1", ""); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w, _ := f.do(t, http.MethodGet, "/api/grades/11/feedback/files", ""); w.Code != http.StatusNotFound {
		t.Fatalf("grade survived assignment delete: %d", w.Code)
	}
}

func TestStudentCannotReadOtherStudentsFeedback(t *testing.T) {
	f := newFixture(t, model.Teacher, 100)
	f.link(t)
	if w, _ := f.do(t, http.MethodPost, "/api/grades/11/feedback/sync", ""); w.Code != http.StatusOK {
		t.Fatalf("sync status = %d", w.Code)
	}
	_, resp := f.do(t, http.MethodGet, "/api/grades/11/feedback/files", "")
	files, _ := resp.Data.([]interface{})
	if len(files) != 1 {
		t.Fatalf("files = %v", resp.Data)
	}
	download, _ := files[0].(map[string]interface{})["url"].(string)

	f.user = &util.Claims{UserID: 8, Role: model.Student}
	for _, path := range []string{
		"/api/grades/11/feedback/summary",
		"/api/grades/11/feedback/empty",
		"/api/grades/11/feedback/files",
		download,
	} {
		w, _ := f.do(t, http.MethodGet, path, "")
		if w.Code != http.StatusForbidden {
			t.Errorf("GET %s as another student: status = %d, want 403", path, w.Code)
		}
		if strings.Contains(w.Body.String(), "PK-feedback") {
			t.Errorf("GET %s leaked feedback content", path)
		}
	}

	f.user = &util.Claims{UserID: 7, Role: model.Student}
	for _, path := range []string{
		"/api/grades/11/feedback/summary",
		"/api/grades/11/feedback/empty",
		"/api/grades/11/feedback/files",
	} {
		if w, _ := f.do(t, http.MethodGet, path, ""); w.Code != http.StatusOK {
			t.Errorf("GET %s as owner: status = %d", path, w.Code)
		}
	}
	w, _ := f.do(t, http.MethodGet, download, "")
	if w.Code != http.StatusOK || w.Body.String() != "PK-feedback" {
		t.Errorf("owner download status = %d body = %q", w.Code, w.Body.String())
	}
}

func TestDownloadChecksFileBelongsToGradeAssignment(t *testing.T) {
	f := newFixture(t, model.Teacher, 100)
	f.link(t)
	if w, _ := f.do(t, http.MethodPost, "/api/grades/11/feedback/sync", ""); w.Code != http.StatusOK {
		t.Fatalf("sync status = %d", w.Code)
	}
	_, resp := f.do(t, http.MethodGet, "/api/grades/11/feedback/files", "")
	files, _ := resp.Data.([]interface{})
	if len(files) != 1 {
		t.Fatalf("files = %v", resp.Data)
	}
	download, _ := files[0].(map[string]interface{})["url"].(string)

	// 成绩 11 改属另一作业的学生 8，旧作业下的文件不再归其所有
	if err := f.grades.Save(context.Background(), &model.Grade{ID: 11, AssignmentID: 2, UserID: 8}); err != nil {
		t.Fatal(err)
	}
	f.user = &util.Claims{UserID: 8, Role: model.Student}
	if w, _ := f.do(t, http.MethodGet, download, ""); w.Code != http.StatusForbidden {
		t.Fatalf("download status = %d, want 403", w.Code)
	}
}
