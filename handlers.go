package main

import (
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/PhanTTKhai/ADO-translate/models"
	"github.com/PhanTTKhai/ADO-translate/pkg/accounts"
	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/config"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocr"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
	"github.com/PhanTTKhai/ADO-translate/pkg/preprocess"
	"github.com/PhanTTKhai/ADO-translate/pkg/translate"
	"github.com/PhanTTKhai/ADO-translate/process/jobs"
)

const maxUploadBytes = 10 << 20

type enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// server holds the dependencies of the HTTP API. db, store and queue may be
// nil; the endpoints that need them then answer 503.
type server struct {
	cfg       *config.Config
	db        *gorm.DB
	store     *capture.Store
	service   *capture.Service
	queue     enqueuer
	jwtSecret []byte
	log       logrus.FieldLogger
}

func (s *server) setupRoutes(r *gin.Engine) {
	r.GET("/healthz", s.healthzHandler)
	r.POST("/register", s.registerHandler)
	r.POST("/login", s.loginHandler)
	r.POST("/refresh", s.refreshHandler)
	r.POST("/revoke_refresh", s.revokeRefreshHandler)
	authGroup := r.Group("")
	authGroup.Use(s.jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.POST("/recognize", s.recognizeHandler)
	authGroup.GET("/captures", s.listCapturesHandler)
	authGroup.GET("/captures/:id", s.getCaptureHandler)
	authGroup.POST("/translate", s.translateHandler)
	authGroup.POST("/jobs", s.enqueueJobHandler)
}

func (s *server) healthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"backends":  s.service.BackendNames(),
		"profiles":  s.service.Profiles(),
		"translate": s.service.CanTranslate(),
	})
}

func meHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"username": c.GetString("username"), "role": c.GetString("role")})
}

func (s *server) requireDB(c *gin.Context) bool {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return false
	}
	return true
}

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *server) registerHandler(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.requireDB(c) {
		return
	}
	if _, err := accounts.Register(s.db, req.Username, req.Password, models.RoleUser); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, accounts.ErrUserExists) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func (s *server) loginHandler(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.requireDB(c) {
		return
	}
	user, err := accounts.Authenticate(s.db, req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	token, err := issueAccessToken(s.jwtSecret, user, s.cfg.TokenLifetime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refresh, err := accounts.IssueRefreshToken(s.db, user.ID, 30*s.cfg.TokenLifetime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": token, "refresh_token": refresh})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token.
func (s *server) refreshHandler(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.requireDB(c) {
		return
	}
	user, next, err := accounts.RotateRefreshToken(s.db, req.RefreshToken, 30*s.cfg.TokenLifetime)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	token, err := issueAccessToken(s.jwtSecret, user, s.cfg.TokenLifetime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "refresh_token": next})
}

func (s *server) revokeRefreshHandler(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.requireDB(c) {
		return
	}
	if err := accounts.RevokeRefreshToken(s.db, req.RefreshToken); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

type recognizeResponse struct {
	ID               string                  `json:"id,omitempty"`
	Profile          string                  `json:"profile"`
	Text             string                  `json:"text"`
	Translation      string                  `json:"translation,omitempty"`
	TranslationError string                  `json:"translation_error,omitempty"`
	Lines            []ocr.RecognizedLine    `json:"lines"`
	Skipped          int                     `json:"skipped"`
	Failures         map[string]string       `json:"failures,omitempty"`
	Deskew           preprocess.DeskewInfo   `json:"deskew"`
	Diagnostics      []preprocess.Diagnostic `json:"diagnostics,omitempty"`
	TookMS           int64                   `json:"took_ms"`
}

func newRecognizeResponse(out *capture.Outcome) recognizeResponse {
	resp := recognizeResponse{
		Profile:     out.Profile,
		Text:        out.Transcript.Text,
		Translation: out.Translation,
		Skipped:     out.Transcript.Skipped(),
		TookMS:      out.Took.Milliseconds(),
		Lines:       []ocr.RecognizedLine{},
	}
	for _, r := range out.Transcript.Results {
		resp.Lines = append(resp.Lines, r.Lines...)
	}
	if len(out.Transcript.Failures) > 0 {
		resp.Failures = map[string]string{}
		for _, f := range out.Transcript.Failures {
			resp.Failures[f.Backend] = f.Err.Error()
		}
	}
	if out.TranslationErr != nil {
		resp.TranslationError = out.TranslationErr.Error()
	}
	if out.Preprocess != nil {
		resp.Deskew = out.Preprocess.Deskew
		resp.Diagnostics = out.Preprocess.Diagnostics
	}
	return resp
}

// recognizeHandler runs the pipeline and backends on an uploaded image and
// stores the capture when a database is configured.
func (s *server) recognizeHandler(c *gin.Context) {
	req, ok := s.bindRecognizeForm(c)
	if !ok {
		return
	}
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image missing"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image too large (max 10MB)"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}
	defer f.Close()
	img, err := preprocess.Decode(f)
	if err != nil {
		respondError(c, err)
		return
	}
	req.Image = img
	req.Source = file.Filename

	ctx := c.Request.Context()
	out, err := s.service.Process(ctx, req)
	if err != nil {
		if s.store != nil {
			if _, serr := s.store.SaveFailure(ctx, req.Source, req.Profile, err, ownerID(c)); serr != nil {
				s.log.WithError(serr).Warn("record failed capture")
			}
		}
		respondError(c, err)
		return
	}
	resp := newRecognizeResponse(out)
	if s.store != nil {
		rec, err := s.store.Save(ctx, out, ownerID(c))
		if err != nil {
			s.log.WithError(err).Warn("save capture")
		} else {
			resp.ID = rec.ID
		}
	}
	c.JSON(http.StatusOK, resp)
}

// bindRecognizeForm reads the optional form fields shared by /recognize and /jobs.
func (s *server) bindRecognizeForm(c *gin.Context) (capture.Request, bool) {
	req := capture.Request{
		Profile:   c.PostForm("profile"),
		Backends:  splitForm(c.PostForm("backends")),
		Translate: formBool(c.PostForm("translate")),
		Target:    c.PostForm("target"),
	}
	if v := c.PostForm("min_conf"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_conf must be a number between 0 and 1"})
			return req, false
		}
		req.MinConfidence = f
	}
	return req, true
}

func (s *server) listCapturesHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := s.store.List(c.Request.Context(), userScope(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *server) getCaptureHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return
	}
	item, err := s.store.Get(c.Request.Context(), c.Param("id"), userScope(c))
	if err != nil {
		if errors.Is(err, capture.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *server) translateHandler(c *gin.Context) {
	var req struct {
		Text   string `json:"text" binding:"required"`
		Source string `json:"source"`
		Target string `json:"target"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := s.service.Translate(c.Request.Context(), req.Text, req.Source, req.Target)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"translation": out})
	case errors.Is(err, capture.ErrNoTranslator):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, translate.ErrEmptyText), errors.Is(err, translate.ErrUnsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.log.WithError(err).Warn("translation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "translation failed"})
	}
}

// enqueueJobHandler stores the upload and queues it for the worker.
func (s *server) enqueueJobHandler(c *gin.Context) {
	if s.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue not configured"})
		return
	}
	req, ok := s.bindRecognizeForm(c)
	if !ok {
		return
	}
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image missing"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image too large (max 10MB)"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}
	_, format, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		respondError(c, ocrerr.Wrap(ocrerr.ImageLoadFailure, preprocess.StageLoad, err, "unsupported image"))
		return
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mkdir failed"})
		return
	}
	path := filepath.Join(s.cfg.UploadDir, uuid.NewString()+"."+format)
	if err := c.SaveUploadedFile(file, path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	task, err := jobs.NewRecognizeTask(jobs.RecognizePayload{
		ImagePath:     path,
		Profile:       req.Profile,
		Backends:      req.Backends,
		MinConfidence: req.MinConfidence,
		Translate:     req.Translate,
		Target:        req.Target,
		UserID:        ownerID(c),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	info, err := s.queue.Enqueue(task)
	if err != nil {
		s.log.WithError(err).Warn("enqueue")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "enqueue failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "queue": info.Queue, "image_path": path})
}

// respondError maps pipeline error kinds to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch ocrerr.KindOf(err) {
	case ocrerr.ImageLoadFailure, ocrerr.InvalidConfig:
		status = http.StatusBadRequest
	case ocrerr.BackendUnavailable:
		status = http.StatusBadGateway
	}
	body := gin.H{"error": err.Error()}
	var e *ocrerr.Error
	if errors.As(err, &e) {
		for k, v := range e.ToMap() {
			body[k] = v
		}
		body["error"] = fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	c.JSON(status, body)
}

func splitForm(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func formBool(v string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(v))
	return b
}
