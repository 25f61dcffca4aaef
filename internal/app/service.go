package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"sopdesk/api/internal/auth"
	"sopdesk/api/internal/authpw"
	"sopdesk/api/internal/config"
	"sopdesk/api/internal/email"
	"sopdesk/api/internal/rbac"
	"sopdesk/api/internal/render"
	"sopdesk/api/internal/search"
	"sopdesk/api/internal/store"
	"sopdesk/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// SOPFields carries create/update input. Pointer fields distinguish an
// omitted field from an explicitly empty one in partial updates.
type SOPFields struct {
	Title             *string         `json:"title"`
	Department        *string         `json:"department"`
	ResponsiblePerson *string         `json:"responsiblePerson"`
	Objective         *string         `json:"objective"`
	Responsibility    *string         `json:"responsibility"`
	Procedure         *string         `json:"procedure"`
	References        *[]string       `json:"references"`
	Steps             *[]string       `json:"steps"`
	EffectiveDate     *time.Time      `json:"effectiveDate"`
	RevisionDate      *time.Time      `json:"revisionDate"`
	RevisionNumber    *string         `json:"revisionNumber"`
	PDFConfig         json.RawMessage `json:"pdfConfig"`
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertSOP(context.Context, store.SOP) error
	ListSOPs(context.Context, string) ([]store.SOP, error)
	GetSOP(context.Context, string, string) (store.SOP, error)
	UpdateSOP(context.Context, store.SOP, string) error
	UpdateSOPConfig(context.Context, string, string, json.RawMessage) error
	DeleteSOP(context.Context, string, string) error
	Ping(ctx context.Context) error
}

// refreshStore holds refresh sessions. Redis when configured, Postgres otherwise.
type refreshStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type documentRenderer interface {
	Render(context.Context, render.Document, json.RawMessage) (*render.Result, error)
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexSOP(rec search.SOPRecord)
	DeleteSOP(id string)
}

type assetStore interface {
	UploadLogo(ctx context.Context, ownerID string, data []byte, contentType string) (string, error)
	LogoURL(ctx context.Context, key string) (string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	renderer documentRenderer
	search   searchService
	assets   assetStore
	authpw   *authpw.Service
	email    *email.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, renderer *render.Renderer, searchSvc *search.Service) *Service {
	return NewWithSessionStore(cfg, dataStore, dataStore, renderer, searchSvc)
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions refreshStore, renderer *render.Renderer, searchSvc *search.Service) *Service {
	svc := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		renderer: renderer,
		search:   searchSvc,
		authpw:   authpw.NewService(dataStore),
	}
	svc.email = email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	return svc
}

// SetAssetStore attaches the logo storage backend. Logo upload routes return
// 503 until one is configured.
func (s *Service) SetAssetStore(assets assetStore) {
	s.assets = assets
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// SendVerificationEmail delivers the account verification link. No-op when
// SMTP is not configured; the HTTP layer falls back to a dev token response.
func (s *Service) SendVerificationEmail(to, userName, token string) error {
	if !s.SMTPConfigured() {
		return nil
	}
	url := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/verify-email?token=" + token
	return s.email.SendVerificationEmail(to, userName, url)
}

// SendPasswordResetEmail delivers the password reset link. No-op when SMTP
// is not configured.
func (s *Service) SendPasswordResetEmail(to, userName, token string) error {
	if !s.SMTPConfigured() {
		return nil
	}
	url := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/reset-password?token=" + token
	return s.email.SendPasswordResetEmail(to, userName, url)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// ownerScope returns the owner filter for store queries: the session's user
// for regular users, empty (unscoped) for elevated roles.
func (s *Service) ownerScope(session Session) string {
	if rbac.Elevated(rbac.Normalize(session.Role)) {
		return ""
	}
	return session.UserID
}

// CreateSession issues a fresh token pair for a verified user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if user.DisplayName == "" {
		// Redis-backed sessions store only the user ID; hydrate the rest.
		user, err = s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// CreateSOP validates the required fields and inserts a record owned by the
// session user.
func (s *Service) CreateSOP(ctx context.Context, session Session, fields SOPFields) (store.SOP, error) {
	sop := store.SOP{
		ID:             util.NewID("sop"),
		RevisionNumber: "1.0",
		CreatedBy:      session.UserID,
		CreatedByName:  session.UserName,
	}
	applyFields(&sop, fields)

	if err := validateSOP(sop); err != nil {
		return store.SOP{}, err
	}
	if err := validateConfig(fields.PDFConfig); err != nil {
		return store.SOP{}, err
	}

	if err := s.store.InsertSOP(ctx, sop); err != nil {
		return store.SOP{}, err
	}

	created, err := s.store.GetSOP(ctx, sop.ID, session.UserID)
	if err != nil {
		return store.SOP{}, err
	}
	s.indexSOP(created)
	return created, nil
}

func (s *Service) ListSOPs(ctx context.Context, session Session) ([]store.SOP, error) {
	return s.store.ListSOPs(ctx, s.ownerScope(session))
}

func (s *Service) GetSOP(ctx context.Context, session Session, sopID string) (store.SOP, error) {
	return s.store.GetSOP(ctx, sopID, s.ownerScope(session))
}

// UpdateSOP merges the supplied fields into the stored record. Fields absent
// from the request keep their stored values.
func (s *Service) UpdateSOP(ctx context.Context, session Session, sopID string, fields SOPFields) (store.SOP, error) {
	scope := s.ownerScope(session)
	sop, err := s.store.GetSOP(ctx, sopID, scope)
	if err != nil {
		return store.SOP{}, err
	}

	applyFields(&sop, fields)
	if err := validateSOP(sop); err != nil {
		return store.SOP{}, err
	}
	if err := validateConfig(fields.PDFConfig); err != nil {
		return store.SOP{}, err
	}

	if err := s.store.UpdateSOP(ctx, sop, scope); err != nil {
		return store.SOP{}, err
	}

	updated, err := s.store.GetSOP(ctx, sopID, scope)
	if err != nil {
		return store.SOP{}, err
	}
	s.indexSOP(updated)
	return updated, nil
}

func (s *Service) DeleteSOP(ctx context.Context, session Session, sopID string) error {
	if err := s.store.DeleteSOP(ctx, sopID, s.ownerScope(session)); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteSOP(sopID)
	}
	return nil
}

// validateConfig checks a caller-supplied rendering configuration by merging
// it against the defaults. Empty means "not supplied" and is always valid.
func validateConfig(cfg json.RawMessage) error {
	if len(cfg) == 0 {
		return nil
	}
	if _, err := render.Merge(cfg); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid rendering configuration", err.Error())
	}
	return nil
}

// SaveRenderConfig replaces the stored rendering configuration wholesale.
// The configuration is persisted verbatim so a later fetch returns it
// field-for-field; defaults are merged only at render time.
func (s *Service) SaveRenderConfig(ctx context.Context, session Session, sopID string, cfg json.RawMessage) (store.SOP, error) {
	if _, err := render.Merge(cfg); err != nil {
		return store.SOP{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid rendering configuration", err.Error())
	}
	// Unlike create/update, an absent config here still clears the stored one.

	scope := s.ownerScope(session)
	if err := s.store.UpdateSOPConfig(ctx, sopID, scope, cfg); err != nil {
		return store.SOP{}, err
	}
	return s.store.GetSOP(ctx, sopID, scope)
}

// DefaultRenderConfig exposes the canonical defaults so clients do not
// duplicate them.
func (s *Service) DefaultRenderConfig() render.Config {
	return render.Defaults()
}

// ExportPDF renders a SOP with its stored configuration.
func (s *Service) ExportPDF(ctx context.Context, session Session, sopID string) (*render.Result, error) {
	sop, err := s.store.GetSOP(ctx, sopID, s.ownerScope(session))
	if err != nil {
		return nil, err
	}
	return s.renderSOP(ctx, sop, sop.PDFConfig)
}

// ExportPDFCustom renders a SOP with a request-supplied configuration in
// place of the stored one. The stored configuration is not modified.
func (s *Service) ExportPDFCustom(ctx context.Context, session Session, sopID string, cfg json.RawMessage) (*render.Result, error) {
	sop, err := s.store.GetSOP(ctx, sopID, s.ownerScope(session))
	if err != nil {
		return nil, err
	}
	return s.renderSOP(ctx, sop, cfg)
}

func (s *Service) renderSOP(ctx context.Context, sop store.SOP, cfg json.RawMessage) (*render.Result, error) {
	result, err := s.renderer.Render(ctx, renderDocument(sop), cfg)
	if err != nil {
		if errors.Is(err, render.ErrInvalidConfig) || errors.Is(err, render.ErrPDFDependencyMissing) {
			return nil, err
		}
		return nil, domainError(http.StatusInternalServerError, "EXPORT_FAILED", err.Error(), nil)
	}
	return result, nil
}

func (s *Service) Search(ctx context.Context, session Session, text string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:    text,
		OwnerID: s.ownerScope(session),
		Limit:   limit,
		Offset:  offset,
	}), nil
}

// UploadLogo stores a logo for the session user and returns its key and a
// URL usable as the branding companyLogo value.
func (s *Service) UploadLogo(ctx context.Context, session Session, data []byte, contentType string) (string, string, error) {
	if s.assets == nil {
		return "", "", domainError(http.StatusServiceUnavailable, "ASSETS_UNAVAILABLE", "Asset storage not configured", nil)
	}
	key, err := s.assets.UploadLogo(ctx, session.UserID, data, contentType)
	if err != nil {
		return "", "", err
	}
	url, err := s.assets.LogoURL(ctx, key)
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

func (s *Service) indexSOP(sop store.SOP) {
	if s.search == nil {
		return
	}
	s.search.IndexSOP(search.SOPRecord{
		ID:                sop.ID,
		Title:             sop.Title,
		Department:        sop.Department,
		ResponsiblePerson: sop.ResponsiblePerson,
		Objective:         sop.Objective,
		Procedure:         sop.Procedure,
		CreatedBy:         sop.CreatedBy,
	})
}

func applyFields(sop *store.SOP, fields SOPFields) {
	if fields.Title != nil {
		sop.Title = strings.TrimSpace(*fields.Title)
	}
	if fields.Department != nil {
		sop.Department = strings.TrimSpace(*fields.Department)
	}
	if fields.ResponsiblePerson != nil {
		sop.ResponsiblePerson = strings.TrimSpace(*fields.ResponsiblePerson)
	}
	if fields.Objective != nil {
		sop.Objective = strings.TrimSpace(*fields.Objective)
	}
	if fields.Responsibility != nil {
		sop.Responsibility = strings.TrimSpace(*fields.Responsibility)
	}
	if fields.Procedure != nil {
		sop.Procedure = strings.TrimSpace(*fields.Procedure)
	}
	if fields.References != nil {
		sop.References = *fields.References
	}
	if fields.Steps != nil {
		sop.Steps = *fields.Steps
	}
	if fields.EffectiveDate != nil {
		sop.EffectiveDate = *fields.EffectiveDate
	}
	if fields.RevisionDate != nil {
		sop.RevisionDate = *fields.RevisionDate
	}
	if fields.RevisionNumber != nil {
		if revision := strings.TrimSpace(*fields.RevisionNumber); revision != "" {
			sop.RevisionNumber = revision
		}
	}
	if len(fields.PDFConfig) > 0 {
		sop.PDFConfig = fields.PDFConfig
	}
}

func validateSOP(sop store.SOP) error {
	required := []struct {
		field string
		value string
	}{
		{"title", sop.Title},
		{"department", sop.Department},
		{"responsiblePerson", sop.ResponsiblePerson},
		{"objective", sop.Objective},
		{"responsibility", sop.Responsibility},
		{"procedure", sop.Procedure},
	}
	for _, req := range required {
		if strings.TrimSpace(req.value) == "" {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", req.field+" is required", map[string]string{"field": req.field})
		}
	}

	if sop.EffectiveDate.IsZero() {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "effectiveDate is required", map[string]string{"field": "effectiveDate"})
	}
	if sop.RevisionDate.IsZero() {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "revisionDate is required", map[string]string{"field": "revisionDate"})
	}

	hasStep := false
	for _, step := range sop.Steps {
		if strings.TrimSpace(step) != "" {
			hasStep = true
			break
		}
	}
	if !hasStep {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "at least one non-empty step is required", map[string]string{"field": "steps"})
	}

	return nil
}

func renderDocument(sop store.SOP) render.Document {
	return render.Document{
		ID:                sop.ID,
		Title:             sop.Title,
		Department:        sop.Department,
		ResponsiblePerson: sop.ResponsiblePerson,
		Objective:         sop.Objective,
		Responsibility:    sop.Responsibility,
		Procedure:         sop.Procedure,
		References:        sop.References,
		Steps:             sop.Steps,
		EffectiveDate:     sop.EffectiveDate,
		RevisionDate:      sop.RevisionDate,
		RevisionNumber:    sop.RevisionNumber,
		CreatedByName:     sop.CreatedByName,
	}
}
