// CLAUDE:SUMMARY Template service: validation, owner-scoped CRUD, thumbnail generation, list cache, preview, markdown export, session reactions.
// Package templates is the templio application service: users save HTML
// snippets, each with a generated thumbnail, then browse, preview, edit,
// export and delete them.
//
// Usage:
//
//	svc, err := templates.New(db, cfg, templates.NewPipeline(cfg, renderer, logger))
//	stop := svc.Attach(hub)
//	defer stop()
//	r.Route("/api/templates", svc.Routes(limiter))
//	svc.RegisterMCP(mcpServer, userID)
package templates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/templio/htmldoc"
	"github.com/hazyhaar/templio/idgen"
	"github.com/hazyhaar/templio/inline"
	"github.com/hazyhaar/templio/kit"
	"github.com/hazyhaar/templio/observability"
	"github.com/hazyhaar/templio/raster"
	"github.com/hazyhaar/templio/render"
	"github.com/hazyhaar/templio/sanitize"
	"github.com/hazyhaar/templio/templates/internal/store"
	"github.com/hazyhaar/templio/thumbnail"
)

// Template is a saved snippet as returned to callers.
type Template = store.Template

// Sort values accepted by List.
const (
	SortNewest    = string(store.SortNewest)
	SortOldest    = string(store.SortOldest)
	SortFavorites = string(store.SortFavorites)
)

// ThumbnailWarning is shown when a template was saved without a thumbnail.
const ThumbnailWarning = "Template saved, but the thumbnail could not be generated."

// Thumbnailer produces screenshots. *thumbnail.Pipeline implements it.
type Thumbnailer interface {
	Run(ctx context.Context, html string, validate func(string) error) (*thumbnail.Result, error)
}

// Saved is a created or updated template plus the soft screenshot warning.
type Saved struct {
	*Template
	Warning string `json:"warning,omitempty"`
}

// Page is one page of a listing.
type Page struct {
	Templates []*Template `json:"templates"`
	Sort      string      `json:"sort"`
	Page      int         `json:"page"`
	Pages     int         `json:"pages"`
	Total     int         `json:"total"`
	PageSize  int         `json:"page_size"`
}

// CreateInput is the payload of Create.
type CreateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	HTMLCode    string `json:"html_code"`
}

// UpdateInput carries the fields to change. Nil fields are kept.
type UpdateInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	HTMLCode    *string `json:"html_code,omitempty"`
}

// Service implements the template operations. Every operation acts on
// behalf of the user found in the context by kit.GetUserID.
type Service struct {
	store     *store.Store
	thumbs    Thumbnailer
	sanitizer *sanitize.Policy
	markdown  *converter.Converter
	cache     *listCache
	events    *observability.EventLogger
	metrics   *observability.MetricsManager
	limits    LimitsConfig
	newID     idgen.Generator
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithEventLogger records lifecycle events.
func WithEventLogger(l *observability.EventLogger) Option { return func(s *Service) { s.events = l } }

// WithMetrics records thumbnail metrics.
func WithMetrics(m *observability.MetricsManager) Option { return func(s *Service) { s.metrics = m } }

// WithIDGenerator sets the template id generator. Default UUIDv7.
func WithIDGenerator(g idgen.Generator) Option { return func(s *Service) { s.newID = g } }

// New creates a Service on db, applying the templates schema. cfg may be
// nil. thumbs may be nil, in which case templates are saved without
// thumbnails.
func New(db *sql.DB, cfg *Config, thumbs Thumbnailer, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()

	st, err := store.New(db)
	if err != nil {
		return nil, err
	}

	var popts []sanitize.Option
	if *cfg.Sanitize.ScrubStyleURLs {
		popts = append(popts, sanitize.WithStyleScrub())
	}

	s := &Service{
		store:     st,
		thumbs:    thumbs,
		sanitizer: sanitize.NewPolicy(popts...),
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		cache:  newListCache(cfg.Cache.TTL),
		limits: cfg.Limits,
		newID:  idgen.Default,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// NewPipeline wires the thumbnail pipeline from cfg around renderer.
func NewPipeline(cfg *Config, renderer render.Renderer, logger *slog.Logger) *thumbnail.Pipeline {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	icfg := cfg.Inline
	if icfg.Logger == nil {
		icfg.Logger = logger
	}
	return thumbnail.New(thumbnail.Config{
		Inliner:        inline.New(icfg),
		Renderer:       renderer,
		Capturer:       raster.New(cfg.Raster),
		MaxStoredBytes: MaxScreenshotBytes,
		Logger:         logger,
	})
}

func userFrom(ctx context.Context, op string) (string, error) {
	if id := kit.GetUserID(ctx); id != "" {
		return id, nil
	}
	return "", &AuthError{Op: op}
}

// Create validates the input, generates the thumbnail and stores the
// template. A thumbnail failure does not fail the call: the template is
// saved without screenshot and Saved.Warning is set.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Saved, error) {
	userID, err := userFrom(ctx, "create")
	if err != nil {
		return nil, err
	}
	title, err := s.limits.title(in.Title)
	if err != nil {
		return nil, err
	}
	desc, err := s.limits.description(in.Description)
	if err != nil {
		return nil, err
	}

	shot, warning, err := s.thumbnail(ctx, userID, in.HTMLCode)
	if err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	t := &Template{
		ID:          s.newID(),
		UserID:      userID,
		Title:       title,
		Description: desc,
		HTMLCode:    in.HTMLCode,
		Screenshot:  shot,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertTemplate(ctx, t); err != nil {
		return nil, &StorageError{Op: "create", Err: err}
	}
	s.cache.invalidate(userID)
	s.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:  observability.EventTemplateCreated,
		EntityType: "template",
		EntityID:   t.ID,
		UserID:     userID,
		Success:    true,
	})
	return &Saved{Template: t, Warning: warning}, nil
}

// thumbnail runs the pipeline. Only validation (or an already cancelled
// ctx) yields an error; screenshot failures become a warning.
func (s *Service) thumbnail(ctx context.Context, userID, html string) (shot, warning string, err error) {
	validate := s.limits.htmlCode(s.sanitizer)
	if s.thumbs == nil {
		if err := validate(html); err != nil {
			return "", "", err
		}
		return "", "", nil
	}

	res, err := s.thumbs.Run(ctx, html, validate)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return "", "", err
		}
		return "", "", fmt.Errorf("templates: thumbnail: %w", err)
	}

	sample := observability.ThumbnailSample{
		At:       s.now(),
		Duration: res.Duration,
		Inlined:  res.Images.Inlined,
		Failed:   res.Images.Failed,
	}
	if res.Warning == nil {
		sample.Bytes, sample.Format = len(res.Screenshot), res.Format
	}
	s.metrics.RecordThumbnail(sample)

	if res.Warning != nil || res.Screenshot == "" {
		details := "no screenshot"
		if res.Warning != nil {
			details = res.Warning.Error()
		}
		s.events.LogEvent(ctx, observability.BusinessEvent{
			EventType:  observability.EventThumbnailDropped,
			EntityType: "template",
			UserID:     userID,
			Details:    details,
		})
		return "", ThumbnailWarning, nil
	}
	s.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:  observability.EventThumbnailGenerated,
		EntityType: "template",
		UserID:     userID,
		Details:    res.Format,
		Success:    true,
	})
	return res.Screenshot, "", nil
}

// List returns one page of the caller's templates. sort is newest (default),
// oldest or favorites; page is clamped to [1, pages].
func (s *Service) List(ctx context.Context, sort string, page int) (*Page, error) {
	userID, err := userFrom(ctx, "list")
	if err != nil {
		return nil, err
	}
	switch sort {
	case SortNewest, SortOldest, SortFavorites:
	default:
		sort = SortNewest
	}
	if page < 1 {
		page = 1
	}
	key := pageKey{sort: sort, page: page}
	if p, ok := s.cache.get(userID, key); ok {
		return p, nil
	}
	gen := s.cache.generation(userID)

	total, err := s.store.CountTemplates(ctx, userID, sort == SortFavorites)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	size := s.limits.PageSize
	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}
	if page > pages {
		page = pages
	}
	items, err := s.store.ListTemplates(ctx, userID, store.ListOptions{
		Sort:   store.Sort(sort),
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	if items == nil {
		items = []*Template{}
	}
	p := &Page{Templates: items, Sort: sort, Page: page, Pages: pages, Total: total, PageSize: size}
	s.cache.put(userID, gen, key, p)
	return p, nil
}

// Get returns one of the caller's templates, raw html included.
func (s *Service) Get(ctx context.Context, id string) (*Template, error) {
	userID, err := userFrom(ctx, "get")
	if err != nil {
		return nil, err
	}
	return s.get(ctx, userID, id)
}

// templateID returns the canonical form of id. Ids that are not UUIDs
// cannot name a template.
func templateID(id string) (string, error) {
	id, err := idgen.Parse(id)
	if err != nil {
		return "", ErrNotFound
	}
	return id, nil
}

func (s *Service) get(ctx context.Context, userID, id string) (*Template, error) {
	id, err := templateID(id)
	if err != nil {
		return nil, err
	}
	t, err := s.store.GetTemplate(ctx, userID, id)
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

// Update changes the given fields. A changed html regenerates the
// thumbnail under the same rules as Create; if that fails the template
// keeps no screenshot.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Saved, error) {
	userID, err := userFrom(ctx, "update")
	if err != nil {
		return nil, err
	}
	t, err := s.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		if t.Title, err = s.limits.title(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		if t.Description, err = s.limits.description(*in.Description); err != nil {
			return nil, err
		}
	}
	var warning string
	if in.HTMLCode != nil && *in.HTMLCode != t.HTMLCode {
		shot, w, err := s.thumbnail(ctx, userID, *in.HTMLCode)
		if err != nil {
			return nil, err
		}
		t.HTMLCode, t.Screenshot, warning = *in.HTMLCode, shot, w
	}

	prev := t.UpdatedAt
	t.UpdatedAt = max(s.now().UnixMilli(), prev+1)
	switch err := s.store.UpdateTemplate(ctx, t, prev); {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return nil, ErrConflict
	case err != nil:
		return nil, &StorageError{Op: "update", Err: err}
	}
	s.cache.invalidate(userID)
	s.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:  observability.EventTemplateUpdated,
		EntityType: "template",
		EntityID:   t.ID,
		UserID:     userID,
		Success:    true,
	})
	return &Saved{Template: t, Warning: warning}, nil
}

// UpdateTitle renames a template.
func (s *Service) UpdateTitle(ctx context.Context, id, title string) (*Template, error) {
	userID, err := userFrom(ctx, "rename")
	if err != nil {
		return nil, err
	}
	if id, err = templateID(id); err != nil {
		return nil, err
	}
	title, err = s.limits.title(title)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.UpdateTitle(ctx, userID, id, title, s.now().UnixMilli())
	if err != nil {
		return nil, &StorageError{Op: "rename", Err: err}
	}
	if !ok {
		return nil, ErrNotFound
	}
	s.cache.invalidate(userID)
	return s.get(ctx, userID, id)
}

// ToggleFavorite flips the favorite flag.
func (s *Service) ToggleFavorite(ctx context.Context, id string) (*Template, error) {
	userID, err := userFrom(ctx, "toggle favorite")
	if err != nil {
		return nil, err
	}
	if id, err = templateID(id); err != nil {
		return nil, err
	}
	_, found, err := s.store.ToggleFavorite(ctx, userID, id, s.now().UnixMilli())
	if err != nil {
		return nil, &StorageError{Op: "toggle favorite", Err: err}
	}
	if !found {
		return nil, ErrNotFound
	}
	s.cache.invalidate(userID)
	return s.get(ctx, userID, id)
}

// Delete removes a template.
func (s *Service) Delete(ctx context.Context, id string) error {
	userID, err := userFrom(ctx, "delete")
	if err != nil {
		return err
	}
	if id, err = templateID(id); err != nil {
		return err
	}
	ok, err := s.store.DeleteTemplate(ctx, userID, id)
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	if !ok {
		return ErrNotFound
	}
	s.cache.invalidate(userID)
	s.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:  observability.EventTemplateDeleted,
		EntityType: "template",
		EntityID:   id,
		UserID:     userID,
		Success:    true,
	})
	return nil
}

// Preview returns the sanitized template wrapped in the document shell,
// ready to be served in a sandboxed frame.
func (s *Service) Preview(ctx context.Context, id string) (string, error) {
	userID, err := userFrom(ctx, "preview")
	if err != nil {
		return "", err
	}
	t, err := s.get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	return s.SanitizePreview(t.HTMLCode, t.Title)
}

// SanitizePreview sanitizes unsaved html for preview.
func (s *Service) SanitizePreview(html, title string) (string, error) {
	res := s.sanitizer.Sanitize(html)
	if !res.Valid {
		return "", &ValidationError{Field: "html_code", Message: res.Error}
	}
	return htmldoc.Wrap(res.Sanitized, title), nil
}

// ExportMarkdown converts the sanitized template to Markdown, headed by
// its title and description.
func (s *Service) ExportMarkdown(ctx context.Context, id string) (string, error) {
	userID, err := userFrom(ctx, "export")
	if err != nil {
		return "", err
	}
	t, err := s.get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	res := s.sanitizer.Sanitize(t.HTMLCode)
	if !res.Valid {
		return "", &ValidationError{Field: "html_code", Message: res.Error}
	}
	body, err := s.markdown.ConvertString(res.Sanitized)
	if err != nil {
		return "", fmt.Errorf("templates: export markdown: %w", err)
	}
	md := "# " + t.Title + "\n\n"
	if t.Description != "" {
		if d, err := s.markdown.ConvertString(t.Description); err == nil && d != "" {
			md += d + "\n\n"
		}
	}
	return md + body + "\n", nil
}

// Activity returns the caller's most recent business events.
func (s *Service) Activity(ctx context.Context, limit int) ([]observability.BusinessEvent, error) {
	userID, err := userFrom(ctx, "activity")
	if err != nil {
		return nil, err
	}
	if s.events == nil {
		return []observability.BusinessEvent{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	evs, err := s.events.Recent(ctx, userID, limit)
	if err != nil {
		return nil, &StorageError{Op: "activity", Err: err}
	}
	if evs == nil {
		evs = []observability.BusinessEvent{}
	}
	return evs, nil
}
