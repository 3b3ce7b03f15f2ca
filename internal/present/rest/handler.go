package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/contentgraph/publishing/internal/domain"
	"github.com/contentgraph/publishing/internal/expansion"
	"github.com/contentgraph/publishing/internal/present/rest/presenter"
	"github.com/contentgraph/publishing/internal/service"
	"github.com/contentgraph/publishing/internal/usecase"
)

type Handler struct {
	putContent *usecase.PutContentUsecase
	publish    *usecase.PublishUsecase
	patchLinks *usecase.PatchLinkSetUsecase
	lookup     *usecase.LookupUsecase
	represent  *usecase.RepresentUsecase
	resolver   *expansion.Resolver
	signal     *service.SignalService
	cache      ResponseCache
}

// ResponseCache memoizes serialized expanded-links bodies. A nil cache
// disables memoization.
type ResponseCache interface {
	Get(ctx context.Context, contentID, locale string, withDrafts bool) []byte
	Set(ctx context.Context, contentID, locale string, withDrafts bool, body []byte)
}

func NewHandler(
	putContent *usecase.PutContentUsecase,
	publish *usecase.PublishUsecase,
	patchLinks *usecase.PatchLinkSetUsecase,
	lookup *usecase.LookupUsecase,
	represent *usecase.RepresentUsecase,
	resolver *expansion.Resolver,
	signal *service.SignalService,
	cache ResponseCache,
) *Handler {
	return &Handler{
		putContent: putContent,
		publish:    publish,
		patchLinks: patchLinks,
		lookup:     lookup,
		represent:  represent,
		resolver:   resolver,
		signal:     signal,
		cache:      cache,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.PUT("/v2/content/:content_id", h.handlePutContent)
	e.POST("/v2/content/:content_id/publish", h.handlePublish)
	e.PATCH("/v2/links/:content_id", h.handlePatchLinks)
	e.GET("/v2/expanded-links/:content_id", h.handleExpandedLinks)
	e.POST("/lookup-by-base-path", h.handleLookupByBasePath)
	e.POST("/v2/represent-downstream", h.handleRepresentDownstream)
	e.GET("/events", h.handleEvents)
}

type changeNoteRequest struct {
	Note            string `json:"note"`
	PublicTimestamp string `json:"public_timestamp"`
}

type putContentRequest struct {
	BasePath        string              `json:"base_path"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	DocumentType    string              `json:"document_type"`
	SchemaName      string              `json:"schema_name"`
	AnalyticsID     string              `json:"analytics_identifier"`
	UpdateType      string              `json:"update_type"`
	Locale          string              `json:"locale"`
	Details         json.RawMessage     `json:"details"`
	Links           map[string][]string `json:"links"`
	AccessLimited   *accessLimitRequest `json:"access_limited"`
	ChangeNote      *changeNoteRequest  `json:"change_note"`
	PreviousVersion *int64              `json:"previous_version"`
}

type accessLimitRequest struct {
	Users         []string `json:"users"`
	AuthBypassIDs []string `json:"auth_bypass_ids"`
}

func (h *Handler) handlePutContent(c echo.Context) error {
	ctx := c.Request().Context()

	var req putContentRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	input := usecase.PutContentInput{
		ContentID:           c.Param("content_id"),
		Locale:              req.Locale,
		BasePath:            req.BasePath,
		Title:               req.Title,
		Description:         req.Description,
		DocumentType:        req.DocumentType,
		SchemaName:          req.SchemaName,
		AnalyticsIdentifier: req.AnalyticsID,
		UpdateType:          domain.UpdateType(req.UpdateType),
		Details:             req.Details,
		Links:               flattenLinks(req.Links),
		PreviousVersion:     req.PreviousVersion,
	}
	if req.AccessLimited != nil {
		input.AccessLimit = &domain.AccessLimit{
			Users:     req.AccessLimited.Users,
			BypassIDs: req.AccessLimited.AuthBypassIDs,
		}
	}
	if note, err := parseChangeNote(req.ChangeNote); err != nil {
		return presenter.BadRequestMessage(c, "invalid change_note public_timestamp")
	} else {
		input.ChangeNote = note
	}

	edition, err := h.putContent.PutContent(ctx, input)
	if err != nil {
		return presenter.DomainError(c, err)
	}

	return presenter.OK(c, editionResponse(edition))
}

type publishRequest struct {
	UpdateType      string             `json:"update_type"`
	Locale          string             `json:"locale"`
	PreviousVersion *int64             `json:"previous_version"`
	ChangeNote      *changeNoteRequest `json:"change_note"`
}

func (h *Handler) handlePublish(c echo.Context) error {
	ctx := c.Request().Context()

	var req publishRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	input := usecase.PublishInput{
		ContentID:       c.Param("content_id"),
		Locale:          req.Locale,
		UpdateType:      domain.UpdateType(req.UpdateType),
		PreviousVersion: req.PreviousVersion,
	}
	if note, err := parseChangeNote(req.ChangeNote); err != nil {
		return presenter.BadRequestMessage(c, "invalid change_note public_timestamp")
	} else {
		input.ChangeNote = note
	}

	if err := h.publish.Publish(ctx, input); err != nil {
		return presenter.DomainError(c, err)
	}

	return presenter.OK(c, echo.Map{"status": "ok"})
}

type patchLinksRequest struct {
	Links           map[string][]string `json:"links"`
	PreviousVersion *int64              `json:"previous_version"`
}

func (h *Handler) handlePatchLinks(c echo.Context) error {
	ctx := c.Request().Context()

	var req patchLinksRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	links := make(map[domain.LinkType][]string, len(req.Links))
	for linkType, targets := range req.Links {
		links[domain.LinkType(linkType)] = targets
	}

	err := h.patchLinks.Patch(ctx, usecase.PatchLinkSetInput{
		ContentID:       c.Param("content_id"),
		Links:           links,
		PreviousVersion: req.PreviousVersion,
	})
	if err != nil {
		return presenter.DomainError(c, err)
	}

	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleExpandedLinks(c echo.Context) error {
	ctx := c.Request().Context()

	contentID := c.Param("content_id")
	locale := c.QueryParam("locale")
	if locale == "" {
		locale = usecase.DefaultLocale
	}
	withDrafts := c.QueryParam("with_drafts") == "true"

	if h.cache != nil {
		if body := h.cache.Get(ctx, contentID, locale, withDrafts); body != nil {
			return c.JSONBlob(http.StatusOK, body)
		}
	}

	expanded, err := h.resolver.Resolve(ctx, expansion.Request{
		RootContentID: contentID,
		Locale:        locale,
		WithDrafts:    withDrafts,
	})
	if err != nil {
		return presenter.DomainError(c, err)
	}

	body, err := json.Marshal(echo.Map{"expanded_links": expanded})
	if err != nil {
		return presenter.InternalError(c, err)
	}
	if h.cache != nil {
		h.cache.Set(ctx, contentID, locale, withDrafts, body)
	}
	return c.JSONBlob(http.StatusOK, body)
}

type lookupRequest struct {
	BasePaths []string `json:"base_paths"`
}

func (h *Handler) handleLookupByBasePath(c echo.Context) error {
	ctx := c.Request().Context()

	var req lookupRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	found, err := h.lookup.ByBasePath(ctx, req.BasePaths)
	if err != nil {
		return presenter.InternalError(c, err)
	}

	return presenter.OK(c, found)
}

func (h *Handler) handleRepresentDownstream(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.represent.RepresentAll(ctx); err != nil {
		return presenter.InternalError(c, err)
	}

	return presenter.OK(c, echo.Map{"status": "ok"})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEvents streams publish signals over a websocket. The client
// sends nothing except optional "h" heartbeat frames.
func (h *Handler) handleEvents(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	ctx := c.Request().Context()

	output := make(chan usecase.PublishSignal)
	go h.signal.Realtime(ctx, output)

	// Buffered so the reader goroutine can post its close notification
	// even after an errored write path has already returned.
	quit := make(chan struct{}, 1)

	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				quit <- struct{}{}
				break
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case signal := <-output:
			err := ws.WriteJSON(signal)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}

// parseChangeNote converts the wire change note, treating a missing
// timestamp as "now left to the store default".
func parseChangeNote(req *changeNoteRequest) (*domain.ChangeNote, error) {
	if req == nil {
		return nil, nil
	}
	note := &domain.ChangeNote{Note: req.Note}
	if req.PublicTimestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.PublicTimestamp)
		if err != nil {
			return nil, err
		}
		note.PublicTimestamp = ts
	}
	return note, nil
}

// flattenLinks converts the wire representation of edition links into
// ordered link rows, position following array order within each type.
func flattenLinks(links map[string][]string) []domain.Link {
	types := make([]string, 0, len(links))
	for linkType := range links {
		types = append(types, linkType)
	}
	sort.Strings(types)

	var out []domain.Link
	for _, linkType := range types {
		for position, target := range links[linkType] {
			out = append(out, domain.Link{
				LinkType:        domain.LinkType(linkType),
				TargetContentID: target,
				Position:        position,
			})
		}
	}
	return out
}

func editionResponse(e *domain.Edition) echo.Map {
	resp := echo.Map{
		"content_id":    e.ContentID,
		"locale":        e.Locale,
		"state":         string(e.State),
		"title":         e.Title,
		"description":   e.Description,
		"document_type": e.DocumentType,
		"schema_name":   e.SchemaName,
		"update_type":   string(e.UpdateType),
		"details":       e.Details,
		"version":       e.UserFacingVersion,
	}
	if e.BasePath != "" {
		resp["base_path"] = e.BasePath
	}
	if e.AnalyticsIdentifier != "" {
		resp["analytics_identifier"] = e.AnalyticsIdentifier
	}
	if e.PublicUpdatedAt != nil {
		resp["public_updated_at"] = e.PublicUpdatedAt
	}
	if e.FirstPublishedAt != nil {
		resp["first_published_at"] = e.FirstPublishedAt
	}
	if e.LastEditedAt != nil {
		resp["last_edited_at"] = e.LastEditedAt
	}
	return resp
}
