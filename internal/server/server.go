package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"giveaway/internal/config"
	"giveaway/internal/domain"
	"giveaway/internal/engine"
	"giveaway/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// Gatherer backs GET /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"insufficient_participants"`
	Message string         `json:"message" example:"cannot select 5 winners from 2 participants"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"draw_id\":\"7f0c\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the giveaway API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are 400 bad_request; 422 is
			// reserved for pools that cannot produce a draw.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo, cfg.Logger))
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	hcfg := huma.DefaultConfig("Giveaway API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDraws(group, cfg.Engine)
	registerCampaigns(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

// body wraps a JSON request or response payload for huma.
type body[T any] struct {
	Body T
}

func reply[T any](v T) *body[T] {
	return &body[T]{Body: v}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	code := domain.KindName(err)
	msg := domain.Reason(err)
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return newAPIError(http.StatusBadRequest, code, msg, nil)
	case errors.Is(err, domain.ErrEmptyInput), errors.Is(err, domain.ErrInsufficientParticipants):
		return newAPIError(http.StatusUnprocessableEntity, code, msg, nil)
	case errors.Is(err, domain.ErrIntegrity):
		return newAPIError(http.StatusInternalServerError, code, msg, nil)
	case errors.Is(err, domain.ErrNavigation):
		return newAPIError(http.StatusBadGateway, code, msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*body[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

func registerDraws(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "draw-lists",
		Method:      http.MethodPost,
		Path:        "/draws",
		Summary:     "Run a one-off draw over uploaded identifier lists",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, func(ctx context.Context, input *body[DrawListsRequest]) (*body[DrawListsResponse], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		lists, err := input.Body.kindLists()
		if err != nil {
			return nil, handleError(err)
		}
		out, err := e.DrawLists(lists, input.Body.Filters.filterSpec(), input.Body.Lottery.config(e.Now))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(drawListsResponse(out)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-draw",
		Method:      http.MethodGet,
		Path:        "/draws/{draw_id}",
		Summary:     "Get a stored draw",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DrawID string `path:"draw_id"`
	}) (*body[domain.Draw], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		d, err := e.Repo.GetDraw(ctx, input.DrawID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(d), nil
	})
}

// campaignEngine returns e bound to the stored config of a campaign.
func campaignEngine(ctx context.Context, e engine.Engine, campaignID string) (engine.Engine, *config.Config, error) {
	if _, err := e.Repo.GetCampaign(ctx, campaignID); err != nil {
		return e, nil, err
	}
	cfg, err := e.Repo.GetCampaignConfig(ctx, campaignID)
	if err != nil {
		return e, nil, err
	}
	e.Config = cfg
	return e, cfg, nil
}

func registerCampaigns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.Campaign], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListCampaigns(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Campaign{}
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-campaign",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}",
		Summary:     "Get a campaign with its config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*body[CampaignResponse], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.Repo.GetCampaign(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		cfg, err := e.Repo.GetCampaignConfig(ctx, input.CampaignID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(err)
		}
		return reply(campaignResponse(c, cfg)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-participants",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/participants",
		Summary:     "List eligible participants of a campaign",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*body[ParticipantsResponse], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		ce, _, err := campaignEngine(ctx, e, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		ps, stats, err := ce.Participants(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		if ps == nil {
			ps = []domain.Participant{}
		}
		return reply(ParticipantsResponse{Items: ps, Statistics: stats}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-campaign-draw",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/draws",
		Summary:     "Draw winners for a campaign and store the result",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		CampaignID string             `path:"campaign_id"`
		Body       CampaignDrawRequest `json:"body"`
	}) (*body[domain.Draw], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ce, cfg, err := campaignEngine(ctx, e, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		lc := input.Body.config(cfg, e.Now)
		d, err := ce.Draw(ctx, input.CampaignID, lc, actorID)
		if err != nil {
			se := handleError(err)
			if ae, ok := se.(*apiError); ok && d.ID != "" {
				ae.Body.Details = map[string]any{"draw_id": d.ID}
			}
			return nil, se
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-campaign-draws",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/draws",
		Summary:     "List stored draws of a campaign, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*body[[]domain.Draw], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetCampaign(ctx, input.CampaignID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListDraws(ctx, input.CampaignID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Draw{}
		}
		return reply(items), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		Type       string `query:"type"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*body[paginatedEvents], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.CampaignID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return reply(resp), nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

// clockSeed derives a seed when the caller did not pin one.
func clockSeed(now func() time.Time) int64 {
	if now == nil {
		now = time.Now
	}
	return now().UnixNano()
}
