package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"recruitline/internal/decisions"
	"recruitline/internal/domain"
	"recruitline/internal/engine"
	"recruitline/internal/engine/auth"
	"recruitline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"precondition_failed"`
	Message string         `json:"message" example:"candidate must be archived before permanent deletion"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"rating\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// out wraps a response body.
type out[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *out[T] { return &out[T]{Body: v} }

// New returns an HTTP handler exposing the Recruitline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	e := cfg.Engine
	if e.Auth != nil {
		e.Auth = claimsChecker{next: e.Auth}
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are 400 like engine validation.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, e.Repo))
	hcfg := huma.DefaultConfig("Recruitline API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group, e)
	registerDevAuth(group, e, cfg.Auth)
	registerCandidates(group, e)
	registerArchive(group, e)
	registerInterviews(group, e)
	registerDecisions(group, e)
	registerBookingLinks(group, e)
	registerBookingPage(group, e)
	registerActivity(group, e)
	registerSweeps(group, e)
	registerOpenAPI(router, api, basePath)

	return router, nil
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
	var (
		ve  engine.ValidationError
		pe  engine.PreconditionError
		pme engine.PermissionError
		fe  auth.ForbiddenError
		nfe engine.NotFoundError
		ce  engine.ConflictError
		xe  engine.ExternalServiceError
		se  huma.StatusError
	)
	switch {
	case errors.As(err, &se):
		return se
	case errors.As(err, &ve):
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), details)
	case errors.As(err, &pe):
		return newAPIError(http.StatusPreconditionFailed, "precondition_failed", err.Error(), nil)
	case errors.As(err, &pme):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": pme.Err.Permission})
	case errors.As(err, &fe):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	case errors.As(err, &nfe):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"entity": nfe.Entity})
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &ce):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.As(err, &xe):
		return newAPIError(http.StatusBadGateway, "external_service_error", err.Error(), map[string]any{"service": xe.Service})
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusPreconditionFailed:
		return "precondition_failed"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusPreconditionFailed,
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func operations(item *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace}
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if publicPath(basePath, route) {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Recruitline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key. Booking endpoints are gated by the link token.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*out[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*out[WhoAmIResponse], error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		roles, perms := principal.Roles, principal.Permissions
		rbac := auth.Service{DB: e.DB}
		if len(roles) == 0 {
			if got, err := rbac.ActorRoles(ctx, principal.ActorID); err == nil {
				roles = got
			}
		}
		if got, err := rbac.ActorPermissions(ctx, principal.ActorID); err == nil {
			for _, p := range got {
				if !hasPermission(perms, p) {
					perms = append(perms, p)
				}
			}
		}
		return reply(WhoAmIResponse{
			ActorID:     principal.ActorID,
			Source:      principal.Source,
			Roles:       nonNilSlice(roles),
			Permissions: nonNilSlice(perms),
		}), nil
	})
}

func registerDevAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	if !authCfg.DevLogin {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*out[DevLoginResponse], error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Name, input.Body.Roles, input.Body.Permissions, e.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return reply(DevLoginResponse{Token: token}), nil
	})
}

func registerCandidates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-candidate",
		Method:        http.MethodPost,
		Path:          "/candidates",
		Summary:       "Create candidate",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateCandidateRequest `json:"body"`
	}) (*out[domain.Candidate], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCandidate(ctx, input.Body.input(), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-application",
		Method:      http.MethodPost,
		Path:        "/applications",
		Summary:     "Submit an application",
		Description: "Creates a new candidate, reactivates a returning one, or reports a live duplicate.",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body ApplicationRequest `json:"body"`
	}) (*out[engine.ApplicationResult], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SubmitApplication(ctx, input.Body.input(), input.Body.ApplicationKey, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-candidates",
		Method:      http.MethodGet,
		Path:        "/candidates",
		Summary:     "List candidates",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Archived string `query:"archived" enum:"true,false"`
		Limit    int    `query:"limit" default:"50"`
	}) (*out[[]domain.Candidate], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		var archived *bool
		if input.Archived != "" {
			v := input.Archived == "true"
			archived = &v
		}
		items, err := e.ListCandidates(ctx, input.Status, archived, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "probe-returning",
		Method:      http.MethodGet,
		Path:        "/returning-applicants",
		Summary:     "Look up a returning applicant by email or phone",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Email string `query:"email"`
		Phone string `query:"phone"`
	}) (*out[ReturningResponse], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		m, err := e.ProbeReturning(ctx, input.Email, input.Phone)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ReturningResponse{Match: m}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-candidate",
		Method:      http.MethodGet,
		Path:        "/candidates/{candidate_id}",
		Summary:     "Get candidate",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CandidateID string `path:"candidate_id"`
	}) (*out[domain.Candidate], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.GetCandidate(ctx, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-candidate",
		Method:      http.MethodPatch,
		Path:        "/candidates/{candidate_id}",
		Summary:     "Update candidate details",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		CandidateID string                 `path:"candidate_id"`
		Body        UpdateCandidateRequest `json:"body"`
	}) (*out[domain.Candidate], error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.UpdateCandidate(ctx, input.CandidateID, input.Body.patch(), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})
}

func registerArchive(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "archive-candidate",
		Method:      http.MethodPost,
		Path:        "/candidates/{candidate_id}/archive",
		Summary:     "Archive candidate",
		Description: "Cancels scheduled interviews and revokes active booking links, then archives. Safe to retry.",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		CandidateID string         `path:"candidate_id"`
		Body        ArchiveRequest `json:"body"`
	}) (*out[engine.ArchiveResult], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Archive(ctx, input.CandidateID, input.Body.Reason, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-candidate",
		Method:      http.MethodPost,
		Path:        "/candidates/{candidate_id}/restore",
		Summary:     "Restore archived candidate",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		CandidateID string `path:"candidate_id"`
	}) (*out[domain.Candidate], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.Restore(ctx, input.CandidateID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reactivate-candidate",
		Method:      http.MethodPost,
		Path:        "/candidates/{candidate_id}/reactivate",
		Summary:     "Reactivate a returning candidate",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		CandidateID string            `path:"candidate_id"`
		Body        ReactivateRequest `json:"body"`
	}) (*out[domain.Candidate], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.Reactivate(ctx, input.CandidateID, engine.ReactivateOptions{
			Overrides:      input.Body.patch(),
			ApplicationKey: input.Body.ApplicationKey,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-candidate",
		Method:      http.MethodDelete,
		Path:        "/candidates/{candidate_id}",
		Summary:     "Permanently delete an archived candidate",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		CandidateID string `path:"candidate_id"`
	}) (*out[HardDeleteResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		counts, err := e.HardDelete(ctx, input.CandidateID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(HardDeleteResponse{CandidateID: input.CandidateID, Deleted: counts}), nil
	})
}

func registerInterviews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-interviews",
		Method:      http.MethodGet,
		Path:        "/interviews",
		Summary:     "List interviews",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CandidateID string `query:"candidate_id"`
		Status      string `query:"status" enum:"scheduled,completed,cancelled,no_show,lapsed"`
		Type        string `query:"type" enum:"interview,trial"`
		Limit       int    `query:"limit" default:"50"`
	}) (*out[[]domain.Interview], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListInterviews(ctx, engine.InterviewQuery{
			CandidateID: input.CandidateID,
			Status:      input.Status,
			Type:        input.Type,
			Limit:       normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-interview",
		Method:      http.MethodGet,
		Path:        "/interviews/{interview_id}",
		Summary:     "Get interview",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		InterviewID string `path:"interview_id"`
	}) (*out[domain.Interview], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		iv, err := e.GetInterview(ctx, input.InterviewID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(iv), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reschedule-interview",
		Method:      http.MethodPost,
		Path:        "/interviews/{interview_id}/reschedule",
		Summary:     "Reschedule interview",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		InterviewID string            `path:"interview_id"`
		Body        RescheduleRequest `json:"body"`
	}) (*out[domain.Interview], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		iv, err := e.Reschedule(ctx, input.InterviewID, input.Body.ScheduledDate, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(iv), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-interview",
		Method:      http.MethodPost,
		Path:        "/interviews/{interview_id}/cancel",
		Summary:     "Cancel interview",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		InterviewID string        `path:"interview_id"`
		Body        CancelRequest `json:"body"`
	}) (*out[domain.Interview], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		iv, err := e.Cancel(ctx, input.InterviewID, input.Body.Reason, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(iv), nil
	})

	for _, action := range []struct {
		id, path, summary string
		run               func(context.Context, string, engine.Actor) (domain.Interview, error)
	}{
		{"complete-interview", "/interviews/{interview_id}/complete", "Mark interview completed", e.Complete},
		{"no-show-interview", "/interviews/{interview_id}/no-show", "Mark interview as no-show and withdraw the candidate", e.MarkNoShow},
	} {
		run := action.run
		huma.Register(api, huma.Operation{
			OperationID: action.id,
			Method:      http.MethodPost,
			Path:        action.path,
			Summary:     action.summary,
			Errors:      mutationErrors,
		}, func(ctx context.Context, input *struct {
			InterviewID string `path:"interview_id"`
		}) (*out[domain.Interview], error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			iv, err := run(ctx, input.InterviewID, actor)
			if err != nil {
				return nil, handleError(err)
			}
			return reply(iv), nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "submit-feedback",
		Method:      http.MethodPut,
		Path:        "/interviews/{interview_id}/feedback",
		Summary:     "Submit interview feedback",
		Description: "Allowed once the scheduled start has passed. A resubmission replaces the previous feedback.",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		InterviewID string          `path:"interview_id"`
		Body        FeedbackRequest `json:"body"`
	}) (*out[domain.Interview], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		iv, err := e.SubmitFeedback(ctx, input.InterviewID, engine.FeedbackInput{
			Rating:         input.Body.Rating,
			Recommendation: input.Body.Recommendation,
			Strengths:      input.Body.Strengths,
			Weaknesses:     input.Body.Weaknesses,
			Comments:       input.Body.Comments,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(iv), nil
	})
}

func registerDecisions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "decision-queue",
		Method:      http.MethodGet,
		Path:        "/decisions",
		Summary:     "Candidates awaiting a hiring decision",
	}, func(ctx context.Context, _ *struct{}) (*out[[]decisions.DecisionCandidate], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.DecisionQueue(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	for _, action := range []struct {
		id, path, summary string
		run               func(context.Context, string, engine.DecisionOptions, engine.Actor) (engine.DecisionResult, error)
	}{
		{"approve-candidate", "/candidates/{candidate_id}/approve", "Approve candidate", e.Approve},
		{"reject-candidate", "/candidates/{candidate_id}/reject", "Reject candidate", e.Reject},
		{"schedule-trial", "/candidates/{candidate_id}/schedule-trial", "Advance to a trial shift and issue a trial booking link", e.ScheduleTrial},
	} {
		run := action.run
		huma.Register(api, huma.Operation{
			OperationID: action.id,
			Method:      http.MethodPost,
			Path:        action.path,
			Summary:     action.summary,
			Errors:      mutationErrors,
		}, func(ctx context.Context, input *struct {
			CandidateID string          `path:"candidate_id"`
			Body        DecisionRequest `json:"body"`
		}) (*out[engine.DecisionResult], error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			res, err := run(ctx, input.CandidateID, engine.DecisionOptions{Note: input.Body.Note, Notify: input.Body.Notify}, actor)
			if err != nil {
				return nil, handleError(err)
			}
			return reply(res), nil
		})
	}
}

func registerBookingLinks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-booking-link",
		Method:        http.MethodPost,
		Path:          "/candidates/{candidate_id}/booking-links",
		Summary:       "Issue a booking link",
		Description:   "Revokes the candidate's active links before issuing a new one.",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		CandidateID string             `path:"candidate_id"`
		Body        BookingLinkRequest `json:"body"`
	}) (*out[domain.BookingLink], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		link, err := e.CreateBookingLink(ctx, input.CandidateID, input.Body.InterviewType, input.Body.Notify, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(link), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-booking-links",
		Method:      http.MethodGet,
		Path:        "/candidates/{candidate_id}/booking-links",
		Summary:     "List a candidate's booking links",
	}, func(ctx context.Context, input *struct {
		CandidateID string `path:"candidate_id"`
	}) (*out[[]domain.BookingLink], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		links, err := e.Repo.ListBookingLinks(ctx, nil, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(links)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "available-slots",
		Method:      http.MethodGet,
		Path:        "/slots",
		Summary:     "Slot grid for a day",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Date          string `query:"date" required:"true" example:"2024-03-05"`
		InterviewType string `query:"interview_type" enum:"interview,trial" default:"interview"`
	}) (*out[SlotsResponse], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		grid, err := e.AvailableSlots(ctx, input.Date, input.InterviewType)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(SlotsResponse{Date: input.Date, InterviewType: input.InterviewType, Slots: nonNilSlice(grid)}), nil
	})
}

// registerBookingPage serves the candidate-facing booking flow. The link token
// is the only credential.
func registerBookingPage(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "booking-slots",
		Method:      http.MethodGet,
		Path:        "/bookings/{token}/slots",
		Summary:     "Slots offered by a booking link",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusPreconditionFailed},
	}, func(ctx context.Context, input *struct {
		Token string `path:"token"`
		Date  string `query:"date" required:"true"`
	}) (*out[BookingPageResponse], error) {
		link, grid, err := e.SlotsForLink(ctx, input.Token, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(BookingPageResponse{
			InterviewType: link.InterviewType,
			ExpiresAt:     link.ExpiresAt,
			Date:          input.Date,
			Slots:         nonNilSlice(grid),
		}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "book-slot",
		Method:        http.MethodPost,
		Path:          "/bookings/{token}",
		Summary:       "Book a slot with a booking link",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Token string      `path:"token"`
		Body  BookRequest `json:"body"`
	}) (*out[BookingConfirmation], error) {
		iv, err := e.BookInterview(ctx, engine.BookingRequest{Token: input.Token, Date: input.Body.Date, Time: input.Body.Time})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(BookingConfirmation{
			InterviewID:   iv.ID,
			InterviewType: iv.Type,
			ScheduledDate: iv.ScheduledDate,
			Duration:      iv.Duration,
		}), nil
	})
}

func registerActivity(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "Activity log, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EntityType string `query:"entity_type" enum:"candidate,interview,booking_link"`
		EntityID   string `query:"entity_id"`
		Action     string `query:"action"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*out[paginatedActivity], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := e.Activity(ctx, engine.ActivityQuery{
			EntityType: input.EntityType,
			EntityID:   input.EntityID,
			Action:     input.Action,
			Before:     before,
			Limit:      limit + 1,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedActivity{Items: []domain.ActivityLogEntry{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		resp.Items = append(resp.Items, items...)
		return reply(resp), nil
	})
}

func registerSweeps(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "sweep-feedback-reminders",
		Method:      http.MethodPost,
		Path:        "/sweeps/feedback-reminders",
		Summary:     "Run the feedback reminder sweep now",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*out[engine.SweepResult], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if e.Auth != nil {
			if err := auth.Require(ctx, e.Auth, actor.ID, auth.PermInterviewManage); err != nil {
				return nil, handleError(err)
			}
		}
		res, err := e.SweepFeedbackReminders(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sweep-display-fields",
		Method:      http.MethodPost,
		Path:        "/sweeps/display-fields",
		Summary:     "Refresh candidate display fields cached on interviews",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*out[map[string]int64], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if e.Auth != nil {
			if err := auth.Require(ctx, e.Auth, actor.ID, auth.PermCandidateCreate); err != nil {
				return nil, handleError(err)
			}
		}
		n, err := e.ReconcileDisplayFields(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(map[string]int64{"interviews_refreshed": n}), nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
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
