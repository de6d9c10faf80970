package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/http/middleware"
	"github.com/iago/reportflow/internal/service"
)

type createTemplateRequest struct {
	Name            string               `json:"name" validate:"required,max=255"`
	Description     string               `json:"description" validate:"max=1000"`
	Type            string               `json:"type" validate:"required,oneof=DASHBOARD TABLE CHART DOCUMENT CUSTOM"`
	Category        string               `json:"category" validate:"required,max=255"`
	Config          *domain.ReportConfig `json:"config"`
	IsSystem        bool                 `json:"isSystem"`
	Tags            []string             `json:"tags" validate:"max=10,dive,required,max=50"`
	PreviewImageURL string               `json:"previewImageUrl" validate:"omitempty,http_url"`
}

type updateTemplateRequest struct {
	Name            *string              `json:"name" validate:"omitempty,max=255"`
	Description     *string              `json:"description" validate:"omitempty,max=1000"`
	Config          *domain.ReportConfig `json:"config"`
	PreviewImageURL *string              `json:"previewImageUrl" validate:"omitempty"`
	AsSystem        bool                 `json:"asSystem"`
}

type tagRequest struct {
	Tag string `json:"tag" validate:"required,max=50"`
}

type instantiateTemplateRequest struct {
	Title string `json:"title" validate:"required,max=255"`
}

func (api *API) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var request createTemplateRequest
	if !api.decode(w, r, &request) {
		return
	}
	templateType, err := domain.ParseTemplateType(request.Type)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	template, err := api.templates.Create(r.Context(), service.CreateTemplateInput{
		Name:            request.Name,
		Description:     request.Description,
		Type:            templateType,
		Category:        request.Category,
		Config:          request.Config,
		IsSystem:        request.IsSystem,
		Tags:            request.Tags,
		CreatedBy:       actor.UserID,
		OrganizationID:  actor.OrganizationID,
		PreviewImageURL: request.PreviewImageURL,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/templates/"+template.ID().String())
	writeJSON(w, http.StatusCreated, newTemplateResponse(template))
}

// ListTemplates pages through templates, or with ?active=true returns every
// active template usable by the caller's organization.
func (api *API) ListTemplates(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid query parameter active")
			return
		}
		if active {
			api.listActiveTemplates(w, r)
			return
		}
	}

	filter, err := listFilter(r, nil)
	if err != nil {
		writeFilterError(w, r, err)
		return
	}
	templates, total, err := api.templates.List(r.Context(), filter)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload[templateResponse]{
		Items:    mapSlice(templates, newTemplateResponse),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

func (api *API) listActiveTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := api.templates.ListActive(r.Context(), middleware.GetActor(r.Context()).OrganizationID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload[templateResponse]{
		Items: mapSlice(templates, newTemplateResponse),
		Total: len(templates),
	})
}

func (api *API) GetTemplate(w http.ResponseWriter, r *http.Request) {
	api.templateAction(w, r, api.templates.Get)
}

func (api *API) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var request updateTemplateRequest
	api.templateAction(w, r, func(ctx context.Context, id domain.ID) (*domain.ReportTemplate, error) {
		return api.templates.Update(ctx, id, service.UpdateTemplateInput{
			Name:            request.Name,
			Description:     request.Description,
			Config:          request.Config,
			PreviewImageURL: request.PreviewImageURL,
			AsSystem:        request.AsSystem,
		})
	}, &request)
}

func (api *API) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "templateID")
	if !ok {
		return
	}
	if err := api.templates.Delete(r.Context(), id); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) ActivateTemplate(w http.ResponseWriter, r *http.Request) {
	api.templateAction(w, r, api.templates.Activate)
}

func (api *API) DeactivateTemplate(w http.ResponseWriter, r *http.Request) {
	api.templateAction(w, r, api.templates.Deactivate)
}

func (api *API) AddTemplateTag(w http.ResponseWriter, r *http.Request) {
	var request tagRequest
	api.templateAction(w, r, func(ctx context.Context, id domain.ID) (*domain.ReportTemplate, error) {
		return api.templates.AddTag(ctx, id, request.Tag)
	}, &request)
}

func (api *API) RemoveTemplateTag(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	api.templateAction(w, r, func(ctx context.Context, id domain.ID) (*domain.ReportTemplate, error) {
		return api.templates.RemoveTag(ctx, id, tag)
	})
}

// InstantiateTemplate creates a DRAFT report from the template and answers
// with the new report.
func (api *API) InstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "templateID")
	if !ok {
		return
	}
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var request instantiateTemplateRequest
	if !api.decode(w, r, &request) {
		return
	}

	report, err := api.templates.Instantiate(r.Context(), id, service.InstantiateTemplateInput{
		Title:          request.Title,
		CreatedBy:      actor.UserID,
		OrganizationID: actor.OrganizationID,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/reports/"+report.ID().String())
	writeJSON(w, http.StatusCreated, newReportResponse(report))
}

// templateAction resolves the template id, decodes body when one is given and
// answers with the template apply returns.
func (api *API) templateAction(w http.ResponseWriter, r *http.Request, apply func(context.Context, domain.ID) (*domain.ReportTemplate, error), body ...any) {
	id, ok := pathID(w, r, "templateID")
	if !ok {
		return
	}
	for _, value := range body {
		if !api.decode(w, r, value) {
			return
		}
	}
	template, err := apply(r.Context(), id)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTemplateResponse(template))
}
