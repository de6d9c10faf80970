package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/service"
)

type createReportRequest struct {
	Title       string               `json:"title" validate:"required,max=255"`
	Description string               `json:"description" validate:"max=1000"`
	Config      *domain.ReportConfig `json:"config"`
	Content     json.RawMessage      `json:"content"`
	IsPublic    bool                 `json:"isPublic"`
	Metadata    map[string]any       `json:"metadata"`
}

type updateReportRequest struct {
	Title       *string              `json:"title" validate:"omitempty,max=255"`
	Description *string              `json:"description" validate:"omitempty,max=1000"`
	IsPublic    *bool                `json:"isPublic"`
	Config      *domain.ReportConfig `json:"config"`
	Content     json.RawMessage      `json:"content"`
	Metadata    map[string]any       `json:"metadata"`
}

func (api *API) CreateReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var request createReportRequest
	if !api.decode(w, r, &request) {
		return
	}

	report, err := api.reports.Create(r.Context(), service.CreateReportInput{
		Title:          request.Title,
		Description:    request.Description,
		Config:         request.Config,
		Content:        request.Content,
		IsPublic:       request.IsPublic,
		CreatedBy:      actor.UserID,
		OrganizationID: actor.OrganizationID,
		Metadata:       request.Metadata,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/reports/"+report.ID().String())
	writeJSON(w, http.StatusCreated, newReportResponse(report))
}

func (api *API) ListReports(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r, parseStatusWith(domain.ParseReportStatus))
	if err != nil {
		writeFilterError(w, r, err)
		return
	}
	reports, total, err := api.reports.List(r.Context(), filter)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload[reportResponse]{
		Items:    mapSlice(reports, newReportResponse),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

func (api *API) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "reportID")
	if !ok {
		return
	}
	report, err := api.reports.Get(r.Context(), id)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(report))
}

func (api *API) UpdateReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "reportID")
	if !ok {
		return
	}
	var request updateReportRequest
	if !api.decode(w, r, &request) {
		return
	}
	report, err := api.reports.Update(r.Context(), id, service.UpdateReportInput{
		Title:       request.Title,
		Description: request.Description,
		IsPublic:    request.IsPublic,
		Config:      request.Config,
		Content:     request.Content,
		Metadata:    request.Metadata,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(report))
}

func (api *API) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "reportID")
	if !ok {
		return
	}
	if err := api.reports.Delete(r.Context(), id); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) PublishReport(w http.ResponseWriter, r *http.Request) {
	api.reportTransition(w, r, api.reports.Publish)
}

func (api *API) ArchiveReport(w http.ResponseWriter, r *http.Request) {
	api.reportTransition(w, r, api.reports.Archive)
}

func (api *API) RestoreReport(w http.ResponseWriter, r *http.Request) {
	api.reportTransition(w, r, api.reports.Restore)
}

func (api *API) reportTransition(w http.ResponseWriter, r *http.Request, apply func(context.Context, domain.ID) (*domain.Report, error)) {
	id, ok := pathID(w, r, "reportID")
	if !ok {
		return
	}
	report, err := apply(r.Context(), id)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(report))
}
