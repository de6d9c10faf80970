package handlers

import (
	"context"
	"net/http"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/service"
)

type createScheduleRequest struct {
	Name           string                `json:"name" validate:"required,max=255"`
	Description    string                `json:"description" validate:"max=1000"`
	ReportID       string                `json:"reportId" validate:"required,entityid"`
	ScheduleConfig domain.ScheduleConfig `json:"scheduleConfig"`
	DeliveryConfig domain.DeliveryConfig `json:"deliveryConfig"`
	Status         string                `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE PAUSED"`
}

type updateScheduleRequest struct {
	Name           *string                `json:"name" validate:"omitempty,max=255"`
	Description    *string                `json:"description" validate:"omitempty,max=1000"`
	ScheduleConfig *domain.ScheduleConfig `json:"scheduleConfig"`
	DeliveryConfig *domain.DeliveryConfig `json:"deliveryConfig"`
}

func (api *API) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var request createScheduleRequest
	if !api.decode(w, r, &request) {
		return
	}
	reportID, err := domain.ParseID(request.ReportID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	schedule, err := api.schedules.Create(r.Context(), service.CreateScheduleInput{
		Name:           request.Name,
		Description:    request.Description,
		ReportID:       reportID,
		ScheduleConfig: request.ScheduleConfig,
		DeliveryConfig: request.DeliveryConfig,
		Status:         domain.ScheduledReportStatus(request.Status),
		CreatedBy:      actor.UserID,
		OrganizationID: actor.OrganizationID,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/schedules/"+schedule.ID().String())
	writeJSON(w, http.StatusCreated, newScheduleResponse(schedule))
}

func (api *API) ListSchedules(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r, parseStatusWith(domain.ParseScheduledReportStatus))
	if err != nil {
		writeFilterError(w, r, err)
		return
	}
	schedules, total, err := api.schedules.List(r.Context(), filter)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload[scheduleResponse]{
		Items:    mapSlice(schedules, newScheduleResponse),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

func (api *API) GetSchedule(w http.ResponseWriter, r *http.Request) {
	api.scheduleAction(w, r, api.schedules.Get)
}

func (api *API) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "scheduleID")
	if !ok {
		return
	}
	var request updateScheduleRequest
	if !api.decode(w, r, &request) {
		return
	}
	schedule, err := api.schedules.Update(r.Context(), id, service.UpdateScheduleInput{
		Name:           request.Name,
		Description:    request.Description,
		ScheduleConfig: request.ScheduleConfig,
		DeliveryConfig: request.DeliveryConfig,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newScheduleResponse(schedule))
}

func (api *API) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "scheduleID")
	if !ok {
		return
	}
	if err := api.schedules.Delete(r.Context(), id); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) ActivateSchedule(w http.ResponseWriter, r *http.Request) {
	api.scheduleAction(w, r, api.schedules.Activate)
}

func (api *API) DeactivateSchedule(w http.ResponseWriter, r *http.Request) {
	api.scheduleAction(w, r, api.schedules.Deactivate)
}

func (api *API) PauseSchedule(w http.ResponseWriter, r *http.Request) {
	api.scheduleAction(w, r, api.schedules.Pause)
}

func (api *API) ResumeSchedule(w http.ResponseWriter, r *http.Request) {
	api.scheduleAction(w, r, api.schedules.Resume)
}

func (api *API) scheduleAction(w http.ResponseWriter, r *http.Request, apply func(context.Context, domain.ID) (*domain.ScheduledReport, error)) {
	id, ok := pathID(w, r, "scheduleID")
	if !ok {
		return
	}
	schedule, err := apply(r.Context(), id)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newScheduleResponse(schedule))
}
