package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/farmledger/export-api/internal/report"
)

type handler struct {
	svc *report.Service
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listTemplates(w http.ResponseWriter, _ *http.Request) {
	templates := []map[string]string{
		{"id": string(report.TemplateFinancial), "label": report.TemplateFinancial.Label()},
		{"id": string(report.TemplateInventory), "label": report.TemplateInventory.Label()},
		{"id": string(report.TemplateReproductive), "label": report.TemplateReproductive.Label()},
		{"id": string(report.TemplateHealth), "label": report.TemplateHealth.Label()},
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *handler) createReport(w http.ResponseWriter, r *http.Request) {
	var req report.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	j, err := h.svc.Enqueue(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, j)
}

func (h *handler) getReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid report id")
		return
	}

	req := report.GetReportRequest{ID: id}
	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	resp, err := h.svc.Get(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listReports(w http.ResponseWriter, r *http.Request) {
	req := report.ListReportsRequest{
		Status:   r.URL.Query().Get("status"),
		Format:   r.URL.Query().Get("format"),
		Template: r.URL.Query().Get("templateId"),
		Owner:    r.URL.Query().Get("owner"),
	}
	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	jobs, err := h.svc.List(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) downloadFile(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid report id")
		return
	}
	fileID, err := strconv.ParseInt(r.PathValue("fileID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	req := report.DownloadRequest{JobID: jobID, FileID: fileID}
	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	f, err := h.svc.Download(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	file, err := os.Open(f.Path)
	if err != nil {
		// Row outlived the artifact (reaped or lost); the metadata is
		// still there but the download is gone for good.
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusGone, "report file is no longer available")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer func() { _ = file.Close() }()

	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.FileName))
	http.ServeContent(w, r, f.FileName, f.CreatedAt, file)
}
