package webui

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mzyy94/airlabel/internal/discovery"
	"github.com/mzyy94/airlabel/internal/dymo"
	"github.com/mzyy94/airlabel/internal/printer"
	"github.com/mzyy94/airlabel/internal/printjob"
	"github.com/mzyy94/airlabel/internal/service"
)

const maxUpload = 32 << 20

type handler struct {
	svc *service.Service
}

// NewHandler creates the HTTP JSON API.
func NewHandler(svc *service.Service) http.Handler {
	h := &handler{svc: svc}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("GET /api/printers", h.handleListPrinters)
	mux.HandleFunc("POST /api/printers/discover", h.handleDiscover)
	mux.HandleFunc("POST /api/printers/validate", h.handleValidate)
	mux.HandleFunc("POST /api/printers/{id}/select", h.handleSelect)
	mux.HandleFunc("POST /api/printers/{id}/track", h.handleTrack)
	mux.HandleFunc("DELETE /api/printers/{id}/track", h.handleStopTracking)
	mux.HandleFunc("GET /api/printers/{id}/status", h.handlePrinterStatus)
	mux.HandleFunc("GET /api/media", h.handleMedia)
	mux.HandleFunc("PUT /api/media", h.handlePutMedia)
	mux.HandleFunc("GET /api/jobs", h.handleListJobs)
	mux.HandleFunc("POST /api/jobs", h.handleSubmitJob)
	mux.HandleFunc("GET /api/jobs/{id}", h.handleGetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.handleCancelJob)
	return mux
}

type statusResponse struct {
	Printers       int    `json:"printers"`
	Selected       string `json:"selected,omitempty"`
	DiscoveryError string `json:"discoveryError,omitempty"`
	UpdatedAt      string `json:"updatedAt"`
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	printers := h.svc.ListPrinters()
	resp := statusResponse{
		Printers:  len(printers),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, p := range printers {
		if p.Selected {
			resp.Selected = string(p.ID)
		}
	}
	if err := h.svc.LastDiscoveryError(); err != nil {
		resp.DiscoveryError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleListPrinters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListPrinters())
}

type discoverResponse struct {
	Found    []printer.Endpoint    `json:"found"`
	Printers []service.PrinterInfo `json:"printers"`
	Error    string                `json:"error,omitempty"`
	Code     *int                  `json:"code,omitempty"`
}

func (h *handler) handleDiscover(w http.ResponseWriter, r *http.Request) {
	found, err := h.svc.Discover(r.Context())
	resp := discoverResponse{Found: found, Printers: h.svc.ListPrinters()}
	if resp.Found == nil {
		resp.Found = []printer.Endpoint{}
	}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		var dfe *discovery.DiscoveryFailedError
		if errors.As(err, &dfe) {
			resp.Code = &dfe.Code
		}
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	removed := h.svc.Validate(r.Context())
	if removed == nil {
		removed = []printer.Identity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (h *handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := printer.Identity(r.PathValue("id"))
	if err := h.svc.SelectPrinter(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleTrack(w http.ResponseWriter, r *http.Request) {
	id := printer.Identity(r.PathValue("id"))
	if err := h.svc.TrackPrinter(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleStopTracking(w http.ResponseWriter, r *http.Request) {
	h.svc.StopTracking(printer.Identity(r.PathValue("id")))
	w.WriteHeader(http.StatusNoContent)
}

type printerStatusResponse struct {
	ID        printer.Identity `json:"id"`
	Status    dymo.Status      `json:"status"`
	HostState string           `json:"hostState"`
}

func (h *handler) handlePrinterStatus(w http.ResponseWriter, r *http.Request) {
	id := printer.Identity(r.PathValue("id"))
	if _, ok := h.svc.Printer(id); !ok {
		writeError(w, printer.ErrPrinterNotFound)
		return
	}
	st := h.svc.PrinterStatus(id)
	writeJSON(w, http.StatusOK, printerStatusResponse{ID: id, Status: st, HostState: st.HostState()})
}

func (h *handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Capabilities())
}

func (h *handler) handlePutMedia(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Default string `json:"default"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.svc.SetDefaultMedia(req.Default); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Capabilities())
}

func (h *handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Jobs())
}

// handleSubmitJob accepts a multipart form with one "page" file per page and
// optional "printer", "media" and "fit" fields.
func (h *handler) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	files := r.MultipartForm.File["page"]
	if len(files) == 0 {
		http.Error(w, "no pages", http.StatusBadRequest)
		return
	}
	pages := make([][]byte, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "unreadable page", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			http.Error(w, "unreadable page", http.StatusBadRequest)
			return
		}
		pages = append(pages, data)
	}
	doc, err := printjob.DecodeImageDocument(pages)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	media := r.FormValue("media")
	if fit, _ := strconv.ParseBool(r.FormValue("fit")); fit {
		name := media
		if name == "" {
			name = h.svc.Capabilities().DefaultMedia
		}
		l, ok := dymo.LookupLabel(name)
		if !ok {
			http.Error(w, "unknown media", http.StatusBadRequest)
			return
		}
		doc.FitTo(l)
	}

	id, err := h.svc.SubmitJob(r.Context(), doc, printer.Identity(r.FormValue("printer")), media)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, _ := h.svc.Job(id)
	writeJSON(w, http.StatusAccepted, snap)
}

func (h *handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.svc.Job(r.PathValue("id"))
	if !ok {
		writeError(w, printjob.ErrJobNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelJob(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps service errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var te *printer.TransportError
	switch {
	case errors.Is(err, printer.ErrPrinterNotFound), errors.Is(err, printjob.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, printer.ErrNoRoute):
		status = http.StatusConflict
	case errors.Is(err, service.ErrUnsupportedPrinter):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &te):
		status = http.StatusBadGateway
	default:
		slog.Warn("request failed", "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
