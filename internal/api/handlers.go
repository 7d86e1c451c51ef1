package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/calibration"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/display"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/goal"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// Backend é o que a API precisa do restante do servidor
type Backend interface {
	Status() models.TrackerStatus
	LastReport() (models.TrackingReport, bool)
	GoalInfo() models.GoalInfo
	Cameras() (ids []int, current int)
	DisplayFrame() (display.Frame, bool)
	SelectCamera(id int) error
	StepCamera(delta int) int
	PendingPick() (models.PendingPick, []byte, bool)
	GoalClick(camera int, x, y float64) error
	GoalSkip(camera int) error
	ReloadCalibration(camera int) error
}

// Handler contém os handlers HTTP para a API
type Handler struct {
	backend Backend
}

// NewHandler cria um novo handler de API
func NewHandler(backend Backend) *Handler {
	return &Handler{backend: backend}
}

// cameraRequest corpo de POST /display/camera, /goal/skip e /calibration/reload
type cameraRequest struct {
	Camera    *int   `json:"camera,omitempty"`
	Direction string `json:"direction,omitempty"` // "next" ou "prev"
}

// GetStatus retorna o status atual do rastreamento
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}
	h.respondWithJSON(w, http.StatusOK, h.backend.Status())
}

// GetReport retorna o último relatório calculado
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}

	report, ok := h.backend.LastReport()
	if !ok {
		h.respondWithError(w, http.StatusNotFound, "Nenhum relatório disponível")
		return
	}
	h.respondWithJSON(w, http.StatusOK, report)
}

// GetGoal retorna o goal e o estado da aquisição por câmera
func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}
	h.respondWithJSON(w, http.StatusOK, h.backend.GoalInfo())
}

// GetCameras lista as câmeras e a câmera exibida
func (h *Handler) GetCameras(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}
	ids, current := h.backend.Cameras()
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"cameras":       ids,
		"displayCamera": current,
	})
}

// GetDisplayFrame retorna o último frame anotado da câmera exibida
func (h *Handler) GetDisplayFrame(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}

	frame, ok := h.backend.DisplayFrame()
	if !ok {
		h.respondWithError(w, http.StatusNotFound, "Nenhum frame disponível")
		return
	}
	w.Header().Set("X-Camera-ID", strconv.Itoa(frame.Camera))
	w.Header().Set("X-Frame-Timestamp", frame.Timestamp.Format(time.RFC3339Nano))
	h.respondWithJPEG(w, frame.JPEG)
}

// SetDisplayCamera troca a câmera exibida (por id ou next/prev)
func (h *Handler) SetDisplayCamera(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodPost) {
		return
	}

	var req cameraRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch {
	case req.Camera != nil:
		if err := h.backend.SelectCamera(*req.Camera); err != nil {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	case req.Direction == "next":
		h.backend.StepCamera(1)
	case req.Direction == "prev":
		h.backend.StepCamera(-1)
	default:
		h.respondWithError(w, http.StatusBadRequest, "Informe camera ou direction (next/prev)")
		return
	}

	_, current := h.backend.Cameras()
	h.respondWithJSON(w, http.StatusOK, map[string]int{"displayCamera": current})
}

// GetPendingPick informa a câmera aguardando clique (204 se nenhuma)
func (h *Handler) GetPendingPick(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}

	pending, _, ok := h.backend.PendingPick()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.respondWithJSON(w, http.StatusOK, pending)
}

// GetGoalFrame retorna o frame retificado da câmera pendente
func (h *Handler) GetGoalFrame(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}

	pending, jpeg, ok := h.backend.PendingPick()
	if !ok || len(jpeg) == 0 {
		h.respondWithError(w, http.StatusNotFound, "Nenhuma câmera aguardando seleção")
		return
	}
	w.Header().Set("X-Camera-ID", strconv.Itoa(pending.Camera))
	w.Header().Set("X-Request-ID", pending.RequestID)
	h.respondWithJPEG(w, jpeg)
}

// PostGoalClick registra o clique do operador no frame pendente
func (h *Handler) PostGoalClick(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodPost) {
		return
	}

	var req models.ClickParams
	if err := decodeBody(r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.backend.GoalClick(req.Camera, req.X, req.Y); err != nil {
		h.respondWithError(w, pickStatus(err), err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusAccepted, map[string]interface{}{"camera": req.Camera, "accepted": true})
}

// PostGoalSkip pula a câmera pendente
func (h *Handler) PostGoalSkip(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodPost) {
		return
	}

	var req cameraRequest
	if err := decodeBody(r, &req); err != nil || req.Camera == nil {
		h.respondWithError(w, http.StatusBadRequest, "Informe camera")
		return
	}
	if err := h.backend.GoalSkip(*req.Camera); err != nil {
		h.respondWithError(w, pickStatus(err), err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusAccepted, map[string]interface{}{"camera": *req.Camera, "skipped": true})
}

// PostCalibrationReload relê o arquivo de calibração de uma câmera
func (h *Handler) PostCalibrationReload(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodPost) {
		return
	}

	var req cameraRequest
	if err := decodeBody(r, &req); err != nil || req.Camera == nil {
		h.respondWithError(w, http.StatusBadRequest, "Informe camera")
		return
	}
	if err := h.backend.ReloadCalibration(*req.Camera); err != nil {
		h.respondWithError(w, reloadStatus(err), err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"camera": *req.Camera, "reloaded": true})
}

// reloadStatus mapeia erros da recarga de calibração para códigos HTTP
func reloadStatus(err error) int {
	var loadErr *calibration.CalibrationLoadError
	switch {
	case errors.Is(err, calibration.ErrUnknownCamera):
		return http.StatusNotFound
	case errors.As(err, &loadErr):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// pickStatus mapeia erros do picker para códigos HTTP
func pickStatus(err error) int {
	switch {
	case errors.Is(err, goal.ErrNoPendingPick), errors.Is(err, goal.ErrWrongCamera):
		return http.StatusConflict
	case errors.Is(err, goal.ErrOutOfFrame):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decodeBody decodifica o corpo JSON rejeitando campos desconhecidos
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64*1024))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("corpo inválido: %w", err)
	}
	return nil
}

// allow verifica o método HTTP
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return false
	}
	return true
}

// respondWithError responde com erro em formato JSON
func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON responde com JSON
func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Errorf("Erro ao codificar resposta JSON: %v", err)
		// Se falhar ao codificar JSON, tentar responder com erro simples
		fmt.Fprintf(w, `{"error":"Erro interno ao processar resposta"}`)
	}
}

// respondWithJPEG responde com a imagem sem cache
func (h *Handler) respondWithJPEG(w http.ResponseWriter, jpeg []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(jpeg)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(jpeg); err != nil {
		logger.Debugf("Erro ao enviar frame: %v", err)
	}
}
