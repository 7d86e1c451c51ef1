package api

import (
	"net/http"
	"strings"

	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// Router gerencia as rotas da API
type Router struct {
	handler     *Handler
	mux         *http.ServeMux
	basePath    string
	middlewares []Middleware
}

// NewRouter cria um novo router para a API
func NewRouter(backend Backend, basePath string) *Router {
	// Normalizar base path
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")

	return &Router{
		handler:     NewHandler(backend),
		mux:         http.NewServeMux(),
		basePath:    basePath,
		middlewares: []Middleware{LoggingMiddleware},
	}
}

// Setup configura todas as rotas
func (r *Router) Setup() {
	routes := map[string]http.HandlerFunc{
		"/status":         r.handler.GetStatus,
		"/report":         r.handler.GetReport,
		"/goal":           r.handler.GetGoal,
		"/goal/pending":   r.handler.GetPendingPick,
		"/goal/frame":     r.handler.GetGoalFrame,
		"/goal/click":     r.handler.PostGoalClick,
		"/goal/skip":      r.handler.PostGoalSkip,
		"/cameras":        r.handler.GetCameras,
		"/display/frame":  r.handler.GetDisplayFrame,
		"/display/camera": r.handler.SetDisplayCamera,

		"/calibration/reload": r.handler.PostCalibrationReload,
	}
	for route, h := range routes {
		r.mux.Handle(r.path(route), h)
	}

	logger.Infof("API configurada com base path: %s (%d rotas)", r.basePath, len(routes))
}

// Handler retorna o handler HTTP final com todos os middlewares aplicados
func (r *Router) Handler() http.Handler {
	return r.applyMiddleware(r.mux)
}

// AddMiddleware adiciona um novo middleware
func (r *Router) AddMiddleware(middleware Middleware) {
	r.middlewares = append(r.middlewares, middleware)
}

// path retorna o caminho completo para uma rota
func (r *Router) path(route string) string {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return r.basePath + route
}

// applyMiddleware aplica todos os middlewares ao handler
func (r *Router) applyMiddleware(handler http.Handler) http.Handler {
	if len(r.middlewares) == 0 {
		return handler
	}

	return Chain(r.middlewares...)(handler)
}

// ServeHTTP implementa a interface http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Handler().ServeHTTP(w, req)
}
