package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/3leaps/lakemap/internal/errors"
	"github.com/3leaps/lakemap/pkg/backend"
	"github.com/3leaps/lakemap/pkg/session"
	"github.com/3leaps/lakemap/pkg/summary"
	"github.com/3leaps/lakemap/pkg/tree"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Opener opens a backend for a connection request.
type Opener func(ctx context.Context, t backend.Target) (backend.StorageBackend, error)

// APIConfig configures the data API.
type APIConfig struct {
	// Tree is the base builder configuration. Requests may lower Depth.
	Tree tree.Config

	// Timeout bounds tree builds. Zero means no limit beyond the request.
	Timeout time.Duration

	// Open creates backends for new connections.
	Open Opener

	Logger *zap.Logger
}

// API serves connection and browsing endpoints over a session store.
type API struct {
	store   session.Store
	config  APIConfig
	logger  *zap.Logger
	summary summary.Config
}

// NewAPI creates the data API. Open must be set.
func NewAPI(store session.Store, cfg APIConfig) *API {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		store:   store,
		config:  cfg,
		logger:  logger,
		summary: summary.Config{IDs: cfg.Tree.IDs, Logger: logger},
	}
}

// Routes mounts the API under r.
func (a *API) Routes(r chi.Router) {
	r.Route("/connections", func(r chi.Router) {
		r.Post("/", a.Connect)
		r.Get("/", a.ListConnections)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", a.Disconnect)
			r.Get("/tree", a.withSession(a.Tree))
			r.Get("/containers", a.withSession(a.Containers))
			r.Get("/containers/{container}/folders", a.withSession(a.Folders))
			r.Get("/containers/{container}/folder", a.withSession(a.Folder))
			r.Get("/datasets", a.withSession(a.Datasets))
		})
	})
}

// ConnectRequest is the body of POST /connections.
type ConnectRequest struct {
	Name            string   `json:"name"`
	Provider        string   `json:"provider"`
	Region          string   `json:"region,omitempty"`
	Endpoint        string   `json:"endpoint,omitempty"`
	Profile         string   `json:"profile,omitempty"`
	ForcePathStyle  bool     `json:"forcePathStyle,omitempty"`
	BaseDir         string   `json:"baseDir,omitempty"`
	ContainerFilter []string `json:"containerFilter,omitempty"`
}

// ConnectionResponse describes one open connection.
type ConnectionResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Provider        string    `json:"provider"`
	IsConnected     bool      `json:"isConnected"`
	LastConnected   time.Time `json:"lastConnected"`
	ExpiresAt       time.Time `json:"expiresAt"`
	ContainerFilter []string  `json:"containerFilter,omitempty"`
}

func connectionResponse(s *session.Session) ConnectionResponse {
	return ConnectionResponse{
		ID:              s.ID,
		Name:            s.Name,
		Provider:        string(s.Target.Provider),
		IsConnected:     true,
		LastConnected:   s.CreatedAt,
		ExpiresAt:       s.ExpiresAt,
		ContainerFilter: s.ContainerFilter,
	}
}

// Connect opens a backend, proves it can enumerate containers, and stores
// it as a new session.
func (a *API) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondWithError(w, r, apperrors.NewBadRequest("invalid request body: "+err.Error()))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondWithError(w, r, apperrors.NewBadRequest("name is required"))
		return
	}

	providerType, err := backend.ParseProviderType(req.Provider)
	if err != nil {
		respondWithError(w, r, apperrors.NewBadRequest(err.Error()))
		return
	}
	target := backend.Target{
		Provider:       providerType,
		Region:         req.Region,
		Endpoint:       req.Endpoint,
		Profile:        req.Profile,
		ForcePathStyle: req.ForcePathStyle,
		BaseDir:        req.BaseDir,
	}

	be, err := a.config.Open(r.Context(), target)
	if err != nil {
		respondWithError(w, r, apperrors.FromBackend("open connection", err))
		return
	}
	if _, err := be.ListContainers(r.Context()); err != nil {
		closeIfCloser(be)
		respondWithError(w, r, apperrors.FromBackend("connect", err))
		return
	}

	sess := &session.Session{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Target:          target,
		ContainerFilter: cleanFilter(req.ContainerFilter),
		Backend:         be,
	}
	if err := a.store.Create(r.Context(), sess); err != nil {
		closeIfCloser(be)
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "store connection"))
		return
	}

	a.logger.Info("Connection opened",
		zap.String("session_id", sess.ID),
		zap.String("name", sess.Name),
		zap.String("provider", string(target.Provider)))
	apperrors.WriteJSON(w, http.StatusCreated, connectionResponse(sess))
}

// ListConnections lists live connections, oldest first.
func (a *API) ListConnections(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.store.List(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "list connections"))
		return
	}
	out := make([]ConnectionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, connectionResponse(s))
	}
	apperrors.WriteJSON(w, http.StatusOK, out)
}

// Disconnect closes and forgets a connection.
func (a *API) Disconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := a.store.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "load connection"))
		return
	}
	if sess == nil {
		respondWithError(w, r, apperrors.NewNotFound("connection not found: "+id))
		return
	}
	if err := a.store.Delete(r.Context(), id); err != nil {
		a.logger.Warn("Failed to close connection backend", zap.String("session_id", id), zap.Error(err))
	}
	a.logger.Info("Connection closed", zap.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session.Session)

// withSession resolves {id}, extends the session, and hands it to next.
func (a *API) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, err := a.store.Get(r.Context(), id)
		if err != nil {
			respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "load connection"))
			return
		}
		if sess == nil {
			respondWithError(w, r, apperrors.NewNotFound("connection not found: "+id))
			return
		}
		_ = a.store.Touch(r.Context(), id)
		next(w, r, sess)
	}
}

// Tree builds the full tree for a connection. Query parameters: depth
// (positive integer, at most the server default) and containers (comma
// separated; narrows the connection's filter).
func (a *API) Tree(w http.ResponseWriter, r *http.Request, s *session.Session) {
	cfg := a.config.Tree
	cfg.Logger = a.logger
	if raw := r.URL.Query().Get("depth"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil || depth <= 0 {
			respondWithError(w, r, apperrors.NewBadRequest("depth must be a positive integer"))
			return
		}
		if cfg.Depth <= 0 || depth < cfg.Depth {
			cfg.Depth = depth
		}
	}

	filter := s.ContainerFilter
	if requested := cleanFilter(strings.Split(r.URL.Query().Get("containers"), ",")); len(requested) > 0 {
		filter = narrowFilter(s.ContainerFilter, requested)
		if len(filter) == 0 {
			apperrors.WriteJSON(w, http.StatusOK, tree.NewRoot())
			return
		}
	}

	ctx := r.Context()
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	root, err := tree.New(s.Backend, cfg).BuildFullTree(ctx, filter)
	switch {
	case err == nil:
	case root != nil && errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil:
		a.logger.Warn("Tree build hit its time limit; returning partial tree",
			zap.String("session_id", s.ID), zap.Duration("timeout", a.config.Timeout))
	default:
		respondWithError(w, r, apperrors.FromBackend("build tree", err))
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, root)
}

// Containers summarizes every visible container.
func (a *API) Containers(w http.ResponseWriter, r *http.Request, s *session.Session) {
	out, err := summary.New(s.Backend, a.summary).ListContainers(r.Context(), s.ContainerFilter)
	if err != nil {
		respondWithError(w, r, apperrors.FromBackend("list containers", err))
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, out)
}

// Folders summarizes the top-level folders of one container.
func (a *API) Folders(w http.ResponseWriter, r *http.Request, s *session.Session) {
	container, ok := a.visibleContainer(w, r, s)
	if !ok {
		return
	}
	out, err := summary.New(s.Backend, a.summary).ListFolders(r.Context(), container)
	if err != nil {
		respondWithError(w, r, apperrors.FromBackend("list folders", err))
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, out)
}

// Folder summarizes one folder; the path query parameter is required.
func (a *API) Folder(w http.ResponseWriter, r *http.Request, s *session.Session) {
	container, ok := a.visibleContainer(w, r, s)
	if !ok {
		return
	}
	path := strings.Trim(r.URL.Query().Get("path"), "/")
	if path == "" {
		respondWithError(w, r, apperrors.NewBadRequest("path is required"))
		return
	}
	out, err := summary.New(s.Backend, a.summary).SummarizeFolder(r.Context(), container, path)
	if err != nil {
		respondWithError(w, r, apperrors.FromBackend("summarize folder", err))
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, out)
}

// Datasets lists dataset files for the whole connection, one container, or
// one folder inside a container.
func (a *API) Datasets(w http.ResponseWriter, r *http.Request, s *session.Session) {
	q := r.URL.Query()
	scope := summary.Scope{
		Container: strings.TrimSpace(q.Get("container")),
		Folder:    strings.Trim(q.Get("folder"), "/"),
		Filter:    s.ContainerFilter,
	}
	if scope.Folder != "" && scope.Container == "" {
		respondWithError(w, r, apperrors.NewBadRequest("folder requires container"))
		return
	}
	if scope.Container != "" && !allowed(s.ContainerFilter, scope.Container) {
		respondWithError(w, r, apperrors.NewNotFound("container not found: "+scope.Container))
		return
	}

	out, err := summary.New(s.Backend, a.summary).ListDatasets(r.Context(), scope)
	if err != nil {
		respondWithError(w, r, apperrors.FromBackend("list datasets", err))
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, out)
}

func (a *API) visibleContainer(w http.ResponseWriter, r *http.Request, s *session.Session) (string, bool) {
	container := chi.URLParam(r, "container")
	if !allowed(s.ContainerFilter, container) {
		respondWithError(w, r, apperrors.NewNotFound("container not found: "+container))
		return "", false
	}
	return container, true
}

func allowed(filter []string, container string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.EqualFold(f, container) {
			return true
		}
	}
	return false
}

// narrowFilter intersects requested with base. An empty base allows all.
func narrowFilter(base, requested []string) []string {
	out := make([]string, 0, len(requested))
	for _, c := range requested {
		if allowed(base, c) {
			out = append(out, c)
		}
	}
	return out
}

func cleanFilter(in []string) []string {
	var out []string
	for _, f := range in {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func closeIfCloser(b backend.StorageBackend) {
	if c, ok := b.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
