// Package httptransport is the thin HTTP layer over the lifecycle manager.
// Handlers translate between the JSON surface and manager calls without
// embedding business logic.
package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"rosterd/internal/docstore"
	"rosterd/internal/participant"
	"rosterd/pkg/errcode"
	"rosterd/pkg/platform/httputil"
)

// Handler wires participant endpoints to the lifecycle manager.
type Handler struct {
	manager  *participant.Manager
	store    docstore.Store
	log      zerolog.Logger
	pageSize int
}

// NewHandler constructs the participant handler. store backs the live watch
// endpoints; pageSize bounds their initial window.
func NewHandler(manager *participant.Manager, store docstore.Store, log zerolog.Logger, pageSize int) *Handler {
	if pageSize <= 0 {
		pageSize = 25
	}
	return &Handler{manager: manager, store: store, log: log, pageSize: pageSize}
}

// Register mounts all participant routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/participants", func(r chi.Router) {
		r.Post("/new", h.handleAddNew)
		r.Get("/new/{id}", h.handleGetNew)
		r.Patch("/new/{id}", h.handleUpdateNew)
		r.Delete("/new/{id}", h.handleDeleteNew)
		r.Post("/new/{id}/move", h.handleMove)

		r.Post("/permanent", h.handleAddPermanent)
		r.Get("/permanent/{id}", h.handleGetPermanent)
		r.Patch("/permanent/{id}", h.handleUpdatePermanent)
		r.Post("/permanent/{id}/approve", h.handleApprove)
		r.Post("/permanent/{id}/decline", h.handleDecline)
		r.Post("/permanent/{id}/delete", h.handleSoftDelete)
		r.Post("/permanent/{id}/undelete", h.handleUndelete)

		r.Get("/{collection}/{id}/audit", h.handleAudit)
	})
	r.Get("/statistics", h.handleStatistics)

	r.Get("/watch/statistics", h.handleWatchStatistics)
	r.Get("/watch/{collection}", h.handleWatchList)
	r.Get("/watch/{collection}/{id}", h.handleWatchDoc)
}

func (h *Handler) handleAddNew(w http.ResponseWriter, r *http.Request) {
	h.add(w, r, h.manager.AddNew)
}

func (h *Handler) handleAddPermanent(w http.ResponseWriter, r *http.Request) {
	h.add(w, r, h.manager.AddPermanent)
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request, op addFunc) {
	req, ok := httputil.Decode[createRequest](w, r)
	if !ok {
		return
	}
	id, err := op(r.Context(), req.Fields)
	if err != nil {
		h.fail(w, r, err, "add participant")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *Handler) handleGetNew(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, h.manager.GetNew)
}

func (h *Handler) handleGetPermanent(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, h.manager.GetPermanent)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, op getFunc) {
	p, err := op(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "get participant")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, renderParticipant(p))
}

func (h *Handler) handleUpdateNew(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, h.manager.UpdateNew)
}

func (h *Handler) handleUpdatePermanent(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, h.manager.UpdatePermanent)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, op updateFunc) {
	req, ok := httputil.Decode[updateRequest](w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), chi.URLParam(r, "id"), req.Fields); err != nil {
		h.fail(w, r, err, "update participant")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteNew(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.DeleteNew, "delete intake record")
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.ApprovePending, "approve participant")
}

func (h *Handler) handleDecline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.DeclinePending, "decline participant")
}

func (h *Handler) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.DeletePermanent, "soft-delete participant")
}

func (h *Handler) handleUndelete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.UndoDeletePermanent, "undelete participant")
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op transitionFunc, what string) {
	if err := op(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err, what)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request) {
	newID, err := h.manager.MoveToPermanent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "move participant")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, idResponse{ID: newID})
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Statistics(r.Context())
	if err != nil {
		h.fail(w, r, err, "read statistics")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statisticsResponse{NumOfNew: stats.NumOfNew})
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if collection != participant.CollectionNew && collection != participant.CollectionPermanent {
		httputil.WriteError(w, errcode.Newf(errcode.CodeInvalidArgument, "unknown collection %q", collection))
		return
	}
	events, err := h.manager.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "read audit trail")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, auditResponse{Events: events})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, what string) {
	code := errcode.CodeOf(err)
	evt := h.log.Warn()
	if code == errcode.CodeInternal || code == errcode.CodeUnavailable {
		evt = h.log.Error()
	}
	evt.Err(err).Str("path", r.URL.Path).Msg(what + " failed")
	httputil.WriteError(w, err)
}

type addFunc func(ctx context.Context, fields map[string]any) (string, error)

type getFunc func(ctx context.Context, id string) (participant.Participant, error)

type updateFunc func(ctx context.Context, id string, fields map[string]any) error

type transitionFunc func(ctx context.Context, id string) error
