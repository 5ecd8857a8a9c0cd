package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"rosterd/internal/docstore"
	"rosterd/internal/docstore/live"
	"rosterd/internal/participant"
	"rosterd/pkg/errcode"
	"rosterd/pkg/platform/httputil"
)

// sseEvent is one server-sent event frame.
type sseEvent struct {
	name string
	data any
}

type listEventResponse struct {
	Kind     string              `json:"kind"`
	OldIndex int                 `json:"oldIndex"`
	NewIndex int                 `json:"newIndex"`
	Doc      participantResponse `json:"doc"`
}

type watchErrorResponse struct {
	Error string `json:"error"`
}

// overflowError is the terminal frame payload when a stream's buffer fills.
// The client's replayed window is unrecoverable past a lost frame, so the
// stream ends instead of dropping silently; reconnecting resyncs from a
// fresh initial snapshot.
const overflowError = "overflow"

// frameBuffer decouples subscription callbacks from the client connection.
// Callbacks only enqueue and never block, so a stalled client cannot back
// up into the engine's delivery goroutine. When the buffer fills, the
// stream is marked overflowed and torn down rather than losing frames.
type frameBuffer struct {
	frames   chan sseEvent
	overflow chan struct{}
	once     sync.Once
}

func newFrameBuffer(size int) *frameBuffer {
	return &frameBuffer{
		frames:   make(chan sseEvent, size),
		overflow: make(chan struct{}),
	}
}

func (b *frameBuffer) send(name string, data any) {
	select {
	case b.frames <- sseEvent{name: name, data: data}:
	default:
		b.once.Do(func() { close(b.overflow) })
	}
}

// handleWatchStatistics streams the statistics singleton over SSE: the
// current value first, then one frame per committed change.
func (h *Handler) handleWatchStatistics(w http.ResponseWriter, r *http.Request) {
	buf := newFrameBuffer(64)
	cancel := h.manager.WatchStatistics(func(stats participant.Statistics) {
		buf.send("statistics", statisticsResponse{NumOfNew: stats.NumOfNew})
	}, func(err error) {
		buf.send("error", watchErrorResponse{Error: string(errcode.CodeOf(err))})
	})
	defer cancel()

	h.stream(w, r, buf)
}

// handleWatchDoc streams one record. A missing record produces a single
// error frame and ends the stream.
func (h *Handler) handleWatchDoc(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if collection != participant.CollectionNew && collection != participant.CollectionPermanent {
		httputil.WriteError(w, errcode.Newf(errcode.CodeInvalidArgument, "unknown collection %q", collection))
		return
	}

	buf := newFrameBuffer(64)
	doc := live.NewDoc(h.store, collection, chi.URLParam(r, "id"), func(snap docstore.Snapshot) {
		buf.send("participant", renderParticipant(participant.FromSnapshot(snap)))
	}, func(err error) {
		buf.send("error", watchErrorResponse{Error: string(errcode.CodeOf(err))})
	})
	defer doc.Stop()

	h.stream(w, r, buf)
}

// handleWatchList streams a filtered, sorted window over a collection. The
// initial result set arrives as added frames with indices 0..N-1; later
// frames carry incremental diffs whose in-order replay reconstructs the
// window.
func (h *Handler) handleWatchList(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if collection != participant.CollectionNew && collection != participant.CollectionPermanent {
		httputil.WriteError(w, errcode.Newf(errcode.CodeInvalidArgument, "unknown collection %q", collection))
		return
	}

	opts := live.ListOptions{
		Collection: collection,
		Orders:     []docstore.Order{{Field: participant.FieldCreatedAt}},
		PageSize:   h.pageSize,
	}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Filters = append(opts.Filters, docstore.Filter{
			Field: participant.FieldStatus, Op: docstore.OpEqual, Value: status,
		})
	}
	if orderBy := r.URL.Query().Get("orderBy"); orderBy != "" {
		desc := r.URL.Query().Get("desc") == "true"
		opts.Orders = []docstore.Order{{Field: orderBy, Desc: desc}}
	}
	if raw := r.URL.Query().Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, errcode.New(errcode.CodeInvalidArgument, "pageSize must be a non-negative integer"))
			return
		}
		opts.PageSize = n
	}

	buf := newFrameBuffer(256)
	list := live.NewList(h.store, opts, func(ev live.Event) {
		buf.send("change", listEventResponse{
			Kind:     ev.Kind.String(),
			OldIndex: ev.OldIndex,
			NewIndex: ev.NewIndex,
			Doc:      renderParticipant(participant.FromSnapshot(ev.Doc)),
		})
	}, func(err error) {
		buf.send("error", watchErrorResponse{Error: string(errcode.CodeOf(err))})
	})
	defer list.Stop()

	h.stream(w, r, buf)
}

// stream pumps frames until the client disconnects or the buffer overflows.
// Subscription callbacks only enqueue, so teardown never runs from inside a
// callback. On overflow a terminal error frame is written and the stream
// ends; still-queued frames may be skipped, the client resyncs on reconnect.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, buf *frameBuffer) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, errcode.New(errcode.CodeInternal, "streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-buf.overflow:
			h.log.Warn().Str("path", r.URL.Path).Msg("watch stream overflowed, terminating")
			h.writeFrame(w, flusher, sseEvent{name: "error", data: watchErrorResponse{Error: overflowError}})
			return
		case ev := <-buf.frames:
			if !h.writeFrame(w, flusher, ev) {
				return
			}
		}
	}
}

func (h *Handler) writeFrame(w http.ResponseWriter, flusher http.Flusher, ev sseEvent) bool {
	payload, err := json.Marshal(ev.data)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal watch frame")
		return true
	}
	if _, err := w.Write([]byte("event: " + ev.name + "\ndata: " + string(payload) + "\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
