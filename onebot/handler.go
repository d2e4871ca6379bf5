package onebot

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/chiralgate/gate"
	"github.com/jmcleod/chiralgate/internal/dispatch"
	"github.com/jmcleod/chiralgate/internal/secret"
)

const maxEventBytes = 1 << 20

// Sink consumes gate events.
type Sink interface {
	HandleAdmission(ctx context.Context, ev gate.AdmissionEvent) error
	HandleMessage(ctx context.Context, ev gate.MessageEvent)
}

// Dispatcher runs jobs asynchronously, keyed by subject.
type Dispatcher interface {
	Submit(key int64, job dispatch.Job) bool
}

// HandlerOptions configures the event receiver.
type HandlerOptions struct {
	// Secret verifies the X-Signature header when non-empty.
	Secret *secret.Token
	// Groups restricts group events to these ids. Empty manages every group.
	Groups []int64
	Logger *slog.Logger
}

// Handler receives OneBot HTTP event reports.
type Handler struct {
	sink     Sink
	dispatch Dispatcher
	secret   *secret.Token
	groups   map[int64]bool
	logger   *slog.Logger
}

// NewHandler builds a receiver that hands decoded events to sink through d.
func NewHandler(sink Sink, d Dispatcher, opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{
		sink:     sink,
		dispatch: d,
		secret:   opts.Secret,
		logger:   opts.Logger.With("component", "onebot"),
	}
	if len(opts.Groups) > 0 {
		h.groups = make(map[int64]bool, len(opts.Groups))
		for _, g := range opts.Groups {
			h.groups[g] = true
		}
	}
	return h
}

// Router returns a chi.Router accepting reports on POST /.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Receive)
	return r
}

// Receive decodes one report, queues it and answers 204 without waiting
// for it to be processed.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if !h.verify(r.Header.Get("X-Signature"), body) {
		h.logger.Warn("rejected event with bad signature", "remote_addr", r.RemoteAddr)
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	}

	ev, err := DecodeEvent(body)
	if err != nil {
		http.Error(w, "bad event", http.StatusBadRequest)
		return
	}
	if h.accept(ev) {
		h.submit(ev)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) verify(header string, body []byte) bool {
	if h.secret.Empty() {
		return true
	}
	sig, ok := strings.CutPrefix(header, "sha1=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	var valid bool
	h.secret.Use(func(key []byte) error {
		mac := hmac.New(sha1.New, key)
		mac.Write(body)
		valid = hmac.Equal(mac.Sum(nil), want)
		return nil
	})
	return valid
}

func (h *Handler) accept(ev Event) bool {
	if ev.Admission == nil && ev.Message == nil {
		return false
	}
	if ev.SelfID != 0 && ev.Subject() == ev.SelfID {
		return false
	}
	if g := ev.Group(); g != 0 && h.groups != nil && !h.groups[g] {
		return false
	}
	return true
}

func (h *Handler) submit(ev Event) {
	var job dispatch.Job
	switch {
	case ev.Admission != nil:
		adm := *ev.Admission
		job = func(ctx context.Context) {
			if err := h.sink.HandleAdmission(ctx, adm); err != nil {
				h.logger.Warn("admission not challenged", "subject_id", adm.SubjectID, "group_id", adm.GroupID, "error", err)
			}
		}
	case ev.Message != nil:
		msg := *ev.Message
		job = func(ctx context.Context) { h.sink.HandleMessage(ctx, msg) }
	}
	if !h.dispatch.Submit(ev.Subject(), job) {
		h.logger.Warn("event dropped", "subject_id", ev.Subject(), "group_id", ev.Group())
	}
}
