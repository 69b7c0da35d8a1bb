package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/qaindex/internal/extract"
	"github.com/flemzord/qaindex/internal/qaindex"
)

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

// handleStats returns metadata and per-session counts.
func (g *Gateway) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := g.store.Stats(r.Context())
		respond(w, http.StatusOK, stats, err)
	}
}

// handleLatest returns the newest entries across sessions.
func (g *Gateway) handleLatest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := intQuery(r, "n", qaindex.DefaultWindow)
		if err != nil {
			writeError(w, err)
			return
		}
		recs, err := g.store.Latest(r.Context(), n)
		respond(w, http.StatusOK, recs, err)
	}
}

// handleQuery runs a token-overlap search.
func (g *Gateway) handleQuery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, err := intQuery(r, "limit", 10)
		if err != nil {
			writeError(w, err)
			return
		}
		minSig, err := floatQuery(r, "min_significance", 0)
		if err != nil {
			writeError(w, err)
			return
		}
		matches, err := g.store.ByTokenOverlap(r.Context(), qaindex.OverlapQuery{
			Text:            q.Get("q"),
			Limit:           limit,
			MinSignificance: minSig,
			RequireAnswer:   q.Get("answered") == "true",
			SessionID:       q.Get("session"),
		})
		respond(w, http.StatusOK, matches, err)
	}
}

// handleHash resolves a question hash.
func (g *Gateway) handleHash() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := g.store.ByHash(r.Context(), chi.URLParam(r, "hash"))
		respond(w, http.StatusOK, rec, err)
	}
}

// handleTopics lists topics by count.
func (g *Gateway) handleTopics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topics, err := g.store.Topics(r.Context())
		respond(w, http.StatusOK, topics, err)
	}
}

// handleTopic lists the entries of a topic, optionally within [since, until).
func (g *Gateway) handleTopic() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since, err := timeQuery(r, "since")
		if err != nil {
			writeError(w, err)
			return
		}
		until, err := timeQuery(r, "until")
		if err != nil {
			writeError(w, err)
			return
		}
		recs, err := g.store.ByTopicRange(r.Context(), chi.URLParam(r, "topic"), since, until)
		respond(w, http.StatusOK, recs, err)
	}
}

// handleSessions lists session summaries.
func (g *Gateway) handleSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := g.store.Sessions(r.Context())
		respond(w, http.StatusOK, sessions, err)
	}
}

// handleSession returns a full session.
func (g *Gateway) handleSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.store.Session(r.Context(), sessionParam(r))
		respond(w, http.StatusOK, sess, err)
	}
}

// handleArchive removes a session and returns it.
func (g *Gateway) handleArchive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.store.Archive(r.Context(), sessionParam(r))
		respond(w, http.StatusOK, sess, err)
	}
}

// handleRecent returns the last n entries of a session.
func (g *Gateway) handleRecent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := intQuery(r, "n", qaindex.DefaultWindow)
		if err != nil {
			writeError(w, err)
			return
		}
		recs, err := g.store.Recent(r.Context(), sessionParam(r), n)
		respond(w, http.StatusOK, recs, err)
	}
}

// handleContext returns the context window as JSON, or as markdown with
// ?format=markdown. The latest analysis report is appended when the
// scheduler module saved one and ?analysis=true.
func (g *Gateway) handleContext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window, err := intQuery(r, "window", qaindex.DefaultWindow)
		if err != nil {
			writeError(w, err)
			return
		}
		items, err := g.store.ContextWindow(r.Context(), sessionParam(r), window)
		if err != nil {
			writeError(w, err)
			return
		}

		if r.URL.Query().Get("format") != "markdown" {
			writeJSON(w, http.StatusOK, items)
			return
		}
		out := qaindex.FormatContext(items, qaindex.FormatOptions{MaxAnswerChars: 200})
		if r.URL.Query().Get("analysis") == "true" && g.reportDir != "" {
			if report, err := extract.LatestReport(g.reportDir); err == nil {
				out += "\n" + extract.FormatAnalysis(report)
			}
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(out))
	}
}

type askRequest struct {
	Question  string    `json:"question"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// handleAsk appends a question.
func (g *Gateway) handleAsk() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := g.decode(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		rec, err := g.store.AppendQuestion(r.Context(), sessionParam(r), req.Question, req.Timestamp, req.Author)
		respond(w, http.StatusCreated, rec, err)
	}
}

type answerRequest struct {
	Answer       string   `json:"answer"`
	Tags         []string `json:"tags"`
	Significance *float64 `json:"significance"`
}

// handleAnswer records the answer of an entry.
func (g *Gateway) handleAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seq, err := seqParam(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req answerRequest
		if err := g.decode(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		rec, err := g.store.RecordAnswer(r.Context(), sessionParam(r), seq, qaindex.AnswerInput{
			Answer:       req.Answer,
			TopicTags:    req.Tags,
			Significance: req.Significance,
		})
		respond(w, http.StatusOK, rec, err)
	}
}

// handleSignificance overrides the score of an answered entry.
func (g *Gateway) handleSignificance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seq, err := seqParam(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Value *float64 `json:"value"`
		}
		if err := g.decode(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.Value == nil {
			writeError(w, fmt.Errorf("%w: value is required", errBadRequest))
			return
		}
		rec, err := g.store.UpdateSignificance(r.Context(), sessionParam(r), seq, *req.Value)
		respond(w, http.StatusOK, rec, err)
	}
}

// handleTags replaces the tags of an entry.
func (g *Gateway) handleTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seq, err := seqParam(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Tags []string `json:"tags"`
		}
		if err := g.decode(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		rec, err := g.store.UpdateTags(r.Context(), sessionParam(r), seq, req.Tags)
		respond(w, http.StatusOK, rec, err)
	}
}

// exchangeRequest is a question and answer logged in one call. It is also
// the payload of signed ingestion.
type exchangeRequest struct {
	SessionID    string    `json:"session_id"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	Author       string    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	Tags         []string  `json:"tags"`
	Significance *float64  `json:"significance"`
}

func (req exchangeRequest) input() qaindex.ExchangeInput {
	return qaindex.ExchangeInput{
		SessionID:    req.SessionID,
		Question:     req.Question,
		Answer:       req.Answer,
		Author:       req.Author,
		Timestamp:    req.Timestamp,
		TopicTags:    req.Tags,
		Significance: req.Significance,
	}
}

// handleExchange logs a question with its answer.
func (g *Gateway) handleExchange() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exchangeRequest
		if err := g.decode(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		rec, err := g.store.LogExchange(r.Context(), req.input())
		respond(w, http.StatusCreated, rec, err)
	}
}

// handleExtract extracts a window and returns its analysis. The run is
// saved next to the scheduler's runs when that module is loaded.
func (g *Gateway) handleExtract() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SessionID string `json:"session_id"`
			Hours     int    `json:"hours"`
		}
		if err := g.decode(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.Hours == 0 {
			req.Hours = 1
		}
		if req.Hours < 0 {
			writeError(w, fmt.Errorf("%w: hours must be positive", errBadRequest))
			return
		}

		x, err := g.store.ExtractWindow(r.Context(), qaindex.HourWindow(req.SessionID, req.Hours, time.Now()))
		if err != nil {
			writeError(w, err)
			return
		}
		report := extract.Analyze(x)
		if g.reportDir != "" && len(x.Records) > 0 {
			if _, err := extract.Save(g.reportDir, x, report); err != nil {
				g.logger.Error("saving extraction failed", "run", report.RunID, "error", err)
			}
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// handleReindex rebuilds every index from the log.
func (g *Gateway) handleReindex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := g.store.Reindex(r.Context())
		respond(w, http.StatusOK, map[string]string{"status": "reindexed"}, err)
	}
}

// decode reads a JSON body capped at MaxBodyBytes.
func (g *Gateway) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// sessionParam returns the {id} path segment. IDs containing "/" must be
// sent escaped as %2F.
func sessionParam(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func seqParam(r *http.Request) (int, error) {
	seq, err := strconv.Atoi(chi.URLParam(r, "seq"))
	if err != nil {
		return 0, fmt.Errorf("%w: seq must be an integer", errBadRequest)
	}
	return seq, nil
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return v, nil
}

func floatQuery(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadRequest, name)
	}
	return v, nil
}

func timeQuery(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339", errBadRequest, name)
	}
	return t, nil
}

// respond writes v with code, or the error.
func respond(w http.ResponseWriter, code int, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, code, v)
}

// writeError maps store error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
	default:
		switch qaindex.KindOf(err) {
		case qaindex.KindNotFound:
			code = http.StatusNotFound
		case qaindex.KindValidation:
			code = http.StatusBadRequest
		case qaindex.KindPersistence:
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{"error": err.Error(), "kind": qaindex.KindOf(err).String()})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
