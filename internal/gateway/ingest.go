package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/qaindex/internal/qaindex"
)

// maxIngestBytes caps a signed ingestion payload.
const maxIngestBytes = 4 << 20

// IngestHandler processes a validated ingestion payload.
type IngestHandler interface {
	HandleIngest(ctx context.Context, source string, body []byte) (int, error)
}

type ingestEntry struct {
	handler IngestHandler
	secret  string
}

// IngestDispatcher routes signed payloads to registered handlers with
// HMAC-SHA256 validation of the X-Signature-256 header.
type IngestDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]ingestEntry
	logger   *slog.Logger
}

// NewIngestDispatcher creates a ready-to-use dispatcher.
func NewIngestDispatcher(logger *slog.Logger) *IngestDispatcher {
	return &IngestDispatcher{
		handlers: make(map[string]ingestEntry),
		logger:   logger,
	}
}

// Register adds a handler for the given source and its HMAC secret.
func (d *IngestDispatcher) Register(source string, h IngestHandler, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[source] = ingestEntry{handler: h, secret: secret}
}

// ServeHTTP implements http.Handler. It extracts the source from the chi URL param,
// validates the signature, and dispatches to the registered handler.
func (d *IngestDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := chi.URLParam(r, "source")
	d.mu.RLock()
	entry, ok := d.handlers[source]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("ingest received for unregistered source", "source", source)
		http.Error(w, "unknown source", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !validateHMAC(body, r.Header.Get("X-Signature-256"), entry.secret) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	n, err := entry.handler.HandleIngest(r.Context(), source, body)
	if err != nil {
		d.logger.Error("ingest handler failed", "source", source, "logged", n, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "logged": n})
}

// validateHMAC checks HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// exchangeIngester logs exchanges pushed by an external agent. The body is
// one exchange object or an array of them, logged in order; logging stops
// at the first failure.
type exchangeIngester struct {
	store   *qaindex.Store
	tags    []string
	metrics *Metrics
}

// HandleIngest implements IngestHandler.
func (i *exchangeIngester) HandleIngest(ctx context.Context, source string, body []byte) (int, error) {
	var batch []exchangeRequest
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return 0, fmt.Errorf("%w: %w", errBadRequest, err)
		}
	} else {
		var one exchangeRequest
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return 0, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		batch = []exchangeRequest{one}
	}

	for n, req := range batch {
		in := req.input()
		if in.Author == "" {
			in.Author = source
		}
		in.TopicTags = append(slices.Clone(in.TopicTags), i.tags...)
		if _, err := i.store.LogExchange(ctx, in); err != nil {
			return n, err
		}
		if i.metrics != nil {
			i.metrics.RecordIngest()
		}
	}
	return len(batch), nil
}
