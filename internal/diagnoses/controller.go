package diagnoses

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"leafdoc-backend/internal/llm"
	"leafdoc-backend/internal/shared/metrics"
	"leafdoc-backend/internal/shared/storage/object"
	"leafdoc-backend/internal/shared/telemetry"
)

const maxImageBytes = 6 << 20

var allowedMimeTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
}

// Controller orchestrates the analysis lifecycle: new analyses, viewing past
// results, and retranslating the current result when the display language
// changes. It is the sole write surface over the history and is safe for
// concurrent use; the busy flag serializes access to the diagnosis client.
type Controller struct {
	store   HistoryStore
	client  llm.Client
	archive object.ObjectStore

	mu            sync.Mutex
	pendingImage  *ImagePayload
	currentResult *AnalysisResult
	busy          bool
	lastError     string
	history       History
	language      string

	// generation invalidates in-flight diagnosis calls: any state change
	// bumps it, and a call whose captured generation no longer matches at
	// completion time discards its result instead of applying stale data.
	generation uint64
}

// NewController constructs a Controller. archive may be nil to disable image
// archival. Call Hydrate before serving to load the persisted history.
func NewController(store HistoryStore, client llm.Client, archive object.ObjectStore, language string) *Controller {
	return &Controller{
		store:    store,
		client:   client,
		archive:  archive,
		language: language,
		history:  History{},
	}
}

// State is a read-only snapshot of the controller for the presentation layer.
type State struct {
	PendingImage    *ImagePayload   `json:"pendingImage"`
	CurrentResult   *AnalysisResult `json:"currentResult"`
	IsBusy          bool            `json:"isBusy"`
	LastError       string          `json:"lastError"`
	DisplayLanguage string          `json:"displayLanguage"`
	HistoryCount    int             `json:"historyCount"`
}

// Hydrate loads the persisted history. It runs once at startup; a failing
// store degrades to an empty in-memory history with a logged warning.
func (c *Controller) Hydrate(ctx context.Context) {
	h, err := c.store.Load(ctx)
	if err != nil {
		telemetry.Warn("history.hydrate_failed", map[string]any{"error": err.Error()})
		h = History{}
	}
	c.mu.Lock()
	c.history = h
	c.mu.Unlock()
}

// SelectImage stages an image for analysis, replacing any previous selection
// and clearing the current result and last error. No network call is made.
func (c *Controller) SelectImage(img ImagePayload) error {
	if err := validateImage(img); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	staged := img
	c.pendingImage = &staged
	c.currentResult = nil
	c.lastError = ""
	c.generation++
	return nil
}

// Clear resets the pending image, current result, and last error. History is
// untouched.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingImage = nil
	c.currentResult = nil
	c.lastError = ""
	c.generation++
}

// RunAnalysis submits the pending image for diagnosis in the display
// language. It is a no-op returning ErrBusy while another call is in flight
// and ErrNoPendingImage when nothing is staged. On success the new record
// becomes the current result and is prepended to the history.
func (c *Controller) RunAnalysis(ctx context.Context) (AnalysisResult, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return AnalysisResult{}, ErrBusy
	}
	if c.pendingImage == nil {
		c.mu.Unlock()
		return AnalysisResult{}, ErrNoPendingImage
	}
	img := *c.pendingImage
	target := c.language
	c.busy = true
	c.lastError = ""
	gen := c.generation
	c.mu.Unlock()

	metrics.IncDiagnosisStarted()
	startMs := metrics.NowMillis()
	diag, err := c.diagnose(ctx, img, target)
	metrics.ObserveDiagnosisDurationMs(metrics.NowMillis() - startMs)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if gen != c.generation {
		metrics.IncStaleDiscarded()
		telemetry.Warn("diagnosis.stale_discarded", map[string]any{"language": target})
		return AnalysisResult{}, ErrBusy
	}
	if err != nil {
		metrics.IncDiagnosisFailed()
		c.lastError = err.Error()
		return AnalysisResult{}, err
	}
	metrics.IncDiagnosisCompleted()

	now := time.Now().UTC()
	result := AnalysisResult{
		ID:                  NewResultID(now),
		ImageSource:         img.DataURL(),
		CreatedAt:           now,
		Disease:             diag.Disease,
		Description:         diag.Description,
		SeverityLevel:       diag.SeverityLevel,
		SeverityDescription: diag.SeverityDescription,
		Treatments:          diag.Treatments,
		Language:            target,
	}

	c.currentResult = &result
	c.pendingImage = nil
	c.history = append(History{result}, c.history...)
	c.persistLocked(ctx)

	if c.archive != nil {
		go c.archiveImage(result.ID, img)
	}

	return cloneResult(result), nil
}

// SelectFromHistory makes a past record the current result and reconciles its
// language with the display language.
func (c *Controller) SelectFromHistory(ctx context.Context, id string) (AnalysisResult, error) {
	c.mu.Lock()
	idx := c.indexOfLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return AnalysisResult{}, ErrNotFound
	}
	selected := cloneResult(c.history[idx])
	c.currentResult = &selected
	c.pendingImage = nil
	c.lastError = ""
	c.generation++
	c.mu.Unlock()

	if _, err := c.ReconcileLanguage(ctx); err != nil {
		return selected, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentResult != nil && c.currentResult.ID == id {
		return cloneResult(*c.currentResult), nil
	}
	return selected, nil
}

// SetLanguage updates the display language and reconciles the current result.
func (c *Controller) SetLanguage(ctx context.Context, language string) error {
	c.mu.Lock()
	if c.language != language {
		c.language = language
		c.generation++
	}
	c.mu.Unlock()

	_, err := c.ReconcileLanguage(ctx)
	return err
}

// ReconcileLanguage re-requests the current result in the display language.
// It is a no-op when there is no current result, a call is in flight, the
// languages already match, or a fresh image is pending. On success the
// translated fields replace the current result in place and the same-id
// history record, keeping its position. On failure the stale result stays
// displayed and lastError carries the message. The bool reports whether a
// retranslation was applied.
func (c *Controller) ReconcileLanguage(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.busy || c.currentResult == nil || c.pendingImage != nil || c.currentResult.Language == c.language {
		c.mu.Unlock()
		return false, nil
	}

	img, err := ParseImageSource(c.currentResult.ImageSource)
	if err != nil {
		c.lastError = err.Error()
		c.mu.Unlock()
		return false, err
	}

	id := c.currentResult.ID
	target := c.language
	c.busy = true
	c.lastError = ""
	gen := c.generation
	c.mu.Unlock()

	metrics.IncDiagnosisStarted()
	startMs := metrics.NowMillis()
	diag, derr := c.diagnose(ctx, img, target)
	metrics.ObserveDiagnosisDurationMs(metrics.NowMillis() - startMs)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if gen != c.generation {
		metrics.IncStaleDiscarded()
		telemetry.Warn("diagnosis.stale_discarded", map[string]any{"result_id": id, "language": target})
		return false, nil
	}
	if derr != nil {
		metrics.IncDiagnosisFailed()
		c.lastError = derr.Error()
		return false, derr
	}
	metrics.IncRetranslation()

	applyDiagnosis(c.currentResult, diag, target)
	if idx := c.indexOfLocked(id); idx >= 0 {
		applyDiagnosis(&c.history[idx], diag, target)
	}
	c.persistLocked(ctx)
	return true, nil
}

// State returns a snapshot of the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		IsBusy:          c.busy,
		LastError:       c.lastError,
		DisplayLanguage: c.language,
		HistoryCount:    len(c.history),
	}
	if c.pendingImage != nil {
		img := *c.pendingImage
		s.PendingImage = &img
	}
	if c.currentResult != nil {
		result := cloneResult(*c.currentResult)
		s.CurrentResult = &result
	}
	return s
}

// History returns a copy of the history, newest first.
func (c *Controller) History() History {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(History, len(c.history))
	for i, record := range c.history {
		out[i] = cloneResult(record)
	}
	return out
}

// diagnose runs the LLM call and validates its payload. This is the only
// suspension point of the controller.
func (c *Controller) diagnose(ctx context.Context, img ImagePayload, language string) (Diagnosis, error) {
	raw, err := c.client.Diagnose(ctx, llm.DiagnoseInput{
		MimeType:   img.MimeType,
		Base64Data: img.Base64Data,
		Language:   language,
	})
	if err != nil {
		return Diagnosis{}, err
	}
	return ParseDiagnosis(raw)
}

// persistLocked mirrors the history to durable storage. Failures are logged
// and absorbed; the session degrades to in-memory history.
func (c *Controller) persistLocked(ctx context.Context) {
	snapshot := make(History, len(c.history))
	copy(snapshot, c.history)
	if err := c.store.Save(ctx, snapshot); err != nil {
		telemetry.Error("history.persist_failed", map[string]any{"error": err.Error()})
	}
}

// archiveImage stores the decoded original image best-effort.
func (c *Controller) archiveImage(resultID string, img ImagePayload) {
	data, err := base64.StdEncoding.DecodeString(img.Base64Data)
	if err != nil {
		telemetry.Warn("image.archive_failed", map[string]any{"result_id": resultID, "error": err.Error()})
		return
	}
	name := fmt.Sprintf("%s%s", resultID, extensionFor(img.MimeType))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, _, _, err := c.archive.Save(ctx, name, bytes.NewReader(data)); err != nil {
		telemetry.Warn("image.archive_failed", map[string]any{"result_id": resultID, "error": err.Error()})
	}
}

func (c *Controller) indexOfLocked(id string) int {
	for i := range c.history {
		if c.history[i].ID == id {
			return i
		}
	}
	return -1
}

func applyDiagnosis(record *AnalysisResult, diag Diagnosis, language string) {
	record.Disease = diag.Disease
	record.Description = diag.Description
	record.SeverityLevel = diag.SeverityLevel
	record.SeverityDescription = diag.SeverityDescription
	record.Treatments = diag.Treatments
	record.Language = language
}

func cloneResult(record AnalysisResult) AnalysisResult {
	out := record
	out.Treatments = make([]Treatment, len(record.Treatments))
	copy(out.Treatments, record.Treatments)
	return out
}

func validateImage(img ImagePayload) error {
	if _, ok := allowedMimeTypes[img.MimeType]; !ok {
		return fmt.Errorf("%w: unsupported mime type %q", ErrBadImagePayload, img.MimeType)
	}
	data, err := base64.StdEncoding.DecodeString(img.Base64Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadImagePayload, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty image", ErrBadImagePayload)
	}
	if len(data) > maxImageBytes {
		return fmt.Errorf("%w: image exceeds %d bytes", ErrBadImagePayload, maxImageBytes)
	}
	return nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
