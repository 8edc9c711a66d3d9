// Package facts loads previously extracted upload information and merges it
// into the session-scoped context a form-fill job runs against.
package facts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/a3tai/pdf-form-filler/internal/storage"
)

// ErrNoFacts is returned when a user has no usable extracted information,
// which is fatal to a form-fill job.
var ErrNoFacts = errors.New("no structured facts available")

// Fact is one key-value datum extracted from a prior upload.
type Fact struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Description string `json:"short_description,omitempty"`
	Source      string `json:"source,omitempty"` // slug of the upload it came from
}

// ManifestFile is one uploaded document's entry in the user manifest.
type ManifestFile struct {
	Slug     string `json:"slug"`
	FileName string `json:"fileName,omitempty"`
	InfoKey  string `json:"infoKey,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Manifest is the per-user upload index maintained by the ingestion side.
type Manifest struct {
	UserID    string         `json:"userId"`
	UpdatedAt string         `json:"updatedAt"`
	Files     []ManifestFile `json:"files"`
}

// ExtractionInfo is the persisted shape of one upload's extracted
// information.
type ExtractionInfo struct {
	DocumentDescription   string `json:"document_description,omitempty"`
	StructuredInformation []Fact `json:"structured_information"`
}

// ContextBundle is the merged fact set available to answer form fields.
// Snapshot taken once at job creation.
type ContextBundle struct {
	Description string
	Facts       []Fact
	byName      map[string]Fact
}

// Lookup returns the merged value for a fact name.
func (b *ContextBundle) Lookup(name string) (Fact, bool) {
	f, ok := b.byName[name]
	return f, ok
}

// Size reports the number of merged facts.
func (b *ContextBundle) Size() int {
	return len(b.Facts)
}

// FactsText renders the bundle as prompt lines, truncated at limit facts.
func (b *ContextBundle) FactsText(limit int) string {
	if len(b.Facts) == 0 {
		return "No supporting facts provided."
	}
	var lines []string
	for i, fact := range b.Facts {
		if limit > 0 && i >= limit {
			lines = append(lines, fmt.Sprintf("- ... %d additional facts truncated ...", len(b.Facts)-limit))
			break
		}
		var details []string
		if fact.Description != "" {
			details = append(details, fact.Description)
		}
		if fact.Source != "" {
			details = append(details, "source="+fact.Source)
		}
		line := fmt.Sprintf("- %s: %s", fact.Name, fact.Value)
		if len(details) > 0 {
			line += " (" + strings.Join(details, "; ") + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Aggregator merges per-document fact sets into one ContextBundle.
type Aggregator struct {
	store  storage.Store
	logger *slog.Logger
}

// NewAggregator creates an aggregator reading from store.
func NewAggregator(store storage.Store, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, logger: logger}
}

// Build reads every fact set available for the user and merges them.
// Conflicting fact names resolve last-write-wins in ascending slug order.
// Missing or unreadable individual fact sets are skipped, never fatal; only
// a total absence of facts returns ErrNoFacts.
func (a *Aggregator) Build(ctx context.Context, userID string) (*ContextBundle, error) {
	manifest, err := a.loadManifest(ctx, userID)
	if err != nil {
		return nil, err
	}

	files := make([]ManifestFile, len(manifest.Files))
	copy(files, manifest.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Slug < files[j].Slug })

	bundle := &ContextBundle{byName: make(map[string]Fact)}
	var descriptions []string

	for _, entry := range files {
		if entry.InfoKey == "" {
			continue
		}
		payload, err := a.store.Get(ctx, entry.InfoKey)
		if err != nil {
			a.logger.Warn("facts.load.skip", "user_id", userID, "slug", entry.Slug, "error", err)
			continue
		}
		var info ExtractionInfo
		if err := json.Unmarshal(payload, &info); err != nil {
			a.logger.Warn("facts.decode.skip", "user_id", userID, "slug", entry.Slug, "error", err)
			continue
		}
		if info.DocumentDescription != "" {
			descriptions = append(descriptions, info.DocumentDescription)
		}
		source := entry.Slug
		if source == "" {
			source = entry.FileName
		}
		for _, fact := range info.StructuredInformation {
			fact.Source = source
			if _, exists := bundle.byName[fact.Name]; !exists {
				bundle.Facts = append(bundle.Facts, fact)
			} else {
				for i := range bundle.Facts {
					if bundle.Facts[i].Name == fact.Name {
						bundle.Facts[i] = fact
						break
					}
				}
			}
			bundle.byName[fact.Name] = fact
		}
	}

	if len(bundle.Facts) == 0 {
		return nil, ErrNoFacts
	}

	bundle.Description = strings.Join(descriptions, "; ")
	if bundle.Description == "" {
		bundle.Description = "No supporting description."
	}

	a.logger.Info("facts.build.ok",
		"user_id", userID,
		"uploads", len(files),
		"facts", len(bundle.Facts),
	)
	return bundle, nil
}

func (a *Aggregator) loadManifest(ctx context.Context, userID string) (*Manifest, error) {
	payload, err := a.store.Get(ctx, storage.ManifestKey(userID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no uploads for user", ErrNoFacts)
		}
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &manifest, nil
}
