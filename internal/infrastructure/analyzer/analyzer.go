package analyzer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
	"github.com/lawknot/legal-assistant/internal/core/ports"
)

const (
	ModeCanned  = "canned"
	ModeContent = "content"
)

// Analyzer builds analysis payloads from the catalog. In canned mode the
// payload does not depend on the document; in content mode the document type
// is chosen by keyword hits in the extracted text.
type Analyzer struct {
	catalog   *Catalog
	delay     time.Duration
	extractor ports.TextExtractor

	mu  sync.Mutex
	rng *rand.Rand
}

func New(catalog *Catalog, delay time.Duration, extractor ports.TextExtractor) *Analyzer {
	return &Analyzer{
		catalog:   catalog,
		delay:     delay,
		extractor: extractor,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithSeed makes the pseudo-random choices reproducible.
func (a *Analyzer) WithSeed(seed uint64) *Analyzer {
	a.mu.Lock()
	a.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	a.mu.Unlock()
	return a
}

func (a *Analyzer) Analyze(ctx context.Context, doc *domain.Document) (domain.Analysis, error) {
	if err := a.wait(ctx); err != nil {
		return domain.Analysis{}, err
	}

	documentType := ""
	if a.extractor != nil {
		text, err := a.extractor.Extract(ctx, doc)
		if err != nil {
			return domain.Analysis{}, fmt.Errorf("extract document text: %w", err)
		}
		documentType = a.classify(text)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if documentType == "" {
		documentType = a.catalog.DocumentTypes[a.rng.IntN(len(a.catalog.DocumentTypes))].Name
	}
	span := a.catalog.Confidence.Max - a.catalog.Confidence.Min + 1

	return domain.Analysis{
		DocumentType:    documentType,
		KeyPoints:       append([]string(nil), a.catalog.KeyPoints...),
		RiskAssessment:  domain.RiskLevels[a.rng.IntN(len(domain.RiskLevels))],
		Recommendations: append([]string(nil), a.catalog.Recommendations...),
		ComplianceCheck: a.catalog.ComplianceCheck,
		Confidence:      a.catalog.Confidence.Min + a.rng.IntN(span),
	}, nil
}

func (a *Analyzer) wait(ctx context.Context) error {
	if a.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(a.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classify returns the document type with the most keyword hits, or "" when
// nothing matches.
func (a *Analyzer) classify(text string) string {
	lower := strings.ToLower(text)
	best, bestHits := "", 0
	for _, t := range a.catalog.DocumentTypes {
		hits := 0
		for _, kw := range t.Keywords {
			hits += strings.Count(lower, strings.ToLower(kw))
		}
		if hits > bestHits {
			best, bestHits = t.Name, hits
		}
	}
	return best
}
