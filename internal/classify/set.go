package classify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/joshsymonds/mailsort/internal/llm"
	"github.com/joshsymonds/mailsort/internal/mail"
	"github.com/joshsymonds/mailsort/internal/textnorm"
)

// Set maps classifier names to classifiers.
type Set map[string]Classifier

// NewSet builds the standard classifier set over gen.
//
// receipt is gated on a PDF attachment and linkedin_noise on a linkedin.com sender, so
// neither reaches the generative backend unless its cheap precondition holds.
func NewSet(gen llm.Generator, norm textnorm.Normalizer) Set {
	return NewObservedSet(gen, norm, nil)
}

// NewObservedSet is NewSet with every classifier reported to obs, including the ones
// composed into receipt and linkedin_noise. A nil obs observes nothing.
func NewObservedSet(gen llm.Generator, norm textnorm.Normalizer, obs Observer) Set {
	observe := func(c Classifier) Classifier {
		if obs == nil {
			return c
		}
		return Instrument(c, obs)
	}
	semantic := func(t Template) Classifier { return observe(NewSemantic(t, gen, norm)) }
	relevant := semantic(RelevantTemplate)
	linkedIn := observe(LinkedInSender())
	// The receipt gate shares the inner classifier's name, so only its parts are observed.
	return NewSetFrom(Set{
		NameSpam:               semantic(SpamTemplate),
		NameReviewSolicitation: semantic(ReviewSolicitationTemplate),
		NameReceipt:            Gate(observe(HasAttachment(NameHasPDF, MIMETypePDF)), semantic(ReceiptTemplate)),
		NameShippingUpdate:     semantic(ShippingUpdateTemplate),
		NameSocialMedia:        observe(SocialMedia()),
		NameLinkedInSender:     linkedIn,
		NameRelevant:           relevant,
		NameLinkedInNoise:      observe(All(NameLinkedInNoise, linkedIn, Not(relevant))),
		NameTakeaway:           semantic(TakeawayTemplate),
	})
}

// NewSetFrom copies m into a new Set.
func NewSetFrom(m map[string]Classifier) Set {
	s := make(Set, len(m))
	for name, c := range m {
		s[name] = c
	}
	return s
}

// Get looks up a classifier by name.
func (s Set) Get(name string) (Classifier, bool) {
	c, ok := s[name]
	return c, ok
}

// MustGet is Get for wiring code that builds from NewSet and cannot miss.
func (s Set) MustGet(name string) Classifier {
	c, ok := s[name]
	if !ok {
		panic(fmt.Sprintf("classify: no classifier named %q", name))
	}
	return c
}

// Require returns the named classifiers or an error naming every missing one.
func (s Set) Require(names ...string) ([]Classifier, error) {
	out := make([]Classifier, 0, len(names))
	var missing []string
	for _, name := range names {
		c, ok := s[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		out = append(out, c)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("classifier set missing %v", missing)
	}
	return out, nil
}

// Names returns the sorted classifier names.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Observer receives one call per classifier invocation.
type Observer interface {
	ObserveClassification(name string, verdict bool, err error, elapsed time.Duration)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(name string, verdict bool, err error, elapsed time.Duration)

func (f ObserverFunc) ObserveClassification(name string, verdict bool, err error, elapsed time.Duration) {
	f(name, verdict, err, elapsed)
}

type instrumented struct {
	Classifier
	obs Observer
}

// Instrument reports every invocation of c to obs.
func Instrument(c Classifier, obs Observer) Classifier {
	return instrumented{Classifier: c, obs: obs}
}

func (i instrumented) Classify(ctx context.Context, msg mail.Message) (bool, error) {
	start := time.Now()
	ok, err := i.Classifier.Classify(ctx, msg)
	i.obs.ObserveClassification(i.Name(), ok, err, time.Since(start))
	return ok, err
}
