// Package orchestrator implements the federated search described in spec
// §4.6: a national pass followed by a regional pass, each fanning out one
// pipeline per responder, a conflict check that drops sentinel outcomes,
// and aggregation of retrieved documents under one shared patient id.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/directory"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/pipeline"
)

const (
	maxResponders  = 200
	radiusWidenAt  = 80
)

var widenRadii = []directory.Radius{directory.Radius10, directory.Radius30, directory.Radius100}

// Store is the external record store collaborator aggregation hands
// retrieved documents to (spec §1 treats the FHIR-base record store schema
// as an out-of-scope external collaborator).
type Store interface {
	InsertDocuments(ctx context.Context, pid string, docsFound map[string][]string) error
}

// Search is a search session of one or more pipelines, per spec §3.
type Search struct {
	Driver    *pipeline.Driver
	Resolver  *directory.Resolver
	Store     Store
	Patient   model.PatientMetadata
	Qual      model.UserQualifications
}

// Result summarises what a completed Search produced.
type Result struct {
	SharedPID  string
	Pipelines  []*pipeline.Pipeline
	DocsFound  map[string][]string
}

// Run executes the two-pass federated search described in spec §4.6: a
// national pass over a fixed endpoint list with address params suppressed,
// then a regional pass over responders discovered by proximity using the
// union of the user's ZIPs and the ZIPs returned by the national pass,
// excluding names that already matched nationally. Both passes share a
// single freshly-generated patient id so their document inserts converge.
func (s *Search) Run(ctx context.Context, userZips []string) (*Result, error) {
	if err := s.Qual.Validate(); err != nil {
		return nil, fmt.Errorf("search precondition: %w", err)
	}

	sharedPID := uuid.NewString()

	nationalEndpoints, err := directory.NationalEndpoints()
	if err != nil {
		return nil, fmt.Errorf("load national endpoints: %w", err)
	}
	nationalPipelines, err := s.runPass(ctx, nationalEndpoints, true)
	if err != nil {
		return nil, fmt.Errorf("national pass: %w", err)
	}

	matchedNames := map[string]bool{}
	zipHints := map[string]bool{}
	for _, z := range userZips {
		zipHints[z] = true
	}
	for _, p := range nationalPipelines {
		if p.ITI55Outcome.Dropped() {
			continue
		}
		matchedNames[p.Responder.Name] = true
		if p.ITI55Outcome.Patient.PostalCode != "" {
			zipHints[p.ITI55Outcome.Patient.PostalCode] = true
		}
	}

	regionalEndpoints, err := s.resolveRegionalEndpoints(ctx, zipHints, matchedNames)
	if err != nil {
		return nil, fmt.Errorf("resolve regional endpoints: %w", err)
	}
	regionalPipelines, err := s.runPass(ctx, regionalEndpoints, false)
	if err != nil {
		return nil, fmt.Errorf("regional pass: %w", err)
	}

	all := append(nationalPipelines, regionalPipelines...)
	docsFound := aggregate(all)

	if s.Store != nil {
		if err := s.Store.InsertDocuments(ctx, sharedPID, docsFound); err != nil {
			return nil, fmt.Errorf("insert aggregated documents: %w", err)
		}
	}

	return &Result{SharedPID: sharedPID, Pipelines: all, DocsFound: docsFound}, nil
}

// resolveRegionalEndpoints implements the radius retry rule of spec §4.6:
// start at the widest usable radius and, while more than 80 responders are
// returned and a finer radius remains, re-query at the next tighter radius;
// if the narrowest radius tried comes back empty, widen back out one step
// at a time looking for any responder at all, since a tight radius with
// zero hits is more likely a too-small catchment than a genuine absence of
// responders. At most 200 responders are ever driven.
func (s *Search) resolveRegionalEndpoints(ctx context.Context, zipHints map[string]bool, exclude map[string]bool) ([]model.ResponderEndpoint, error) {
	zips := make([]string, 0, len(zipHints))
	for z := range zipHints {
		zips = append(zips, z)
	}

	var endpoints []model.ResponderEndpoint
	narrowed := 0
	for i := len(widenRadii) - 1; i >= 0; i-- {
		found, err := s.Resolver.Query(ctx, zips, widenRadii[i], exclude)
		if err != nil {
			return nil, err
		}
		endpoints = found
		narrowed = i
		if len(endpoints) <= radiusWidenAt || i == 0 {
			break
		}
	}

	for len(endpoints) == 0 && narrowed < len(widenRadii)-1 {
		narrowed++
		found, err := s.Resolver.Query(ctx, zips, widenRadii[narrowed], exclude)
		if err != nil {
			return nil, err
		}
		endpoints = found
	}

	if len(endpoints) > maxResponders {
		endpoints = endpoints[:maxResponders]
	}
	return endpoints, nil
}

// runPass constructs one pipeline per endpoint and fans ITI-55 out across
// all of them in parallel (spec §4.6 step 2), then conflict-checks and, for
// every surviving pipeline, fans out ITI-38/39 concurrently (step 4).
func (s *Search) runPass(ctx context.Context, endpoints []model.ResponderEndpoint, national bool) ([]*pipeline.Pipeline, error) {
	pipelines := make([]*pipeline.Pipeline, len(endpoints))
	for i, e := range endpoints {
		pipelines[i] = pipeline.New(e)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pipelines {
		p := p
		g.Go(func() error {
			return s.Driver.Run(gctx, p, s.Patient, s.Qual, national)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return pipelines, nil
}

// aggregate collects every surviving pipeline's docs_found into one map,
// per spec §4.6 step 5.
func aggregate(pipelines []*pipeline.Pipeline) map[string][]string {
	out := map[string][]string{}
	for _, p := range pipelines {
		if p.ITI55Outcome.Dropped() {
			continue
		}
		for docType, docs := range p.FinalOutcome.DocsFound {
			out[docType] = append(out[docType], docs...)
		}
	}
	return out
}
