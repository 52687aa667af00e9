package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/beevik/etree"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/samlassert"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/soapdsig"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/transport"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/xca"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/xcpd"
)

// Driver runs a single pipeline through ITI-55 -> ITI-38 -> ITI-39,
// sequentially, per spec §4.6/§5: a stage's outcome is only observed after
// the previous stage completes, and a transport error or sentinel outcome
// ends the pipeline without retry.
type Driver struct {
	Client      *transport.Client
	Credentials *transport.Credentials
	SAMLAttrs   samlassert.Attributes
	SenderHCID  string
}

// Run drives p's three stages for the given demographic query and caller
// qualification. It mutates p in place; stage-level failures are recorded
// as Outcome sentinels on p, never returned as an error — only a context
// cancellation propagates. qual is carried as a parameter, not stored on
// the Driver, since one Driver is shared across concurrently-running
// searches made by different callers.
func (d *Driver) Run(ctx context.Context, p *Pipeline, patient model.PatientMetadata, qual model.UserQualifications, national bool) error {
	outcome, raw, err := d.runITI55(ctx, p.Responder, patient, qual, national)
	p.RawITI55Response = raw
	if err != nil {
		outcome = Outcome{Kind: KindTimeout}
	}
	p.ITI55Outcome = outcome
	p.FinalOutcome = outcome
	if outcome.Dropped() {
		return nil
	}

	docIDs, raw38, err := d.runITI38(ctx, p.Responder, outcome.PatientIDs, qual)
	p.RawITI38Response = raw38
	if err != nil {
		p.ITI38Outcome = Outcome{Kind: KindNotFound}
		p.FinalOutcome = p.ITI38Outcome
		return nil
	}
	p.ITI38Outcome = Outcome{Kind: KindDocsFound, PidsAndDocIDs: docIDs}

	jitter := time.Duration(rand.Intn(250)) * time.Millisecond
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		return ctx.Err()
	}

	docsFound, rawResponses, fhirID := d.runITI39(ctx, p.Responder, docIDs, qual)
	p.RawITI39Responses = rawResponses
	p.FinalOutcome = Outcome{
		Kind:          KindDocsFound,
		PidsAndDocIDs: docIDs,
		DocsFound:     docsFound,
		FHIRID:        fhirID,
	}
	return nil
}

func (d *Driver) runITI55(ctx context.Context, responder model.ResponderEndpoint, patient model.PatientMetadata, qual model.UserQualifications, national bool) (Outcome, []byte, error) {
	params := xcpd.RequestParams{
		ResponderHCID: responder.OID,
		SenderHCID:    d.SenderHCID,
		SenderOrgHCID: qual.OrgHCID,
		Patient:       patient,
		National:      national,
	}
	body := xcpd.BuildRequest(params)

	envelope, err := d.buildEnvelope(soapdsig.TxITI55Request, responder.ITI55Responder, body, qual)
	if err != nil {
		return Outcome{}, nil, fmt.Errorf("build iti-55 request: %w", err)
	}

	stageCtx, cancel := context.WithTimeout(ctx, params.Timeout())
	defer cancel()
	raw, err := d.Client.Post(stageCtx, responder.ITI55Responder, envelope)
	if err != nil {
		return Outcome{}, nil, err
	}
	return xcpd.ParseResponse(soapdsig.ExtractEnvelope(raw)), raw, nil
}

func (d *Driver) runITI38(ctx context.Context, responder model.ResponderEndpoint, patientIDs []model.PatientID, qual model.UserQualifications) ([]model.PatientDocID, []byte, error) {
	params := xca.ITI38RequestParams{ResponderHCID: responder.OID, PatientIDs: patientIDs}
	body := xca.BuildITI38Request(params)

	envelope, err := d.buildEnvelope(soapdsig.TxITI38Request, responder.ITI38Responder, body, qual)
	if err != nil {
		return nil, nil, fmt.Errorf("build iti-38 request: %w", err)
	}

	stageCtx, cancel := context.WithTimeout(ctx, params.Timeout())
	defer cancel()
	raw, err := d.Client.Post(stageCtx, responder.ITI38Responder, envelope)
	if err != nil {
		return nil, nil, err
	}
	docIDs, err := xca.ParseITI38Response(soapdsig.ExtractEnvelope(raw), responder.OID)
	if err != nil {
		return nil, raw, err
	}
	return docIDs, raw, nil
}

type iti39ChunkResult struct {
	index int
	raw   []byte
	chunk []model.PatientDocID
}

// runITI39 posts each chunk concurrently, per spec §4.5/§5.
func (d *Driver) runITI39(ctx context.Context, responder model.ResponderEndpoint, docIDs []model.PatientDocID, qual model.UserQualifications) (map[string][]string, [][]byte, string) {
	docsFound := map[string][]string{}
	chunks := xca.Chunk(docIDs)
	rawResponses := make([][]byte, len(chunks))
	var fhirID string
	if len(docIDs) > 0 {
		fhirID = docIDs[0].PID
	}

	results := make(chan iti39ChunkResult, len(chunks))
	for i, chunk := range chunks {
		go func(i int, chunk []model.PatientDocID) {
			raw, err := d.postITI39Chunk(ctx, responder, chunk, qual)
			if err != nil {
				results <- iti39ChunkResult{index: i}
				return
			}
			results <- iti39ChunkResult{index: i, raw: raw, chunk: chunk}
		}(i, chunk)
	}

	for range chunks {
		r := <-results
		if r.raw == nil {
			continue
		}
		rawResponses[r.index] = r.raw
		xca.ParseITI39Response(soapdsig.ExtractEnvelope(r.raw), r.chunk, docsFound)
	}

	return docsFound, rawResponses, fhirID
}

func (d *Driver) postITI39Chunk(ctx context.Context, responder model.ResponderEndpoint, chunk []model.PatientDocID, qual model.UserQualifications) ([]byte, error) {
	body := xca.BuildITI39Request(chunk)
	envelope, err := d.buildEnvelope(soapdsig.TxITI39Request, responder.ITI39Responder, body, qual)
	if err != nil {
		return nil, fmt.Errorf("build iti-39 request: %w", err)
	}
	chunkCtx, cancel := context.WithTimeout(ctx, xca.ITI39Timeout())
	defer cancel()
	return d.Client.Post(chunkCtx, responder.ITI39Responder, envelope)
}

// buildEnvelope assembles and signs the SAML assertion and the enclosing
// SOAP envelope for one outbound request, per spec §4.1/§4.2.
func (d *Driver) buildEnvelope(tx soapdsig.Transaction, to string, body *etree.Element, qual model.UserQualifications) ([]byte, error) {
	assertion, err := samlassert.Build(qual, d.SAMLAttrs, d.Credentials.Certificate, d.Credentials.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("build saml assertion: %w", err)
	}

	return soapdsig.BuildRequest(soapdsig.RequestParams{
		Transaction:   tx,
		To:            to,
		Body:          body,
		SAMLAssertion: assertion.Security.ChildElements()[0],
		AssertionID:   assertion.RefID,
		SignKey:       d.Credentials.PrivateKey,
		SignCert:      d.Credentials.Certificate,
	})
}
