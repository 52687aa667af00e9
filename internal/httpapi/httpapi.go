// Package httpapi is the inbound edge described in spec §6: a single
// handler accepting either a JSON `{action, params}` body or a SOAP
// request, the latter routed by URL path to the ITI-55/38/39 responder
// handlers. Base64-encoded bodies (the Lambda proxy-integration shape) are
// decoded first.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/directory"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/orchestrator"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/responder"
)

// Request mirrors the API-Gateway/Lambda proxy-integration event shape spec
// §6 assumes: a URL path, headers, and a body that may be base64-encoded.
type Request struct {
	Path            string
	Headers         map[string]string
	Body            string
	IsBase64Encoded bool
}

// Response mirrors the corresponding proxy-integration response shape.
type Response struct {
	StatusCode int
	Body       string
}

// actionRequest is the JSON envelope spec §6 describes for non-SOAP calls.
type actionRequest struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

// Handler wires the action dispatch and the path-routed SOAP responders to
// their collaborators.
type Handler struct {
	Search   *orchestrator.Search
	Resolver *directory.Resolver
	Geocoder directory.Geocoder

	ITI55Responder *responder.ITI55
	ITI38Responder *responder.ITI38
	ITI39Responder *responder.ITI39
}

// Dispatch is the single entry point: decode the body, then route either by
// URL path (SOAP) or by the JSON action field.
func (h *Handler) Dispatch(ctx context.Context, req Request) Response {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return errorResponse(400, fmt.Errorf("decode base64 body: %w", err))
		}
		body = decoded
	}

	if isSOAPRequest(req.Headers) || isResponderPath(req.Path) {
		return h.dispatchSOAP(ctx, req.Path, body)
	}
	return h.dispatchAction(ctx, body)
}

func isSOAPRequest(headers map[string]string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, "content-type") && strings.Contains(strings.ToLower(v), "xml") {
			return true
		}
	}
	return false
}

func isResponderPath(path string) bool {
	return strings.Contains(path, "responder") || strings.Contains(path, "initiator")
}

// dispatchSOAP routes to one of the ITI-55/38/39 responder handlers by URL
// path, or echoes the body back for the "...initiator" connectivity-check
// paths, per spec §6.
func (h *Handler) dispatchSOAP(ctx context.Context, path string, body []byte) Response {
	switch {
	case strings.Contains(path, "iti55responder"):
		return soapResponse(h.ITI55Responder.Handle(ctx, body))
	case strings.Contains(path, "iti38responder"):
		return soapResponse(h.ITI38Responder.Handle(ctx, body))
	case strings.Contains(path, "iti39responder"):
		return soapResponse(h.ITI39Responder.Handle(ctx, body))
	case strings.Contains(path, "initiator"):
		return Response{StatusCode: 200, Body: string(body)}
	default:
		return Response{StatusCode: 404, Body: "unknown responder path"}
	}
}

func soapResponse(body []byte, err error) Response {
	if err != nil {
		if _, ok := err.(*responder.ErrWrongAddressee); ok {
			return errorResponse(400, err)
		}
		return errorResponse(500, err)
	}
	return Response{StatusCode: 200, Body: string(body)}
}

// dispatchAction implements the JSON `{action, params}` surface of spec §6.
func (h *Handler) dispatchAction(ctx context.Context, body []byte) Response {
	var req actionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return errorResponse(200, fmt.Errorf("malformed action request: %w", err))
	}

	switch req.Action {
	case "getCarequalityPatient":
		return h.getCarequalityPatient(ctx, req.Params)
	case "getEndpoints":
		return h.getEndpoints(ctx, req.Params)
	case "getNationalEndpoints":
		return h.getNationalEndpoints()
	case "augmentLongLat":
		return h.augmentLongLat(ctx)
	case "insert_prod_directory":
		return h.insertProdDirectory(ctx, req.Params)
	default:
		return jsonResponse(200, map[string]string{"error": "unknown action: " + req.Action})
	}
}

type carequalityPatientParams struct {
	Patient          model.PatientMetadata     `json:"patient"`
	Qualification    model.UserQualifications  `json:"qualification"`
	UserZipCodes     []string                  `json:"user_zip_codes"`
}

// getCarequalityPatient runs the full federated search, converting any
// orchestrator-level error into a 200 with an empty/patient_not_found body
// rather than an HTTP error, per spec §7's propagation policy.
func (h *Handler) getCarequalityPatient(ctx context.Context, raw json.RawMessage) Response {
	var params carequalityPatientParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return jsonResponse(200, map[string]string{"status": "patient_not_found"})
	}

	h.Search.Patient = params.Patient
	h.Search.Qual = params.Qualification

	result, err := h.Search.Run(ctx, params.UserZipCodes)
	if err != nil {
		return jsonResponse(200, map[string]string{"status": "patient_not_found"})
	}
	return jsonResponse(200, result)
}

type getEndpointsParams struct {
	Radius   int      `json:"radius"`
	ZipCodes []string `json:"zip_codes"`
	Country  string   `json:"country"`
	Exclude  []string `json:"exclude"`
}

func (h *Handler) getEndpoints(ctx context.Context, raw json.RawMessage) Response {
	var params getEndpointsParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return errorResponse(200, err)
	}

	exclude := make(map[string]bool, len(params.Exclude))
	for _, name := range params.Exclude {
		exclude[name] = true
	}

	endpoints, err := h.Resolver.Query(ctx, params.ZipCodes, directory.Radius(params.Radius), exclude)
	if err != nil {
		return errorResponse(200, err)
	}
	return jsonResponse(200, endpoints)
}

func (h *Handler) getNationalEndpoints() Response {
	endpoints, err := directory.NationalEndpoints()
	if err != nil {
		return errorResponse(500, err)
	}
	return jsonResponse(200, endpoints)
}

func (h *Handler) augmentLongLat(ctx context.Context) Response {
	if err := h.Resolver.AugmentLongLat(ctx, h.Geocoder); err != nil {
		return errorResponse(500, err)
	}
	return jsonResponse(200, map[string]string{"status": "ok"})
}

// jsonOrganizationSource adapts a JSON body to directory.OrganizationSource
// for the insert_prod_directory action.
type jsonOrganizationSource struct {
	orgs []model.DirectoryOrganization
}

func (s jsonOrganizationSource) Organizations(context.Context) ([]model.DirectoryOrganization, error) {
	return s.orgs, nil
}

func (h *Handler) insertProdDirectory(ctx context.Context, raw json.RawMessage) Response {
	var orgs []model.DirectoryOrganization
	if err := json.Unmarshal(raw, &orgs); err != nil {
		return errorResponse(200, err)
	}
	if err := h.Resolver.Ingest(ctx, jsonOrganizationSource{orgs: orgs}); err != nil {
		return errorResponse(500, err)
	}
	return jsonResponse(200, map[string]string{"status": "ok"})
}

func jsonResponse(status int, v interface{}) Response {
	b, err := json.Marshal(v)
	if err != nil {
		return errorResponse(500, err)
	}
	return Response{StatusCode: status, Body: string(b)}
}

func errorResponse(status int, err error) Response {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return Response{StatusCode: status, Body: string(b)}
}
