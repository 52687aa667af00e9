package soapdsig

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"regexp"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
)

const (
	SOAPEnvelopeNamespace = "http://www.w3.org/2003/05/soap-envelope"
	AddressingNamespace   = "http://www.w3.org/2005/08/addressing"
)

// Transaction identifies one of the six ITI-55/38/39 request/response
// message exchanges, carrying the fixed path and WS-Addressing Action URI
// spec §4.1's table assigns to it.
type Transaction struct {
	Path   string
	Action string
}

var (
	TxITI55Request  = Transaction{"/iti55initiator", "urn:hl7-org:v3:PRPA_IN201305UV02:CrossGatewayPatientDiscovery"}
	TxITI55Response = Transaction{"/iti55responder", "urn:hl7-org:v3:PRPA_IN201306UV02:CrossGatewayPatientDiscovery"}
	TxITI38Request  = Transaction{"/iti38initiator", "urn:ihe:iti:2007:CrossGatewayQuery"}
	TxITI38Response = Transaction{"/iti38responder", "urn:ihe:iti:2007:CrossGatewayQueryResponse"}
	TxITI39Request  = Transaction{"/iti39initiator", "urn:ihe:iti:2007:CrossGatewayRetrieve"}
	TxITI39Response = Transaction{"/iti39responder", "urn:ihe:iti:2007:CrossGatewayRetrieveResponse"}
)

// RequestParams describes one outbound SOAP request to be built and signed.
type RequestParams struct {
	Transaction Transaction
	To          string
	Body        *etree.Element // the HL7 v3 / ebXML payload element

	// SAMLAssertion is the already-built, already-signed <saml2:Assertion>
	// element (see internal/samlassert), and AssertionID is its bare ID
	// (without the leading "_"), used for the SOAP-level signature's
	// KeyIdentifier back-reference.
	SAMLAssertion *etree.Element
	AssertionID   string

	SignKey  *rsa.PrivateKey
	SignCert *x509.Certificate
}

// BuildRequest constructs a signed SOAP 1.2 envelope per spec §4.1: a fresh
// urn:uuid MessageID, the fixed Action for the transaction, a To element
// with wsu:Id="_1", and a wsse:Security header carrying a Timestamp
// (wsu:Id="_0"), the caller's SAML assertion, and a detached XML-DSig
// signature over #_0 and #_1.
func BuildRequest(p RequestParams) ([]byte, error) {
	doc := etree.NewDocument()
	envelope := doc.CreateElement("soapenv:Envelope")
	envelope.CreateAttr("xmlns:soapenv", SOAPEnvelopeNamespace)
	envelope.CreateAttr("xmlns:a", AddressingNamespace)
	envelope.CreateAttr("xmlns:wsu", WSUNamespace)

	header := envelope.CreateElement("soapenv:Header")

	action := header.CreateElement("a:Action")
	action.CreateAttr("soapenv:mustUnderstand", "1")
	action.SetText(p.Transaction.Action)

	messageID := header.CreateElement("a:MessageID")
	messageID.SetText("urn:uuid:" + uuid.NewString())

	to := header.CreateElement("a:To")
	to.CreateAttr("wsu:Id", "_1")
	to.SetText(p.To)

	security := header.CreateElement("wsse:Security")
	security.CreateAttr("xmlns:wsse", WSSENamespace)
	security.CreateAttr("soapenv:mustUnderstand", "true")

	timestamp := security.CreateElement("wsu:Timestamp")
	timestamp.CreateAttr("wsu:Id", "_0")
	now := time.Now().UTC()
	created := timestamp.CreateElement("wsu:Created")
	created.SetText(formatWSUTime(now))
	expires := timestamp.CreateElement("wsu:Expires")
	expires.SetText(formatWSUTime(now.Add(time.Hour)))

	if p.SAMLAssertion != nil {
		security.AddChild(p.SAMLAssertion)
	}

	canon := MakeC14N10ExclusiveCanonicalizerWithPrefixList("")

	refTimestamp := Reference{URI: "#_0"}
	if err := DigestReference(&refTimestamp, timestamp, canon); err != nil {
		return nil, fmt.Errorf("digest timestamp: %w", err)
	}
	refTo := Reference{URI: "#_1"}
	if err := DigestReference(&refTo, to, canon); err != nil {
		return nil, fmt.Errorf("digest to: %w", err)
	}

	signedInfo := BuildSignedInfo([]Reference{refTimestamp, refTo}, false)
	sigValue, err := SignSignedInfo(signedInfo, p.SignKey, canon)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	var keyInfo *etree.Element
	if p.AssertionID != "" {
		keyInfo = BuildKeyIdentifierKeyInfo(p.AssertionID)
	}
	signature := BuildSignature(signedInfo, sigValue, keyInfo)
	security.AddChild(signature)

	body := envelope.CreateElement("soapenv:Body")
	if p.Body != nil {
		body.AddChild(p.Body)
	}

	return doc.WriteToBytes()
}

// formatWSUTime renders t as YYYY-MM-DDTHH:MM:SS.mmmZ, millisecond
// precision truncated to three digits, per spec §4.1.
func formatWSUTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000") + "Z"
}

var envelopeRegexp = regexp.MustCompile(`(?is)<([a-zA-Z0-9._-]*:)?Envelope[\s>].*</([a-zA-Z0-9._-]*:)?Envelope>`)

// ExtractEnvelope recovers the first <...:Envelope>...</...:Envelope>
// region from an arbitrary byte buffer, tolerating a leading MIME/multipart
// preamble or otherwise malformed surrounding bytes, per spec §4.1's
// response-parse contract. It does not verify inbound signatures (a
// production hardening pass would; the contract is tolerant-by-default,
// exactly per §4.1 design note and §9).
func ExtractEnvelope(raw []byte) []byte {
	loc := envelopeRegexp.FindIndex(raw)
	if loc == nil {
		return nil
	}
	return raw[loc[0]:loc[1]]
}
