package responder

import (
	"github.com/beevik/etree"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/soapdsig"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/transport"
)

// signEnvelope wraps body in a signed SOAP envelope for tx addressed to to,
// the responder side of the same build-then-sign step
// internal/pipeline.Driver runs for outbound requests, per spec §2's
// "build response envelope, sign, return" control flow and §8's invariant
// that every outbound envelope carries exactly one wsu:Timestamp and one
// ds:Signature over it and the To header. Responses carry no SAML
// assertion — only requests authenticate a user's purpose of use.
func signEnvelope(creds *transport.Credentials, tx soapdsig.Transaction, to string, body *etree.Element) ([]byte, error) {
	return soapdsig.BuildRequest(soapdsig.RequestParams{
		Transaction: tx,
		To:          to,
		Body:        body,
		SignKey:     creds.PrivateKey,
		SignCert:    creds.Certificate,
	})
}
