// Package soapdsig builds and signs the SOAP/WS-Security/XML-DSig wire
// plane described in spec §4.1: SOAP 1.2 envelopes with a WS-Security header
// carrying a Timestamp, a SAML assertion, and a detached XML-DSig signature
// over the Timestamp and To elements.
//
// The signing primitives here generalize the teacher library's single
// enveloped-signature-over-one-document approach (see canon.go, adapted
// near-verbatim from the teacher's canonicalization.go) to the multi
// document/detached-reference shape WS-Security requires: one SignedInfo
// can carry references to several independently canonicalized elements
// instead of only the document being signed.
package soapdsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
)

// VerifyReference recomputes el's digest under canon and compares it
// against ref.Digest, failing closed if they disagree.
func VerifyReference(ref Reference, el *etree.Element, canon Canonicalizer) error {
	want := ref.Digest
	got := Reference{URI: ref.URI}
	if err := DigestReference(&got, el, canon); err != nil {
		return fmt.Errorf("digest reference %s: %w", ref.URI, err)
	}
	if got.Digest != want {
		return fmt.Errorf("reference %s: digest mismatch", ref.URI)
	}
	return nil
}

// VerifySignedInfo re-canonicalizes signedInfo under canon and checks
// sigValue against it using pub, the inverse of SignSignedInfo.
func VerifySignedInfo(signedInfo *etree.Element, pub *rsa.PublicKey, sigValue string, canon Canonicalizer) error {
	canonical, err := canon.Canonicalize(signedInfo)
	if err != nil {
		return fmt.Errorf("canonicalize SignedInfo: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(sigValue)
	if err != nil {
		return fmt.Errorf("decode signature value: %w", err)
	}
	hashed := sha1.Sum(canonical)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, hashed[:], sig); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}

// Reference is one <Reference> entry inside a SignedInfo: the URI it points
// at (a local "#_id" fragment) and the list of transform algorithm URIs
// applied before digesting, in order.
type Reference struct {
	URI        string
	Transforms []string
	Digest     string // base64 digest value, filled in by DigestReference
}

// DigestReference canonicalizes el with canon and fills in ref.Digest.
// transforms beyond the canonicalization itself (e.g. the enveloped-
// signature transform) are assumed to already be reflected in el's content
// by the time it is passed here.
func DigestReference(ref *Reference, el *etree.Element, canon Canonicalizer) error {
	canonical, err := canon.Canonicalize(el)
	if err != nil {
		return fmt.Errorf("canonicalize reference %s: %w", ref.URI, err)
	}
	sum := sha1.Sum(canonical)
	ref.Digest = base64.StdEncoding.EncodeToString(sum[:])
	return nil
}

// BuildSignedInfo constructs the <SignedInfo> element carrying one
// <Reference> per entry in refs, exclusive-c14n canonicalization, and
// rsa-sha1 signature method — the same algorithm triple the teacher's
// createSignedInfoElement uses, generalized from one Reference to many so
// a single signature can cover the SOAP Timestamp and To elements (spec
// §4.1) or, with a single entry, an enveloped document (the SAML assertion,
// spec §4.2).
func BuildSignedInfo(refs []Reference, enveloped bool) *etree.Element {
	signedInfo := etree.NewElement("SignedInfo")
	signedInfo.CreateAttr("xmlns", Namespace)

	canonicalizationMethod := signedInfo.CreateElement("CanonicalizationMethod")
	canonicalizationMethod.CreateAttr("Algorithm", string(CanonicalXML10ExclusiveAlgorithmId))

	signatureMethod := signedInfo.CreateElement("SignatureMethod")
	signatureMethod.CreateAttr("Algorithm", RSASHA1SignatureMethod)

	for _, ref := range refs {
		reference := signedInfo.CreateElement("Reference")
		reference.CreateAttr("URI", ref.URI)

		transforms := reference.CreateElement("Transforms")
		if enveloped {
			t := transforms.CreateElement("Transform")
			t.CreateAttr("Algorithm", string(EnvelopedSignatureAltorithmId))
		}
		t := transforms.CreateElement("Transform")
		t.CreateAttr("Algorithm", string(CanonicalXML10ExclusiveAlgorithmId))

		digestMethod := reference.CreateElement("DigestMethod")
		digestMethod.CreateAttr("Algorithm", "http://www.w3.org/2000/09/xmldsig#sha1")

		digestValueElement := reference.CreateElement("DigestValue")
		digestValueElement.SetText(ref.Digest)
	}

	return signedInfo
}

// SignSignedInfo canonicalizes signedInfo and produces an RSA-SHA1
// signature over it using priv.
func SignSignedInfo(signedInfo *etree.Element, priv *rsa.PrivateKey, canon Canonicalizer) (string, error) {
	canonical, err := canon.Canonicalize(signedInfo)
	if err != nil {
		return "", fmt.Errorf("canonicalize SignedInfo: %w", err)
	}
	hashed := sha1.Sum(canonical)
	signature, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA1, hashed[:])
	if err != nil {
		return "", fmt.Errorf("sign SignedInfo: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// BuildX509KeyInfo builds a <KeyInfo><X509Data><X509Certificate> element
// carrying cert's DER bytes, the same shape the teacher's
// createSignatureElement embeds for invoice signatures.
func BuildX509KeyInfo(cert *x509.Certificate) *etree.Element {
	keyInfo := etree.NewElement("KeyInfo")
	keyInfo.CreateAttr("xmlns", Namespace)
	x509Data := keyInfo.CreateElement("X509Data")
	x509Cert := x509Data.CreateElement("X509Certificate")
	x509Cert.SetText(base64.StdEncoding.EncodeToString(cert.Raw))
	return keyInfo
}

// BuildKeyIdentifierKeyInfo builds the WS-Security
// <wsse:SecurityTokenReference><wsse:KeyIdentifier ValueType="...#SAMLID">
// back-reference to a SAML assertion's ID, used for the SOAP-level
// signature's KeyInfo per spec §4.1.
func BuildKeyIdentifierKeyInfo(assertionID string) *etree.Element {
	keyInfo := etree.NewElement("KeyInfo")
	keyInfo.CreateAttr("xmlns", Namespace)
	str := keyInfo.CreateElement("wsse:SecurityTokenReference")
	str.CreateAttr("xmlns:wsse", WSSENamespace)
	ki := str.CreateElement("wsse:KeyIdentifier")
	ki.CreateAttr("ValueType", "http://docs.oasis-open.org/wss/oasis-wss-saml-token-profile-1.1#SAMLID")
	ki.SetText("_" + assertionID)
	return keyInfo
}

// BuildSignature assembles the final <ds:Signature> element from a signed
// SignedInfo, its signature value, and a caller-supplied KeyInfo.
func BuildSignature(signedInfo *etree.Element, signatureValue string, keyInfo *etree.Element) *etree.Element {
	sig := etree.NewElement("ds:Signature")
	sig.CreateAttr("xmlns:ds", Namespace)
	signedInfo.Tag = "ds:SignedInfo"
	retagNamespace(signedInfo, "ds")
	sig.AddChild(signedInfo)

	sv := sig.CreateElement("ds:SignatureValue")
	sv.SetText(signatureValue)

	if keyInfo != nil {
		keyInfo.Tag = "ds:KeyInfo"
		retagChildrenNamespace(keyInfo, "ds")
		sig.AddChild(keyInfo)
	}
	return sig
}

// retagNamespace rewrites el's own default-namespace declaration into a
// ds: prefix declaration matching its retagged element name.
func retagNamespace(el *etree.Element, prefix string) {
	for i, attr := range el.Attr {
		if attr.Space == "" && attr.Key == "xmlns" && attr.Value == Namespace {
			el.Attr = append(el.Attr[:i:i], el.Attr[i+1:]...)
			break
		}
	}
}

func retagChildrenNamespace(el *etree.Element, prefix string) {
	if el.Tag == "X509Data" {
		el.Tag = prefix + ":X509Data"
	}
	for _, c := range el.ChildElements() {
		switch c.Tag {
		case "X509Certificate":
			c.Tag = prefix + ":X509Certificate"
		case "X509IssuerSerial":
			c.Tag = prefix + ":X509IssuerSerial"
		}
		retagChildrenNamespace(c, prefix)
	}
	retagNamespace(el, prefix)
}

const WSSENamespace = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
const WSUNamespace = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
