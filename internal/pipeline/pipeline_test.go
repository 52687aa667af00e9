package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
)

func TestOutcomeDropped(t *testing.T) {
	dropped := []Kind{KindNotFound, KindTimeout, KindMultiple}
	for _, k := range dropped {
		require.Truef(t, (Outcome{Kind: k}).Dropped(), "%s should be dropped", k)
	}

	kept := []Kind{KindPending, KindMatched, KindDocsFound}
	for _, k := range kept {
		require.Falsef(t, (Outcome{Kind: k}).Dropped(), "%s should not be dropped", k)
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "NF", KindNotFound.String())
	require.Equal(t, "Unknown", Kind(999).String())
}

func TestNewPipelineBindsResponderOnly(t *testing.T) {
	responder := model.ResponderEndpoint{OID: "2.16.840.1.x"}
	p := New(responder)
	require.Equal(t, responder, p.Responder)
	require.Equal(t, KindPending, p.ITI55Outcome.Kind)
	require.Equal(t, KindPending, p.FinalOutcome.Kind)
}
