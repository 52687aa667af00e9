// Package store implements the local record-store lookups the responder
// handlers need: per-field parameterised Patient search, and the FHIR
// document tables ITI-38/39 responder handlers query, all via Postgres JSON
// containment the way the teacher library's database helpers use lib/pq.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// Store wraps the local FHIR-like Postgres record store.
type Store struct {
	db *sql.DB
}

// New wraps an already-open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// PatientField is one per-field parameterised lookup against the Patient
// table's JSON resource column, per spec §4.8.
type PatientField struct {
	Path  string // JSON path within resource, e.g. "given"
	Value string
}

// MatchPatients runs one containment query per field in fields and
// intersects the matching Patient ids across all of them, per spec §4.8's
// "per-field parameterised lookups... intersects the set of matching IDs
// across the first three (required) fields".
func (s *Store) MatchPatients(ctx context.Context, fields []PatientField) ([]string, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	var ids map[string]bool
	for _, f := range fields {
		containment, err := json.Marshal(map[string]string{f.Path: f.Value})
		if err != nil {
			return nil, fmt.Errorf("encode containment for %s: %w", f.Path, err)
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT id FROM "Patient" WHERE resource @> $1`, string(containment))
		if err != nil {
			return nil, fmt.Errorf("query patient field %s: %w", f.Path, err)
		}
		matched := map[string]bool{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			matched[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()

		if ids == nil {
			ids = matched
		} else {
			for id := range ids {
				if !matched[id] {
					delete(ids, id)
				}
			}
		}
		if len(ids) == 0 {
			return nil, nil
		}
	}

	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out, nil
}

// PatientResource loads one patient's raw FHIR resource JSON by id.
func (s *Store) PatientResource(ctx context.Context, id string) ([]byte, error) {
	var resource []byte
	err := s.db.QueryRowContext(ctx, `SELECT resource FROM "Patient" WHERE id = $1`, id).Scan(&resource)
	if err != nil {
		return nil, fmt.Errorf("load patient %s: %w", id, err)
	}
	return resource, nil
}

// DocumentTables is the fixed family of FHIR document tables spec §4.8
// queries across for ITI-38/39. Ordering is stable so responses are
// deterministic. Exported so the ITI-39 responder can validate a table name
// recovered from an ITI-38 response against the same list MatchDocuments
// searched.
var DocumentTables = []string{
	"DocumentReference",
	"DiagnosticReport",
	"ClinicalImpression",
}

// DocumentMatch is one document located via the three containment variants
// spec §4.8's ITI-38 responder checks.
type DocumentMatch struct {
	ID       string
	Table    string
	Resource []byte
}

// MatchDocuments runs the three patient-reference containment variants
// (resource->'patient' @> ..., resource->'subject' @> ...,
// resource @> {"patientFhirId":...}) over the fixed document table list,
// per spec §4.8's ITI-38 responder.
func (s *Store) MatchDocuments(ctx context.Context, patientFhirID string) ([]DocumentMatch, error) {
	patientRef, err := json.Marshal(map[string]string{"reference": "Patient/" + patientFhirID})
	if err != nil {
		return nil, err
	}
	flatRef, err := json.Marshal(map[string]string{"patientFhirId": patientFhirID})
	if err != nil {
		return nil, err
	}

	var out []DocumentMatch
	for _, table := range DocumentTables {
		query := fmt.Sprintf(`
			SELECT id, resource FROM %q
			WHERE resource->'patient' @> $1
			   OR resource->'subject' @> $1
			   OR resource @> $2`, table)
		rows, err := s.db.QueryContext(ctx, query, string(patientRef), string(flatRef))
		if err != nil {
			return nil, fmt.Errorf("match documents in %s: %w", table, err)
		}
		for rows.Next() {
			var id string
			var resource []byte
			if err := rows.Scan(&id, &resource); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, DocumentMatch{ID: id, Table: table, Resource: resource})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// DocumentResource loads one document's resource JSON by table and id, for
// ITI-39 retrieval.
func (s *Store) DocumentResource(ctx context.Context, table, id string) ([]byte, error) {
	var resource []byte
	query := fmt.Sprintf(`SELECT resource FROM %q WHERE id = $1`, table)
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&resource); err != nil {
		return nil, fmt.Errorf("load document %s/%s: %w", table, id, err)
	}
	return resource, nil
}

// InsertDocuments persists the orchestrator's aggregated documents under a
// single shared patient id, the external record-store write spec §4.6 step
// 5 hands off to (kept local here since this store already owns the
// Postgres handle the orchestrator's aggregation step needs).
func (s *Store) InsertDocuments(ctx context.Context, pid string, docsFound map[string][]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	for docType, docs := range docsFound {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO aggregated_documents (pid, doc_type, documents) VALUES ($1, $2, $3)
			 ON CONFLICT (pid, doc_type) DO UPDATE SET documents = aggregated_documents.documents || EXCLUDED.documents`,
			pid, docType, pq.Array(docs)); err != nil {
			return fmt.Errorf("insert documents for type %s: %w", docType, err)
		}
	}
	return tx.Commit()
}
