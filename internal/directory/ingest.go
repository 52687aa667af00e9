package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
)

// OrganizationSource supplies the upstream snapshot of FHIR Organization
// resources a directory refresh loads, external to this package (spec §1
// treats the S3 blob source for directory data as an out-of-scope
// collaborator).
type OrganizationSource interface {
	Organizations(ctx context.Context) ([]model.DirectoryOrganization, error)
}

// Ingest implements spec §4.7's directory ingestion: delete-then-load the
// directory table from source, then run up to 5 passes of URL/HCID
// inheritance, exiting early when a pass performs zero inheritances. A
// final pass deletes any row still missing a URL, coordinate, or ZIP.
func (r *Resolver) Ingest(ctx context.Context, source OrganizationSource) error {
	orgs, err := source.Organizations(ctx)
	if err != nil {
		return fmt.Errorf("fetch organizations: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ingest transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM directory`); err != nil {
		return fmt.Errorf("clear directory: %w", err)
	}

	for _, org := range orgs {
		if err := insertOrganization(ctx, tx, org); err != nil {
			return fmt.Errorf("insert organization %s: %w", org.OID, err)
		}
	}

	const maxPasses = 5
	for pass := 0; pass < maxPasses; pass++ {
		inherited, err := inheritPass(ctx, tx)
		if err != nil {
			return fmt.Errorf("inheritance pass %d: %w", pass, err)
		}
		if inherited == 0 {
			break
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM directory
		WHERE iti55_responder IS NULL OR iti38_responder IS NULL OR iti39_responder IS NULL
		   OR latitude IS NULL OR longitude IS NULL OR zipcode IS NULL`); err != nil {
		return fmt.Errorf("delete incomplete directory rows: %w", err)
	}

	return tx.Commit()
}

func insertOrganization(ctx context.Context, tx *sql.Tx, org model.DirectoryOrganization) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO directory (oid, name, iti55_responder, iti38_responder, iti39_responder,
		                        zipcode, longitude, latitude, address, country_code, part_of,
		                        managing_org, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (oid) DO NOTHING`,
		org.OID, org.Name, nullIfEmpty(org.ITI55Responder), nullIfEmpty(org.ITI38Responder),
		nullIfEmpty(org.ITI39Responder), nullIfEmpty(org.ZipCode), org.Longitude, org.Latitude,
		org.Address, org.CountryCode, nullIfEmpty(org.PartOf), org.ManagingOrg, org.Status)
	return err
}

// inheritPass runs one round of spec §4.7's inheritance: any organisation
// with a non-null part_of inherits managing_org from its parent, and if any
// of its three responder URLs is null, inherits all three URLs and
// rewrites its own OID to the parent's OID (the rewrite is the source's
// verbatim, flagged behaviour — see DESIGN.md).
func inheritPass(ctx context.Context, tx *sql.Tx) (int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT child.oid, parent.oid, parent.iti55_responder, parent.iti38_responder,
		       parent.iti39_responder, parent.managing_org
		FROM directory child
		JOIN directory parent ON parent.oid = child.part_of
		WHERE child.part_of IS NOT NULL
		  AND (child.iti55_responder IS NULL OR child.iti38_responder IS NULL OR child.iti39_responder IS NULL)
		  AND parent.iti55_responder IS NOT NULL
		  AND parent.iti38_responder IS NOT NULL
		  AND parent.iti39_responder IS NOT NULL`)
	if err != nil {
		return 0, err
	}

	type inheritance struct {
		childOID, parentOID                                  string
		iti55, iti38, iti39, managingOrg                     string
	}
	var todo []inheritance
	for rows.Next() {
		var in inheritance
		if err := rows.Scan(&in.childOID, &in.parentOID, &in.iti55, &in.iti38, &in.iti39, &in.managingOrg); err != nil {
			rows.Close()
			return 0, err
		}
		todo = append(todo, in)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	rows.Close()

	var count int64
	for _, in := range todo {
		_, err := tx.ExecContext(ctx, `
			UPDATE directory
			SET oid = $1, iti55_responder = $2, iti38_responder = $3, iti39_responder = $4,
			    managing_org = $5
			WHERE oid = $6`,
			in.parentOID, in.iti55, in.iti38, in.iti39, in.managingOrg, in.childOID)
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
