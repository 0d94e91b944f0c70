package postgres

import (
	"context"
	"fmt"

	"github.com/ledgerline/ledgerline/internal/domain/records"
)

// Domain record upserts. Each table carries a natural composite key so a
// retried worker execution updates the existing row instead of duplicating
// it. The RETURNING clause feeds the canonical row back to the caller.

func (s *Store) UpsertTaxFiling(ctx context.Context, f *records.TaxFiling) (*records.TaxFiling, error) {
	detailJSON, err := mapJSON(f.Detail)
	if err != nil {
		return nil, err
	}
	out := *f
	err = s.pool.QueryRow(ctx,
		`INSERT INTO tax_filings (org_id, jurisdiction, period, filing_type, status, external_ref, due_date, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (org_id, jurisdiction, period) DO UPDATE SET
		   filing_type = EXCLUDED.filing_type,
		   status = EXCLUDED.status,
		   external_ref = EXCLUDED.external_ref,
		   due_date = EXCLUDED.due_date,
		   detail = EXCLUDED.detail,
		   updated_at = now()
		 RETURNING id, created_at, updated_at`,
		f.OrgID, f.Jurisdiction, f.Period, f.FilingType, f.Status, f.ExternalRef,
		nullTime(f.DueDate), detailJSON,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert tax filing %s/%s: %w", f.Jurisdiction, f.Period, err)
	}
	return &out, nil
}

func (s *Store) UpsertAPInvoice(ctx context.Context, inv *records.APInvoice) (*records.APInvoice, error) {
	detailJSON, err := mapJSON(inv.Detail)
	if err != nil {
		return nil, err
	}
	out := *inv
	err = s.pool.QueryRow(ctx,
		`INSERT INTO ap_invoices (org_id, vendor, invoice_number, amount, currency, status, requires_dual_approval, external_ref, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (org_id, vendor, invoice_number) DO UPDATE SET
		   amount = EXCLUDED.amount,
		   currency = EXCLUDED.currency,
		   status = EXCLUDED.status,
		   requires_dual_approval = EXCLUDED.requires_dual_approval,
		   external_ref = EXCLUDED.external_ref,
		   detail = EXCLUDED.detail,
		   updated_at = now()
		 RETURNING id, created_at, updated_at`,
		inv.OrgID, inv.Vendor, inv.InvoiceNumber, inv.Amount, inv.Currency, inv.Status,
		inv.RequiresDualApproval, inv.ExternalRef, detailJSON,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert ap invoice %s/%s: %w", inv.Vendor, inv.InvoiceNumber, err)
	}
	return &out, nil
}

func (s *Store) UpsertRiskEntry(ctx context.Context, r *records.RiskEntry) (*records.RiskEntry, error) {
	detailJSON, err := mapJSON(r.Detail)
	if err != nil {
		return nil, err
	}
	out := *r
	err = s.pool.QueryRow(ctx,
		`INSERT INTO risk_register (org_id, risk_ref, title, severity, test_result, external_ref, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (org_id, risk_ref) DO UPDATE SET
		   title = EXCLUDED.title,
		   severity = EXCLUDED.severity,
		   test_result = EXCLUDED.test_result,
		   external_ref = EXCLUDED.external_ref,
		   detail = EXCLUDED.detail,
		   updated_at = now()
		 RETURNING id, created_at, updated_at`,
		r.OrgID, r.RiskRef, r.Title, r.Severity, r.TestResult, r.ExternalRef, detailJSON,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert risk entry %s: %w", r.RiskRef, err)
	}
	return &out, nil
}

func (s *Store) UpsertAuditWalkthrough(ctx context.Context, w *records.AuditWalkthrough) (*records.AuditWalkthrough, error) {
	detailJSON, err := mapJSON(w.Detail)
	if err != nil {
		return nil, err
	}
	out := *w
	err = s.pool.QueryRow(ctx,
		`INSERT INTO audit_walkthroughs (org_id, engagement, process, evidence_ready, external_ref, detail)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (org_id, engagement, process) DO UPDATE SET
		   evidence_ready = EXCLUDED.evidence_ready,
		   external_ref = EXCLUDED.external_ref,
		   detail = EXCLUDED.detail,
		   updated_at = now()
		 RETURNING id, created_at, updated_at`,
		w.OrgID, w.Engagement, w.Process, w.EvidenceReady, w.ExternalRef, detailJSON,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert audit walkthrough %s/%s: %w", w.Engagement, w.Process, err)
	}
	return &out, nil
}

func (s *Store) UpsertBoardPack(ctx context.Context, b *records.BoardPack) (*records.BoardPack, error) {
	detailJSON, err := mapJSON(b.Detail)
	if err != nil {
		return nil, err
	}
	out := *b
	err = s.pool.QueryRow(ctx,
		`INSERT INTO board_packs (org_id, period, title, external_ref, detail)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (org_id, period) DO UPDATE SET
		   title = EXCLUDED.title,
		   external_ref = EXCLUDED.external_ref,
		   detail = EXCLUDED.detail,
		   updated_at = now()
		 RETURNING id, created_at, updated_at`,
		b.OrgID, b.Period, b.Title, b.ExternalRef, detailJSON,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert board pack %s: %w", b.Period, err)
	}
	return &out, nil
}

func (s *Store) UpsertRegulatoryFiling(ctx context.Context, f *records.RegulatoryFiling) (*records.RegulatoryFiling, error) {
	detailJSON, err := mapJSON(f.Detail)
	if err != nil {
		return nil, err
	}
	out := *f
	err = s.pool.QueryRow(ctx,
		`INSERT INTO regulatory_filings (org_id, regulator, period, filing_type, status, external_ref, due_date, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (org_id, regulator, period) DO UPDATE SET
		   filing_type = EXCLUDED.filing_type,
		   status = EXCLUDED.status,
		   external_ref = EXCLUDED.external_ref,
		   due_date = EXCLUDED.due_date,
		   detail = EXCLUDED.detail,
		   updated_at = now()
		 RETURNING id, created_at, updated_at`,
		f.OrgID, f.Regulator, f.Period, f.FilingType, f.Status, f.ExternalRef,
		nullTime(f.DueDate), detailJSON,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert regulatory filing %s/%s: %w", f.Regulator, f.Period, err)
	}
	return &out, nil
}
