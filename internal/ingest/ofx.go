package ingest

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/pennyflow/pennyflow/internal/feed"
)

// ImportResult summarizes one OFX file import.
type ImportResult struct {
	Imported int
	Skipped  int
	Failed   int
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// SGML-style files sometimes drop the closing bracket on a bare tag.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX fixes common formatting issues before parsing.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = tagFixRegex.ReplaceAllString(content, "$1>")
	return content
}

// ImportOFX parses an OFX/QFX statement and feeds each transaction
// through the same insert + classify + notify path as a sync. The
// external id is derived from the statement's FITID, so re-importing the
// same file is a no-op.
func (e *Engine) ImportOFX(ctx context.Context, userID string, reader io.Reader) (ImportResult, error) {
	var result ImportResult

	content, err := io.ReadAll(reader)
	if err != nil {
		return result, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return result, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var records []feed.Record
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			for _, tr := range stmt.BankTranList.Transactions {
				records = append(records, convertOFXTransaction(tr))
			}
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			for _, tr := range stmt.BankTranList.Transactions {
				records = append(records, convertOFXTransaction(tr))
			}
		}
	}

	for _, rec := range records {
		added, err := e.importRecord(ctx, userID, rec)
		if err != nil {
			result.Failed++
			e.logger.Error("failed to import record",
				"transaction_id", rec.ExternalID,
				"error", err)
			continue
		}
		if added {
			result.Imported++
		} else {
			result.Skipped++
		}
	}

	e.logger.Info("OFX import complete",
		"imported", result.Imported,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result, nil
}

// importRecord inserts one file-sourced transaction. File imports carry
// no linked item, so item_id stays null.
func (e *Engine) importRecord(ctx context.Context, userID string, rec feed.Record) (bool, error) {
	var result SyncResult
	if err := e.processAdded(ctx, userID, nil, rec, &result); err != nil {
		return false, err
	}
	return result.Added > 0, nil
}

// convertOFXTransaction maps one OFX transaction into a feed record.
// OFX reports debits as negative amounts; we flip to positive-means-out.
func convertOFXTransaction(tr ofxgo.Transaction) feed.Record {
	amount, _ := tr.TrnAmt.Float64()

	name := string(tr.Name)
	merchant := name
	if tr.Payee != nil && tr.Payee.Name != "" {
		merchant = string(tr.Payee.Name)
	} else if tr.Memo != "" && isGenericDescription(name) {
		merchant = string(tr.Memo)
	}
	merchant = feed.CleanMerchantName(merchant)

	return feed.Record{
		ExternalID:   "ofx-" + string(tr.FiTID),
		Amount:       -amount,
		Name:         name,
		MerchantName: merchant,
		Date:         tr.DtPosted.Time,
	}
}

// isGenericDescription checks if a transaction name is too generic to be
// a merchant.
func isGenericDescription(name string) bool {
	generic := []string{"DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE"}
	upper := strings.ToUpper(name)
	for _, g := range generic {
		if upper == g {
			return true
		}
	}
	return false
}
