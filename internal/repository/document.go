package repository

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-ledger-server/internal/domain"
)

// encodeDocument serializes both halves of a ledger document
func encodeDocument(doc *domain.LedgerDocument) (logJSON, triggersJSON []byte, err error) {
	if doc.Log == nil {
		doc.Log = domain.NewSymptomLog(doc.UserID, time.Now().UTC())
	}
	if doc.Triggers == nil {
		doc.Triggers = domain.TriggerStore{}
	}
	logJSON, err = domain.EncodeLog(doc.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding symptom log: %w", err)
	}
	triggersJSON, err = domain.EncodeTriggers(doc.Triggers)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding trigger store: %w", err)
	}
	return logJSON, triggersJSON, nil
}

// decodeDocument parses a stored row. Malformed content degrades to empty
// documents and every degradation is logged.
func decodeDocument(log *logrus.Logger, userID string, logJSON, triggersJSON []byte, version int64) *domain.LedgerDocument {
	symptoms, logWarnings := domain.DecodeLog(userID, logJSON)
	triggers, triggerWarnings := domain.DecodeTriggers(triggersJSON)

	for _, w := range append(logWarnings, triggerWarnings...) {
		log.WithFields(logrus.Fields{
			"user_id": userID,
			"version": version,
		}).Warn(w)
	}

	return &domain.LedgerDocument{
		UserID:   userID,
		Log:      symptoms,
		Triggers: triggers,
		Version:  version,
	}
}
