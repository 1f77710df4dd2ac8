package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/dirsearch/internal/db/sqlstore"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
)

// Columns is the column list ScanRecord expects, qualified by the records table.
const Columns = "records.id, records.list_id, records.external_id, records.name, records.status, " +
	"records.tags, records.payload, records.fingerprint, records.seq, records.created_at, records.updated_at"

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanRecord hydrates a Record from a row selected with Columns.
func ScanRecord(s Scanner, d sqlstore.Dialect) (domrec.Record, error) {
	var (
		id, listID, externalID, name, status, fingerprint string
		tags                                              []string
		payloadRaw                                        []byte
		seq                                               int64
		createdAt, updatedAt                              time.Time
	)
	err := s.Scan(&id, &listID, &externalID, &name, &status,
		d.TagsDest(&tags), &payloadRaw, &fingerprint, &seq, &createdAt, &updatedAt)
	if err != nil {
		return domrec.Record{}, err
	}

	payload, err := decodePayload(payloadRaw)
	if err != nil {
		return domrec.Record{}, fmt.Errorf("record %s: %w", id, err)
	}

	return domrec.Reconstruct(id, listID, externalID, name, domrec.Status(status),
		tags, payload, fingerprint, seq, createdAt, updatedAt), nil
}

func encodePayload(p map[string]any) (string, error) {
	if p == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(raw), nil
}

func decodePayload(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return out, nil
}
