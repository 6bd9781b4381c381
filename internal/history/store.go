// Package history persists verification outcomes across runs, so repeated
// invocations can show how a claim's chain status progressed over time.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"claimchain/internal/types"
)

// Store manages the verification history database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Record is one persisted verification outcome.
type Record struct {
	ID         types.ID
	ClaimID    types.ID
	Statement  string
	ClaimType  types.ClaimType
	Status     types.ChainStatus
	Confidence float64
	WorkItems  []types.WorkItem
	VerifiedAt time.Time
}

// NewStore creates or opens the history database under dir.
func NewStore(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "history.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS verifications (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL,
		statement TEXT NOT NULL,
		claim_type TEXT NOT NULL,
		status TEXT NOT NULL,
		confidence REAL NOT NULL,
		work_items_json TEXT,
		verified_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_verifications_claim ON verifications(claim_id);
	CREATE INDEX IF NOT EXISTS idx_verifications_status ON verifications(status);
	CREATE INDEX IF NOT EXISTS idx_verifications_time ON verifications(verified_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordVerification appends one claim's verification outcome.
func (s *Store) RecordVerification(claim types.Claim, result types.VerificationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	confidence := 0.0
	if result.Evidence != nil {
		confidence = result.Evidence.Confidence.Value()
	}
	itemsJSON, err := json.Marshal(result.WorkItems)
	if err != nil {
		return fmt.Errorf("failed to marshal work items: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO verifications (id, claim_id, statement, claim_type, status, confidence, work_items_json, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		types.NewID().String(),
		claim.ID.String(),
		claim.Statement,
		string(claim.Type),
		string(result.Status),
		confidence,
		string(itemsJSON),
		result.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record verification: %w", err)
	}
	return nil
}

// Recent returns the most recent verification records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, claim_id, statement, claim_type, status, confidence, work_items_json, verified_at
		FROM verifications
		ORDER BY verified_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query verifications: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ForClaim returns all recorded outcomes for one claim, oldest first. The
// sequence shows the chain's progression toward Verified.
func (s *Store) ForClaim(claimID types.ID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, claim_id, statement, claim_type, status, confidence, work_items_json, verified_at
		FROM verifications
		WHERE claim_id = ?
		ORDER BY verified_at ASC`, claimID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query claim history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// StatusCounts tallies the latest recorded status per distinct claim.
func (s *Store) StatusCounts() (map[types.ChainStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT v.status FROM verifications v
		JOIN (
			SELECT claim_id, MAX(verified_at) AS latest
			FROM verifications GROUP BY claim_id
		) last ON v.claim_id = last.claim_id AND v.verified_at = last.latest`)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.ChainStatus]int)
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, err
		}
		counts[types.ChainStatus(status)]++
	}
	return counts, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			rec                        Record
			id, claimID, ctype, status string
			itemsJSON                  string
		)
		if err := rows.Scan(&id, &claimID, &rec.Statement, &ctype, &status, &rec.Confidence, &itemsJSON, &rec.VerifiedAt); err != nil {
			return nil, err
		}
		parsedID, err := types.ParseID(id)
		if err != nil {
			return nil, fmt.Errorf("corrupt record id %q: %w", id, err)
		}
		parsedClaim, err := types.ParseID(claimID)
		if err != nil {
			return nil, fmt.Errorf("corrupt claim id %q: %w", claimID, err)
		}
		rec.ID = parsedID
		rec.ClaimID = parsedClaim
		rec.ClaimType = types.ClaimType(ctype)
		rec.Status = types.ChainStatus(status)
		if itemsJSON != "" {
			if err := json.Unmarshal([]byte(itemsJSON), &rec.WorkItems); err != nil {
				return nil, fmt.Errorf("corrupt work items for %s: %w", id, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
