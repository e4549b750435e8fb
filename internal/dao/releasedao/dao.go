package releasedao

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/pitchlab/stack-deployer/internal/errors"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/gox/slicex"
)

const latest = "latest"

// TableName returns the releases table name for an application
func TableName(app string) string {
	return fmt.Sprintf("%s-releases", app)
}

// PK represents a DynamoDB partition key in format {app}/{pipeline}
// Example: pitch/backend
type PK string

// NewPK creates a new partition key from app and pipeline
func NewPK(app, pipeline string) PK {
	return PK(fmt.Sprintf("%s/%s", app, pipeline))
}

// ParsePK parses a partition key into its app and pipeline components
func ParsePK(pk PK) (app, pipeline string, err error) {
	s := string(pk)
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %s, expected {app}/{pipeline}", errors.ErrInvalidReleaseKeyFormat, s)
	}
	return parts[0], parts[1], nil
}

// String returns the string representation of the partition key
func (pk PK) String() string {
	return string(pk)
}

// ID represents a release ID in format {app}/{pipeline}:{ksuid}
// Example: pitch/backend:2HFj3kLmNoPqRsTuVwXy
type ID string

func (id ID) String() string {
	return string(id)
}

// ParseID parses a release ID into its partition key (pk) and sort key (sk) components
func ParseID(id ID) (pk PK, sk string, err error) {
	s := string(id)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %s, expected {app}/{pipeline}:{ksuid}", errors.ErrInvalidReleaseIDFormat, s)
	}
	return PK(parts[0]), parts[1], nil
}

// NewID constructs an ID from partition key and sort key
func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// ReleaseStatus represents the current status of a release
type ReleaseStatus string

const (
	ReleaseStatusInProgress ReleaseStatus = "IN_PROGRESS"
	ReleaseStatusSuccess    ReleaseStatus = "SUCCESS"
	ReleaseStatusFailed     ReleaseStatus = "FAILED"
)

// Record represents a release record in DynamoDB
type Record struct {
	PK             PK            `ddb:"hash" dynamodbav:"pk"`  // {app}/{pipeline} - DynamoDB partition key
	SK             string        `ddb:"range" dynamodbav:"sk"` // KSUID - DynamoDB sort key
	ID             ID            `dynamodbav:"id,omitempty"`   // ID is only used for latest entries
	App            string        `dynamodbav:"app,omitempty"`
	Pipeline       string        `dynamodbav:"pipeline,omitempty"` // backend or frontend
	Version        string        `dynamodbav:"version,omitempty"`  // Application version label
	Bucket         string        `dynamodbav:"bucket,omitempty"`
	Key            string        `dynamodbav:"key,omitempty"`
	DistributionID string        `dynamodbav:"distribution_id,omitempty"`
	InvalidationID string        `dynamodbav:"invalidation_id,omitempty"`
	Status         ReleaseStatus `dynamodbav:"status,omitempty"`
	ErrorMsg       *string       `dynamodbav:"error_msg,omitempty"`
	CreatedAt      int64         `dynamodbav:"created_at,omitempty"`  // Unix epoch timestamp of creation
	FinishedAt     *int64        `dynamodbav:"finished_at,omitempty"` // Unix epoch timestamp of completion
	UpdatedAt      int64         `dynamodbav:"updated_at,omitempty"`  // Unix epoch timestamp of last update
}

// GetID returns the full release ID in format: {app}/{pipeline}:{ksuid}
func (r *Record) GetID() ID {
	if r.ID != "" {
		return r.ID
	}
	return NewID(r.PK, r.SK)
}

// GetID returns the full release ID for a record
func GetID(record Record) ID {
	return record.GetID()
}

// CreateInput contains the fields needed to create a new release record
type CreateInput struct {
	App            string // Application name
	Pipeline       string // backend or frontend
	SK             string // KSUID sort key
	Version        string // Application version label (backend)
	Bucket         string // Destination bucket
	Key            string // Bundle key (backend)
	DistributionID string // CDN distribution (frontend)
}

// UpdateInput contains the fields that can be updated on a release record
type UpdateInput struct {
	PK             PK             // Partition key (app/pipeline)
	SK             string         // Sort key (KSUID)
	Status         *ReleaseStatus // New status
	ErrorMsg       *string        // Error message (optional)
	InvalidationID *string        // CDN invalidation (optional, frontend)
}

// DAO provides data access operations for release records
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create creates a new release record with initial status IN_PROGRESS
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	pk := NewPK(input.App, input.Pipeline)
	now := time.Now().Unix()

	record := Record{
		PK:             pk,
		SK:             input.SK,
		App:            input.App,
		Pipeline:       input.Pipeline,
		Version:        input.Version,
		Bucket:         input.Bucket,
		Key:            input.Key,
		DistributionID: input.DistributionID,
		Status:         ReleaseStatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := d.table.Put(&record).RunWithContext(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to create release record: %w", err)
	}

	return record, nil
}

// Find retrieves a release record by ID
// Returns an error if not found or if there's a database error
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record

	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("%w: %s", errors.ErrReleaseNotFound, id)
		}
		return Record{}, fmt.Errorf("failed to find release record: %w", err)
	}

	// If all fields are empty, item doesn't exist
	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("%w: %s", errors.ErrReleaseNotFound, id)
	}

	return record, nil
}

// Delete removes a release record by ID
func (d *DAO) Delete(ctx context.Context, id ID) error {
	pk, sk, err := ParseID(id)
	if err != nil {
		return err
	}

	err = d.table.Delete(pk).
		Range(sk).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete release record: %w", err)
	}

	return nil
}

// UpdateStatus updates the status of a release record and creates/updates a "latest" magic record
// The latest record has pk=latest/{app} and sk={original pk} to enable efficient queries for latest releases
func (d *DAO) UpdateStatus(ctx context.Context, input UpdateInput) error {
	if input.Status == nil {
		return fmt.Errorf("status is required")
	}

	now := time.Now().Unix()

	update := d.table.Update(input.PK).
		Range(input.SK).
		Set("#Status = ?", string(*input.Status)).
		Set("#UpdatedAt = ?", now)

	// Set finishedAt for terminal states (SUCCESS or FAILED)
	if *input.Status == ReleaseStatusSuccess || *input.Status == ReleaseStatusFailed {
		update = update.Set("#FinishedAt = ?", now)
	}

	if input.ErrorMsg != nil {
		update = update.Set("#ErrorMsg = ?", *input.ErrorMsg)
	}

	if input.InvalidationID != nil {
		update = update.Set("#InvalidationID = ?", *input.InvalidationID)
	}

	// Create/update the "latest" magic record
	// Parse pipeline from PK (format: {app}/{pipeline})
	app, pipeline, err := ParsePK(input.PK)
	if err != nil {
		return err
	}

	latestRecord := &Record{
		PK:        NewPK(latest, app),
		SK:        input.PK.String(), // SK in latest record = PK from original (app/pipeline identifier)
		ID:        NewID(input.PK, input.SK),
		App:       app,
		Pipeline:  pipeline,
		Status:    *input.Status,
		UpdatedAt: now,
	}

	// Write both the update and the latest record in a transaction
	put := d.table.Put(latestRecord)

	if _, err := d.db.TransactWriteItemsWithContext(ctx, update, put); err != nil {
		return err
	}

	return nil
}

// Query returns all releases for a given app/pipeline partition key
func (d *DAO) Query(ctx context.Context, pk PK) ([]Record, error) {
	var records []Record

	err := d.table.Query("#PK = ?", pk.String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query releases: %w", err)
	}

	return records, nil
}

// QueryByPipeline returns all releases for a given application and pipeline
func (d *DAO) QueryByPipeline(ctx context.Context, app, pipeline string) ([]Record, error) {
	pk := NewPK(app, pipeline)
	return d.Query(ctx, pk)
}

// QueryRecent returns up to limit releases for a partition key, newest first.
// Releases come back from the query in ascending KSUID order (oldest first),
// so the page is reversed and truncated here.
func (d *DAO) QueryRecent(ctx context.Context, pk PK, limit int) ([]Record, error) {
	records, err := d.Query(ctx, pk)
	if err != nil {
		return nil, err
	}

	slices.Reverse(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

// QueryLatest returns the latest release for each pipeline of the given application
// It queries the "latest" magic records where pk=latest/{app} and sk={app}/{pipeline}
func (d *DAO) QueryLatest(ctx context.Context, app string) ([]Record, error) {
	pk := NewPK(latest, app)
	var records []Record

	err := d.table.Query("#PK = ?", pk).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest releases: %w", err)
	}

	// Sort by UpdatedAt descending (most recent first)
	// The records are already sorted by SK (app/pipeline), but we want to sort by time
	for i := 0; i < len(records)-1; i++ {
		for j := i + 1; j < len(records); j++ {
			if records[j].UpdatedAt > records[i].UpdatedAt {
				records[i], records[j] = records[j], records[i]
			}
		}
	}

	ids := slicex.Map(records, GetID)

	// Load full release records for each ID
	releases := make([]Record, 0, len(ids))
	for _, id := range ids {
		record, err := d.Find(ctx, id)
		if err != nil {
			// Skip records that are not found (may have been deleted)
			continue
		}
		releases = append(releases, record)
	}

	return releases, nil
}
