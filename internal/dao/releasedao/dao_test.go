package releasedao

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"

	deployerrors "github.com/pitchlab/stack-deployer/internal/errors"
)

// Unit tests for key types

func TestTableName(t *testing.T) {
	if got := TableName("pitch"); got != "pitch-releases" {
		t.Errorf("TableName() = %v, want pitch-releases", got)
	}
}

func TestNewPK(t *testing.T) {
	tests := []struct {
		name     string
		app      string
		pipeline string
		want     PK
	}{
		{
			name:     "backend pipeline",
			app:      "pitch",
			pipeline: "backend",
			want:     PK("pitch/backend"),
		},
		{
			name:     "frontend pipeline",
			app:      "pitch",
			pipeline: "frontend",
			want:     PK("pitch/frontend"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewPK(tt.app, tt.pipeline)
			if got != tt.want {
				t.Errorf("NewPK() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePK(t *testing.T) {
	tests := []struct {
		name         string
		pk           PK
		wantApp      string
		wantPipeline string
		wantErr      bool
	}{
		{
			name:         "valid PK",
			pk:           PK("pitch/backend"),
			wantApp:      "pitch",
			wantPipeline: "backend",
			wantErr:      false,
		},
		{
			name:    "invalid PK - no slash",
			pk:      PK("pitch"),
			wantErr: true,
		},
		{
			name:    "invalid PK - too many slashes",
			pk:      PK("pitch/backend/extra"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, pipeline, err := ParsePK(tt.pk)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePK() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !errors.Is(err, deployerrors.ErrInvalidReleaseKeyFormat) {
				t.Errorf("ParsePK() error = %v, want %v", err, deployerrors.ErrInvalidReleaseKeyFormat)
			}
			if app != tt.wantApp {
				t.Errorf("ParsePK() app = %v, want %v", app, tt.wantApp)
			}
			if pipeline != tt.wantPipeline {
				t.Errorf("ParsePK() pipeline = %v, want %v", pipeline, tt.wantPipeline)
			}
		})
	}
}

func TestPK_String(t *testing.T) {
	pk := NewPK("pitch", "backend")
	expected := "pitch/backend"

	result := pk.String()
	if result != expected {
		t.Errorf("PK.String() = %v, want %v", result, expected)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		id      ID
		wantPK  PK
		wantSK  string
		wantErr bool
	}{
		{
			name:    "valid ID",
			id:      "pitch/backend:2HFj3kLmNoPqRsTuVwXy",
			wantPK:  PK("pitch/backend"),
			wantSK:  "2HFj3kLmNoPqRsTuVwXy",
			wantErr: false,
		},
		{
			name:    "invalid ID - no colon",
			id:      "pitch/backend",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pk, sk, err := ParseID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseID() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !errors.Is(err, deployerrors.ErrInvalidReleaseIDFormat) {
				t.Errorf("ParseID() error = %v, want %v", err, deployerrors.ErrInvalidReleaseIDFormat)
			}
			if pk != tt.wantPK {
				t.Errorf("ParseID() pk = %v, want %v", pk, tt.wantPK)
			}
			if sk != tt.wantSK {
				t.Errorf("ParseID() sk = %v, want %v", sk, tt.wantSK)
			}
		})
	}
}

func TestNewID(t *testing.T) {
	pk := NewPK("pitch", "backend")
	sk := "2HFj3kLmNoPqRsTuVwXy"
	expected := ID("pitch/backend:2HFj3kLmNoPqRsTuVwXy")

	result := NewID(pk, sk)
	if result != expected {
		t.Errorf("NewID() = %v, want %v", result, expected)
	}
}

func TestRecord_ID(t *testing.T) {
	record := &Record{
		PK: NewPK("pitch", "backend"),
		SK: "2HFj3kLmNoPqRsTuVwXy",
	}

	expected := ID("pitch/backend:2HFj3kLmNoPqRsTuVwXy")
	result := record.GetID()

	if result != expected {
		t.Errorf("Record.ID() = %v, want %v", result, expected)
	}
}

func TestGetID(t *testing.T) {
	record := Record{
		PK: NewPK("latest", "pitch"),
		SK: "pitch/backend",
		ID: NewID(NewPK("pitch", "backend"), "2HFj3kLmNoPqRsTuVwXy"),
	}

	// Latest entries carry an explicit ID pointing at the real record
	if got := GetID(record); got != record.ID {
		t.Errorf("GetID() = %v, want %v", got, record.ID)
	}
}

// Integration test helpers

type testSetup struct {
	dao       *DAO
	client    *dynamodb.Client
	tableName string
}

// setupLocalDynamoDB creates a DynamoDB client configured for local testing
// Set DYNAMODB_ENDPOINT environment variable to use local DynamoDB (e.g., http://localhost:8000)
// Run: docker-compose up -d dynamodb-local
func setupLocalDynamoDB(t *testing.T) *testSetup {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:8000"
	}

	tableName := "test-releases-" + ksuid.New().String()

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("us-west-2"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	assert.NoError(t, err)

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	// Create table
	ctx := context.Background()
	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("pk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("sk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("pk"),
				KeyType:       types.KeyTypeHash,
			},
			{
				AttributeName: aws.String("sk"),
				KeyType:       types.KeyTypeRange,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	assert.NoError(t, err)

	// Wait for table to be active
	waiter := dynamodb.NewTableExistsWaiter(client)
	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 30*time.Second)
	assert.NoError(t, err)

	return &testSetup{
		dao:       New(client, tableName),
		client:    client,
		tableName: tableName,
	}
}

// cleanupTable deletes the test table
func cleanupTable(t *testing.T, setup *testSetup) {
	ctx := context.Background()
	_, err := setup.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(setup.tableName),
	})
	if err != nil {
		t.Logf("failed to delete table: %v", err)
	}
}

// Integration Tests

func TestDAO_CreateAndFind(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() {
		cleanupTable(t, setup)
	})

	ctx := context.Background()
	sk := ksuid.New().String()

	input := CreateInput{
		App:      "pitch",
		Pipeline: "backend",
		SK:       sk,
		Version:  "v42",
		Bucket:   "deploy-bucket",
		Key:      "releases/v42.zip",
	}

	created, err := setup.dao.Create(ctx, input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if created.App != input.App {
		t.Errorf("created.App = %v, want %v", created.App, input.App)
	}
	if created.Status != ReleaseStatusInProgress {
		t.Errorf("created.Status = %v, want %v", created.Status, ReleaseStatusInProgress)
	}
	if created.CreatedAt == 0 {
		t.Error("created.CreatedAt should be set")
	}
	if created.UpdatedAt == 0 {
		t.Error("created.UpdatedAt should be set")
	}

	pk := NewPK("pitch", "backend")
	id := NewID(pk, sk)
	found, err := setup.dao.Find(ctx, id)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	if found.Version != input.Version {
		t.Errorf("found.Version = %v, want %v", found.Version, input.Version)
	}
	if found.Key != input.Key {
		t.Errorf("found.Key = %v, want %v", found.Key, input.Key)
	}
}

func TestDAO_Find_NotFound(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() {
		cleanupTable(t, setup)
	})

	ctx := context.Background()
	pk := NewPK("non-existent", "backend")
	id := NewID(pk, "non-existent-ksuid")

	_, err := setup.dao.Find(ctx, id)
	if !errors.Is(err, deployerrors.ErrReleaseNotFound) {
		t.Fatalf("Find error = %v, want %v", err, deployerrors.ErrReleaseNotFound)
	}
}

func TestDAO_Delete(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() {
		cleanupTable(t, setup)
	})

	ctx := context.Background()
	sk := ksuid.New().String()

	_, err := setup.dao.Create(ctx, CreateInput{
		App:      "pitch",
		Pipeline: "backend",
		SK:       sk,
		Version:  "v42",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pk := NewPK("pitch", "backend")
	id := NewID(pk, sk)
	if err := setup.dao.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := setup.dao.Find(ctx, id); err == nil {
		t.Fatal("Find should return error after delete")
	}
}

func TestDAO_UpdateStatus_Success(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() {
		cleanupTable(t, setup)
	})

	ctx := context.Background()
	sk := ksuid.New().String()

	_, err := setup.dao.Create(ctx, CreateInput{
		App:      "pitch",
		Pipeline: "backend",
		SK:       sk,
		Version:  "v42",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pk := NewPK("pitch", "backend")
	status := ReleaseStatusSuccess
	err = setup.dao.UpdateStatus(ctx, UpdateInput{
		PK:     pk,
		SK:     sk,
		Status: &status,
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	id := NewID(pk, sk)
	updated, err := setup.dao.Find(ctx, id)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	if updated.Status != ReleaseStatusSuccess {
		t.Errorf("updated.Status = %v, want %v", updated.Status, ReleaseStatusSuccess)
	}
	if updated.FinishedAt == nil {
		t.Error("updated.FinishedAt should be set for SUCCESS status")
	}
}

func TestDAO_UpdateStatus_Failure(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() {
		cleanupTable(t, setup)
	})

	ctx := context.Background()
	sk := ksuid.New().String()

	_, err := setup.dao.Create(ctx, CreateInput{
		App:      "pitch",
		Pipeline: "backend",
		SK:       sk,
		Version:  "v42",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pk := NewPK("pitch", "backend")
	status := ReleaseStatusFailed
	errorMsg := "upload: failed to upload bundle to s3://deploy-bucket/releases/v42.zip: access denied"
	err = setup.dao.UpdateStatus(ctx, UpdateInput{
		PK:       pk,
		SK:       sk,
		Status:   &status,
		ErrorMsg: &errorMsg,
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	id := NewID(pk, sk)
	updated, err := setup.dao.Find(ctx, id)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	if updated.Status != ReleaseStatusFailed {
		t.Errorf("updated.Status = %v, want %v", updated.Status, ReleaseStatusFailed)
	}
	if updated.ErrorMsg == nil {
		t.Fatal("updated.ErrorMsg should be set for FAILED status")
	}
	if *updated.ErrorMsg != errorMsg {
		t.Errorf("updated.ErrorMsg = %v, want %v", *updated.ErrorMsg, errorMsg)
	}
	if updated.FinishedAt == nil {
		t.Error("updated.FinishedAt should be set for FAILED status")
	}
}

func TestDAO_UpdateStatus_InvalidationID(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() {
		cleanupTable(t, setup)
	})

	ctx := context.Background()
	sk := ksuid.New().String()

	_, err := setup.dao.Create(ctx, CreateInput{
		App:            "pitch",
		Pipeline:       "frontend",
		SK:             sk,
		Bucket:         "site-bucket",
		DistributionID: "E2ABCDEF123456",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pk := NewPK("pitch", "frontend")
	status := ReleaseStatusSuccess
	invalidationID := "I2J3K4L5M6N7O8"
	err = setup.dao.UpdateStatus(ctx, UpdateInput{
		PK:             pk,
		SK:             sk,
		Status:         &status,
		InvalidationID: &invalidationID,
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	id := NewID(pk, sk)
	updated, err := setup.dao.Find(ctx, id)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	if updated.InvalidationID != invalidationID {
		t.Errorf("updated.InvalidationID = %v, want %v", updated.InvalidationID, invalidationID)
	}
}

func TestDAO_UpdateStatus_CreatesLatestRecord(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() {
		cleanupTable(t, setup)
	})

	ctx := context.Background()
	sk := ksuid.New().String()

	_, err := setup.dao.Create(ctx, CreateInput{
		App:      "pitch",
		Pipeline: "backend",
		SK:       sk,
		Version:  "v42",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pk := NewPK("pitch", "backend")
	status := ReleaseStatusSuccess
	err = setup.dao.UpdateStatus(ctx, UpdateInput{
		PK:     pk,
		SK:     sk,
		Status: &status,
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	// Verify latest record was created
	latestPK := NewPK(latest, "pitch")
	latestID := NewID(latestPK, pk.String())
	latestRecord, err := setup.dao.Find(ctx, latestID)
	if err != nil {
		t.Fatalf("Find latest record failed: %v", err)
	}

	if latestRecord.App != "pitch" {
		t.Errorf("latestRecord.App = %v, want pitch", latestRecord.App)
	}
	if latestRecord.Pipeline != "backend" {
		t.Errorf("latestRecord.Pipeline = %v, want backend", latestRecord.Pipeline)
	}
	if latestRecord.Status != ReleaseStatusSuccess {
		t.Errorf("latestRecord.Status = %v, want %v", latestRecord.Status, ReleaseStatusSuccess)
	}
}

func TestDAO_Query(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() {
		cleanupTable(t, setup)
	})

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := setup.dao.Create(ctx, CreateInput{
			App:      "pitch",
			Pipeline: "backend",
			SK:       ksuid.New().String(),
			Version:  "v42",
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	pk := NewPK("pitch", "backend")
	records, err := setup.dao.Query(ctx, pk)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(records) != 3 {
		t.Errorf("Query returned %d records, want 3", len(records))
	}
}

func TestDAO_QueryByPipeline(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() {
		cleanupTable(t, setup)
	})

	ctx := context.Background()

	for _, pipeline := range []string{"backend", "frontend"} {
		_, err := setup.dao.Create(ctx, CreateInput{
			App:      "pitch",
			Pipeline: pipeline,
			SK:       ksuid.New().String(),
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	records, err := setup.dao.QueryByPipeline(ctx, "pitch", "backend")
	if err != nil {
		t.Fatalf("QueryByPipeline failed: %v", err)
	}

	if len(records) != 1 {
		t.Errorf("QueryByPipeline returned %d records, want 1", len(records))
	}
	if records[0].Pipeline != "backend" {
		t.Errorf("records[0].Pipeline = %v, want backend", records[0].Pipeline)
	}
}

func TestDAO_QueryRecent(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() {
		cleanupTable(t, setup)
	})

	ctx := context.Background()

	sks := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		sk := ksuid.New().String()
		sks = append(sks, sk)

		_, err := setup.dao.Create(ctx, CreateInput{
			App:      "pitch",
			Pipeline: "backend",
			SK:       sk,
			Version:  "v42",
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	// Range key order, oldest first
	slices.Sort(sks)

	pk := NewPK("pitch", "backend")
	records, err := setup.dao.QueryRecent(ctx, pk, 2)
	if err != nil {
		t.Fatalf("QueryRecent failed: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("QueryRecent returned %d records, want 2", len(records))
	}
	if records[0].SK != sks[2] {
		t.Errorf("records[0].SK = %v, want newest %v", records[0].SK, sks[2])
	}
	if records[1].SK != sks[1] {
		t.Errorf("records[1].SK = %v, want %v", records[1].SK, sks[1])
	}
}

func TestDAO_QueryLatest(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() {
		cleanupTable(t, setup)
	})

	ctx := context.Background()

	pipelines := []string{"backend", "frontend"}
	for _, pipeline := range pipelines {
		sk := ksuid.New().String()

		_, err := setup.dao.Create(ctx, CreateInput{
			App:      "pitch",
			Pipeline: pipeline,
			SK:       sk,
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		pk := NewPK("pitch", pipeline)
		status := ReleaseStatusSuccess
		err = setup.dao.UpdateStatus(ctx, UpdateInput{
			PK:     pk,
			SK:     sk,
			Status: &status,
		})
		if err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}

		// Small delay to ensure different UpdatedAt timestamps
		time.Sleep(10 * time.Millisecond)
	}

	latestReleases, err := setup.dao.QueryLatest(ctx, "pitch")
	if err != nil {
		t.Fatalf("QueryLatest failed: %v", err)
	}

	if len(latestReleases) != 2 {
		t.Errorf("QueryLatest returned %d records, want 2", len(latestReleases))
	}

	// Verify they are sorted by UpdatedAt descending (most recent first)
	for i := 0; i < len(latestReleases)-1; i++ {
		if latestReleases[i].UpdatedAt < latestReleases[i+1].UpdatedAt {
			t.Errorf("Latest releases not sorted by UpdatedAt descending: %d < %d",
				latestReleases[i].UpdatedAt, latestReleases[i+1].UpdatedAt)
		}
	}

	foundPipelines := make(map[string]bool)
	for _, release := range latestReleases {
		foundPipelines[release.Pipeline] = true
	}
	for _, pipeline := range pipelines {
		if !foundPipelines[pipeline] {
			t.Errorf("Latest releases missing pipeline: %s", pipeline)
		}
	}
}

func TestDAO_QueryLatest_MultipleUpdates(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() {
		cleanupTable(t, setup)
	})

	ctx := context.Background()

	sk1 := ksuid.New().String()
	sk2 := ksuid.New().String()

	_, err := setup.dao.Create(ctx, CreateInput{
		App:      "pitch",
		Pipeline: "backend",
		SK:       sk1,
		Version:  "v41",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pk := NewPK("pitch", "backend")
	status1 := ReleaseStatusSuccess
	err = setup.dao.UpdateStatus(ctx, UpdateInput{
		PK:     pk,
		SK:     sk1,
		Status: &status1,
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	_, err = setup.dao.Create(ctx, CreateInput{
		App:      "pitch",
		Pipeline: "backend",
		SK:       sk2,
		Version:  "v42",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	status2 := ReleaseStatusSuccess
	err = setup.dao.UpdateStatus(ctx, UpdateInput{
		PK:     pk,
		SK:     sk2,
		Status: &status2,
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	// The latest record for the pipeline should point at the second release
	latestReleases, err := setup.dao.QueryLatest(ctx, "pitch")
	if err != nil {
		t.Fatalf("QueryLatest failed: %v", err)
	}

	if len(latestReleases) != 1 {
		t.Fatalf("QueryLatest returned %d records, want 1", len(latestReleases))
	}
	if latestReleases[0].Version != "v42" {
		t.Errorf("Latest release version = %v, want v42", latestReleases[0].Version)
	}
}
