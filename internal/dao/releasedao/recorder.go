package releasedao

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
)

// Recorder writes release history around a deploy without ever failing the
// deploy itself. A Recorder with no DAO (history disabled) is a no-op.
type Recorder struct {
	dao *DAO
}

// NewRecorder creates a Recorder backed by dao, which may be nil
func NewRecorder(dao *DAO) *Recorder {
	return &Recorder{dao: dao}
}

// Enabled reports whether releases are being recorded
func (r *Recorder) Enabled() bool {
	return r != nil && r.dao != nil
}

// Started records a new IN_PROGRESS release and returns its ID. On failure it
// logs a warning and returns an empty ID.
func (r *Recorder) Started(ctx context.Context, input CreateInput) ID {
	if !r.Enabled() {
		return ""
	}

	record, err := r.dao.Create(ctx, input)
	if err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("app", input.App).
			Str("pipeline", input.Pipeline).
			Msg("failed to record release start")
		return ""
	}

	return record.GetID()
}

// Finished marks a recorded release as SUCCESS or FAILED depending on runErr.
// The optional invalidationID is attached when the CDN step produced one.
func (r *Recorder) Finished(ctx context.Context, id ID, runErr error, invalidationID string) {
	if !r.Enabled() || id == "" {
		return
	}

	pk, sk, err := ParseID(id)
	if err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Stringer("id", id).
			Msg("failed to record release result")
		return
	}

	status := ReleaseStatusSuccess
	if runErr != nil {
		status = ReleaseStatusFailed
	}

	input := UpdateInput{
		PK:     pk,
		SK:     sk,
		Status: &status,
	}
	if runErr != nil {
		input.ErrorMsg = aws.String(runErr.Error())
	}
	if invalidationID != "" {
		input.InvalidationID = aws.String(invalidationID)
	}

	if err := r.dao.UpdateStatus(ctx, input); err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Stringer("id", id).
			Msg("failed to record release result")
	}
}
