package sink

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fentz26/litscreen/internal/export"
	"github.com/fentz26/litscreen/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func completedTask() *models.Task {
	return &models.Task{
		ID:     "task-1",
		Status: models.TaskStatusCompleted,
		Result: &models.Result{
			Kept:      []models.Record{{Title: "Kept", Abstract: "a", SourceTitle: "j"}},
			Stats:     models.ScreeningStats{Kept: 1},
			Timestamp: "20240102_030405",
		},
	}
}

func TestUpload(t *testing.T) {
	fake := &fakeS3{}
	s := New(fake, "results", "/screening/", export.FormatCSV, nil)

	key, err := s.Upload(context.Background(), completedTask())
	require.NoError(t, err)
	assert.Equal(t, "screening/task-1/screening_results_20240102_030405.zip", key)

	require.Len(t, fake.inputs, 1)
	in := fake.inputs[0]
	assert.Equal(t, "results", aws.ToString(in.Bucket))
	assert.Equal(t, "application/zip", aws.ToString(in.ContentType))
	assert.Equal(t, "1", in.Metadata["kept"])

	zr, err := zip.NewReader(bytes.NewReader(fake.bodies[0]), int64(len(fake.bodies[0])))
	require.NoError(t, err)
	assert.Len(t, zr.File, 2)
}

func TestUpload_RejectsUnfinishedTask(t *testing.T) {
	s := New(&fakeS3{}, "results", "", export.FormatCSV, nil)
	_, err := s.Upload(context.Background(), &models.Task{ID: "x", Status: models.TaskStatusError})
	assert.Error(t, err)
}

func TestOnComplete(t *testing.T) {
	fake := &fakeS3{}
	s := New(fake, "results", "", export.FormatRIS, nil)

	s.OnComplete(context.Background(), &models.Task{ID: "failed", Status: models.TaskStatusError})
	assert.Empty(t, fake.inputs)

	s.OnComplete(context.Background(), completedTask())
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "task-1/screening_results_20240102_030405.zip", aws.ToString(fake.inputs[0].Key))

	// Upload errors are swallowed.
	fake.err = errors.New("access denied")
	s.OnComplete(context.Background(), completedTask())
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), Config{}, nil)
	assert.Error(t, err)

	_, err = NewS3(context.Background(), Config{Bucket: "b", Format: "pdf"}, nil)
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
}
