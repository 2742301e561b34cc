package services

import (
	"errors"
	"testing"

	"stress-detect-go/config"
	"stress-detect-go/internal/core/models"
	"stress-detect-go/internal/db"
	"stress-detect-go/internal/db/repository"
	"stress-detect-go/internal/debug"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	calls []string
	err   error
}

func (p *recordingPublisher) PublishResult(subject, recordID string, _ *models.DetectionResult) error {
	p.calls = append(p.calls, subject+"|"+recordID)
	return p.err
}

func okResult() *models.DetectionResult {
	return &models.DetectionResult{
		Success:        true,
		FacesDetected:  1,
		Faces:          []models.FaceResult{{Region: models.Region{W: 30, H: 30}, Score: 66, Category: models.CategoryMedium}},
		AnnotatedImage: &models.EncodedImage{MIME: "image/jpeg", Data: []byte{1, 2, 3}},
	}
}

func TestRecordStoresEverywhere(t *testing.T) {
	database, err := db.Open(config.DBConfig{File: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })
	repo := repository.NewSQLiteRepository(database)

	dbg := debug.NewService(5)
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewResultService(repo, dbg, NewNotifierService(pub, nil))
	assert.True(t, svc.HasHistory())

	id := svc.Record("alice", SourceUpload, okResult())
	require.NotEmpty(t, id)

	rec, err := repo.GetRecordByID(id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 66.0, rec.Score)
	assert.Equal(t, SourceUpload, rec.Source)

	require.NotNil(t, dbg.Get(id))
	assert.Equal(t, []string{"alice|" + id}, pub.calls)
}

func TestRecordFailureOnlyNotifies(t *testing.T) {
	dbg := debug.NewService(5)
	pub := &recordingPublisher{}
	svc := NewResultService(nil, dbg, NewNotifierService(pub))

	id := svc.Record("bob", SourceWebcam, &models.DetectionResult{Success: false, ErrorCode: "no_face_detected"})
	assert.Empty(t, id)
	assert.Zero(t, dbg.Len())
	assert.Equal(t, []string{"bob|"}, pub.calls)
}

func TestRecordWithoutCollaborators(t *testing.T) {
	svc := NewResultService(nil, nil, nil)
	assert.False(t, svc.HasHistory())
	assert.NotEmpty(t, svc.Record("", SourceUpload, okResult()))

	var nilSvc *ResultService
	assert.Empty(t, nilSvc.Record("x", SourceUpload, okResult()))
	assert.Nil(t, nilSvc.Repository())
}
