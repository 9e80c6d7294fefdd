package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveshare/rental-booking/internal/workflow"
)

func TestProfileDocumentsPrefillNewDrafts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u, err := h.svc.UploadProfileDocument(ctx, 7, workflow.DocumentLicense, pngBytes)
	require.NoError(t, err)
	assert.Contains(t, u.DriversLicenseURL, "users/7/")
	assert.Empty(t, u.IDDocumentURL)
	u, err = h.svc.UploadProfileDocument(ctx, 7, workflow.DocumentID, pngBytes)
	require.NoError(t, err)
	assert.NotEmpty(t, u.IDDocumentURL)

	v, err := h.svc.Create(ctx, 7, seedQuery())
	require.NoError(t, err)
	assert.Equal(t, u.DriversLicenseURL, v.Draft.DriversLicense)
	assert.Equal(t, u.IDDocumentURL, v.Draft.IDDocument)

	// the documents stage passes without another upload
	_, err = h.svc.Advance(ctx, 7, v.ID)
	require.NoError(t, err)
	v, err = h.svc.Advance(ctx, 7, v.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StagePayment, v.Stage)

	other, err := h.svc.Create(ctx, 8, seedQuery())
	require.NoError(t, err)
	assert.Empty(t, other.Draft.DriversLicense)
	assert.Empty(t, other.Draft.IDDocument)
}

func TestProfileDocumentFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.UploadProfileDocument(ctx, 7, workflow.DocumentID, []byte("plain text"))
	var se *workflow.StorageError
	require.ErrorAs(t, err, &se)

	h.users.setErr = errors.New("db down")
	_, err = h.svc.UploadProfileDocument(ctx, 7, workflow.DocumentID, pngBytes)
	var pe *workflow.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, workflow.OpSaveProfile, pe.Op)
	assert.Equal(t, "Failed to update profile.", pe.UserMessage())

	p, err := h.svc.Profile(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, p.IDDocumentURL)
}
