package certificate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "verifyd/pkg/domain"
	"verifyd/pkg/platform/sentinel"
)

func storedCert(status Status) *Certificate {
	return &Certificate{
		ID:               id.NewCertificateID(),
		OwnerIdentity:    id.Identity("alice@example.com"),
		OriginalFilename: "clip.mp4",
		Fingerprint:      "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae",
		Score:            42,
		Status:           status,
		ArtifactRef:      id.ArtifactRef("staging/clip.mp4"),
		CreatedAt:        time.Now().UTC(),
	}
}

func TestInMemoryStore_CreateNeverOverwrites(t *testing.T) {
	store := NewInMemoryStore()
	cert := storedCert(StatusReview)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, cert))

	duplicate := *cert
	duplicate.Score = 99
	err := store.Create(ctx, &duplicate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrConflict))

	stored, err := store.Get(ctx, cert.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, stored.Score)
}

func TestInMemoryStore_CertifyRejectsCertified(t *testing.T) {
	store := NewInMemoryStore()
	cert := storedCert(StatusReview)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, cert))

	ref := id.ArtifactRef("certified/" + cert.ID.String() + ".mp4")
	_, err := store.Certify(ctx, cert.ID, ref, time.Now().UTC())
	require.NoError(t, err)

	_, err = store.Certify(ctx, cert.ID, ref, time.Now().UTC())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrInvalidState))
}

func TestInMemoryStore_CertifyUnknownID(t *testing.T) {
	store := NewInMemoryStore()

	_, err := store.Certify(context.Background(), id.NewCertificateID(), id.ArtifactRef("certified/x.mp4"), time.Now().UTC())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewInMemoryStore()
	cert := storedCert(StatusReview)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, cert))

	loaded, err := store.Get(ctx, cert.ID)
	require.NoError(t, err)
	loaded.Status = StatusCertified

	fresh, err := store.Get(ctx, cert.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReview, fresh.Status)
}
