package certificate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "verifyd/pkg/domain"
	dErrors "verifyd/pkg/domain-errors"
)

func newTestRegistry(t *testing.T, threshold int) *Registry {
	t.Helper()
	registry, err := NewRegistry(NewInMemoryStore(), threshold)
	require.NoError(t, err)
	return registry
}

func validParams(score int) CreateParams {
	return CreateParams{
		OwnerIdentity:    id.Identity("alice@example.com"),
		OriginalFilename: "clip.mp4",
		Fingerprint:      "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae",
		Score:            score,
		ArtifactRef:      id.ArtifactRef("staging/clip.mp4"),
	}
}

func TestNewRegistry_RequiresStore(t *testing.T) {
	_, err := NewRegistry(nil, 80)
	require.Error(t, err)
}

func TestNewRegistry_RejectsThresholdOutOfRange(t *testing.T) {
	_, err := NewRegistry(NewInMemoryStore(), 101)
	require.Error(t, err)
	_, err = NewRegistry(NewInMemoryStore(), -1)
	require.Error(t, err)
}

func TestRegistry_CreateAlwaysParksInReview(t *testing.T) {
	registry := newTestRegistry(t, 80)
	ctx := context.Background()

	// Even a qualifying score starts in REVIEW: CERTIFIED only becomes
	// visible together with the stamped artifact ref, via Approve.
	for _, score := range []int{95, 80, 79, 0} {
		cert, err := registry.Create(ctx, validParams(score))
		require.NoError(t, err)
		assert.Equal(t, StatusReview, cert.Status)
		assert.False(t, cert.ID.IsNil())
		assert.Nil(t, cert.CertifiedAt)
	}
}

func TestRegistry_AutoCertifies(t *testing.T) {
	registry := newTestRegistry(t, 80)

	tests := []struct {
		name  string
		score int
		want  bool
	}{
		{"above threshold", 95, true},
		{"at threshold", 80, true},
		{"below threshold", 79, false},
		{"zero score", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, registry.AutoCertifies(tt.score))
		})
	}
}

func TestRegistry_CreateValidatesInput(t *testing.T) {
	registry := newTestRegistry(t, 80)
	ctx := context.Background()

	params := validParams(50)
	params.Fingerprint = ""
	_, err := registry.Create(ctx, params)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	params = validParams(50)
	params.ArtifactRef = ""
	_, err = registry.Create(ctx, params)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	params = validParams(101)
	_, err = registry.Create(ctx, params)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestRegistry_CreateAssignsUniqueIDs(t *testing.T) {
	registry := newTestRegistry(t, 80)
	ctx := context.Background()

	first, err := registry.Create(ctx, validParams(50))
	require.NoError(t, err)
	second, err := registry.Create(ctx, validParams(50))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRegistry_GetUnknownID(t *testing.T) {
	registry := newTestRegistry(t, 80)

	_, err := registry.Get(context.Background(), id.NewCertificateID())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRegistry_ApproveTransitionsAndSwapsArtifact(t *testing.T) {
	registry := newTestRegistry(t, 80)
	ctx := context.Background()

	cert, err := registry.Create(ctx, validParams(40))
	require.NoError(t, err)
	require.Equal(t, StatusReview, cert.Status)

	stamped := id.ArtifactRef("certified/" + cert.ID.String() + ".mp4")
	updated, err := registry.Approve(ctx, cert.ID, func(context.Context, *Certificate) (id.ArtifactRef, error) {
		return stamped, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCertified, updated.Status)
	assert.Equal(t, stamped, updated.ArtifactRef)
	assert.NotNil(t, updated.CertifiedAt)

	// The stored record reflects both changes together.
	stored, err := registry.Get(ctx, cert.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCertified, stored.Status)
	assert.Equal(t, stamped, stored.ArtifactRef)
}

func TestRegistry_ApproveUnknownID(t *testing.T) {
	registry := newTestRegistry(t, 80)

	_, err := registry.Approve(context.Background(), id.NewCertificateID(), func(context.Context, *Certificate) (id.ArtifactRef, error) {
		t.Fatal("produce must not run for unknown ids")
		return "", nil
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRegistry_ApproveIsIdempotent(t *testing.T) {
	registry := newTestRegistry(t, 80)
	ctx := context.Background()

	cert, err := registry.Create(ctx, validParams(40))
	require.NoError(t, err)

	stamped := id.ArtifactRef("certified/" + cert.ID.String() + ".mp4")
	var produceCalls atomic.Int32
	produce := func(context.Context, *Certificate) (id.ArtifactRef, error) {
		produceCalls.Add(1)
		return stamped, nil
	}

	first, err := registry.Approve(ctx, cert.ID, produce)
	require.NoError(t, err)
	second, err := registry.Approve(ctx, cert.ID, produce)
	require.NoError(t, err)

	assert.Equal(t, int32(1), produceCalls.Load())
	assert.Equal(t, first.ArtifactRef, second.ArtifactRef)
	assert.Equal(t, StatusCertified, second.Status)
}

func TestRegistry_ConcurrentApprovesProduceOnce(t *testing.T) {
	registry := newTestRegistry(t, 80)
	ctx := context.Background()

	cert, err := registry.Create(ctx, validParams(40))
	require.NoError(t, err)

	stamped := id.ArtifactRef("certified/" + cert.ID.String() + ".mp4")
	var produceCalls atomic.Int32

	const callers = 20
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			result, err := registry.Approve(ctx, cert.ID, func(context.Context, *Certificate) (id.ArtifactRef, error) {
				produceCalls.Add(1)
				return stamped, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, StatusCertified, result.Status)
			assert.Equal(t, stamped, result.ArtifactRef)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), produceCalls.Load())
}

func TestRegistry_ApprovePropagatesProduceError(t *testing.T) {
	registry := newTestRegistry(t, 80)
	ctx := context.Background()

	cert, err := registry.Create(ctx, validParams(40))
	require.NoError(t, err)

	wantErr := dErrors.New(dErrors.CodeStampingFailed, "video stamping failed")
	_, err = registry.Approve(ctx, cert.ID, func(context.Context, *Certificate) (id.ArtifactRef, error) {
		return "", wantErr
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStampingFailed))

	// The record stays in REVIEW, available for a retry.
	stored, err := registry.Get(ctx, cert.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReview, stored.Status)
}

func TestRegistry_DeleteRemovesRecord(t *testing.T) {
	registry := newTestRegistry(t, 80)
	ctx := context.Background()

	cert, err := registry.Create(ctx, validParams(95))
	require.NoError(t, err)

	require.NoError(t, registry.Delete(ctx, cert.ID))

	_, err = registry.Get(ctx, cert.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	err = registry.Delete(ctx, cert.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
