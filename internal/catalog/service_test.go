package catalog

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	roles     []Role
	suppliers []Supplier
	codes     map[string][]LabeledCode

	roleCalls int
	codeCalls int
}

func (f *fakeSource) Roles(context.Context) ([]Role, error) {
	f.roleCalls++
	return f.roles, nil
}

func (f *fakeSource) Suppliers(context.Context) ([]Supplier, error) {
	return f.suppliers, nil
}

func (f *fakeSource) Codes(_ context.Context, kind string) ([]LabeledCode, error) {
	f.codeCalls++
	return f.codes[kind], nil
}

func newTestService(t *testing.T, source Source) (*Service, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewService(source, client, time.Minute)
	return svc, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestRolesAreServedFromCacheAfterFirstLoad(t *testing.T) {
	source := &fakeSource{roles: []Role{
		{ID: "role-pvc", Key: "pvc", Name: "PVC", RequiresGlass: true},
		{ID: "role-rail", Key: "korkuluk", Name: "Korkuluk"},
	}}
	svc, cleanup := newTestService(t, source)
	defer cleanup()
	ctx := context.Background()

	roles, err := svc.Roles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	require.Equal(t, 1, source.roleCalls)

	role, err := svc.Role(ctx, "role-pvc")
	require.NoError(t, err)
	require.True(t, role.RequiresGlass)
	require.Equal(t, 1, source.roleCalls)

	_, err = svc.Role(ctx, "role-ahsap")
	require.ErrorIs(t, err, ErrRoleNotFound)
}

func TestNilCacheFallsThroughToSource(t *testing.T) {
	source := &fakeSource{roles: []Role{{ID: "role-pvc", Name: "PVC"}}}
	svc := NewService(source, nil, 0)
	ctx := context.Background()

	_, err := svc.Roles(ctx)
	require.NoError(t, err)
	_, err = svc.Roles(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, source.roleCalls)
}

func TestDefaultSupplierResolution(t *testing.T) {
	source := &fakeSource{
		roles: []Role{
			{ID: "role-pvc", Name: "PVC", DefaultSupplierID: "sup-cam"},
			{ID: "role-rail", Name: "Korkuluk"},
		},
		suppliers: []Supplier{{ID: "sup-cam", Name: "Cam A.Ş.", Kind: "glass"}},
	}
	svc, cleanup := newTestService(t, source)
	defer cleanup()
	ctx := context.Background()

	sup, ok, err := svc.DefaultSupplier(ctx, "role-pvc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Cam A.Ş.", sup.Name)

	_, ok, err = svc.DefaultSupplier(ctx, "role-rail")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLabelFallsBackToGenericForUnknownCodes(t *testing.T) {
	source := &fakeSource{codes: map[string][]LabeledCode{
		CodeKindCancelReason: {{Code: "price_high", Label: "Fiyat yüksek bulundu"}},
	}}
	svc, cleanup := newTestService(t, source)
	defer cleanup()
	ctx := context.Background()

	require.Equal(t, "Fiyat yüksek bulundu", svc.Label(ctx, CodeKindCancelReason, "price_high"))
	require.Equal(t, GenericLabel, svc.Label(ctx, CodeKindCancelReason, "moved_abroad"))

	require.True(t, svc.KnownCode(ctx, CodeKindCancelReason, "price_high"))
	require.False(t, svc.KnownCode(ctx, CodeKindCancelReason, "moved_abroad"))
	// per-kind sets cache independently
	require.False(t, svc.KnownCode(ctx, CodeKindIssueType, "price_high"))
	require.Equal(t, 2, source.codeCalls)
}
