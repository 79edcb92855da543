package ledger

import (
	"context"
	"testing"

	"github.com/angelmondragon/credstock/pkg/db/models"
	"github.com/angelmondragon/credstock/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultInventoryIsProtected(t *testing.T) {
	store, _, _ := newTestStore(t)
	err := store.DeleteInventory(context.Background(), models.DefaultInventoryID)
	assert.ErrorIs(t, err, ErrProtectedInventory)
}

func TestDeleteInventoryRequiresEmpty(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	inv, err := store.CreateInventory(ctx, "Netflix", "shared accounts")
	require.NoError(t, err)
	_, err = store.InsertProducts(ctx, inv.ID, []string{"x"})
	require.NoError(t, err)

	assert.ErrorIs(t, store.DeleteInventory(ctx, inv.ID), ErrInventoryNotEmpty)

	page, err := store.ListProducts(ctx, ProductFilter{InventoryID: &inv.ID})
	require.NoError(t, err)
	_, err = store.DeleteProducts(ctx, []int64{page.Products[0].ID})
	require.NoError(t, err)

	require.NoError(t, store.DeleteInventory(ctx, inv.ID))
	_, err = store.GetInventory(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrInventoryNotFound)
	assert.ErrorIs(t, store.DeleteInventory(ctx, inv.ID), ErrInventoryNotFound)
}

func TestCreateAndUpdateInventory(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateInventory(ctx, "ExpressVPN", "")
	assert.ErrorIs(t, err, ErrDuplicateInventory)

	inv, err := store.CreateInventory(ctx, " Spotify ", "")
	require.NoError(t, err)
	assert.Equal(t, "Spotify", inv.Name)

	name := "Spotify Family"
	inactive := false
	updated, err := store.UpdateInventory(ctx, inv.ID, UpdateInventoryInput{Name: &name, Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.False(t, updated.Active)

	_, err = store.UpdateInventory(ctx, 999, UpdateInventoryInput{Name: &name})
	assert.ErrorIs(t, err, ErrInventoryNotFound)
}

func TestInsertProductsRequiresInventory(t *testing.T) {
	store, _, _ := newTestStore(t)
	_, err := store.InsertProducts(context.Background(), 404, []string{"x"})
	assert.ErrorIs(t, err, ErrInventoryNotFound)
}

func TestStatsAndPaging(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	n, err := store.InsertProducts(ctx, 1, []string{"a", " ", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "blank lines are skipped")
	_, err = store.InsertProducts(ctx, 2, []string{"d"})
	require.NoError(t, err)
	_, err = allocate(t, store, bucket(1), 1, "ORD-1")
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(3), stats.Available)
	assert.Equal(t, int64(1), stats.Sold)
	require.Len(t, stats.Inventories, 3)
	assert.Equal(t, int64(3), stats.Inventories[0].Total)
	assert.Equal(t, int64(0), stats.Inventories[2].Total)

	first, err := store.ListProducts(ctx, ProductFilter{Page: pageParams(2, "")})
	require.NoError(t, err)
	require.Len(t, first.Products, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := store.ListProducts(ctx, ProductFilter{Page: pageParams(2, first.NextCursor)})
	require.NoError(t, err)
	require.Len(t, second.Products, 2)
	assert.Empty(t, second.NextCursor)
	assert.Greater(t, second.Products[0].ID, first.Products[1].ID)

	unsold := false
	available, err := store.ListProducts(ctx, ProductFilter{Sold: &unsold})
	require.NoError(t, err)
	assert.Len(t, available.Products, 3)

	removed, err := store.DeleteSoldProducts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func pageParams(limit int, cursor string) pagination.Params {
	return pagination.Params{Limit: limit, Cursor: cursor}
}

func TestDeleteByContentsMatchesExactThenAccountPrefix(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	const trial = int64(2)
	_, err := store.InsertProducts(ctx, trial, []string{
		"alice@mail.test|pw1|2026",
		"bob@mail.test|pw2",
		"bob@mail.test|pw2|extra",
		"carol_x@mail.test|pw3",
	})
	require.NoError(t, err)
	_, err = store.InsertProducts(ctx, models.DefaultInventoryID, []string{"dave@mail.test|pw4"})
	require.NoError(t, err)

	res, err := store.DeleteByContents(ctx, trial, []string{
		"bob@mail.test|pw2|extra",
		"alice@mail.test|changed",
		"car_l_x@mail.test",
		"dave@mail.test|pw4",
		"no-at-sign",
		"  ",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Deleted)
	assert.Equal(t, []string{"car_l_x@mail.test", "dave@mail.test|pw4", "no-at-sign"}, res.NotFound)

	page, err := store.ListProducts(ctx, ProductFilter{InventoryID: bucket(trial)})
	require.NoError(t, err)
	remaining := make([]string, 0, len(page.Products))
	for _, p := range page.Products {
		remaining = append(remaining, p.Content)
	}
	assert.Equal(t, []string{"bob@mail.test|pw2", "carol_x@mail.test|pw3"}, remaining)

	n, err := store.CountAvailable(ctx, bucket(models.DefaultInventoryID))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDeleteByContentsRequiresInventory(t *testing.T) {
	store, _, _ := newTestStore(t)
	_, err := store.DeleteByContents(context.Background(), 404, []string{"x"})
	assert.ErrorIs(t, err, ErrInventoryNotFound)
}
