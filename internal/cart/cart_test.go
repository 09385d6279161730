package cart

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danceBack/internal/models"
)

func newGuestStore(t *testing.T) (*GuestStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewGuestStore(rdb, time.Hour), mr
}

func course(id int64, qty int) models.CartItem {
	return models.CartItem{
		ItemType: models.ItemTypeCourse,
		ItemID:   id,
		Title:    "Course " + strconv.FormatInt(id, 10),
		Price:    decimal.NewFromInt(20),
		Quantity: qty,
	}
}

// memoryStore is an AccountStore kept in a slice.
type memoryStore struct {
	nextID int
	items  map[int64][]models.CartItem
}

func newMemoryStore() *memoryStore { return &memoryStore{items: map[int64][]models.CartItem{}} }

func (m *memoryStore) List(_ context.Context, userID int64) ([]models.CartItem, error) {
	return append([]models.CartItem{}, m.items[userID]...), nil
}

func (m *memoryStore) Add(_ context.Context, userID int64, item models.CartItem) error {
	for i, it := range m.items[userID] {
		if it.SameProduct(item) {
			m.items[userID][i].Quantity += item.Quantity
			return nil
		}
	}
	m.nextID++
	item.ID = strconv.Itoa(m.nextID)
	m.items[userID] = append(m.items[userID], item)
	return nil
}

func (m *memoryStore) Remove(_ context.Context, userID int64, id string) error {
	for i, it := range m.items[userID] {
		if it.ID == id {
			m.items[userID] = append(m.items[userID][:i], m.items[userID][i+1:]...)
			return nil
		}
	}
	return models.ErrCartItemNotFound
}

func (m *memoryStore) SetQuantity(_ context.Context, userID int64, id string, qty int) error {
	for i, it := range m.items[userID] {
		if it.ID == id {
			m.items[userID][i].Quantity = qty
			return nil
		}
	}
	return models.ErrCartItemNotFound
}

func (m *memoryStore) Clear(_ context.Context, userID int64) error {
	delete(m.items, userID)
	return nil
}

func TestGuestCartOperations(t *testing.T) {
	ctx := context.Background()
	store, mr := newGuestStore(t)
	c := store.Cart("guest-1")

	require.NoError(t, c.Add(ctx, course(1, 1)))
	require.NoError(t, c.Add(ctx, course(1, 2)))
	require.NoError(t, c.Add(ctx, models.CartItem{ItemType: models.ItemTypeResource, ItemID: 5, Price: decimal.NewFromInt(5), Quantity: 1}))

	items, err := c.Get(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.ItemTypeCourse, items[0].ItemType)
	assert.Equal(t, 3, items[0].Quantity)
	assert.True(t, models.CartTotal(items).Equal(decimal.NewFromInt(65)))
	assert.True(t, mr.TTL(guestKeyPrefix+"guest-1") > 0)

	require.NoError(t, c.SetQuantity(ctx, items[0].ID, 1))
	require.NoError(t, c.SetQuantity(ctx, items[1].ID, 0))
	items, err = c.Get(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)

	assert.ErrorIs(t, c.Remove(ctx, "nope"), models.ErrCartItemNotFound)
	assert.ErrorIs(t, c.SetQuantity(ctx, "nope", 2), models.ErrCartItemNotFound)
	assert.ErrorIs(t, c.SetQuantity(ctx, items[0].ID, -1), models.ErrInvalidQuantity)
	assert.ErrorIs(t, c.Add(ctx, models.CartItem{ItemType: "lesson", ItemID: 1, Quantity: 1}), models.ErrInvalidItemType)
	assert.ErrorIs(t, c.Add(ctx, course(2, 0)), models.ErrInvalidQuantity)

	require.NoError(t, c.Clear(ctx))
	items, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGuestCartsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, _ := newGuestStore(t)

	require.NoError(t, store.Cart("a").Add(ctx, course(1, 1)))
	items, err := store.Cart("b").Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMergeGuestIntoAccount(t *testing.T) {
	ctx := context.Background()
	store, _ := newGuestStore(t)
	guest := store.Cart("guest-1")
	accountStore := newMemoryStore()
	account := NewAccountCart(accountStore, 42)

	require.NoError(t, account.Add(ctx, course(1, 1)))
	require.NoError(t, guest.Add(ctx, course(1, 2)))
	require.NoError(t, guest.Add(ctx, course(7, 1)))

	moved, err := Merge(ctx, guest, account)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	items, err := account.Get(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, int64(7), items[1].ItemID)

	left, err := guest.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)

	moved, err = Merge(ctx, guest, account)
	require.NoError(t, err)
	assert.Zero(t, moved)
}

func TestAccountCartZeroQuantityRemoves(t *testing.T) {
	ctx := context.Background()
	account := NewAccountCart(newMemoryStore(), 1)

	require.NoError(t, account.Add(ctx, course(1, 1)))
	items, _ := account.Get(ctx)
	require.NoError(t, account.SetQuantity(ctx, items[0].ID, 0))

	items, err := account.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
