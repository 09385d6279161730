package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"danceBack/internal/models"
)

const guestKeyPrefix = "cart:guest:"

// GuestStore hands out Redis-backed carts addressed by guest id.
type GuestStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewGuestStore(rdb *redis.Client, ttl time.Duration) *GuestStore {
	return &GuestStore{rdb: rdb, ttl: ttl}
}

func (s *GuestStore) Cart(guestID string) Cart {
	return &guestCart{store: s, key: guestKeyPrefix + guestID}
}

type guestCart struct {
	store *GuestStore
	key   string
}

func (c *guestCart) Get(ctx context.Context) ([]models.CartItem, error) {
	raw, err := c.store.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}
	items := make([]models.CartItem, 0, len(raw))
	for id, v := range raw {
		var it models.CartItem
		if err := json.Unmarshal([]byte(v), &it); err != nil {
			return nil, fmt.Errorf("decode guest cart line %s: %w", id, err)
		}
		it.ID = id
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ItemType != items[j].ItemType {
			return items[i].ItemType < items[j].ItemType
		}
		return items[i].ItemID < items[j].ItemID
	})
	return items, nil
}

func (c *guestCart) Add(ctx context.Context, item models.CartItem) error {
	if err := validate(item); err != nil {
		return err
	}
	items, err := c.Get(ctx)
	if err != nil {
		return err
	}
	for _, existing := range items {
		if existing.SameProduct(item) {
			existing.Quantity += item.Quantity
			existing.Title = item.Title
			existing.Price = item.Price
			return c.put(ctx, existing)
		}
	}
	item.ID = uuid.NewString()
	return c.put(ctx, item)
}

func (c *guestCart) Remove(ctx context.Context, cartItemID string) error {
	n, err := c.store.rdb.HDel(ctx, c.key, cartItemID).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrCartItemNotFound
	}
	return c.touch(ctx)
}

func (c *guestCart) SetQuantity(ctx context.Context, cartItemID string, quantity int) error {
	if quantity < 0 {
		return models.ErrInvalidQuantity
	}
	if quantity == 0 {
		return c.Remove(ctx, cartItemID)
	}
	v, err := c.store.rdb.HGet(ctx, c.key, cartItemID).Result()
	if err == redis.Nil {
		return models.ErrCartItemNotFound
	}
	if err != nil {
		return err
	}
	var it models.CartItem
	if err := json.Unmarshal([]byte(v), &it); err != nil {
		return err
	}
	it.ID = cartItemID
	it.Quantity = quantity
	return c.put(ctx, it)
}

func (c *guestCart) Clear(ctx context.Context) error {
	return c.store.rdb.Del(ctx, c.key).Err()
}

func (c *guestCart) put(ctx context.Context, item models.CartItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := c.store.rdb.HSet(ctx, c.key, item.ID, data).Err(); err != nil {
		return err
	}
	return c.touch(ctx)
}

func (c *guestCart) touch(ctx context.Context) error {
	if c.store.ttl <= 0 {
		return nil
	}
	return c.store.rdb.Expire(ctx, c.key, c.store.ttl).Err()
}
