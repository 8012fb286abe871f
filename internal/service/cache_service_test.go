package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"unicode/utf8"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/dispatch-api/internal/models"
	"github.com/noah-isme/dispatch-api/internal/repository"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
	"github.com/noah-isme/dispatch-api/pkg/geocode"
)

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *CacheService) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := repository.NewCacheRepository(client, zap.NewNop())
	return mr, NewCacheService(repo, NewMetricsService(), time.Minute, zap.NewNop(), true)
}

func TestCacheServiceRoundTripAndInvalidate(t *testing.T) {
	mr, cache := newRedisCache(t)
	ctx := context.Background()

	var out []string
	assert.False(t, cache.Get(ctx, "categories:active", &out))

	cache.Set(ctx, "categories:active", []string{"plumbing"}, 0)
	require.True(t, cache.Get(ctx, "categories:active", &out))
	assert.Equal(t, []string{"plumbing"}, out)
	assert.Equal(t, time.Minute, mr.TTL("dispatch:categories:active"))

	cache.Invalidate(ctx, "categories:*")
	assert.False(t, cache.Get(ctx, "categories:active", &out))
}

func TestCacheServiceNilIsDisabled(t *testing.T) {
	var cache *CacheService
	var out string
	assert.False(t, cache.Enabled())
	assert.False(t, cache.Get(context.Background(), "k", &out))
	cache.Set(context.Background(), "k", "v", time.Second)
	cache.Invalidate(context.Background(), "*")
}

type countingCategories struct {
	calls int32
	items []models.ServiceCategory
}

func (c *countingCategories) ListActive(context.Context) ([]models.ServiceCategory, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.items, nil
}

func (c *countingCategories) GetByID(_ context.Context, id string) (*models.ServiceCategory, error) {
	for _, item := range c.items {
		if item.ID == id {
			item := item
			return &item, nil
		}
	}
	return nil, errCategoryStore
}

var errCategoryStore = errors.New("connection reset by peer")

func TestCategoryServiceCachesActiveList(t *testing.T) {
	_, cache := newRedisCache(t)
	store := &countingCategories{items: []models.ServiceCategory{
		{ID: "cat-1", Name: "Electrical", Active: true},
		{ID: "cat-2", Name: "Retired", Active: false},
	}}
	svc := NewCategoryService(store, cache, time.Minute, zap.NewNop())
	ctx := context.Background()

	first, err := svc.ListActive(ctx)
	require.NoError(t, err)
	second, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&store.calls))

	_, err = svc.RequireActive(ctx, "cat-1")
	require.NoError(t, err)
	_, err = svc.RequireActive(ctx, "cat-2")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	_, err = svc.RequireActive(ctx, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestCategoryServiceMissingIsValidation(t *testing.T) {
	store := repository.NewMemoryStore(time.Second)
	svc := NewCategoryService(store.Categories(), nil, time.Minute, zap.NewNop())

	_, err := svc.RequireActive(context.Background(), "nope")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

type reverseStub struct {
	calls  int32
	result *geocode.Result
	err    error
}

func (r *reverseStub) Reverse(context.Context, float64, float64) (*geocode.Result, error) {
	atomic.AddInt32(&r.calls, 1)
	return r.result, r.err
}

func TestGeocodeServiceCachesLookups(t *testing.T) {
	mr, cache := newRedisCache(t)
	client := &reverseStub{result: &geocode.Result{Address: "Westminster, London", Postcode: "SW1A 2AA"}}
	svc := NewGeocodeService(client, cache, time.Hour, zap.NewNop())
	ctx := context.Background()

	address, postcode := svc.Lookup(ctx, 51.50741, -0.12779)
	assert.Equal(t, "Westminster, London", address)
	assert.Equal(t, "SW1A 2AA", postcode)
	assert.True(t, mr.Exists("dispatch:geocode:51.5074:-0.1278"))

	address, _ = svc.Lookup(ctx, 51.50742, -0.12781)
	assert.Equal(t, "Westminster, London", address)
	assert.EqualValues(t, 1, atomic.LoadInt32(&client.calls))
}

func TestGeocodeServiceSwallowsFailures(t *testing.T) {
	svc := NewGeocodeService(&reverseStub{err: errors.New("timeout")}, nil, 0, zap.NewNop())
	address, postcode := svc.Lookup(context.Background(), 1, 1)
	assert.Empty(t, address)
	assert.Empty(t, postcode)

	var disabled *GeocodeService
	address, _ = disabled.Lookup(context.Background(), 1, 1)
	assert.Empty(t, address)
}

func TestGeocodeServiceFitsColumnWidths(t *testing.T) {
	mr, cache := newRedisCache(t)
	long := strings.Repeat("Ä", 300)
	client := &reverseStub{result: &geocode.Result{Address: long, Postcode: strings.Repeat("9", 40)}}
	svc := NewGeocodeService(client, cache, time.Hour, zap.NewNop())
	ctx := context.Background()

	address, postcode := svc.Lookup(ctx, 48.1351, 11.5820)
	assert.Equal(t, 255, utf8.RuneCountInString(address))
	assert.Empty(t, postcode)
	assert.True(t, mr.Exists("dispatch:geocode:48.1351:11.5820"))

	// Cached results are trimmed the same way.
	address, postcode = svc.Lookup(ctx, 48.1351, 11.5820)
	assert.Equal(t, 255, utf8.RuneCountInString(address))
	assert.Empty(t, postcode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&client.calls))

	client.result = &geocode.Result{Address: "Marienplatz 1, München", Postcode: "80331"}
	address, postcode = NewGeocodeService(client, nil, 0, zap.NewNop()).Lookup(ctx, 1, 1)
	assert.Equal(t, "Marienplatz 1, München", address)
	assert.Equal(t, "80331", postcode)
}
