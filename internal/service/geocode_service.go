package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/noah-isme/dispatch-api/pkg/geocode"
)

// ReverseGeocoder resolves coordinates to an address.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*geocode.Result, error)
}

// GeocodeService fills missing addresses. Lookups are cached at ~11 m precision and failures
// degrade to empty strings.
type GeocodeService struct {
	client ReverseGeocoder
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewGeocodeService constructs a GeocodeService. A nil client disables lookups.
func NewGeocodeService(client ReverseGeocoder, cache *CacheService, ttl time.Duration, logger *zap.Logger) *GeocodeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &GeocodeService{client: client, cache: cache, ttl: ttl, logger: logger}
}

// Column widths of service_requests.address and service_requests.postcode.
const (
	maxAddressRunes  = 255
	maxPostcodeRunes = 20
)

func geocodeCacheKey(lat, lon float64) string {
	return fmt.Sprintf("geocode:%.4f:%.4f", lat, lon)
}

// Lookup returns the address and postcode for a position, or empty strings.
func (s *GeocodeService) Lookup(ctx context.Context, lat, lon float64) (address, postcode string) {
	if s == nil || s.client == nil {
		return "", ""
	}
	key := geocodeCacheKey(lat, lon)
	var cached geocode.Result
	if s.cache.Get(ctx, key, &cached) {
		return fitColumns(cached)
	}
	result, err := s.client.Reverse(ctx, lat, lon)
	if err != nil {
		s.logger.Warn("reverse geocoding failed", zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
		return "", ""
	}
	if result == nil {
		return "", ""
	}
	s.cache.Set(ctx, key, result, s.ttl)
	return fitColumns(*result)
}

// fitColumns trims the address to its column and drops a postcode that does not fit.
func fitColumns(result geocode.Result) (string, string) {
	address := strings.TrimSpace(result.Address)
	if runes := []rune(address); len(runes) > maxAddressRunes {
		address = strings.TrimSpace(string(runes[:maxAddressRunes]))
	}
	postcode := strings.TrimSpace(result.Postcode)
	if utf8.RuneCountInString(postcode) > maxPostcodeRunes {
		postcode = ""
	}
	return address, postcode
}
