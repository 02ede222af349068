package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

const (
	idempotencyKeyPrefix  = "oms:idempotency:"
	defaultIdempotencyTTL = 24 * time.Hour
)

// idempotencyRecord хранится в Redis как JSON.
type idempotencyRecord struct {
	Key          string    `json:"key"`
	RequestHash  string    `json:"request_hash"`
	ResponseBody []byte    `json:"response_body,omitempty"`
	HTTPStatus   int       `json:"http_status,omitempty"`
	Status       string    `json:"status"`
	TTLAt        time.Time `json:"ttl_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IdempotencyRepository хранит ключи идемпотентности в Redis.
// Срок жизни записи задаётся TTL ключа, поэтому отдельная очистка не нужна.
type IdempotencyRepository struct {
	client *Client
	now    func() time.Time
}

// NewIdempotencyRepository создаёт Redis-реализацию domain.IdempotencyRepository.
func NewIdempotencyRepository(client *Client) *IdempotencyRepository {
	return &IdempotencyRepository{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)

	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultIdempotencyTTL)
	}
	ttl := ttlAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Millisecond
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	data, err := encodeRecord(record)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	existing, created, err := claimKey(ctx,
		func(ctx context.Context) (bool, error) {
			return r.client.rdb.SetNX(ctx, idempotencyKeyPrefix+key, data, ttl).Result()
		},
		func(ctx context.Context) (domain.IdempotencyRecord, error) {
			return r.Get(ctx, key)
		},
	)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if created {
		return record, nil
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

// claimKeyAttempts ограничивает число попыток занять ключ, если он истёк между SetNX и Get.
const claimKeyAttempts = 2

// claimKey выполняет SetNX и при занятом ключе читает существующую запись.
func claimKey(
	ctx context.Context,
	setNX func(ctx context.Context) (bool, error),
	load func(ctx context.Context) (domain.IdempotencyRecord, error),
) (domain.IdempotencyRecord, bool, error) {
	for attempt := 1; ; attempt++ {
		created, err := setNX(ctx)
		if err != nil {
			return domain.IdempotencyRecord{}, false, fmt.Errorf("create idempotency key: %w", err)
		}
		if created {
			return domain.IdempotencyRecord{}, true, nil
		}

		existing, err := load(ctx)
		if errors.Is(err, domain.ErrIdempotencyKeyNotFound) && attempt < claimKeyAttempts {
			continue
		}
		if err != nil {
			return domain.IdempotencyRecord{}, false, err
		}
		return existing, false, nil
	}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	data, err := r.client.rdb.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency key: %w", err)
	}
	return decodeRecord(data)
}

func (r *IdempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired ничего не делает: Redis удаляет просроченные ключи сам.
func (r *IdempotencyRepository) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (r *IdempotencyRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	record, err := r.Get(ctx, key)
	if err != nil {
		return err
	}

	record.Status = status
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = r.now()

	data, err := encodeRecord(record)
	if err != nil {
		return err
	}

	// XX + KEEPTTL: запись обновляется только если ключ ещё жив, срок жизни сохраняется.
	updated, err := r.client.rdb.SetXX(ctx, idempotencyKeyPrefix+record.Key, data, goredis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("mark idempotency key %s: %w", status, err)
	}
	if !updated {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func encodeRecord(record domain.IdempotencyRecord) ([]byte, error) {
	data, err := json.Marshal(idempotencyRecord{
		Key:          record.Key,
		RequestHash:  record.RequestHash,
		ResponseBody: record.ResponseBody,
		HTTPStatus:   record.HTTPStatus,
		Status:       string(record.Status),
		TTLAt:        record.TTLAt,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode idempotency record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (domain.IdempotencyRecord, error) {
	var raw idempotencyRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("decode idempotency record: %w", err)
	}

	status := domain.IdempotencyStatus(raw.Status)
	if !status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("decode idempotency record: unknown status %q", raw.Status)
	}

	return domain.IdempotencyRecord{
		Key:          raw.Key,
		RequestHash:  raw.RequestHash,
		ResponseBody: raw.ResponseBody,
		HTTPStatus:   raw.HTTPStatus,
		Status:       status,
		TTLAt:        raw.TTLAt,
		CreatedAt:    raw.CreatedAt,
		UpdatedAt:    raw.UpdatedAt,
	}, nil
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
