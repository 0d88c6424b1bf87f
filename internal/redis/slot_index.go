package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/availability"
)

const slotKeyPrefix = "slots:"

// SlotIndex stores one hash per doctor and date: field is the slot time,
// value is the appointment holding it. HSETNX makes reservation atomic across
// every API process sharing the Redis instance.
type SlotIndex struct {
	client *redis.Client
}

var _ availability.Index = (*SlotIndex)(nil)

func NewSlotIndex(client *redis.Client) *SlotIndex {
	return &SlotIndex{client: client}
}

func slotKey(doctorID uuid.UUID, date string) string {
	return fmt.Sprintf("%s%s:%s", slotKeyPrefix, doctorID, date)
}

func (s *SlotIndex) IsAvailable(ctx context.Context, slot availability.Slot) (bool, error) {
	held, err := s.client.HExists(ctx, slotKey(slot.DoctorID, slot.Date), slot.Time).Result()
	if err != nil {
		return false, fmt.Errorf("check slot %s: %w", slot, err)
	}
	return !held, nil
}

func (s *SlotIndex) Reserve(ctx context.Context, slot availability.Slot, owner uuid.UUID) error {
	key := slotKey(slot.DoctorID, slot.Date)
	ok, err := s.client.HSetNX(ctx, key, slot.Time, owner.String()).Result()
	if err != nil {
		return fmt.Errorf("reserve slot %s: %w", slot, err)
	}
	if ok {
		return nil
	}

	current, err := s.client.HGet(ctx, key, slot.Time).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read slot %s: %w", slot, err)
	}
	if current == owner.String() {
		return nil
	}
	return availability.ErrSlotConflict
}

var releaseSlotScript = redis.NewScript(`
local val = redis.call("HGET", KEYS[1], ARGV[1])
if not val then
  return 0
end
if val == ARGV[2] then
  return redis.call("HDEL", KEYS[1], ARGV[1])
end
return -1
`)

func (s *SlotIndex) Release(ctx context.Context, slot availability.Slot, owner uuid.UUID) error {
	res, err := releaseSlotScript.Run(ctx, s.client,
		[]string{slotKey(slot.DoctorID, slot.Date)}, slot.Time, owner.String()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot %s: %w", slot, err)
	}
	if res < 0 {
		return availability.ErrNotOwner
	}
	return nil
}

func (s *SlotIndex) BookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	times, err := s.client.HKeys(ctx, slotKey(doctorID, date)).Result()
	if err != nil {
		return nil, fmt.Errorf("list booked times: %w", err)
	}
	sort.Strings(times)
	return times, nil
}

// Entries walks every slot hash with SCAN, so it sees a live, non-atomic
// view. Callers re-check each entry before acting on it.
func (s *SlotIndex) Entries(ctx context.Context) ([]availability.Entry, error) {
	var out []availability.Entry
	iter := s.client.Scan(ctx, 0, slotKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		doctorID, date, ok := parseSlotKey(key)
		if !ok {
			continue
		}
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("read slot hash %s: %w", key, err)
		}
		for tm, raw := range fields {
			owner, err := uuid.Parse(raw)
			if err != nil {
				continue
			}
			out = append(out, availability.Entry{
				Slot:  availability.Slot{DoctorID: doctorID, Date: date, Time: tm},
				Owner: owner,
			})
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan slot keys: %w", err)
	}
	return out, nil
}

func parseSlotKey(key string) (uuid.UUID, string, bool) {
	rest, ok := strings.CutPrefix(key, slotKeyPrefix)
	if !ok {
		return uuid.Nil, "", false
	}
	rawID, date, ok := strings.Cut(rest, ":")
	if !ok || date == "" {
		return uuid.Nil, "", false
	}
	doctorID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, "", false
	}
	return doctorID, date, true
}
