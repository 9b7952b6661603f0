package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
	"github.com/jitsi-contrib/autoscaler/internal/model"
)

// scanPageSize bounds how many keys a single SCAN/HSCAN round trip asks for,
// keeping bulk list operations cursor-scannable per spec.md §4.1.
const scanPageSize = 200

// RedisStore is the durable-KV InstanceStore profile: groups live as plain
// string keys, per-group instance state lives in a hash (id -> state JSON),
// metrics live in a per-group sorted set scored by timestamp (so FetchMetrics
// becomes a ZRANGEBYSCORE and TTL-bounded GC becomes a ZREMRANGEBYSCORE), and
// every marker/grace key uses native Redis TTL.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client. The caller owns the client's
// lifecycle except that Close() is forwarded.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) GetInstanceGroup(ctx context.Context, name string) (*model.InstanceGroup, error) {
	raw, err := s.client.Get(ctx, groupKey(name)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}

	var g model.InstanceGroup
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return &g, nil
}

func (s *RedisStore) UpsertInstanceGroup(ctx context.Context, group model.InstanceGroup) error {
	raw, err := json.Marshal(group)
	if err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	if err := s.client.Set(ctx, groupKey(group.Name), raw, 0).Err(); err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return s.client.SAdd(ctx, groupIndexKey, group.Name).Err()
}

const groupIndexKey = "groups:index"

func (s *RedisStore) DeleteInstanceGroup(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, groupKey(name))
	pipe.Del(ctx, instancesStatusKey(name))
	pipe.SRem(ctx, groupIndexKey, name)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return nil
}

func (s *RedisStore) GetAllInstanceGroupNames(ctx context.Context) ([]string, error) {
	var names []string
	iter := s.client.SScanIterator(ctx, groupIndexKey, 0, "*", scanPageSize)
	for iter.Next(ctx) {
		names = append(names, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return names, nil
}

func (s *RedisStore) GetAllInstanceGroups(ctx context.Context) ([]model.InstanceGroup, error) {
	names, err := s.GetAllInstanceGroupNames(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.InstanceGroup, 0, len(names))
	for _, name := range names {
		g, err := s.GetInstanceGroup(ctx, name)
		if err != nil {
			return nil, err
		}
		if g != nil {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *RedisStore) ExistsAtLeastOneGroup(ctx context.Context) (bool, error) {
	n, err := s.client.SCard(ctx, groupIndexKey).Result()
	if err != nil {
		return false, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return n > 0, nil
}

func (s *RedisStore) FetchInstanceStates(ctx context.Context, group string) ([]model.InstanceState, error) {
	raw, err := s.client.HGetAll(ctx, instancesStatusKey(group)).Result()
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}

	out := make([]model.InstanceState, 0, len(raw))
	for _, v := range raw {
		var st model.InstanceState
		if err := json.Unmarshal([]byte(v), &st); err != nil {
			return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *RedisStore) SaveInstanceStatus(ctx context.Context, group string, state model.InstanceState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	if err := s.client.HSet(ctx, instancesStatusKey(group), state.InstanceID, raw).Err(); err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return nil
}

func (s *RedisStore) FilterOutAndTrimExpiredStates(ctx context.Context, group string, states []model.InstanceState, ttl TTLConfig) ([]model.InstanceState, error) {
	now := time.Now()

	var live []model.InstanceState
	var expiredIDs []string
	for _, st := range states {
		effectiveTTL := ttl.EffectiveTTL(st)
		if effectiveTTL > 0 && now.After(st.Timestamp.Add(effectiveTTL)) {
			expiredIDs = append(expiredIDs, st.InstanceID)
			continue
		}
		live = append(live, st)
	}

	if len(expiredIDs) > 0 {
		if err := s.client.HDel(ctx, instancesStatusKey(group), expiredIDs...).Err(); err != nil {
			return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
		}
	}
	return live, nil
}

func (s *RedisStore) SetShutdownStatus(ctx context.Context, instanceIDs []string, status bool, ttl time.Duration) error {
	pipe := s.client.Pipeline()
	for _, id := range instanceIDs {
		pipe.Set(ctx, shutdownKey(id), strconv.FormatBool(status), ttl)
	}
	_, err := pipe.Exec(ctx)
	return autoscalererr.Wrap(autoscalererr.ErrStore, err)
}

func (s *RedisStore) GetShutdownStatus(ctx context.Context, instanceID string) (bool, error) {
	v, err := s.client.Get(ctx, shutdownKey(instanceID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return strconv.ParseBool(v)
}

func (s *RedisStore) GetShutdownStatuses(ctx context.Context, _ string, instanceIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(instanceIDs))
	for _, id := range instanceIDs {
		v, err := s.GetShutdownStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

func (s *RedisStore) SetShutdownConfirmation(ctx context.Context, instanceID string, at time.Time, ttl time.Duration) error {
	err := s.client.Set(ctx, shutdownConfirmationKey(instanceID), at.Format(time.RFC3339Nano), ttl).Err()
	return autoscalererr.Wrap(autoscalererr.ErrStore, err)
}

func (s *RedisStore) GetShutdownConfirmation(ctx context.Context, instanceID string) (*time.Time, error) {
	v, err := s.client.Get(ctx, shutdownConfirmationKey(instanceID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return &t, nil
}

func (s *RedisStore) GetShutdownConfirmations(ctx context.Context, _ string, instanceIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	for _, id := range instanceIDs {
		t, err := s.GetShutdownConfirmation(ctx, id)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out[id] = *t
		}
	}
	return out, nil
}

func (s *RedisStore) SetScaleDownProtected(ctx context.Context, _ string, instanceID string, ttl time.Duration, mode ProtectionMode) error {
	err := s.client.Set(ctx, scaleDownProtectedKey(instanceID), string(mode), ttl).Err()
	return autoscalererr.Wrap(autoscalererr.ErrStore, err)
}

func (s *RedisStore) AreScaleDownProtected(ctx context.Context, _ string, instanceIDs []string) ([]bool, error) {
	out := make([]bool, len(instanceIDs))
	for i, id := range instanceIDs {
		n, err := s.client.Exists(ctx, scaleDownProtectedKey(id)).Result()
		if err != nil {
			return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
		}
		out[i] = n > 0
	}
	return out, nil
}

func (s *RedisStore) SetReconfigureDate(ctx context.Context, instanceIDs []string, date time.Time, ttl time.Duration) error {
	pipe := s.client.Pipeline()
	for _, id := range instanceIDs {
		pipe.Set(ctx, reconfigureKey(id), date.Format(time.RFC3339Nano), ttl)
	}
	_, err := pipe.Exec(ctx)
	return autoscalererr.Wrap(autoscalererr.ErrStore, err)
}

func (s *RedisStore) UnsetReconfigureDate(ctx context.Context, instanceID, _ string) error {
	err := s.client.Del(ctx, reconfigureKey(instanceID)).Err()
	return autoscalererr.Wrap(autoscalererr.ErrStore, err)
}

func (s *RedisStore) GetReconfigureDate(ctx context.Context, instanceID string) (*time.Time, error) {
	v, err := s.client.Get(ctx, reconfigureKey(instanceID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return &t, nil
}

func (s *RedisStore) GetReconfigureDates(ctx context.Context, _ string, instanceIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	for _, id := range instanceIDs {
		t, err := s.GetReconfigureDate(ctx, id)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out[id] = *t
		}
	}
	return out, nil
}

func (s *RedisStore) SaveMetric(ctx context.Context, group string, metric model.InstanceMetric, ttl time.Duration) error {
	raw, err := json.Marshal(metric)
	if err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}

	key := metricSetKey(group)
	score := float64(metric.Timestamp.UnixMilli())

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: raw})
	if ttl > 0 {
		cutoff := float64(time.Now().Add(-ttl).UnixMilli())
		pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%f", cutoff))
	}
	_, err = pipe.Exec(ctx)
	return autoscalererr.Wrap(autoscalererr.ErrStore, err)
}

func metricSetKey(group string) string { return fmt.Sprintf("metrics:%s", group) }

func (s *RedisStore) FetchMetrics(ctx context.Context, group string, since time.Time) ([]model.InstanceMetric, error) {
	members, err := s.client.ZRangeByScore(ctx, metricSetKey(group), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.UnixMilli()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}

	out := make([]model.InstanceMetric, 0, len(members))
	for _, m := range members {
		var metric model.InstanceMetric
		if err := json.Unmarshal([]byte(m), &metric); err != nil {
			return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
		}
		out = append(out, metric)
	}
	return out, nil
}

func (s *RedisStore) AppendAudit(ctx context.Context, event model.AuditEvent, ttl time.Duration) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}

	key := auditSetKey(event.Group)
	score := float64(event.Timestamp.UnixMilli())

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: raw})
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err = pipe.Exec(ctx)
	return autoscalererr.Wrap(autoscalererr.ErrStore, err)
}

func auditSetKey(group string) string { return fmt.Sprintf("audit:%s", group) }

func (s *RedisStore) FetchAudit(ctx context.Context, group string) ([]model.AuditEvent, error) {
	members, err := s.client.ZRange(ctx, auditSetKey(group), 0, -1).Result()
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}

	out := make([]model.AuditEvent, 0, len(members))
	for _, m := range members {
		var event model.AuditEvent
		if err := json.Unmarshal([]byte(m), &event); err != nil {
			return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
		}
		out = append(out, event)
	}
	return out, nil
}

func (s *RedisStore) SetValue(ctx context.Context, key, value string, ttl time.Duration) error {
	err := s.client.Set(ctx, key, value, ttl).Err()
	return autoscalererr.Wrap(autoscalererr.ErrStore, err)
}

func (s *RedisStore) CheckValue(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return n > 0, nil
}

func (s *RedisStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return v, true, nil
}

var _ InstanceStore = (*RedisStore)(nil)
