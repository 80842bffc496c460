package finance

import (
	"go.uber.org/zap"
)

// optimistic applies mutate to *slot under the lock, runs call without it
// and puts the pre-image back if call fails. mutate must not modify its
// argument in place; the helpers below return fresh slices.
func optimistic[T any](c *Cache, coll Collection, op string, slot *T, mutate func(T) (T, error), call func() error) error {
	c.mu.Lock()
	before := *slot
	after, err := mutate(before)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	*slot = after
	c.mu.Unlock()
	c.notify(coll)

	if err := call(); err != nil {
		c.mu.Lock()
		*slot = before
		c.mu.Unlock()

		c.metrics.RecordMutation(string(coll), op, false)
		c.metrics.RecordRollback(string(coll))
		c.logger.Warn("mutation rejected, rolled back",
			zap.String("collection", string(coll)),
			zap.String("op", op),
			zap.Error(err),
		)
		c.notify(coll)
		return err
	}

	c.metrics.RecordMutation(string(coll), op, true)
	return nil
}

// replaceWhere returns a copy of s with the first match replaced by fn(match).
func replaceWhere[T any](s []T, match func(T) bool, fn func(T) T) ([]T, bool) {
	for i, v := range s {
		if match(v) {
			out := make([]T, len(s))
			copy(out, s)
			out[i] = fn(v)
			return out, true
		}
	}
	return s, false
}

// removeWhere returns a copy of s without the elements that match.
func removeWhere[T any](s []T, match func(T) bool) ([]T, bool) {
	out := make([]T, 0, len(s))
	removed := false
	for _, v := range s {
		if match(v) {
			removed = true
			continue
		}
		out = append(out, v)
	}
	if !removed {
		return s, false
	}
	return out, true
}

// recordCreate reports a non-optimistic create.
func (c *Cache) recordCreate(coll Collection, err error) {
	c.metrics.RecordMutation(string(coll), "create", err == nil)
	if err != nil {
		c.logger.Warn("create failed",
			zap.String("collection", string(coll)),
			zap.Error(err),
		)
	}
}
