package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"avatarsvc/internal/jobs"
	"avatarsvc/internal/storage"
)

// sweepBatch bounds the number of keys checked against Postgres at once.
const sweepBatch = 500

type Objects interface {
	ListKeys(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Remove(ctx context.Context, key string) error
}

type References interface {
	ExistingKeys(ctx context.Context, keys []string) (map[string]struct{}, error)
}

// Processor runs the maintenance tasks the API publishes: purging objects it
// could not remove, and sweeping objects no avatar row references.
type Processor struct {
	objects Objects
	refs    References
	prefix  string
	grace   time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

func NewProcessor(objects Objects, refs References, prefix string, grace time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		objects: objects,
		refs:    refs,
		prefix:  prefix,
		grace:   grace,
		now:     time.Now,
		logger:  logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	task := decodeTask(msg.Values)

	switch task.Type {
	case jobs.TaskPurge:
		return p.purge(ctx, task.Key)
	case jobs.TaskSweep:
		_, err := p.Sweep(ctx)
		return err
	default:
		p.logger.Warn().Str("type", task.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodeTask(values map[string]interface{}) jobs.Task {
	var task jobs.Task
	if v, ok := values["type"].(string); ok {
		task.Type = v
	}
	if v, ok := values["key"].(string); ok {
		task.Key = v
	}
	return task
}

func (p *Processor) purge(ctx context.Context, key string) error {
	if key == "" {
		p.logger.Warn().Msg("purge task without key")
		return nil
	}

	refs, err := p.refs.ExistingKeys(ctx, []string{key})
	if err != nil {
		return fmt.Errorf("check references of %s: %w", key, err)
	}
	if _, used := refs[key]; used {
		p.logger.Warn().Str("key", key).Msg("purge skipped, key is referenced")
		return nil
	}

	if err := p.objects.Remove(ctx, key); err != nil {
		return fmt.Errorf("purge %s: %w", key, err)
	}
	p.logger.Info().Str("key", key).Msg("object purged")
	return nil
}

// Sweep removes objects older than the grace period that no row references
// and returns how many it removed. The grace period covers uploads whose row
// is not committed yet.
func (p *Processor) Sweep(ctx context.Context) (int, error) {
	objects, err := p.objects.ListKeys(ctx, p.prefix)
	if err != nil {
		return 0, fmt.Errorf("list objects: %w", err)
	}

	cutoff := p.now().Add(-p.grace)
	candidates := make([]string, 0, len(objects))
	for _, obj := range objects {
		if obj.LastModified.Before(cutoff) {
			candidates = append(candidates, obj.Key)
		}
	}

	removed := 0
	for start := 0; start < len(candidates); start += sweepBatch {
		end := min(start+sweepBatch, len(candidates))
		batch := candidates[start:end]

		refs, err := p.refs.ExistingKeys(ctx, batch)
		if err != nil {
			return removed, fmt.Errorf("check references: %w", err)
		}

		for _, key := range batch {
			if _, used := refs[key]; used {
				continue
			}
			if err := p.objects.Remove(ctx, key); err != nil {
				p.logger.Error().Err(err).Str("key", key).Msg("sweep remove failed")
				continue
			}
			removed++
		}
	}

	p.logger.Info().
		Int("scanned", len(objects)).
		Int("removed", removed).
		Msg("orphan sweep finished")
	return removed, nil
}
