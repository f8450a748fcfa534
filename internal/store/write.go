package store

import (
	"context"
	"fmt"

	"github.com/roach88/jagtrack/internal/ir"
)

// Observation is one accepted inbound event.
type Observation struct {
	Seq   int64
	Event ir.Inbound
}

// Publication is one outbound payload. ObservationSeq is the observation
// whose processing produced it.
type Publication struct {
	Seq            int64
	ObservationSeq int64
	IdentityKey    string
	Outbound       ir.Outbound
}

// WriteObservation appends an observation.
// Uses ON CONFLICT(seq) DO NOTHING for idempotency - rewriting a seq is
// silently ignored.
func (s *Store) WriteObservation(ctx context.Context, obs Observation) error {
	payload, err := marshalPayload(obs.Event)
	if err != nil {
		return fmt.Errorf("write observation %d: %w", obs.Seq, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO observations
		(seq, observer, category, elapsed_ms, instance_id, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		obs.Seq,
		obs.Event.Observer,
		string(obs.Event.Category),
		obs.Event.ElapsedMS,
		obs.Event.InstanceID(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("write observation %d: %w", obs.Seq, err)
	}
	return nil
}

// WritePublication appends a publication. The referenced observation
// must exist (foreign key constraint).
func (s *Store) WritePublication(ctx context.Context, pub Publication) error {
	payload, err := marshalPayload(pub.Outbound)
	if err != nil {
		return fmt.Errorf("write publication %d: %w", pub.Seq, err)
	}
	key, err := identityKey(pub.Outbound)
	if err != nil {
		return fmt.Errorf("write publication %d: %w", pub.Seq, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO publications
		(seq, observation_seq, observer, category, elapsed_ms, instance_id, identity_key, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		pub.Seq,
		pub.ObservationSeq,
		pub.Outbound.Observer,
		string(pub.Outbound.Category),
		pub.Outbound.ElapsedMS,
		pub.Outbound.InstanceID(),
		key,
		payload,
	)
	if err != nil {
		return fmt.Errorf("write publication %d: %w", pub.Seq, err)
	}
	return nil
}
